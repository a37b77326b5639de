package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func runOverlayExport(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(a *app) error {
		for _, key := range hideLayers {
			a.engine.SetLayerVisible(key, false)
		}

		var w io.Writer = cmd.OutOrStdout()
		if outputPath != "-" {
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("error creating %s: %w", outputPath, err)
			}
			defer f.Close()
			w = f
		}

		if _, err := a.renderer.WriteTo(w); err != nil {
			return fmt.Errorf("error writing GeoJSON: %w", err)
		}

		if outputPath != "-" {
			printCounts(cmd.ErrOrStderr(), "Layers", a.engine.LayerCounts())
		}
		return nil
	})
}
