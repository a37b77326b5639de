package main

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pinmap/internal/domain/geo"
	"pinmap/internal/service/mapsync"
)

func runPinsList(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(a *app) error {
		if len(onlyCategories) > 0 {
			for _, c := range a.engine.Registry().Categories() {
				a.engine.SetFilter(c.Type, slices.Contains(onlyCategories, c.Type))
			}
		}

		out := cmd.OutOrStdout()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tLAT\tLNG\tAUTHOR\tCREATED\tCOMMENT")

		store := a.engine.Store()
		for _, p := range store.Snapshot() {
			if !store.Visible(p) {
				continue
			}
			label := p.Category
			if c, ok := a.engine.Registry().Category(p.Category); ok {
				label = c.Label
			}
			fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\t%s\t%s\t%s\n",
				p.ID, label, p.Lat, p.Lng, p.CreatedByName, mapsync.FormatTime(p.CreatedAt), p.Comment)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		fmt.Fprintln(out)
		printCounts(out, "Categories", a.engine.FilterCounts())
		return nil
	})
}

func runPinsAdd(cmd *cobra.Command, args []string) error {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude %q", args[0])
	}
	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude %q", args[1])
	}

	return withEngine(cmd.Context(), func(a *app) error {
		created, err := a.engine.CreatePin(cmd.Context(), geo.LatLng{Lat: lat, Lng: lng}, args[2])
		if err != nil {
			return err
		}

		if len(args) == 4 {
			a.engine.EditComment(created.ID, args[3])
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", created.ID, created.Category)
		return nil
	})
}

func runPinsComment(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(a *app) error {
		p, ok := a.engine.Store().Get(args[0])
		if !ok {
			return fmt.Errorf("unknown pin %q", args[0])
		}
		if !p.CanEdit {
			return mapsync.ErrPermissionDenied
		}

		a.engine.EditComment(p.ID, args[1])
		if err := a.engine.Flush(cmd.Context()); err != nil {
			return err
		}

		saved, _ := a.engine.Store().Get(p.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Comment on %s: %s\n", p.ID, saved.Comment)
		return nil
	})
}

func runPinsRm(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(a *app) error {
		if err := a.engine.DeletePin(cmd.Context(), args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	})
}

func runPinsClear(cmd *cobra.Command, args []string) error {
	return withEngine(cmd.Context(), func(a *app) error {
		n, err := a.engine.ClearAll(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d pins\n", n)
		return nil
	})
}

func printCounts(w io.Writer, title string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "%s:", title)
	for _, k := range keys {
		fmt.Fprintf(w, " %s=%d", k, counts[k])
	}
	fmt.Fprintln(w)
}
