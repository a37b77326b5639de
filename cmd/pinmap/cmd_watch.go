package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pinmap/internal/adapter/remote"
	"pinmap/internal/domain/pin"
)

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withEngine(ctx, func(a *app) error {
		out := cmd.OutOrStdout()
		printCounts(out, "Layers", a.engine.LayerCounts())

		// reloads run one at a time on this goroutine
		events := make(chan pin.Event, 16)
		feed := a.client.NewFeed(remote.DefaultFeedConfig())
		go func() {
			_ = feed.Run(ctx, func(e pin.Event) {
				select {
				case events <- e:
				default:
				}
			})
		}()

		for {
			select {
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.Canceled) {
					return nil
				}
				return ctx.Err()
			case e := <-events:
				if err := a.engine.Reload(ctx); err != nil {
					a.log.Warn("Reload after pin event failed", "error", err)
					continue
				}
				fmt.Fprintf(out, "%s %s", e.Time.Local().Format("15:04:05"), e.Type)
				if e.PinID != "" {
					fmt.Fprintf(out, " %s", e.PinID)
				}
				fmt.Fprintln(out)
				printCounts(out, "Layers", a.engine.LayerCounts())
			}
		}
	})
}
