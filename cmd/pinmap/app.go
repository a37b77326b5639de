package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"pinmap/internal/adapter/remote"
	"pinmap/internal/adapter/render"
	"pinmap/internal/config"
	"pinmap/internal/domain/geo"
	"pinmap/internal/logger"
	"pinmap/internal/service/annotation"
	"pinmap/internal/service/mapsync"
)

// stderrNotifier prints user-facing failures
type stderrNotifier struct{}

func (stderrNotifier) NotifyError(message string) {
	fmt.Fprintln(os.Stderr, "!", message)
}

// app wires the client side: session, remote client, renderer and engine
type app struct {
	cfg      config.ClientConfig
	log      *slog.Logger
	session  *remote.FileSession
	client   *remote.Client
	renderer *render.GeoJSON
	engine   *mapsync.Engine
}

// newApp loads configuration and opens the session. The engine is created
// but not initialized.
func newApp() (*app, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}

	log := logger.New(os.Stderr, logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	session, err := remote.OpenSession(cfg.SessionFile)
	if err != nil {
		return nil, err
	}

	client, err := remote.NewClient(remote.Config{
		BaseURL: cfg.ServerURL,
		Timeout: cfg.RequestTimeout,
	}, session, log)
	if err != nil {
		return nil, err
	}
	session.SetAuthenticator(client)

	renderer := render.NewGeoJSON()
	engine := mapsync.New(client, renderer, session, stderrNotifier{}, nil, mapsync.Config{
		Bounds: geo.Bounds{
			South: cfg.South,
			North: cfg.North,
			West:  cfg.West,
			East:  cfg.East,
		},
		RadiusMeters: cfg.Radius,
		Autosave:     annotation.SchedulerConfig{Delay: cfg.AutosaveDelay},
	}, log)

	return &app{
		cfg:      cfg,
		log:      log,
		session:  session,
		client:   client,
		renderer: renderer,
		engine:   engine,
	}, nil
}

// withEngine initializes the engine, runs fn and flushes pending saves
func withEngine(ctx context.Context, fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}

	if err := a.engine.Initialize(ctx); err != nil {
		_ = a.engine.Close(context.WithoutCancel(ctx))
		return err
	}

	runErr := fn(a)

	// pending saves still go out when ctx was cancelled by a signal
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.engine.Flush(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := a.engine.Close(closeCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
