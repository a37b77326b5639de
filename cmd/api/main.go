// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"

	"pinmap/internal/adapter/cache"
	"pinmap/internal/adapter/storage"
	"pinmap/internal/config"
	"pinmap/internal/logger"
	"pinmap/internal/server"
	"pinmap/internal/server/handlers"
	"pinmap/internal/service/auth"
	"pinmap/internal/service/layers"
	"pinmap/internal/service/pins"
)

// backend is the set of stores the services run on
type backend struct {
	points interface {
		pins.PointStore
		storage.SeedPointStore
	}
	layers interface {
		layers.LayerStore
		storage.SeedLayerStore
		EnsureDefaultLayers(ctx context.Context) error
	}
	users auth.UserStore
	close func()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Setup(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize storage
	store, err := initBackend(ctx, cfg.Database, log)
	if err != nil {
		log.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.close()

	if err := store.layers.EnsureDefaultLayers(ctx); err != nil {
		log.Error("Failed to create default layers", "error", err)
		os.Exit(1)
	}

	if cfg.Seed.File != "" && cfg.Seed.IfEmpty {
		seeder := storage.NewSeeder(store.layers, store.points, log)
		if _, err := seeder.SeedFile(ctx, cfg.Seed.File); err != nil {
			log.Error("Failed to seed database", "file", cfg.Seed.File, "error", err)
		}
	}

	// Event bus and token cache are optional
	var publisher pins.Publisher
	var natsConn *nats.Conn
	if cfg.NATS.URL != "" {
		natsConn, err = initNATS(cfg.NATS, log)
		if err != nil {
			log.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer natsConn.Close()
		publisher = natsConn
	}

	var tokenCache auth.TokenCache
	redisClient, err := cache.Open(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Warn("Token cache disabled", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		tokenCache = cache.NewTokenCache(redisClient, cache.Config{
			Prefix: cfg.Redis.Prefix,
			TTL:    cfg.Redis.TTL,
		})
	}

	// Initialize services
	pinManager := pins.NewManager(store.points, publisher, pins.ManagerConfig{
		EventsTopic:      cfg.Pins.EventsTopic,
		MaxCommentLength: cfg.Pins.MaxCommentLength,
	}, log)
	layerManager := layers.NewManager(store.layers, store.points, log)
	authService := auth.NewService(store.users, tokenCache, log)

	// Live feed: relay the bus when there is one, local events otherwise
	hub := handlers.NewHub(handlers.DefaultWebSocketConfig(), log)
	defer hub.Close()
	if natsConn != nil {
		sub, err := hub.SubscribeNATS(natsConn, cfg.Pins.EventsTopic+".>")
		if err != nil {
			log.Error("Failed to subscribe to pin events", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()
	} else {
		pinManager.RegisterEventHandler(hub.BroadcastEvent)
	}

	httpServer := server.NewServer(cfg.Server, server.Services{
		Users:  authService,
		Pins:   pinManager,
		Layers: layerManager,
		Feed:   hub,
		Overlay: handlers.OverlayConfig{
			DefaultRadius: cfg.Overlay.DefaultRadius,
			MaxCells:      cfg.Overlay.MaxCells,
		},
	}, log)

	go func() {
		log.Info("Starting HTTP server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdown
	log.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	log.Info("Shutdown complete")
}

// initBackend opens the configured store and prepares its schema
func initBackend(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*backend, error) {
	if cfg.Driver == config.DriverMemory {
		log.Warn("Using in-memory storage; data is lost on exit")
		mem := storage.NewMemory()
		return &backend{points: mem, layers: mem, users: mem, close: func() {}}, nil
	}

	db, err := initDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &backend{
		points: storage.NewPointStore(db),
		layers: storage.NewLayerStore(db),
		users:  storage.NewUserStore(db),
		close:  db.Close,
	}, nil
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, log *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
