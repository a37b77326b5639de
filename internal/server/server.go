package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"pinmap/internal/config"
	"pinmap/internal/domain/layer"
	"pinmap/internal/domain/pin"
	"pinmap/internal/domain/user"
	"pinmap/internal/metrics"
	"pinmap/internal/server/handlers"
)

// Services groups what the HTTP layer serves
type Services struct {
	Users   user.Service
	Pins    pin.Manager
	Layers  layer.Manager
	Feed    *handlers.Hub
	Overlay handlers.OverlayConfig
}

// Server represents the HTTP server
type Server struct {
	server *http.Server
	router *chi.Mux
}

// NewServer creates a new HTTP server
func NewServer(cfg config.ServerConfig, services Services, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	// Middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", handlers.TokenHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(handlers.Authenticate(services.Users, logger))

	pinHandler := handlers.NewPinHandler(services.Pins, logger)
	layerHandler := handlers.NewLayerHandler(services.Layers, logger)
	authHandler := handlers.NewAuthHandler(services.Users, logger)
	overlayHandler := handlers.NewOverlayHandler(services.Pins, services.Overlay, logger)

	health := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}
	router.Get("/healthz", health)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/api", func(r chi.Router) {
			r.Get("/health", health)

			r.Route("/pins", func(r chi.Router) {
				r.Get("/", pinHandler.ListPins)
				r.Post("/", pinHandler.CreatePin)
				r.Delete("/", pinHandler.DeleteAll)
				r.Put("/{id}", pinHandler.UpdatePin)
				r.Delete("/{id}", pinHandler.DeletePin)
			})

			r.Route("/layers", func(r chi.Router) {
				r.Get("/", layerHandler.ListLayers)
				r.Get("/{key}/points", layerHandler.ListPoints)
				r.Post("/{key}/points", layerHandler.CreatePoint)
			})

			r.Route("/auth", func(r chi.Router) {
				r.Get("/me", authHandler.Me)
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
				r.Post("/logout", authHandler.Logout)
			})

			r.Get("/overlay", overlayHandler.GetOverlay)
		})
	})

	// Streaming endpoints stay outside the request timeout
	if services.Feed != nil {
		router.Get("/ws/pins", services.Feed.ServeHTTP)
	}
	router.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		server: httpServer,
		router: router,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
