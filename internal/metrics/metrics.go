package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinmap_http_requests_total",
		Help: "Total HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pinmap_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route", "method"})
	PinMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinmap_pin_mutations_total",
		Help: "Pin mutations by operation",
	}, []string{"operation"})
	OverlayRecomputeMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pinmap_overlay_recompute_ms",
		Help:    "Overlay build and aggregation duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	OverlayCells = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pinmap_overlay_cells",
		Help: "Cells in the most recent overlay",
	})
	AutosaveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinmap_autosave_total",
		Help: "Comment autosaves by result",
	}, []string{"result"})
	TokenCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinmap_token_cache_total",
		Help: "Auth token cache lookups by result",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(PinMutationsTotal)
	prometheus.MustRegister(OverlayRecomputeMs)
	prometheus.MustRegister(OverlayCells)
	prometheus.MustRegister(AutosaveTotal)
	prometheus.MustRegister(TokenCacheTotal)
}

// Handler exposes the registered metrics for scraping
func Handler() http.Handler { return promhttp.Handler() }

// Middleware records request counts and durations by chi route pattern
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		RequestDurationMs.WithLabelValues(route, r.Method).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// ObserveSince records elapsed milliseconds on a histogram
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(float64(time.Since(start).Microseconds()) / 1000)
}
