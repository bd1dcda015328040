/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Logger:     zap request logging, request-scoped logger in context
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for frontend
  6. Auth:       Bearer token -> payroll.Actor (on /api only)

ROUTE GROUPS:
  /api/payroll/*        Settlement runs, records, summaries, exports
  /api/drivers          Active drivers
  /api/scenarios/*      Demo scenarios (development stores only)
  /healthz              Liveness and store reachability
  /metrics              Prometheus exposition

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/logger"
)

// RouterConfig holds the cross-cutting pieces of the router.
type RouterConfig struct {
	AllowedOrigins []string
	Tokens         *TokenService // nil disables authentication (dev actor)
	Metrics        http.Handler  // nil hides /metrics
	Health         func(ctx context.Context) error
	Logger         *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		if cfg.Tokens != nil {
			r.Use(Authenticate(cfg.Tokens))
		} else {
			r.Use(DevAuth())
		}

		r.Route("/payroll", func(r chi.Router) {
			r.Route("/periods/{year}/{month}/{half}", func(r chi.Router) {
				r.Post("/run", h.RunPeriod)
				r.Post("/process", h.FinalizePeriod)
				r.Get("/records", h.ListPeriodRecords)
				r.Get("/export", h.ExportPeriod)
			})

			r.Route("/records/{id}", func(r chi.Router) {
				r.Get("/", h.GetRecord)
				r.Post("/process", h.ProcessRecord)
				r.Put("/deductions", h.AdjustDeductions)
			})

			r.Get("/summary/{year}", h.GetSummary)
			r.Get("/summary/{year}/export", h.ExportSummary)
			r.Get("/runs", h.ListRuns)
		})

		r.Get("/drivers", h.ListDrivers)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetData)
		})
	})

	return r
}

// RequestLogger logs one line per request and stores a request-scoped
// logger carrying the request id in the context.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			l := base.With(zap.String("request_id", middleware.GetReqID(r.Context())))

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), l)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			}
			switch {
			case status >= http.StatusInternalServerError:
				l.Error("http request", fields...)
			case status >= http.StatusBadRequest:
				l.Warn("http request", fields...)
			default:
				l.Info("http request", fields...)
			}
		})
	}
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "unhealthy", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
