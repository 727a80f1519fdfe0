// Package wsapi assembles the HTTP route surface, the WS session, and
// the SSE session on top of github.com/go-chi/chi/v5, using its
// path-param routing (needed for /api/processes/:name and
// /api/pw/:action) plus github.com/go-chi/httprate for per-IP request
// throttling ahead of the Auth/ACL gate.
package wsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hostbridge/sysbridge/internal/apperr"
	"github.com/hostbridge/sysbridge/internal/authacl"
	"github.com/hostbridge/sysbridge/internal/bus"
	"github.com/hostbridge/sysbridge/internal/config"
	"github.com/hostbridge/sysbridge/internal/gpu"
	"github.com/hostbridge/sysbridge/internal/loopmgr"
	"github.com/hostbridge/sysbridge/internal/media"
	"github.com/hostbridge/sysbridge/internal/power"
	"github.com/hostbridge/sysbridge/internal/procbackend"
	"github.com/hostbridge/sysbridge/internal/registry"
	"github.com/hostbridge/sysbridge/internal/syssampler"
	"github.com/hostbridge/sysbridge/internal/version"
)

const readHeaderTimeout = 5 * time.Second

// Deps collects every collaborator the router wires into handlers,
// threaded explicitly rather than through package-level hidden state.
type Deps struct {
	Config   *config.Manager
	Bus      *bus.Bus
	Registry *registry.Registry
	LoopMgr  *loopmgr.Manager
	Sys      *syssampler.Sampler
	GPU      *gpu.Cache
	Media    media.Backend
	Proc     *procbackend.Backend
	Power    power.Backend
	Logger   *slog.Logger
}

// Server wraps the assembled chi router plus the process-lifetime
// counters it exposes on /api/clients and /metrics.
type Server struct {
	deps Deps

	wsActive  atomic.Int64
	wsTotal   atomic.Uint64
	clientIDs atomic.Uint64

	mux http.Handler
}

// New builds the router. enablePrometheus registers /metrics.
func New(deps Deps, enablePrometheus bool) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogging)
	r.Use(httprate.LimitByIP(100, time.Minute))
	r.Use(authacl.Middleware(func() authacl.Policy { return deps.Config.Get().Auth }))

	r.Route("/api", func(api chi.Router) {
		api.Get("/status", s.handleStatus)
		api.Get("/system", s.handleSystem)
		api.Get("/usage", s.handleUsage)
		api.Get("/processes", s.handleProcesses)
		api.Get("/processes/{name}", s.handleProcessDetail)
		api.Post("/processes/kill", s.handleProcessKill)
		api.Post("/processes/focus", s.handleProcessFocus)
		api.Post("/processes/launch", s.handleProcessLaunch)
		api.Post("/pw/{action}", s.handlePowerAction)
		api.Get("/media/status", s.handleMediaStatus)
		api.Post("/media/control", s.handleMediaControl)
		api.Get("/stream", s.handleSSE)
		api.Get("/ws", s.handleWS)
		api.Get("/clients", s.handleClients)
	})

	if enablePrometheus {
		s.registerPrometheus(r)
	}

	s.mux = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type contextKey string

const loggerKey contextKey = "wsapi.logger"

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := middleware.GetReqID(r.Context())
		logger := s.deps.Logger.With("req_id", reqID, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
		ctx := context.WithValue(r.Context(), loggerKey, logger)

		lrw := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(lrw, r.WithContext(ctx))
		logger.Info("request complete", "status", lrw.Status(), "duration", time.Since(start), "bytes", lrw.BytesWritten())
	})
}

func loggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}

func newConnID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.StatusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func featureDenied(w http.ResponseWriter, feature string) {
	writeError(w, apperr.New(apperr.Forbidden, feature+" is disabled"))
}

func (s *Server) handleClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int64{"count": s.wsActive.Load()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Current().Version})
}

func (s *Server) registerPrometheus(r chi.Router) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "sysbridge", Subsystem: "ws", Name: "active_connections",
			Help: "Current number of active WebSocket clients.",
		}, func() float64 { return float64(s.wsActive.Load()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "sysbridge", Subsystem: "ws", Name: "connections_total",
			Help: "Total WebSocket connections accepted since start.",
		}, func() float64 { return float64(s.wsTotal.Load()) }),
	)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
