// Package httpapi exposes the atomic bundler over HTTP: the public
// submission and lookup endpoints, an admin surface guarded by bearer
// or JWT auth, Prometheus metrics, and a live bundle-events websocket.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/swapnilraj/atomic-bundler/internal/config"
	"github.com/swapnilraj/atomic-bundler/internal/metrics"
	"github.com/swapnilraj/atomic-bundler/internal/orchestrator"
	"github.com/swapnilraj/atomic-bundler/internal/policy"
	"github.com/swapnilraj/atomic-bundler/internal/scheduler"
	"github.com/swapnilraj/atomic-bundler/internal/storage"
)

// Server bundles everything the router needs to build handlers.
type Server struct {
	snapshot     *config.Snapshot
	orchestrator *orchestrator.Orchestrator
	gate         *policy.Gate
	store        *storage.Store
	metrics      *metrics.Collectors
	scheduler    *scheduler.Scheduler
	log          zerolog.Logger
	configPath   string
}

func NewServer(snapshot *config.Snapshot, orch *orchestrator.Orchestrator, gate *policy.Gate, store *storage.Store, collectors *metrics.Collectors, sched *scheduler.Scheduler, log zerolog.Logger, configPath string) *Server {
	return &Server{
		snapshot:     snapshot,
		orchestrator: orch,
		gate:         gate,
		store:        store,
		metrics:      collectors,
		scheduler:    sched,
		log:          log,
		configPath:   configPath,
	}
}

// Router builds the chi mux with every public and admin route the
// service exposes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Post("/bundles", s.handleSubmitBundle)
	r.Get("/bundles/{id}", s.handleGetBundle)
	r.Get("/ws/bundles", s.handleBundleEvents)

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.adminAuth)
		admin.Post("/killswitch", s.handleKillswitch)
		admin.Post("/config/reload", s.handleConfigReload)
		admin.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	})

	return r
}
