package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-harvester/internal/checkpoint"
	"github.com/JakeFAU/site-harvester/internal/pipeline"
)

const (
	requestTimeout  = 30 * time.Second
	manifestTimeout = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// StatusSource reports the live driver state.
type StatusSource interface {
	Status() pipeline.Snapshot
}

// ManifestSource loads the latest checkpoint.
type ManifestSource interface {
	Load(ctx context.Context) (checkpoint.Manifest, bool, error)
}

// Server wires the HTTP routes to a running driver.
type Server struct {
	router    chi.Router
	status    StatusSource
	manifests ManifestSource
	logger    *zap.Logger
}

// NewServer builds the router. manifests may be nil, in which case
// /v1/manifest answers 503. gatherer defaults to prometheus.DefaultGatherer;
// when it is also a Registerer the request metrics are registered with it.
func NewServer(status StatusSource, manifests ManifestSource, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	registerer := prometheus.DefaultRegisterer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	} else if reg, ok := gatherer.(prometheus.Registerer); ok {
		registerer = reg
	} else {
		registerer = nil
	}
	s := &Server{status: status, manifests: manifests, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(metricsMiddleware(newHTTPMetrics(registerer)))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/run", s.run)
		r.Get("/manifest", s.manifest)
	})

	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server started", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	s.logger.Info("status server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports 503 once the run has failed.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "no run attached")
		return
	}
	snap := s.status.Status()
	if snap.State == pipeline.StateFailed {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "failed", "state": string(snap.State)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready", "state": string(snap.State)})
}

func (s *Server) run(w http.ResponseWriter, _ *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "no run attached")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) manifest(w http.ResponseWriter, r *http.Request) {
	if s.manifests == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpoint store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), manifestTimeout)
	defer cancel()

	m, ok, err := s.manifests.Load(ctx)
	if err != nil {
		s.logger.Error("load manifest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load manifest")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no manifest saved yet")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already sent; an encode failure can only be dropped.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
