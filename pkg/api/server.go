package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cuemby/gpubox/pkg/lifecycle"
	"github.com/cuemby/gpubox/pkg/log"
	"github.com/cuemby/gpubox/pkg/metrics"
	"github.com/cuemby/gpubox/pkg/telemetry"
	"github.com/cuemby/gpubox/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Service is the lifecycle surface served over HTTP
type Service interface {
	Create(ctx context.Context, actor types.Actor, req lifecycle.CreateRequest) (*types.Container, error)
	Reset(ctx context.Context, actor types.Actor, name string) error
	Start(ctx context.Context, actor types.Actor, name string) error
	Stop(ctx context.Context, actor types.Actor, name string) error
	Restart(ctx context.Context, actor types.Actor, name string) error
	Delete(ctx context.Context, actor types.Actor, name string) error
	ChangePassword(ctx context.Context, actor types.Actor, name, password string) error
	Get(ctx context.Context, actor types.Actor, name string) (*types.ContainerView, error)
	ListMine(ctx context.Context, actor types.Actor) ([]*types.ContainerView, error)
	ListAll(ctx context.Context, actor types.Actor) ([]*types.ContainerView, error)
	Logs(ctx context.Context, actor types.Actor, name string, tail int) (string, error)
	Stats(ctx context.Context, actor types.Actor, name string) (types.StatsSnapshot, error)
	BatchStats(ctx context.Context, actor types.Actor) (*lifecycle.BatchStats, error)
	JupyterURL(actor types.Actor, name string) (string, error)
	SearchImages(ctx context.Context, actor types.Actor, term string) ([]types.ImageSearchResult, error)
	SweepAs(ctx context.Context, actor types.Actor) (*types.SweepReport, error)
	OpenTicket(actor types.Actor, req lifecycle.TicketRequest) (*types.Ticket, error)
	Tickets(actor types.Actor) ([]*types.Ticket, error)
}

// Server is the gpubox REST API
type Server struct {
	svc       Service
	verifier  Verifier
	telemetry telemetry.Source
	probes    map[string]Probe
	logger    zerolog.Logger
	router    chi.Router
	http      *http.Server
}

// NewServer creates the API server. probes are run by /ready and keyed by
// health component name.
func NewServer(svc Service, verifier Verifier, source telemetry.Source, probes map[string]Probe) *Server {
	s := &Server{
		svc:       svc,
		verifier:  verifier,
		telemetry: source,
		probes:    probes,
		logger:    log.WithComponent("api"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	// middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(instrument(s.logger))
	r.Use(middleware.Recoverer)

	// == probes ==
	r.Get("/health", metrics.HealthHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Get("/ready", s.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	// == api ==
	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate(s.verifier))

		// == containers ==
		r.Post("/containers", s.createContainer)
		r.Get("/containers", s.listMine)
		r.Get("/containers/all", s.listAll)
		r.Get("/containers/stats", s.batchStats)
		r.Post("/containers/sweep", s.sweep)
		r.Route("/containers/{name}", func(r chi.Router) {
			r.Get("/", s.getContainer)
			r.Delete("/", s.deleteContainer)
			r.Post("/reset", s.resetContainer)
			r.Post("/start", s.startContainer)
			r.Post("/stop", s.stopContainer)
			r.Post("/restart", s.restartContainer)
			r.Put("/password", s.changePassword)
			r.Get("/logs", s.containerLogs)
			r.Get("/stats", s.containerStats)
			r.Get("/jupyter", s.jupyterURL)
		})

		// == images ==
		r.Get("/images/search", s.searchImages)

		// == tickets ==
		r.Post("/tickets", s.openTicket)
		r.Get("/tickets", s.listTickets)

		// == host ==
		r.Get("/gpus/telemetry", s.gpuTelemetry)
		r.Get("/host", s.hostInfo)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, types.NotFoundf("no route for %s %s", r.Method, r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ApiResponse{
			Status:  "fail",
			Code:    "METHOD_NOT_ALLOWED",
			Message: r.Method + " not allowed on " + r.URL.Path,
		})
	})
	return r
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the API on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	metrics.UpdateComponent(metrics.ComponentAPI, true, "")
	s.logger.Info().Str("addr", addr).Msg("API server listening")

	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
