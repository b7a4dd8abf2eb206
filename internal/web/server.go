package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/config"
	"github.com/darkace1998/FlowSentry/internal/logging"
	"github.com/darkace1998/FlowSentry/internal/model"
	"github.com/darkace1998/FlowSentry/internal/session"
)

// Actions are the user-triggered operations the API exposes.
type Actions interface {
	Refresh(ctx context.Context) error
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) error
}

// AlertBoard is the alert state the API reads and dismisses.
type AlertBoard interface {
	Active() []analysis.Alert
	Dismiss(id string) bool
}

// IPStatsSource serves the backend's own per-source histogram.
type IPStatsSource interface {
	FetchIPStats(ctx context.Context) (model.IPStats, error)
}

// Server is the HTTP surface consumed by the presentation layer.
type Server struct {
	cfg     config.WebConfig
	sess    *session.Session
	actions Actions
	alerts  AlertBoard
	ipStats IPStatsSource
	router  *mux.Router
	srv     *http.Server
	log     *logging.Logger

	// About info
	fullCfg   config.Config
	version   string
	startTime time.Time
}

// NewServer creates the API server. metrics may be nil to disable /metrics.
func NewServer(cfg config.WebConfig, sess *session.Session, actions Actions, alerts AlertBoard, metrics http.Handler) *Server {
	s := &Server{
		cfg:       cfg,
		sess:      sess,
		actions:   actions,
		alerts:    alerts,
		router:    mux.NewRouter(),
		log:       logging.Default().Named("web"),
		startTime: time.Now(),
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/flows", s.handleFlows).Methods(http.MethodGet)
	api.HandleFunc("/flows/{id:[0-9]+}", s.handleFlow).Methods(http.MethodGet)
	api.HandleFunc("/facets", s.handleAllFacets).Methods(http.MethodGet)
	api.HandleFunc("/facets/{field}", s.handleFacet).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleAction(s.actions.Refresh)).Methods(http.MethodPost)
	api.HandleFunc("/capture/start", s.handleAction(s.actions.StartCapture)).Methods(http.MethodPost)
	api.HandleFunc("/capture/stop", s.handleAction(s.actions.StopCapture)).Methods(http.MethodPost)
	api.HandleFunc("/alerts", s.handleAlerts).Methods(http.MethodGet)
	api.HandleFunc("/alerts/{id}", s.handleDismissAlert).Methods(http.MethodDelete)
	api.HandleFunc("/ip-stats", s.handleIPStats).Methods(http.MethodGet)
	api.HandleFunc("/about", s.handleAbout).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handleWS)
	s.router.HandleFunc("/debug/log-level", s.handleLogLevel).Methods(http.MethodGet, http.MethodPost)
	if metrics != nil {
		s.router.Handle("/metrics", metrics)
	}

	s.srv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or fails.
func (s *Server) Start() error {
	s.log.Info("listening on %s", s.cfg.Listen)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// SetAboutInfo configures what /api/about reports.
func (s *Server) SetAboutInfo(cfg config.Config, version string, startTime time.Time) {
	s.fullCfg = cfg
	s.version = version
	s.startTime = startTime
}

// SetIPStatsSource makes /api/ip-stats read the backend histogram from src,
// falling back to the local store when the backend fails.
func (s *Server) SetIPStatsSource(src IPStatsSource) {
	s.ipStats = src
}

// Mux returns the router for testing purposes.
func (s *Server) Mux() *mux.Router {
	return s.router
}
