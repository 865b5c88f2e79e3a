// Package server exposes the job orchestrator over HTTP: job status and
// control endpoints, a websocket feed of live job updates, system metrics
// and a health check.
package server

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/streamwatch/jobs"
	"github.com/halcyonlabs/streamwatch/members"
)

// Server is the streamwatch HTTP server.
type Server struct {
	manager       *jobs.Manager
	members       *members.Store
	log           *zap.SugaredLogger
	hub           *Hub
	http          *http.Server
	startedAt     time.Time
	persistConfig func(name string, partial jobs.ConfigMap)
}

// NewServer wires the HTTP surface. The returned server's Notifier should be
// attached to the job manager so websocket clients see live updates.
func NewServer(addr string, manager *jobs.Manager, memberStore *members.Store, log *zap.SugaredLogger) *Server {
	s := &Server{
		manager:   manager,
		members:   memberStore,
		log:       log,
		hub:       NewHub(log),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/system", s.handleSystem)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJob)
	mux.HandleFunc("/ws", s.hub.HandleWebSocket)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Notifier returns the websocket broadcast hub as a jobs.Notifier.
func (s *Server) Notifier() jobs.Notifier { return s.hub }

// OnConfigUpdate registers a hook called after a job config is updated over
// the API, with the partial map that was applied. The daemon uses it to
// persist API-applied overrides into the watched config file so a file
// reload does not clobber them. Set before Start.
func (s *Server) OnConfigUpdate(fn func(name string, partial jobs.ConfigMap)) {
	s.persistConfig = fn
}

// Handler returns the route handler; used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Infow("HTTP server listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.http.Shutdown(ctx)
}
