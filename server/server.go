// Package server exposes the delivery service over HTTP and streams
// execution events to websocket clients.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/delivery"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
	"github.com/teranos/briefing/pulse/schedule"
)

// Server is the HTTP API.
type Server struct {
	svc            *delivery.Service
	hub            *Hub
	ticker         *schedule.Ticker // optional, reported by /healthz
	allowedOrigins []string
	logger         *zap.SugaredLogger
	startedAt      time.Time

	ctx    context.Context
	cancel context.CancelFunc
	http   *http.Server
}

// New creates a server over svc and registers its hub as the service's
// execution broadcaster.
func New(svc *delivery.Service, cfg am.ServerConfig, ticker *schedule.Ticker) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		svc:            svc,
		hub:            NewHub(ctx),
		ticker:         ticker,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger.ComponentLogger("server"),
		startedAt:      time.Now(),
		ctx:            ctx,
		cancel:         cancel,
	}
	svc.SetBroadcaster(s.hub)
	go s.hub.Run()
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// ListenAndServe serves on port until Shutdown is called.
func (s *Server) ListenAndServe(port int) error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("Server ready", "url", fmt.Sprintf("http://localhost:%d", port), "port", port)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(err, "failed to listen on port %d", port)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and
// disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.cancel()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
