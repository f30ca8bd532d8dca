// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves metrics, health checks and a read-only view
// of the loaded modules over HTTP.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/lifecycle"
	"github.com/holomush/cogwheel/internal/loader"
)

// Inventory is the part of the lifecycle manager the server reports on.
type Inventory interface {
	Modules(ctx context.Context) ([]string, error)
	ModuleState(ctx context.Context, name string) (loader.State, error)
	Cogs(ctx context.Context) ([]*cog.Cog, error)
}

var _ Inventory = (*lifecycle.Manager)(nil)

// Metrics holds the host's own counters. Registry, dispatch and load metrics
// live in package cog.
type Metrics struct {
	ReloadRequests *prometheus.CounterVec
}

// NewMetrics registers the host counters and the cog metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReloadRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cogwheel_reload_requests_total",
				Help: "Total number of module reloads requested, by trigger and status",
			},
			[]string{"trigger", "status"},
		),
	}
	reg.MustRegister(m.ReloadRequests)
	cog.RegisterMetrics(reg)
	return m
}

// RecordReload counts a reload requested by trigger ("console", "watch",
// "startup"). err is the load's result.
func (m *Metrics) RecordReload(trigger string, err error) {
	status := cog.StatusSuccess
	if err != nil {
		status = cog.StatusError
	}
	m.ReloadRequests.WithLabelValues(trigger, status).Inc()
}

// Option configures a Server.
type Option func(*Server)

// WithReadiness sets the readiness check. Without one the server is always
// ready.
func WithReadiness(ready func() bool) Option {
	return func(s *Server) { s.ready = ready }
}

// WithInventory enables /debug/modules.
func WithInventory(inv Inventory) Option {
	return func(s *Server) { s.inventory = inv }
}

// Server exposes /metrics, /healthz/liveness, /healthz/readiness and, with an
// inventory, /debug/modules.
type Server struct {
	addr      string
	registry  *prometheus.Registry
	metrics   *Metrics
	ready     func() bool
	inventory Inventory

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

// NewServer creates a server listening on addr ("127.0.0.1:9100", ":0").
// It uses its own registry so tests and embedders never touch the global one.
func NewServer(addr string, opts ...Option) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the host counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	if s.inventory != nil {
		mux.HandleFunc("GET /debug/modules", s.handleModules)
	}
	return mux
}

// Start listens and serves in the background. The returned channel receives
// a serve failure and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return nil, oops.Code("SERVER_FAILED").Errorf("observability server already running")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("SERVER_FAILED").With("addr", s.addr).Wrap(err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = listener
	s.http = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server failed", "error", err)
			errCh <- err
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running does
// nothing.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http == nil {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		return oops.With("operation", "shutdown observability server").Wrap(err)
	}
	s.http = nil
	s.listener = nil

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" when not running.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		writeText(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// ModuleReport is one entry of /debug/modules.
type ModuleReport struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// CogReport describes a cog in /debug/modules.
type CogReport struct {
	Name     string   `json:"name"`
	Module   string   `json:"module,omitempty"`
	Enabled  bool     `json:"enabled"`
	Commands []string `json:"commands"`
}

// InventoryReport is the /debug/modules document.
type InventoryReport struct {
	Modules []ModuleReport `json:"modules"`
	Cogs    []CogReport    `json:"cogs"`
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	report, err := s.report(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "module report failed", "error", err)
		writeText(w, http.StatusServiceUnavailable, "unavailable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(report)
}

func (s *Server) report(ctx context.Context) (*InventoryReport, error) {
	names, err := s.inventory.Modules(ctx)
	if err != nil {
		return nil, err
	}
	report := &InventoryReport{
		Modules: make([]ModuleReport, 0, len(names)),
		Cogs:    []CogReport{},
	}
	for _, name := range names {
		state, err := s.inventory.ModuleState(ctx, name)
		if err != nil {
			return nil, err
		}
		report.Modules = append(report.Modules, ModuleReport{Name: name, State: state.String()})
	}

	cogs, err := s.inventory.Cogs(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cogs {
		cmds := c.Commands()
		names := make([]string, len(cmds))
		for i, cmd := range cmds {
			names[i] = cmd.Name
		}
		report.Cogs = append(report.Cogs, CogReport{
			Name:     c.Name,
			Module:   c.Module(),
			Enabled:  c.Loaded(),
			Commands: names,
		})
	}
	return report, nil
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	w.Write([]byte(body + "\n"))
}
