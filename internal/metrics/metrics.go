/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package metrics provides Prometheus-compatible metrics for tcpchat.

METRIC CATEGORIES:
==================
- Connections: active, total
- Sessions: online users, login failures
- Groups: count
- Frames: received, protocol errors
- Commands: succeeded and failed, per message type
- Chat: messages broadcast, frames delivered, delivery failures

PROMETHEUS ENDPOINT:
====================
Metrics are exposed at /metrics in Prometheus text format.

EXAMPLE METRICS:
================

	tcpchat_connections_active 42
	tcpchat_sessions_online 40
	tcpchat_commands_total{type="JOIN_GROUP",result="ok"} 17
	tcpchat_chat_deliveries_total 1234
*/
package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tcpchat/internal/logging"
)

// Metrics holds all tcpchat metrics.
type Metrics struct {
	// Connection metrics
	ActiveConnections atomic.Int64
	TotalConnections  atomic.Uint64

	// Session metrics
	SessionsOnline atomic.Int64
	LoginFailures  atomic.Uint64

	// Group metrics
	GroupCount atomic.Int64

	// Frame metrics
	FramesReceived atomic.Uint64
	ProtocolErrors atomic.Uint64

	// Chat metrics
	ChatMessages     atomic.Uint64
	ChatDropped      atomic.Uint64
	Deliveries       atomic.Uint64
	DeliveryFailures atomic.Uint64

	// Per-command metrics
	commands sync.Map // "TYPE" -> *CommandMetrics
}

// CommandMetrics counts the outcomes of one command type.
type CommandMetrics struct {
	OK     atomic.Uint64
	Failed atomic.Uint64
}

// Global metrics instance
var globalMetrics = &Metrics{}

// Get returns the global metrics instance.
func Get() *Metrics {
	return globalMetrics
}

// Command returns the counters for a command type name.
func (m *Metrics) Command(name string) *CommandMetrics {
	if cm, ok := m.commands.Load(name); ok {
		return cm.(*CommandMetrics)
	}
	actual, _ := m.commands.LoadOrStore(name, &CommandMetrics{})
	return actual.(*CommandMetrics)
}

// RecordCommand records the outcome of a command.
func (m *Metrics) RecordCommand(name string, ok bool) {
	cm := m.Command(name)
	if ok {
		cm.OK.Add(1)
	} else {
		cm.Failed.Add(1)
	}
}

// RecordBroadcast records one chat message fanned out to recipients, of
// which failed could not be written.
func (m *Metrics) RecordBroadcast(recipients, failed int) {
	m.ChatMessages.Add(1)
	m.Deliveries.Add(uint64(recipients - failed))
	m.DeliveryFailures.Add(uint64(failed))
}

// ConnectionOpened records a new connection.
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Add(1)
	m.TotalConnections.Add(1)
}

// ConnectionClosed records a closed connection.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Add(-1)
}

// WriteTo writes every metric in Prometheus text format.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	gauge := func(name, help string, v int64) {
		fmt.Fprintf(cw, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
	}
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(cw, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}

	gauge("tcpchat_connections_active", "Current active connections", m.ActiveConnections.Load())
	counter("tcpchat_connections_total", "Total accepted connections", m.TotalConnections.Load())
	gauge("tcpchat_sessions_online", "Users currently logged in", m.SessionsOnline.Load())
	counter("tcpchat_login_failures_total", "Rejected logins", m.LoginFailures.Load())
	gauge("tcpchat_groups", "Number of groups", m.GroupCount.Load())
	counter("tcpchat_frames_received_total", "Frames read from clients", m.FramesReceived.Load())
	counter("tcpchat_protocol_errors_total", "Frames discarded as protocol errors", m.ProtocolErrors.Load())
	counter("tcpchat_chat_messages_total", "Chat messages broadcast", m.ChatMessages.Load())
	counter("tcpchat_chat_dropped_total", "Chat messages dropped without delivery", m.ChatDropped.Load())
	counter("tcpchat_chat_deliveries_total", "Chat frames written to recipients", m.Deliveries.Load())
	counter("tcpchat_chat_delivery_failures_total", "Chat frames that could not be written", m.DeliveryFailures.Load())

	var names []string
	m.commands.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	fmt.Fprintf(cw, "# HELP tcpchat_commands_total Commands processed by type and result\n")
	fmt.Fprintf(cw, "# TYPE tcpchat_commands_total counter\n")
	for _, name := range names {
		cm := m.Command(name)
		fmt.Fprintf(cw, "tcpchat_commands_total{type=%q,result=\"ok\"} %d\n", name, cm.OK.Load())
		fmt.Fprintf(cw, "tcpchat_commands_total{type=%q,result=\"failed\"} %d\n", name, cm.Failed.Load())
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	addr    string
	metrics *Metrics
	server  *http.Server
	ln      net.Listener
	logger  *logging.Logger
}

// NewServer creates a metrics server for m on addr.
func NewServer(addr string, m *Metrics) *Server {
	return &Server{
		addr:    addr,
		metrics: m,
		logger:  logging.NewLogger("metrics"),
	}
}

// Handler returns the HTTP handler serving /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting metrics server", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping metrics server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := s.metrics.WriteTo(w); err != nil {
		s.logger.Debug("Metrics write failed", "error", err)
	}
}
