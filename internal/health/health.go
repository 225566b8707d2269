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
Package health reports chat server liveness over the standard gRPC health protocol.

OVERVIEW:
=========
A Checker runs named checks (listener up, credential store reachable) and folds
them into one status. The Server exposes grpc.health.v1.Health and maps that
status onto the ServiceName entry:

	healthy, degraded -> SERVING
	unhealthy         -> NOT_SERVING

After Stop every service reports NOT_SERVING until the process exits.
*/
package health

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"tcpchat/internal/logging"
)

// ServiceName is the health service key for the chat multiplexer.
const ServiceName = "tcpchat.Chat"

// DefaultInterval is how often the Server re-runs its checks.
const DefaultInterval = 5 * time.Second

// Status is the folded result of one or more checks.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// CheckResult is the outcome of a single check.
type CheckResult struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CheckFunc produces a CheckResult. It must not block for long.
type CheckFunc func() CheckResult

// Response is the aggregate of every registered check.
type Response struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker holds named checks.
type Checker struct {
	mu      sync.RWMutex
	version string
	checks  map[string]CheckFunc
}

// NewChecker creates an empty checker reporting the given build version.
func NewChecker(version string) *Checker {
	return &Checker{version: version, checks: make(map[string]CheckFunc)}
}

// RegisterCheck adds or replaces the check called name.
func (c *Checker) RegisterCheck(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunChecks runs every check in name order. The worst status wins.
func (c *Checker) RunChecks() Response {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	fns := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		fns[k] = v
	}
	c.mu.RUnlock()
	sort.Strings(names)

	resp := Response{
		Status:    StatusHealthy,
		Version:   c.version,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(names)),
	}
	for _, name := range names {
		start := time.Now()
		res := fns[name]()
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
		resp.Checks[name] = res
		if res.Status.rank() > resp.Status.rank() {
			resp.Status = res.Status
		}
	}
	return resp
}

// IsHealthy reports whether no check is unhealthy.
func (c *Checker) IsHealthy() bool {
	return c.RunChecks().Status != StatusUnhealthy
}

// StorageCheck is unhealthy while probe returns an error.
func StorageCheck(probe func() error) CheckFunc {
	return func() CheckResult {
		if err := probe(); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// ListenerCheck is unhealthy once running reports false.
func ListenerCheck(running func() bool) CheckFunc {
	return func() CheckResult {
		if !running() {
			return CheckResult{Status: StatusUnhealthy, Message: "listener stopped"}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// SessionsCheck degrades when more than limit sessions are online. A limit
// of zero disables the check.
func SessionsCheck(limit int, online func() int) CheckFunc {
	return func() CheckResult {
		n := online()
		if limit > 0 && n > limit {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d sessions online, limit %d", n, limit),
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// Server serves the gRPC health protocol.
type Server struct {
	addr     string
	checker  *Checker
	interval time.Duration
	logger   *logging.Logger

	hs       *health.Server
	gs       *grpc.Server
	listener net.Listener

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewServer creates a health server bound to addr once started. A nil
// checker leaves ServiceName SERVING until Stop.
func NewServer(addr string, checker *Checker) *Server {
	return &Server{
		addr:     addr,
		checker:  checker,
		interval: DefaultInterval,
		logger:   logging.NewLogger("health"),
	}
}

// SetInterval changes the check period. Call before Start.
func (s *Server) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("health listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.hs = health.NewServer()
	s.gs = grpc.NewServer()
	healthpb.RegisterHealthServer(s.gs, s.hs)
	reflection.Register(s.gs)
	s.stopCh = make(chan struct{})
	s.running = true

	s.refresh()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.gs.Serve(ln); err != nil && err != grpc.ErrServerStopped {
			s.logger.Error("Health server stopped", "error", err)
		}
	}()
	go s.watch()

	s.logger.Info("Health server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop marks every service NOT_SERVING and shuts the gRPC server down. It
// is safe to call more than once.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.hs.Shutdown()
	s.mu.Unlock()

	s.gs.Stop()
	s.wg.Wait()
	s.logger.Info("Health server stopped")
}

func (s *Server) watch() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.running {
				s.refresh()
			}
			s.mu.Unlock()
		}
	}
}

// refresh runs the checks and publishes the result. Callers hold s.mu.
func (s *Server) refresh() {
	status := healthpb.HealthCheckResponse_SERVING
	if s.checker != nil {
		resp := s.checker.RunChecks()
		if resp.Status == StatusUnhealthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			for name, res := range resp.Checks {
				if res.Status == StatusUnhealthy {
					s.logger.Warn("Health check failing", "check", name, "message", res.Message)
				}
			}
		}
	}
	s.hs.SetServingStatus(ServiceName, status)
	s.hs.SetServingStatus("", status)
}
