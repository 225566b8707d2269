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
Package server implements the tcpchat connection multiplexer.

ARCHITECTURE OVERVIEW:
======================
The server owns the listening socket and every client connection, and feeds
their frames to a single command loop:

	accept goroutine ──┐
	reader goroutine ──┼──> events (unbuffered) ──> command loop ──> chat.Processor
	reader goroutine ──┘                                  │
	                                                      └──> Send to clients

Exactly one goroutine, the command loop, owns the chat.Processor and its
registries. Readers only decode frames and post events, so the registries
need no locks and every command's mutations and writes complete before the
next event is looked at. A reader blocks on the unbuffered channel until the
loop takes its event, which keeps at most one frame in flight per connection.

CONNECTION FLOW:
================
1. Accept (or Attach from another transport, e.g. the WebSocket gateway)
2. Reader posts an attach event, then one frame event per decoded frame
3. Command loop runs the processor and writes the reply and broadcast
4. EOF, a read error, LOGOUT or a failed write ends the connection

ERROR HANDLING:
===============
- Malformed frames and unknown types are logged in the reader and skipped
- Response types sent by a client are logged in the loop and skipped
- A failed write drops only the session it was written to
- Accept errors are logged and the loop keeps accepting

SHUTDOWN:
=========
Stop closes the listener, stops the command loop, closes every connection and
waits for all goroutines. It is idempotent.
*/
package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"tcpchat/internal/chat"
	"tcpchat/internal/config"
	"tcpchat/internal/logging"
	"tcpchat/internal/metrics"
	"tcpchat/internal/protocol"
	"tcpchat/internal/registry"
	"tcpchat/internal/transport"
)

// ErrServerStopped is returned by Attach when the server is not running.
var ErrServerStopped = errors.New("server stopped")

// TransportTCP names connections accepted by the server itself.
const TransportTCP = "tcp"

// StartupError reports a failure to bring up the listener.
type StartupError struct {
	Addr string
	Err  error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("listen on %s: %v", e.Addr, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Disconnect reasons, as logged.
const (
	reasonClosed      = "client_disconnect"
	reasonReadError   = "read_error"
	reasonWriteFailed = "write_failed"
	reasonLogout      = "logout"
	reasonShutdown    = "shutdown"
)

type eventKind int

const (
	eventAttach eventKind = iota
	eventFrame
	eventDisconnect
)

type event struct {
	kind eventKind
	conn *connection
	env  protocol.Envelope
	err  error
}

// connection is the command loop's view of one client. Only the loop reads
// or writes username.
type connection struct {
	id        registry.ConnID
	t         transport.Transport
	transport string
	remote    string
	start     time.Time
	username  string
}

// Server is the connection multiplexer.
type Server struct {
	config  *config.Config
	proc    *chat.Processor
	metrics *metrics.Metrics

	logger   *logging.Logger
	sessions *logging.SessionLogger

	ln     net.Listener
	events chan event

	// conns is owned by the command loop.
	conns map[registry.ConnID]*connection

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// Option customizes a Server.
type Option func(*Server)

// WithMetrics records into m instead of the global metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server for cfg. proc must not be used by anything
// else once the server is started.
func NewServer(cfg *config.Config, proc *chat.Processor, opts ...Option) *Server {
	logger := logging.NewLogger("server")
	s := &Server{
		config:   cfg,
		proc:     proc,
		metrics:  metrics.Get(),
		logger:   logger,
		sessions: logging.NewSessionLogger(logger),
		conns:    make(map[registry.ConnID]*connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and starts the accept and command loops.
//
// RETURNS:
// - nil on success
// - *StartupError if the address cannot be bound
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := listen(s.config.BindAddr)
	if err != nil {
		return &StartupError{Addr: s.config.BindAddr, Err: err}
	}
	s.ln = ln
	s.events = make(chan event)
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	s.running = true

	go s.commandLoop()

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("Server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Running reports whether the server accepts connections.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop shuts the server down and waits for every goroutine it started.
// Safe to call more than once.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	err := s.ln.Close()
	s.mu.Unlock()

	<-s.loopDone
	s.wg.Wait()

	s.logger.Info("Server stopped")
	return err
}

// Attach hands a connected transport to the command loop. kind names the
// transport in logs. The transport is closed if the server is not running.
func (s *Server) Attach(kind string, t transport.Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		_ = t.Close()
		return ErrServerStopped
	}
	c := &connection{
		id:        registry.NewConnID(),
		t:         t,
		transport: kind,
		remote:    t.RemoteAddr(),
		start:     time.Now(),
	}
	s.wg.Add(1)
	go s.readLoop(c)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	opts := transport.TCPOptions{
		WriteTimeout:    s.config.WriteTimeout(),
		KeepAlivePeriod: s.config.KeepAlivePeriod(),
	}
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.Error("Accept error", "error", err)
				continue
			}
		}
		if err := s.Attach(TransportTCP, transport.NewTCP(conn, opts)); err != nil {
			return
		}
	}
}

// post hands ev to the command loop. It returns false once the server is
// stopping.
func (s *Server) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.stopCh:
		return false
	}
}

func (s *Server) readLoop(c *connection) {
	defer s.wg.Done()

	if !s.post(event{kind: eventAttach, conn: c}) {
		_ = c.t.Close()
		return
	}

	for {
		frame, err := c.t.Receive()
		if errors.Is(err, protocol.ErrMalformedFrame) {
			s.metrics.ProtocolErrors.Add(1)
			s.logger.Warn("Discarding frame", "conn_id", c.id, "error", err)
			continue
		}
		if err != nil {
			s.post(event{kind: eventDisconnect, conn: c, err: err})
			return
		}
		s.metrics.FramesReceived.Add(1)

		env, err := protocol.Decode(frame)
		if err != nil {
			s.metrics.ProtocolErrors.Add(1)
			s.logger.Warn("Discarding frame", "conn_id", c.id, "error", err)
			continue
		}
		if !s.post(event{kind: eventFrame, conn: c, env: env}) {
			return
		}
	}
}

func (s *Server) commandLoop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.stopCh:
			for _, c := range s.conns {
				s.drop(c, reasonShutdown)
			}
			return
		case ev := <-s.events:
			switch ev.kind {
			case eventAttach:
				s.conns[ev.conn.id] = ev.conn
				s.metrics.ConnectionOpened()
				s.sessions.LogConnected(string(ev.conn.id), ev.conn.remote, ev.conn.transport)
			case eventFrame:
				if _, ok := s.conns[ev.conn.id]; ok {
					s.handleFrame(ev.conn, ev.env)
				}
			case eventDisconnect:
				reason := reasonReadError
				if errors.Is(ev.err, io.EOF) || errors.Is(ev.err, transport.ErrClosed) {
					reason = reasonClosed
				}
				s.drop(ev.conn, reason)
			}
			s.metrics.SessionsOnline.Store(int64(s.proc.Sessions().Len()))
			s.metrics.GroupCount.Store(int64(s.proc.Groups().Len()))
		}
	}
}

// handleFrame runs one command and applies its outcome.
func (s *Server) handleFrame(c *connection, env protocol.Envelope) {
	name := env.Type.String()
	out, err := s.proc.Handle(chat.Client{ID: c.id, Conn: c.t}, env)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrDropped):
			s.metrics.ChatDropped.Add(1)
			s.metrics.RecordCommand(name, false)
			s.logger.Debug("Chat message dropped", "conn_id", c.id, "reason", err)
		case errors.Is(err, chat.ErrUnexpectedType):
			s.metrics.ProtocolErrors.Add(1)
			s.logger.Warn("Discarding frame", "conn_id", c.id, "error", err)
		default:
			s.metrics.RecordCommand(name, false)
			s.logger.Error("Command failed", "conn_id", c.id, "type", name, "error", err)
		}
		return
	}
	s.metrics.RecordCommand(name, out.Succeeded())

	if env.Type == protocol.TypeLogin {
		s.logLogin(c, env, out)
	}

	if out.Reply != nil {
		if err := c.t.Send(protocol.Encode(*out.Reply)); err != nil {
			s.logger.Warn("Reply failed", "conn_id", c.id, "error", err)
			s.drop(c, reasonWriteFailed)
			return
		}
	}

	if out.Broadcast != nil {
		s.broadcast(*out.Broadcast, out.Recipients)
	}

	if out.Close {
		if out.Session != nil {
			s.sessions.LogLogout(string(c.id), out.Session.Username)
		}
		s.drop(c, reasonLogout)
	}
}

func (s *Server) logLogin(c *connection, env protocol.Envelope, out chat.Outcome) {
	if out.Session != nil {
		c.username = out.Session.Username
		s.sessions.LogLogin(string(c.id), c.username, out.Restored)
		return
	}
	s.metrics.LoginFailures.Add(1)
	creds := env.Body.(*protocol.Credentials)
	reason := ""
	if r, ok := out.Reply.Body.(*protocol.Response); ok {
		reason = r.Text
	}
	s.sessions.LogLoginFailure(string(c.id), creds.Username, reason)
}

// broadcast writes env to every recipient, then drops those whose write
// failed. Drops happen after the loop so one slow client cannot cut the
// delivery to the others short.
func (s *Server) broadcast(env protocol.Envelope, recipients []*registry.Session) {
	frame := protocol.Encode(env)
	var failed []registry.ConnID
	for _, r := range recipients {
		if err := r.Conn.Send(frame); err != nil {
			s.logger.Warn("Delivery failed", "conn_id", r.ID, "username", r.Username, "error", err)
			failed = append(failed, r.ID)
		}
	}
	s.metrics.ChatMessages.Add(1)
	s.metrics.RecordBroadcast(len(recipients), len(failed))

	for _, id := range failed {
		if c, ok := s.conns[id]; ok {
			s.drop(c, reasonWriteFailed)
		}
	}
}

// drop ends a connection: its session is removed, its transport closed.
// Dropping an unknown connection is a no-op.
func (s *Server) drop(c *connection, reason string) {
	if _, ok := s.conns[c.id]; !ok {
		return
	}
	delete(s.conns, c.id)
	s.proc.Disconnect(c.id)
	_ = c.t.Close()
	s.metrics.ConnectionClosed()
	s.sessions.LogDisconnected(string(c.id), c.remote, c.username, reason, time.Since(c.start))
}
