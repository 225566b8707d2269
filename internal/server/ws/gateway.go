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

// Package ws implements a WebSocket gateway for browser chat clients.
//
// Each upgraded connection becomes a transport.Transport attached to the
// chat server's command loop. Frames travel unchanged: one binary WebSocket
// message carries exactly one protocol frame of protocol.FrameSize bytes.
// Text messages and binary messages of any other size are malformed frames;
// they are reported to the server and skipped without closing the
// connection. Messages larger than MaxMessageSize are not buffered: the
// gateway closes the connection with status 1009 (message too big).
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tcpchat/internal/config"
	"tcpchat/internal/logging"
	"tcpchat/internal/protocol"
	"tcpchat/internal/transport"
)

// Default configuration values for the WebSocket gateway
const (
	DefaultReadBufferSize  = 4096
	DefaultWriteBufferSize = 4096
	// DefaultPingInterval is the interval for sending ping frames
	DefaultPingInterval = 30 * time.Second
	// DefaultPongTimeout is the grace period for a pong after a ping
	DefaultPongTimeout = 10 * time.Second
	// DefaultWriteTimeout bounds every write when the config has none
	DefaultWriteTimeout = 10 * time.Second
	// MaxMessageSize is the largest inbound message read before the
	// connection is closed
	MaxMessageSize = 2 * protocol.FrameSize
)

// TransportName identifies gateway connections in server logs.
const TransportName = "websocket"

// Attacher accepts connected transports. *server.Server implements it.
type Attacher interface {
	Attach(kind string, t transport.Transport) error
}

func createUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  DefaultReadBufferSize,
		WriteBufferSize: DefaultWriteBufferSize,
		// Browser clients may be served from anywhere.
		CheckOrigin:       func(r *http.Request) bool { return true },
		EnableCompression: true,
	}
}

// Conn is a WebSocket connection carrying protocol frames.
//
// It provides:
//   - Serialized writes (gorilla connections allow one concurrent writer)
//   - Ping/pong heartbeat that closes dead peers
//   - Write timeouts so a slow browser cannot stall the command loop
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu       sync.Mutex
	lastPong time.Time

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func newConn(conn *websocket.Conn, writeTimeout, pingInterval, pongTimeout time.Duration) *Conn {
	c := &Conn{
		conn:         conn,
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		lastPong:     time.Now(),
		done:         make(chan struct{}),
	}
	conn.SetReadLimit(MaxMessageSize)
	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		return nil
	})
	go c.pingLoop()
	return c
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if time.Since(c.lastPong) > c.pingInterval+c.pongTimeout {
				c.mu.Unlock()
				_ = c.Close()
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Send writes f as one binary message.
func (c *Conn) Send(f protocol.Frame) error {
	select {
	case <-c.done:
		return transport.ErrClosed
	default:
	}
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, buf)
}

// Receive reads the next message. A message that is not a single binary
// frame yields an error wrapping protocol.ErrMalformedFrame; the connection
// stays usable.
func (c *Conn) Receive() (protocol.Frame, error) {
	kind, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Frame{}, err
	}
	if kind != websocket.BinaryMessage {
		return protocol.Frame{}, fmt.Errorf("%w: websocket message type %d", protocol.ErrMalformedFrame, kind)
	}
	var f protocol.Frame
	if err := f.UnmarshalBinary(data); err != nil {
		return protocol.Frame{}, err
	}
	return f, nil
}

// Close sends a close message and releases the socket. Safe to call more
// than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Gateway serves the WebSocket endpoint.
type Gateway struct {
	config   config.WebSocketConfig
	attacher Attacher
	logger   *logging.Logger
	upgrader websocket.Upgrader

	writeTimeout time.Duration
	pingInterval time.Duration
	pongTimeout  time.Duration

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// NewGateway creates a gateway that attaches every upgraded connection to a.
func NewGateway(cfg *config.Config, a Attacher) *Gateway {
	writeTimeout := cfg.WriteTimeout()
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	wsCfg := cfg.WebSocket
	if wsCfg.Path == "" {
		wsCfg.Path = "/ws"
	}
	return &Gateway{
		config:       wsCfg,
		attacher:     a,
		logger:       logging.NewLogger("ws"),
		upgrader:     createUpgrader(),
		writeTimeout: writeTimeout,
		pingInterval: DefaultPingInterval,
		pongTimeout:  DefaultPongTimeout,
	}
}

// Handler returns the HTTP handler serving the WebSocket path.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(g.config.Path, g.handleWebSocket)
	return mux
}

// Start binds the gateway address and serves in the background.
func (g *Gateway) Start() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", g.config.Addr)
	if err != nil {
		return fmt.Errorf("websocket listen on %s: %w", g.config.Addr, err)
	}
	g.listener = ln
	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.logger.Info("WebSocket gateway listening", "addr", ln.Addr().String(), "path", g.config.Path)
	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("WebSocket server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// Stop stops accepting upgrades. Attached connections belong to the chat
// server and are closed by it.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	srv := g.server
	g.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("Failed to upgrade to WebSocket", "error", err)
		return
	}

	c := newConn(ws, g.writeTimeout, g.pingInterval, g.pongTimeout)
	if err := g.attacher.Attach(TransportName, c); err != nil {
		g.logger.Warn("WebSocket connection rejected", "remote", logging.MaskIP(c.RemoteAddr()), "error", err)
		_ = c.Close()
	}
}
