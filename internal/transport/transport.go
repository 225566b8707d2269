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
Package transport abstracts the connection a chat session talks over.

OVERVIEW:
=========
The command loop never touches a net.Conn directly. Sessions hold a Conn,
which can only send frames and be closed; the reader goroutine owns the
receiving half through Transport. Two implementations exist:

  - TCP (this package): one fixed-size frame per read/write on a stream
  - WebSocket (internal/server/ws): one binary message per frame

ERRORS:
=======
Every error returned by Send or Receive is a TransportError from the point of
view of the server: it terminates the affected session only.
*/
package transport

import (
	"errors"
	"net"
	"sync"
	"time"

	"tcpchat/internal/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport closed")

// Conn is the sending half of a client connection.
type Conn interface {
	// Send writes exactly one frame.
	Send(f protocol.Frame) error

	// Close releases the connection. Safe to call more than once.
	Close() error

	// RemoteAddr identifies the peer for logging.
	RemoteAddr() string
}

// Transport is a full client connection.
type Transport interface {
	Conn

	// Receive blocks for the next frame. io.EOF means the peer went away.
	Receive() (protocol.Frame, error)
}

// TCPOptions tunes a TCP transport.
type TCPOptions struct {
	// WriteTimeout bounds a single Send. Zero disables the deadline.
	WriteTimeout time.Duration

	// KeepAlivePeriod enables TCP keep-alive probes when positive.
	KeepAlivePeriod time.Duration
}

// TCP is a Transport over a stream socket.
type TCP struct {
	conn net.Conn
	opts TCPOptions

	// wmu serializes writers. The server writes from one goroutine, but
	// tests and the client library may not.
	wmu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewTCP wraps conn. Low latency socket options are applied when conn is a
// *net.TCPConn.
func NewTCP(conn net.Conn, opts TCPOptions) *TCP {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		// Frames are small and interactive; do not wait to batch them.
		_ = tcpConn.SetNoDelay(true)
		if opts.KeepAlivePeriod > 0 {
			_ = tcpConn.SetKeepAlive(true)
			_ = tcpConn.SetKeepAlivePeriod(opts.KeepAlivePeriod)
		}
	}
	return &TCP{
		conn:   conn,
		opts:   opts,
		closed: make(chan struct{}),
	}
}

// Send writes one frame, honouring the write timeout.
func (t *TCP) Send(f protocol.Frame) error {
	select {
	case <-t.closed:
		return ErrClosed
	default:
	}

	t.wmu.Lock()
	defer t.wmu.Unlock()

	if t.opts.WriteTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
			return err
		}
	}
	return protocol.WriteFrame(t.conn, f)
}

// Receive reads one frame. There is no read deadline: idle clients stay
// connected until they leave.
func (t *TCP) Receive() (protocol.Frame, error) {
	return protocol.ReadFrame(t.conn)
}

// Close closes the socket once.
func (t *TCP) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}

// RemoteAddr returns the peer address.
func (t *TCP) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
