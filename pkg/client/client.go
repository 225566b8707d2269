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
Package client provides a Go client library for tcpchat.

USAGE:
======

	c, err := client.Dial("localhost:9000")
	if err != nil {
	    log.Fatal(err)
	}
	defer c.Close()

	if err := c.Login("alice", "secret"); err != nil {
	    log.Fatal(err)
	}
	_ = c.JoinGroup("golang")
	_ = c.Send("golang", "hello")

	for msg := range c.Messages() {
	    fmt.Printf("[%s] %s: %s\n", msg.Group, msg.From, msg.Text)
	}

REQUESTS AND MESSAGES:
======================
Requests are synchronous: each call writes one frame and waits for the
matching response. Chat messages can arrive at any time, so a background
reader routes them to the Messages channel and responses to the waiting
call. A rejected request returns a *ResponseError carrying the server's
text.

THREAD SAFETY:
==============
The client is safe for concurrent use; requests are serialized.
*/
package client

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"tcpchat/internal/protocol"
	"tcpchat/internal/transport"
)

// Client errors.
var (
	ErrClosed  = errors.New("client closed")
	ErrTimeout = errors.New("request timed out")
)

// ResponseError is a request the server answered with success=false.
type ResponseError struct {
	Type protocol.MessageType
	Text string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Text)
}

// Message is a chat message delivered to this client.
type Message struct {
	Group     string
	From      string
	Text      string
	Timestamp time.Time
}

// Options configures the client connection.
type Options struct {
	// Connection behavior
	MaxRetries     int           // Connection attempts (default: 3)
	RetryDelay     time.Duration // Delay between attempts (default: 1s)
	ConnectTimeout time.Duration // Per-attempt dial timeout (default: 10s)

	// RequestTimeout bounds the wait for a response (default: 10s).
	RequestTimeout time.Duration

	// InboxSize is the Messages buffer. Messages arriving while it is full
	// are dropped (default: 256).
	InboxSize int
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 256
	}
	return o
}

// Client is a connection to a tcpchat server.
type Client struct {
	t    transport.Transport
	opts Options

	mu       sync.Mutex // serializes requests
	username string

	responses chan protocol.Envelope
	respMu    sync.Mutex // guards stale and hand-off to responses
	stale     int        // replies still owed to timed-out requests
	messages  chan Message
	dropped   int

	done      chan struct{}
	readErr   error
	closeOnce sync.Once
}

// Dial connects to addr with default options.
func Dial(addr string) (*Client, error) {
	return DialWithOptions(addr, Options{})
}

// DialWithOptions connects to addr, retrying per opts.
func DialWithOptions(addr string, opts Options) (*Client, error) {
	opts = opts.withDefaults()

	conn, err := dialWithRetry(addr, opts)
	if err != nil {
		return nil, err
	}
	return newClient(transport.NewTCP(conn, transport.TCPOptions{}), opts), nil
}

// New wraps an already connected transport.
func New(t transport.Transport, opts Options) *Client {
	return newClient(t, opts.withDefaults())
}

func newClient(t transport.Transport, opts Options) *Client {
	c := &Client{
		t:         t,
		opts:      opts,
		responses: make(chan protocol.Envelope, 1),
		messages:  make(chan Message, opts.InboxSize),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func dialWithRetry(addr string, opts Options) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}
	var lastErr error
	for attempt := 0; attempt < opts.MaxRetries; attempt++ {
		conn, err := dialer.Dial("tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt < opts.MaxRetries-1 {
			time.Sleep(opts.RetryDelay)
		}
	}
	return nil, fmt.Errorf("connect to %s after %d attempts: %w", addr, opts.MaxRetries, lastErr)
}

// Close closes the connection. The Messages channel is closed once the
// reader has stopped.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.t.Close()
	})
	return err
}

// Done is closed when the connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Messages delivers chat messages for groups this client belongs to.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Username returns the logged in username, or "" before Login.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Register creates an account.
func (c *Client) Register(username, password string) error {
	_, err := c.request(protocol.NewRegister(username, password), protocol.TypeRegisterResponse)
	return err
}

// Login binds this connection to username.
func (c *Client) Login(username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.roundTrip(protocol.NewLogin(username, password), protocol.TypeLoginResponse); err != nil {
		return err
	}
	c.username = username
	return nil
}

// CreateGroup creates group and joins it.
func (c *Client) CreateGroup(group string) error {
	return c.groupOp(protocol.TypeCreateGroup, group)
}

// JoinGroup joins an existing group.
func (c *Client) JoinGroup(group string) error {
	return c.groupOp(protocol.TypeJoinGroup, group)
}

// LeaveGroup leaves group.
func (c *Client) LeaveGroup(group string) error {
	return c.groupOp(protocol.TypeLeaveGroup, group)
}

func (c *Client) groupOp(t protocol.MessageType, group string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.roundTrip(protocol.NewGroupOp(t, group, c.username), protocol.TypeGroupResponse)
	return err
}

// Send posts text to group. The server does not answer chat messages;
// the sender receives its own message back if it is a member.
func (c *Client) Send(group, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(protocol.NewChat(group, c.username, text, time.Now()))
}

// Logout ends the session. The server closes the connection afterwards.
func (c *Client) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.send(protocol.NewLogout()); err != nil {
		return err
	}
	c.username = ""
	return nil
}

// Dropped returns how many chat messages were discarded on a full inbox.
// Only meaningful after Done is closed.
func (c *Client) Dropped() int {
	<-c.done
	return c.dropped
}

func (c *Client) request(env protocol.Envelope, want protocol.MessageType) (*protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundTrip(env, want)
}

// roundTrip sends env and waits for a response of type want. Callers
// hold c.mu.
func (c *Client) roundTrip(env protocol.Envelope, want protocol.MessageType) (*protocol.Response, error) {
	c.discardResponses()
	if err := c.send(env); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.opts.RequestTimeout)
	defer timer.Stop()
	for {
		select {
		case resp := <-c.responses:
			if resp.Type != want {
				// Late answer to a request that timed out.
				continue
			}
			r := resp.Body.(*protocol.Response)
			if !r.Success {
				return r, &ResponseError{Type: resp.Type, Text: r.Text}
			}
			return r, nil
		case <-c.done:
			return nil, c.closedErr()
		case <-timer.C:
			c.abandonResponse()
			return nil, fmt.Errorf("%w: %s", ErrTimeout, env.Type)
		}
	}
}

// deliverResponse hands a reply to the waiting request, or discards it when
// it answers a request that already timed out.
func (c *Client) deliverResponse(env protocol.Envelope) {
	c.respMu.Lock()
	defer c.respMu.Unlock()
	if c.stale > 0 {
		c.stale--
		return
	}
	select {
	case c.responses <- env:
	default:
		// Nobody is waiting; keep only the newest.
		select {
		case <-c.responses:
		default:
		}
		c.responses <- env
	}
}

// discardResponses empties unsolicited replies before a new request.
func (c *Client) discardResponses() {
	c.respMu.Lock()
	defer c.respMu.Unlock()
	for {
		select {
		case <-c.responses:
		default:
			return
		}
	}
}

// abandonResponse marks the current request's reply as owed. A reply that
// already arrived is dropped instead.
func (c *Client) abandonResponse() {
	c.respMu.Lock()
	defer c.respMu.Unlock()
	select {
	case <-c.responses:
	default:
		c.stale++
	}
}

func (c *Client) send(env protocol.Envelope) error {
	select {
	case <-c.done:
		return c.closedErr()
	default:
	}
	if err := c.t.Send(protocol.Encode(env)); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Client) closedErr() error {
	if c.readErr != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	}
	return ErrClosed
}

func (c *Client) readLoop() {
	defer close(c.messages)
	defer close(c.done)

	for {
		frame, err := c.t.Receive()
		if err != nil {
			c.readErr = err
			return
		}
		env, err := protocol.Decode(frame)
		if err != nil {
			continue
		}
		switch body := env.Body.(type) {
		case *protocol.Chat:
			msg := Message{Group: body.Group, From: body.Username, Text: body.Text, Timestamp: body.Timestamp}
			select {
			case c.messages <- msg:
			default:
				c.dropped++
			}
		case *protocol.Response:
			c.deliverResponse(env)
		}
	}
}
