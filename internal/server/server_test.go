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

package server

import (
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tcpchat/internal/auth"
	"tcpchat/internal/chat"
	"tcpchat/internal/config"
	"tcpchat/internal/metrics"
	"tcpchat/internal/protocol"
	"tcpchat/internal/transport"
	"tcpchat/pkg/client"
)

const waitFor = 2 * time.Second

type harness struct {
	srv     *Server
	store   *auth.FileStore
	metrics *metrics.Metrics
}

func startServer(t *testing.T) *harness {
	t.Helper()
	store := auth.NewFileStore(filepath.Join(t.TempDir(), "users.dat"), bcrypt.MinCost)

	cfg := config.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.WriteTimeoutMs = 1000

	m := &metrics.Metrics{}
	srv := NewServer(cfg, chat.NewProcessor(store), WithMetrics(m))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })
	return &harness{srv: srv, store: store, metrics: m}
}

func (h *harness) dial(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.DialWithOptions(h.srv.Addr().String(), client.Options{RequestTimeout: waitFor})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (h *harness) user(t *testing.T, name string) *client.Client {
	t.Helper()
	require.NoError(t, h.store.Register(name, name+"-pw"))
	c := h.dial(t)
	require.NoError(t, c.Login(name, name+"-pw"))
	return c
}

func nextMessage(t *testing.T, c *client.Client) client.Message {
	t.Helper()
	select {
	case msg, ok := <-c.Messages():
		require.True(t, ok, "connection closed")
		return msg
	case <-time.After(waitFor):
		t.Fatal("no chat message delivered")
		return client.Message{}
	}
}

func noMessage(t *testing.T, c *client.Client) {
	t.Helper()
	select {
	case msg := <-c.Messages():
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func responseText(t *testing.T, err error) string {
	t.Helper()
	var re *client.ResponseError
	require.True(t, errors.As(err, &re), "error %v is not a response error", err)
	return re.Text
}

func TestRegisterThroughServer(t *testing.T) {
	h := startServer(t)
	c := h.dial(t)

	require.NoError(t, c.Register("alice", "pw"))
	assert.Equal(t, chat.MsgUserExists, responseText(t, c.Register("alice", "other")))
	require.NoError(t, c.Login("alice", "pw"))
}

func TestChatBroadcast(t *testing.T) {
	h := startServer(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	carol := h.user(t, "carol")

	require.NoError(t, alice.CreateGroup("golang"))
	require.NoError(t, bob.JoinGroup("golang"))

	require.NoError(t, alice.Send("golang", "hello"))

	for _, c := range []*client.Client{alice, bob} {
		msg := nextMessage(t, c)
		assert.Equal(t, "golang", msg.Group)
		assert.Equal(t, "alice", msg.From)
		assert.Equal(t, "hello", msg.Text)
		assert.False(t, msg.Timestamp.IsZero())
	}
	noMessage(t, carol)

	assert.Eventually(t, func() bool {
		return h.metrics.ChatMessages.Load() == 1 && h.metrics.Deliveries.Load() == 2
	}, waitFor, 10*time.Millisecond)
}

func TestChatFromNonMemberIsDropped(t *testing.T) {
	h := startServer(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	require.NoError(t, alice.CreateGroup("golang"))
	require.NoError(t, bob.Send("golang", "let me in"))
	require.NoError(t, bob.Send("missing", "anyone?"))

	noMessage(t, alice)
	assert.Eventually(t, func() bool {
		return h.metrics.ChatDropped.Load() == 2
	}, waitFor, 10*time.Millisecond)
}

func TestLeaveGroupStopsDelivery(t *testing.T) {
	h := startServer(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	require.NoError(t, alice.CreateGroup("golang"))
	require.NoError(t, bob.JoinGroup("golang"))
	require.NoError(t, bob.LeaveGroup("golang"))
	assert.Equal(t, chat.MsgNotMember, responseText(t, bob.LeaveGroup("golang")))

	require.NoError(t, alice.Send("golang", "just us"))
	msg := nextMessage(t, alice)
	assert.Equal(t, "just us", msg.Text)
	noMessage(t, bob)

	require.NoError(t, bob.Send("golang", "wait"))
	noMessage(t, alice)
	assert.Eventually(t, func() bool {
		return h.metrics.ChatDropped.Load() == 1
	}, waitFor, 10*time.Millisecond)
}

func TestSecondLoginRejected(t *testing.T) {
	h := startServer(t)
	h.user(t, "alice")

	other := h.dial(t)
	assert.Equal(t, chat.MsgAlreadyLoggedIn, responseText(t, other.Login("alice", "alice-pw")))
}

func TestGroupCommandsRequireLogin(t *testing.T) {
	h := startServer(t)
	c := h.dial(t)

	assert.Equal(t, chat.MsgNotAuthenticated, responseText(t, c.CreateGroup("golang")))
}

func TestProtocolErrorKeepsConnection(t *testing.T) {
	h := startServer(t)
	require.NoError(t, h.store.Register("alice", "pw"))

	conn, err := net.Dial("tcp", h.srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	bad := protocol.Frame{Type: protocol.MessageType(99)}
	require.NoError(t, protocol.WriteFrame(conn, bad))

	// A server-to-client type is a protocol error too.
	require.NoError(t, protocol.WriteFrame(conn, protocol.Encode(protocol.NewResponse(protocol.TypeSuccess, true, "x"))))

	require.NoError(t, protocol.WriteFrame(conn, protocol.Encode(protocol.NewLogin("alice", "pw"))))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	f, err := protocol.ReadFrame(conn)
	require.NoError(t, err)

	env, err := protocol.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeLoginResponse, env.Type)
	assert.True(t, env.Body.(*protocol.Response).Success)
	assert.Equal(t, uint64(2), h.metrics.ProtocolErrors.Load())
}

func TestLogoutClosesConnection(t *testing.T) {
	h := startServer(t)
	alice := h.user(t, "alice")

	require.NoError(t, alice.Logout())
	select {
	case <-alice.Done():
	case <-time.After(waitFor):
		t.Fatal("server did not close the connection after logout")
	}

	again := h.dial(t)
	require.NoError(t, again.Login("alice", "alice-pw"))
}

func TestMembershipSurvivesReconnect(t *testing.T) {
	h := startServer(t)
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")

	require.NoError(t, bob.CreateGroup("golang"))
	require.NoError(t, alice.JoinGroup("golang"))
	require.NoError(t, alice.Close())

	assert.Eventually(t, func() bool {
		return h.metrics.SessionsOnline.Load() == 1
	}, waitFor, 10*time.Millisecond)

	alice = h.dial(t)
	require.NoError(t, alice.Login("alice", "alice-pw"))
	assert.Equal(t, chat.MsgAlreadyMember, responseText(t, alice.JoinGroup("golang")))

	require.NoError(t, bob.Send("golang", "welcome back"))
	assert.Equal(t, "welcome back", nextMessage(t, alice).Text)
}

func TestAttachTransport(t *testing.T) {
	h := startServer(t)
	require.NoError(t, h.store.Register("alice", "pw"))

	serverEnd, clientEnd := net.Pipe()
	require.NoError(t, h.srv.Attach("pipe", transport.NewTCP(serverEnd, transport.TCPOptions{})))

	c := client.New(transport.NewTCP(clientEnd, transport.TCPOptions{}), client.Options{RequestTimeout: waitFor})
	defer c.Close()

	require.NoError(t, c.Login("alice", "pw"))
	require.NoError(t, c.CreateGroup("pipes"))
	require.NoError(t, c.Send("pipes", "through a pipe"))
	assert.Equal(t, "through a pipe", nextMessage(t, c).Text)
}

func TestStopClosesClients(t *testing.T) {
	h := startServer(t)
	alice := h.user(t, "alice")

	require.NoError(t, h.srv.Stop())
	require.NoError(t, h.srv.Stop())
	assert.False(t, h.srv.Running())

	select {
	case <-alice.Done():
	case <-time.After(waitFor):
		t.Fatal("client still connected after Stop")
	}

	serverEnd, _ := net.Pipe()
	err := h.srv.Attach("pipe", transport.NewTCP(serverEnd, transport.TCPOptions{}))
	assert.ErrorIs(t, err, ErrServerStopped)
}

func TestStartBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := config.DefaultConfig()
	cfg.BindAddr = ln.Addr().String()
	srv := NewServer(cfg, chat.NewProcessor(auth.NewFileStore(filepath.Join(t.TempDir(), "u"), bcrypt.MinCost)))

	err = srv.Start()
	var se *StartupError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, cfg.BindAddr, se.Addr)
	assert.Nil(t, srv.Addr())
}
