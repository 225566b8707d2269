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

package chat

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tcpchat/internal/auth"
	"tcpchat/internal/mocks"
	"tcpchat/internal/protocol"
	"tcpchat/internal/registry"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *mocks.MockCredentialStore
	p     *Processor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockCredentialStore(ctrl)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return &fixture{store: store, p: NewProcessor(store, opts...)}
}

func client(id string) Client {
	return Client{ID: registry.ConnID(id)}
}

func (f *fixture) handle(t *testing.T, c Client, env protocol.Envelope) Outcome {
	t.Helper()
	out, err := f.p.Handle(c, env)
	require.NoError(t, err)
	return out
}

func (f *fixture) login(t *testing.T, c Client, username string) Outcome {
	t.Helper()
	f.store.EXPECT().Authenticate(username, "pw").Return(nil)
	out := f.handle(t, c, protocol.NewLogin(username, "pw"))
	requireReply(t, out, protocol.TypeLoginResponse, true, MsgLoginOK)
	return out
}

func (f *fixture) group(t *testing.T, c Client, typ protocol.MessageType, name string) Outcome {
	t.Helper()
	return f.handle(t, c, protocol.NewGroupOp(typ, name, ""))
}

func requireReply(t *testing.T, out Outcome, typ protocol.MessageType, ok bool, text string) {
	t.Helper()
	require.NotNil(t, out.Reply, "expected a reply")
	assert.Equal(t, typ, out.Reply.Type)
	r := out.Reply.Body.(*protocol.Response)
	assert.Equal(t, ok, r.Success)
	assert.Equal(t, text, r.Text)
}

// checkMembership asserts that both membership sides agree for every online
// session.
func checkMembership(t *testing.T, p *Processor) {
	t.Helper()
	for _, s := range p.Sessions().Sessions() {
		for _, g := range p.Groups().Groups() {
			assert.Equal(t, s.InGroup(g.Name), g.HasMember(s.Username),
				"session %s / group %s disagree", s.Username, g.Name)
		}
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	out := f.login(t, client("c1"), "alice")

	require.NotNil(t, out.Session)
	assert.Equal(t, "alice", out.Session.Username)
	assert.True(t, out.Session.Online)
	assert.Equal(t, fixedNow, out.Session.LoginAt)
	assert.Equal(t, 1, f.p.Sessions().Len())
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Authenticate("alice", "bad").Return(auth.ErrInvalidCredentials)

	out := f.handle(t, client("c1"), protocol.NewLogin("alice", "bad"))
	requireReply(t, out, protocol.TypeLoginResponse, false, MsgBadCredentials)
	assert.Zero(t, f.p.Sessions().Len())
}

func TestLoginStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.EXPECT().Authenticate("alice", "pw").Return(errors.New("disk on fire"))

	out := f.handle(t, client("c1"), protocol.NewLogin("alice", "pw"))
	requireReply(t, out, protocol.TypeLoginResponse, false, MsgLoginUnavailable)
}

func TestLoginTwice(t *testing.T) {
	f := newFixture(t)
	f.login(t, client("c1"), "alice")

	t.Run("same user on another connection", func(t *testing.T) {
		f.store.EXPECT().Authenticate("alice", "pw").Return(nil)
		out := f.handle(t, client("c2"), protocol.NewLogin("alice", "pw"))
		requireReply(t, out, protocol.TypeLoginResponse, false, MsgAlreadyLoggedIn)

		// The original session is untouched.
		s, ok := f.p.Sessions().FindByUsername("alice")
		require.True(t, ok)
		assert.Equal(t, registry.ConnID("c1"), s.ID)
	})

	t.Run("same user on the same connection", func(t *testing.T) {
		f.store.EXPECT().Authenticate("alice", "pw").Return(nil)
		out := f.handle(t, client("c1"), protocol.NewLogin("alice", "pw"))
		requireReply(t, out, protocol.TypeLoginResponse, false, MsgAlreadyLoggedIn)
	})

	t.Run("other user on a bound connection", func(t *testing.T) {
		f.store.EXPECT().Authenticate("bob", "pw").Return(nil)
		out := f.handle(t, client("c1"), protocol.NewLogin("bob", "pw"))
		requireReply(t, out, protocol.TypeLoginResponse, false, MsgSessionBound)
		_, ok := f.p.Sessions().FindByUsername("bob")
		assert.False(t, ok)
	})
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		success bool
		text    string
	}{
		{"success", nil, true, MsgRegisterOK},
		{"duplicate", auth.ErrUserExists, false, MsgUserExists},
		{"invalid", auth.ErrInvalidInput, false, MsgBadRegistration},
		{"store failure", errors.New("io error"), false, MsgRegisterFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.EXPECT().Register("carol", "pw").Return(tt.err)

			out := f.handle(t, client("c1"), protocol.NewRegister("carol", "pw"))
			requireReply(t, out, protocol.TypeRegisterResponse, tt.success, tt.text)
			// Registering never logs in.
			assert.Zero(t, f.p.Sessions().Len())
		})
	}
}

func TestGroupCommandsRequireLogin(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []protocol.MessageType{protocol.TypeCreateGroup, protocol.TypeJoinGroup, protocol.TypeLeaveGroup} {
		out := f.group(t, client("anon"), typ, "general")
		requireReply(t, out, protocol.TypeGroupResponse, false, MsgNotAuthenticated)
	}
	assert.Zero(t, f.p.Groups().Len())
}

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	alice := client("c1")
	f.login(t, alice, "alice")

	out := f.group(t, alice, protocol.TypeCreateGroup, "general")
	requireReply(t, out, protocol.TypeGroupResponse, true, MsgGroupCreated)

	g, ok := f.p.Groups().Find("general")
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, g.Members())
	assert.Equal(t, fixedNow, g.CreatedAt)
	checkMembership(t, f.p)

	out = f.group(t, alice, protocol.TypeCreateGroup, "general")
	requireReply(t, out, protocol.TypeGroupResponse, false, MsgGroupExists)

	out = f.group(t, alice, protocol.TypeCreateGroup, "")
	requireReply(t, out, protocol.TypeGroupResponse, false, MsgInvalidGroupName)
	assert.Equal(t, 1, f.p.Groups().Len())
}

func TestCreateGroupAtLimit(t *testing.T) {
	f := newFixture(t, WithLimits(registry.Limits{GroupsPerUser: 1, UsersPerGroup: 5}))
	alice := client("c1")
	f.login(t, alice, "alice")

	f.group(t, alice, protocol.TypeCreateGroup, "one")
	out := f.group(t, alice, protocol.TypeCreateGroup, "two")
	requireReply(t, out, protocol.TypeGroupResponse, false, MsgGroupLimit)

	// No half-created group is left behind.
	_, ok := f.p.Groups().Find("two")
	assert.False(t, ok)
	checkMembership(t, f.p)
}

func TestJoinLeaveGroup(t *testing.T) {
	f := newFixture(t)
	alice, bob := client("c1"), client("c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")
	f.group(t, alice, protocol.TypeCreateGroup, "general")

	steps := []struct {
		name string
		typ  protocol.MessageType
		grp  string
		ok   bool
		text string
	}{
		{"join missing", protocol.TypeJoinGroup, "nope", false, MsgGroupNotFound},
		{"join", protocol.TypeJoinGroup, "general", true, MsgGroupJoined},
		{"join again", protocol.TypeJoinGroup, "general", false, MsgAlreadyMember},
		{"leave", protocol.TypeLeaveGroup, "general", true, MsgGroupLeft},
		{"leave again", protocol.TypeLeaveGroup, "general", false, MsgNotMember},
		{"leave missing", protocol.TypeLeaveGroup, "nope", false, MsgGroupNotFound},
	}
	for _, st := range steps {
		out := f.group(t, bob, st.typ, st.grp)
		requireReply(t, out, protocol.TypeGroupResponse, st.ok, st.text)
		checkMembership(t, f.p)
	}

	g, _ := f.p.Groups().Find("general")
	assert.Equal(t, []string{"alice"}, g.Members())
}

func TestChatAfterLeave(t *testing.T) {
	f := newFixture(t)
	alice, bob := client("c1"), client("c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")
	f.group(t, alice, protocol.TypeCreateGroup, "general")
	f.group(t, bob, protocol.TypeJoinGroup, "general")
	out := f.group(t, bob, protocol.TypeLeaveGroup, "general")
	requireReply(t, out, protocol.TypeGroupResponse, true, MsgGroupLeft)

	_, err := f.p.Handle(bob, protocol.NewChat("general", "", "still here?", fixedNow))
	assert.ErrorIs(t, err, ErrDropped)

	out = f.handle(t, alice, protocol.NewChat("general", "", "hello", fixedNow))
	require.NotNil(t, out.Broadcast)
	var got []string
	for _, s := range out.Recipients {
		got = append(got, s.Username)
	}
	assert.Equal(t, []string{"alice"}, got)
	checkMembership(t, f.p)
}

func TestJoinGroupCapacity(t *testing.T) {
	f := newFixture(t, WithLimits(registry.Limits{GroupsPerUser: 1, UsersPerGroup: 2}))
	a, b, c := client("a"), client("b"), client("c")
	f.login(t, a, "a")
	f.login(t, b, "b")
	f.login(t, c, "c")

	f.group(t, a, protocol.TypeCreateGroup, "g1")
	f.group(t, b, protocol.TypeJoinGroup, "g1")

	out := f.group(t, c, protocol.TypeJoinGroup, "g1")
	requireReply(t, out, protocol.TypeGroupResponse, false, MsgGroupFull)

	f.group(t, c, protocol.TypeCreateGroup, "g2")
	out = f.group(t, a, protocol.TypeJoinGroup, "g2")
	requireReply(t, out, protocol.TypeGroupResponse, false, MsgGroupLimit)
	checkMembership(t, f.p)
}

func TestChatBroadcast(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := client("c1"), client("c2"), client("c3")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")
	f.login(t, carol, "carol")
	f.group(t, alice, protocol.TypeCreateGroup, "general")
	f.group(t, bob, protocol.TypeJoinGroup, "general")

	// The username field is ignored on input.
	out := f.handle(t, alice, protocol.NewChat("general", "mallory", "hello", time.Unix(1, 0)))

	assert.Nil(t, out.Reply)
	require.NotNil(t, out.Broadcast)
	msg := out.Broadcast.Body.(*protocol.Chat)
	assert.Equal(t, "general", msg.Group)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, fixedNow, msg.Timestamp)

	var got []string
	for _, s := range out.Recipients {
		got = append(got, s.Username)
	}
	assert.Equal(t, []string{"alice", "bob"}, got)
}

func TestChatDropped(t *testing.T) {
	f := newFixture(t)
	alice, bob := client("c1"), client("c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")
	f.group(t, alice, protocol.TypeCreateGroup, "general")

	tests := []struct {
		name string
		from Client
		grp  string
	}{
		{"anonymous sender", client("anon"), "general"},
		{"missing group", alice, "nope"},
		{"non member", bob, "general"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := f.p.Handle(tt.from, protocol.NewChat(tt.grp, "", "hi", time.Time{}))
			assert.ErrorIs(t, err, ErrDropped)
			assert.Nil(t, out.Reply)
			assert.Nil(t, out.Broadcast)
		})
	}
}

func TestChatSkipsOfflineMembers(t *testing.T) {
	f := newFixture(t)
	alice, bob := client("c1"), client("c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")
	f.group(t, alice, protocol.TypeCreateGroup, "general")
	f.group(t, bob, protocol.TypeJoinGroup, "general")

	f.p.Disconnect(bob.ID)

	out := f.handle(t, alice, protocol.NewChat("general", "", "anyone?", time.Time{}))
	require.Len(t, out.Recipients, 1)
	assert.Equal(t, "alice", out.Recipients[0].Username)
}

type upperCensor struct{}

func (upperCensor) Censor(s string) string { return strings.ToUpper(s) }

func TestChatCensor(t *testing.T) {
	f := newFixture(t, WithCensor(upperCensor{}))
	alice := client("c1")
	f.login(t, alice, "alice")
	f.group(t, alice, protocol.TypeCreateGroup, "general")

	out := f.handle(t, alice, protocol.NewChat("general", "", "quiet", time.Time{}))
	assert.Equal(t, "QUIET", out.Broadcast.Body.(*protocol.Chat).Text)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	alice := client("c1")
	f.login(t, alice, "alice")

	out := f.handle(t, alice, protocol.NewLogout())
	assert.True(t, out.Close)
	assert.Nil(t, out.Reply)
	require.NotNil(t, out.Session)
	assert.False(t, out.Session.Online)
	assert.Zero(t, f.p.Sessions().Len())

	// Logging out without a session still closes.
	out = f.handle(t, client("anon"), protocol.NewLogout())
	assert.True(t, out.Close)
	assert.Nil(t, out.Session)
}

func TestDisconnectPreservesMembership(t *testing.T) {
	f := newFixture(t)
	alice, bob := client("c1"), client("c2")
	f.login(t, alice, "alice")
	f.login(t, bob, "bob")
	f.group(t, alice, protocol.TypeCreateGroup, "general")
	f.group(t, alice, protocol.TypeCreateGroup, "random")
	f.group(t, bob, protocol.TypeJoinGroup, "general")

	_, ok := f.p.Disconnect(alice.ID)
	require.True(t, ok)
	_, ok = f.p.Disconnect(alice.ID)
	assert.False(t, ok, "second disconnect is a no-op")

	// Rosters still list the offline user.
	g, _ := f.p.Groups().Find("general")
	assert.Equal(t, []string{"alice", "bob"}, g.Members())
	checkMembership(t, f.p)

	// Logging in again on a new connection restores both memberships.
	out := f.login(t, client("c9"), "alice")
	assert.Equal(t, []string{"general", "random"}, out.Restored)
	assert.Equal(t, []string{"general", "random"}, out.Session.Groups())
	checkMembership(t, f.p)

	// And the restored session can chat right away.
	chat := f.handle(t, client("c9"), protocol.NewChat("random", "", "back", time.Time{}))
	require.NotNil(t, chat.Broadcast)
}

func TestUnexpectedTypes(t *testing.T) {
	f := newFixture(t)
	for _, typ := range []protocol.MessageType{
		protocol.TypeLoginResponse,
		protocol.TypeRegisterResponse,
		protocol.TypeGroupResponse,
		protocol.TypeError,
		protocol.TypeSuccess,
	} {
		_, err := f.p.Handle(client("c1"), protocol.NewResponse(typ, true, "hi"))
		assert.ErrorIs(t, err, ErrUnexpectedType, "type %s", typ)
	}
}

func TestOutcomeSucceeded(t *testing.T) {
	assert.True(t, Outcome{}.Succeeded())
	assert.True(t, groupReply(true, "ok").Succeeded())
	assert.False(t, groupReply(false, "no").Succeeded())
}
