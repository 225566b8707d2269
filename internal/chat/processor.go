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
Package chat implements the command processor: one handler per message type.

OVERVIEW:
=========
The processor turns a decoded client frame into registry mutations and an
Outcome describing what has to be written. It performs no network I/O; the
server's command loop applies the Outcome, which keeps every command's
mutations and writes together before the next frame is looked at.

	LOGIN          -> LOGIN_RESPONSE
	REGISTER       -> REGISTER_RESPONSE
	CREATE_GROUP   -> GROUP_RESPONSE
	JOIN_GROUP     -> GROUP_RESPONSE
	LEAVE_GROUP    -> GROUP_RESPONSE
	CHAT_MESSAGE   -> CHAT_MESSAGE to every online group member, no reply
	LOGOUT         -> close, no reply

Response types, ERROR and SUCCESS are server-to-client only; receiving one
is a protocol error.

IDENTITY:
=========
The requester is always identified by its connection. The username field of
GroupOp and Chat payloads is ignored on input and filled in from the session
on output, so a client cannot speak for somebody else.

DISCONNECTS:
============
Removing a session (LOGOUT or a dropped connection) leaves group rosters as
they are. A later LOGIN restores the session's membership set from the
rosters that still list the user, so both sides agree again for every live
session.

THREAD SAFETY:
==============
None. A Processor and its registries belong to a single goroutine.
*/
package chat

import (
	"errors"
	"fmt"
	"time"

	"tcpchat/internal/auth"
	"tcpchat/internal/logging"
	"tcpchat/internal/protocol"
	"tcpchat/internal/registry"
	"tcpchat/internal/transport"
)

// Reply texts. Clients match on them, so they are part of the protocol.
const (
	MsgLoginOK          = "Login successful"
	MsgAlreadyLoggedIn  = "User already logged in"
	MsgSessionBound     = "Session already authenticated"
	MsgBadCredentials   = "Invalid username or password"
	MsgRegisterOK       = "Registration successful"
	MsgUserExists       = "Username already exists"
	MsgBadRegistration  = "Invalid username or password format"
	MsgRegisterFailed   = "Registration failed"
	MsgNotAuthenticated = "User not authenticated"
	MsgInvalidGroupName = "Invalid group name"
	MsgGroupExists      = "Group already exists"
	MsgGroupLimit       = "Group limit reached"
	MsgGroupFull        = "Group is full"
	MsgGroupNotFound    = "Group does not exist"
	MsgAlreadyMember    = "Already a member of this group"
	MsgNotMember        = "Not a member of this group"
	MsgGroupCreated     = "Group created successfully"
	MsgGroupJoined      = "Successfully joined group"
	MsgGroupLeft        = "Successfully left group"
	MsgLoginUnavailable = "Login temporarily unavailable"
)

// Processor errors. ErrUnexpectedType is a protocol error; ErrDropped marks
// a chat message that was discarded without a reply.
var (
	ErrUnexpectedType = errors.New("message type not accepted from clients")
	ErrDropped        = errors.New("chat message dropped")
)

// Censor rewrites chat text before it is broadcast.
type Censor interface {
	Censor(text string) string
}

// Client identifies the connection a frame arrived on.
type Client struct {
	ID   registry.ConnID
	Conn transport.Conn
}

// Outcome is what the command loop has to do after a command.
type Outcome struct {
	// Reply goes to the requester when non-nil.
	Reply *protocol.Envelope

	// Broadcast goes to every session in Recipients.
	Broadcast  *protocol.Envelope
	Recipients []*registry.Session

	// Close ends the requester's connection after Reply is written.
	Close bool

	// Session is the session the command logged in or out, if any.
	Session *registry.Session

	// Restored lists the memberships a successful login brought back.
	Restored []string
}

// Succeeded reports whether the reply, if any, signals success.
func (o Outcome) Succeeded() bool {
	if o.Reply == nil {
		return true
	}
	r, ok := o.Reply.Body.(*protocol.Response)
	return ok && r.Success
}

type handler func(p *Processor, c Client, env protocol.Envelope) (Outcome, error)

// Processor executes client commands against the session and group
// registries.
type Processor struct {
	store    auth.CredentialStore
	sessions *registry.Sessions
	groups   *registry.Groups
	limits   registry.Limits
	censor   Censor
	now      func() time.Time
	logger   *logging.Logger
	handlers map[protocol.MessageType]handler
}

// Option configures a Processor.
type Option func(*Processor)

// WithLimits sets the membership capacities.
func WithLimits(l registry.Limits) Option {
	return func(p *Processor) { p.limits = l }
}

// WithCensor filters chat text through c.
func WithCensor(c Censor) Option {
	return func(p *Processor) { p.censor = c }
}

// WithClock replaces time.Now for chat timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a processor with empty registries.
func NewProcessor(store auth.CredentialStore, opts ...Option) *Processor {
	p := &Processor{
		store:    store,
		sessions: registry.NewSessions(),
		groups:   registry.NewGroups(),
		limits:   registry.DefaultLimits(),
		now:      time.Now,
		logger:   logging.NewLogger("chat"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = map[protocol.MessageType]handler{
		protocol.TypeLogin:       (*Processor).login,
		protocol.TypeRegister:    (*Processor).register,
		protocol.TypeCreateGroup: (*Processor).createGroup,
		protocol.TypeJoinGroup:   (*Processor).joinGroup,
		protocol.TypeLeaveGroup:  (*Processor).leaveGroup,
		protocol.TypeChatMessage: (*Processor).chatMessage,
		protocol.TypeLogout:      (*Processor).logout,
	}
	return p
}

// Sessions exposes the session registry to the owning goroutine.
func (p *Processor) Sessions() *registry.Sessions { return p.sessions }

// Groups exposes the group registry to the owning goroutine.
func (p *Processor) Groups() *registry.Groups { return p.groups }

// Handle executes one decoded client frame.
//
// RETURNS:
// - an Outcome to apply, possibly empty
// - ErrUnexpectedType for server-to-client message types
// - an error wrapping ErrDropped for chat messages that go nowhere
func (p *Processor) Handle(c Client, env protocol.Envelope) (Outcome, error) {
	h, ok := p.handlers[env.Type]
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnexpectedType, env.Type)
	}
	return h(p, c, env)
}

// Disconnect removes the session bound to id, if any. Rosters keep the
// username.
func (p *Processor) Disconnect(id registry.ConnID) (*registry.Session, bool) {
	return p.sessions.Remove(id)
}

func (p *Processor) login(c Client, env protocol.Envelope) (Outcome, error) {
	creds := env.Body.(*protocol.Credentials)

	if err := p.store.Authenticate(creds.Username, creds.Password); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			p.logger.Error("Credential store failure", "error", err)
			return reply(protocol.TypeLoginResponse, false, MsgLoginUnavailable), nil
		}
		return reply(protocol.TypeLoginResponse, false, MsgBadCredentials), nil
	}

	if cur, ok := p.sessions.FindByConn(c.ID); ok {
		if cur.Username == creds.Username {
			return reply(protocol.TypeLoginResponse, false, MsgAlreadyLoggedIn), nil
		}
		return reply(protocol.TypeLoginResponse, false, MsgSessionBound), nil
	}
	if _, ok := p.sessions.FindByUsername(creds.Username); ok {
		return reply(protocol.TypeLoginResponse, false, MsgAlreadyLoggedIn), nil
	}

	s := registry.NewSession(c.ID, creds.Username, c.Conn, p.limits)
	s.LoginAt = p.now()
	if err := p.sessions.Insert(s); err != nil {
		// Both lookups above passed, so this only fires on a registry bug.
		return Outcome{}, fmt.Errorf("insert session: %w", err)
	}
	out := reply(protocol.TypeLoginResponse, true, MsgLoginOK)
	out.Session = s
	out.Restored = registry.Restore(s, p.groups)
	return out, nil
}

func (p *Processor) register(_ Client, env protocol.Envelope) (Outcome, error) {
	creds := env.Body.(*protocol.Credentials)

	err := p.store.Register(creds.Username, creds.Password)
	switch {
	case err == nil:
		return reply(protocol.TypeRegisterResponse, true, MsgRegisterOK), nil
	case errors.Is(err, auth.ErrUserExists):
		return reply(protocol.TypeRegisterResponse, false, MsgUserExists), nil
	case errors.Is(err, auth.ErrInvalidInput):
		return reply(protocol.TypeRegisterResponse, false, MsgBadRegistration), nil
	default:
		p.logger.Error("Credential store failure", "error", err)
		return reply(protocol.TypeRegisterResponse, false, MsgRegisterFailed), nil
	}
}

func (p *Processor) createGroup(c Client, env protocol.Envelope) (Outcome, error) {
	s, name, fail := p.groupRequest(c, env)
	if fail != nil {
		return *fail, nil
	}
	if _, exists := p.groups.Find(name); exists {
		return groupReply(false, MsgGroupExists), nil
	}
	if s.AtLimit() {
		return groupReply(false, MsgGroupLimit), nil
	}

	g := registry.NewGroup(name, p.limits)
	g.CreatedAt = p.now()
	if err := p.groups.Insert(g); err != nil {
		return Outcome{}, fmt.Errorf("insert group: %w", err)
	}
	if err := registry.Link(s, g); err != nil {
		return Outcome{}, fmt.Errorf("link creator: %w", err)
	}
	return groupReply(true, MsgGroupCreated), nil
}

func (p *Processor) joinGroup(c Client, env protocol.Envelope) (Outcome, error) {
	s, name, fail := p.groupRequest(c, env)
	if fail != nil {
		return *fail, nil
	}
	g, ok := p.groups.Find(name)
	if !ok {
		return groupReply(false, MsgGroupNotFound), nil
	}
	switch err := registry.Link(s, g); {
	case err == nil:
		return groupReply(true, MsgGroupJoined), nil
	case errors.Is(err, registry.ErrAlreadyMember):
		return groupReply(false, MsgAlreadyMember), nil
	case errors.Is(err, registry.ErrMembershipLimit):
		return groupReply(false, MsgGroupLimit), nil
	case errors.Is(err, registry.ErrGroupFull):
		return groupReply(false, MsgGroupFull), nil
	default:
		return Outcome{}, err
	}
}

func (p *Processor) leaveGroup(c Client, env protocol.Envelope) (Outcome, error) {
	s, name, fail := p.groupRequest(c, env)
	if fail != nil {
		return *fail, nil
	}
	g, ok := p.groups.Find(name)
	if !ok {
		return groupReply(false, MsgGroupNotFound), nil
	}
	if err := registry.Unlink(s, g); err != nil {
		if errors.Is(err, registry.ErrNotMember) {
			return groupReply(false, MsgNotMember), nil
		}
		return Outcome{}, err
	}
	return groupReply(true, MsgGroupLeft), nil
}

// groupRequest resolves the requester and group name of a group command.
// A non-nil Outcome is the failure reply to send instead.
func (p *Processor) groupRequest(c Client, env protocol.Envelope) (*registry.Session, string, *Outcome) {
	s, ok := p.sessions.FindByConn(c.ID)
	if !ok {
		out := groupReply(false, MsgNotAuthenticated)
		return nil, "", &out
	}
	name := env.Body.(*protocol.GroupOp).Group
	if name == "" {
		out := groupReply(false, MsgInvalidGroupName)
		return nil, "", &out
	}
	return s, name, nil
}

func (p *Processor) chatMessage(c Client, env protocol.Envelope) (Outcome, error) {
	msg := env.Body.(*protocol.Chat)

	s, ok := p.sessions.FindByConn(c.ID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: not authenticated", ErrDropped)
	}
	g, ok := p.groups.Find(msg.Group)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: group %q does not exist", ErrDropped, msg.Group)
	}
	if !s.InGroup(g.Name) {
		return Outcome{}, fmt.Errorf("%w: %s is not a member of %q", ErrDropped, s.Username, g.Name)
	}

	text := msg.Text
	if p.censor != nil {
		text = p.censor.Censor(text)
	}
	out := protocol.NewChat(g.Name, s.Username, text, p.now())

	var recipients []*registry.Session
	for _, member := range g.Members() {
		if rs, online := p.sessions.FindByUsername(member); online {
			recipients = append(recipients, rs)
		}
	}
	return Outcome{Broadcast: &out, Recipients: recipients}, nil
}

func (p *Processor) logout(c Client, _ protocol.Envelope) (Outcome, error) {
	s, _ := p.sessions.Remove(c.ID)
	return Outcome{Close: true, Session: s}, nil
}

func reply(t protocol.MessageType, ok bool, text string) Outcome {
	env := protocol.NewResponse(t, ok, text)
	return Outcome{Reply: &env}
}

func groupReply(ok bool, text string) Outcome {
	return reply(protocol.TypeGroupResponse, ok, text)
}
