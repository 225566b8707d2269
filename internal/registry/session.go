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

package registry

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"tcpchat/internal/transport"
)

// ConnID identifies one accepted connection for its whole lifetime.
type ConnID string

// NewConnID returns a fresh random connection id.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Session is an authenticated connection bound to a username.
type Session struct {
	ID       ConnID
	Username string
	Online   bool
	Conn     transport.Conn
	LoginAt  time.Time

	groups boundedSet
}

// NewSession creates an online session for username on conn.
func NewSession(id ConnID, username string, conn transport.Conn, limits Limits) *Session {
	limits = limits.withDefaults()
	return &Session{
		ID:       id,
		Username: username,
		Online:   true,
		Conn:     conn,
		LoginAt:  time.Now(),
		groups:   newBoundedSet(limits.GroupsPerUser),
	}
}

// Groups returns the joined group names in join order.
func (s *Session) Groups() []string {
	return s.groups.list()
}

// InGroup reports whether the session's own membership set lists name.
func (s *Session) InGroup(name string) bool {
	return s.groups.contains(name)
}

// AtLimit reports whether the session cannot join another group.
func (s *Session) AtLimit() bool {
	return s.groups.full()
}

// Sessions indexes online sessions by connection and by username.
type Sessions struct {
	byConn map[ConnID]*Session
	byUser map[string]*Session
}

// NewSessions creates an empty session registry.
func NewSessions() *Sessions {
	return &Sessions{
		byConn: make(map[ConnID]*Session),
		byUser: make(map[string]*Session),
	}
}

// Insert registers s. A connection carries at most one session and a
// username is online on at most one connection.
func (r *Sessions) Insert(s *Session) error {
	if _, ok := r.byConn[s.ID]; ok {
		return ErrSessionExists
	}
	if _, ok := r.byUser[s.Username]; ok {
		return ErrUserOnline
	}
	r.byConn[s.ID] = s
	r.byUser[s.Username] = s
	return nil
}

// Remove drops the session bound to id and marks it offline. Group rosters
// are left as they are.
func (r *Sessions) Remove(id ConnID) (*Session, bool) {
	s, ok := r.byConn[id]
	if !ok {
		return nil, false
	}
	delete(r.byConn, id)
	if r.byUser[s.Username] == s {
		delete(r.byUser, s.Username)
	}
	s.Online = false
	return s, true
}

// FindByConn returns the session bound to a connection.
func (r *Sessions) FindByConn(id ConnID) (*Session, bool) {
	s, ok := r.byConn[id]
	return s, ok
}

// FindByUsername returns the online session of a user.
func (r *Sessions) FindByUsername(username string) (*Session, bool) {
	s, ok := r.byUser[username]
	return s, ok
}

// Len returns the number of online sessions.
func (r *Sessions) Len() int {
	return len(r.byConn)
}

// Sessions returns all online sessions ordered by username.
func (r *Sessions) Sessions() []*Session {
	out := make([]*Session, 0, len(r.byConn))
	for _, s := range r.byConn {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
