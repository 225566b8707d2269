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
Package registry holds the live chat state: online sessions and groups.

OVERVIEW:
=========
Two registries, both hash indexed:

  - Sessions: keyed by connection id, with a secondary index by username
  - Groups: keyed by name, remembering creation order for listings

Membership is two sided. A session keeps the ordered set of groups it joined
and a group keeps the ordered roster of usernames. The two sides only change
together, through Link and Unlink, so that after every call

	g in s.Groups()  <=>  s.Username in g.Members()

CAPACITY:
=========
A session belongs to at most Limits.GroupsPerUser groups and a group holds at
most Limits.UsersPerGroup members. Exceeding either is reported as an error;
nothing is dropped silently.

THREAD SAFETY:
==============
None. The registries are owned by the server's command loop goroutine and
must not be shared.
*/
package registry

import "errors"

// Default capacities.
const (
	DefaultGroupsPerUser = 10
	DefaultUsersPerGroup = 20
)

// Registry errors. All are domain errors: the command that hit them is
// answered with a failure response and leaves no side effects.
var (
	ErrSessionExists   = errors.New("session already registered")
	ErrUserOnline      = errors.New("user already online")
	ErrGroupExists     = errors.New("group already exists")
	ErrGroupNotFound   = errors.New("group does not exist")
	ErrAlreadyMember   = errors.New("already a member")
	ErrNotMember       = errors.New("not a member")
	ErrMembershipLimit = errors.New("membership limit reached")
	ErrGroupFull       = errors.New("group is full")
)

// Limits holds registry capacities.
type Limits struct {
	GroupsPerUser int
	UsersPerGroup int
}

// DefaultLimits returns the stock capacities.
func DefaultLimits() Limits {
	return Limits{GroupsPerUser: DefaultGroupsPerUser, UsersPerGroup: DefaultUsersPerGroup}
}

func (l Limits) withDefaults() Limits {
	if l.GroupsPerUser <= 0 {
		l.GroupsPerUser = DefaultGroupsPerUser
	}
	if l.UsersPerGroup <= 0 {
		l.UsersPerGroup = DefaultUsersPerGroup
	}
	return l
}

// Link adds s to g on both sides. Both sides are validated before either is
// mutated.
func Link(s *Session, g *Group) error {
	inSession := s.groups.contains(g.Name)
	inRoster := g.members.contains(s.Username)
	if inSession && inRoster {
		return ErrAlreadyMember
	}
	if !inSession && s.groups.full() {
		return ErrMembershipLimit
	}
	if !inRoster && g.members.full() {
		return ErrGroupFull
	}
	if !inSession {
		s.groups.add(g.Name)
	}
	if !inRoster {
		g.members.add(s.Username)
	}
	return nil
}

// Unlink removes s from g on both sides.
func Unlink(s *Session, g *Group) error {
	if !s.groups.contains(g.Name) && !g.members.contains(s.Username) {
		return ErrNotMember
	}
	s.groups.remove(g.Name)
	g.members.remove(s.Username)
	return nil
}

// Restore rebuilds the membership set of a fresh session from the rosters
// that still list its username. It returns the restored group names.
func Restore(s *Session, groups *Groups) []string {
	var restored []string
	for _, g := range groups.GroupsWithMember(s.Username) {
		if s.groups.contains(g.Name) {
			continue
		}
		if s.groups.full() {
			// The roster is authoritative only up to the session capacity;
			// drop the overflow from the roster so both sides agree.
			g.members.remove(s.Username)
			continue
		}
		s.groups.add(g.Name)
		restored = append(restored, g.Name)
	}
	return restored
}
