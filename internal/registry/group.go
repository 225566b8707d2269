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
	"time"

	"github.com/samber/lo"
)

// Group is a named chat room. Groups are never deleted.
type Group struct {
	Name      string
	CreatedAt time.Time

	members boundedSet
}

// NewGroup creates an empty group.
func NewGroup(name string, limits Limits) *Group {
	limits = limits.withDefaults()
	return &Group{
		Name:      name,
		CreatedAt: time.Now(),
		members:   newBoundedSet(limits.UsersPerGroup),
	}
}

// Members returns the roster in join order. It can name users that are
// currently offline.
func (g *Group) Members() []string {
	return g.members.list()
}

// HasMember reports whether the roster lists username.
func (g *Group) HasMember(username string) bool {
	return g.members.contains(username)
}

// Groups indexes groups by name.
type Groups struct {
	byName map[string]*Group
	order  []string
}

// NewGroups creates an empty group registry.
func NewGroups() *Groups {
	return &Groups{byName: make(map[string]*Group)}
}

// Insert registers g under its name.
func (r *Groups) Insert(g *Group) error {
	if _, ok := r.byName[g.Name]; ok {
		return ErrGroupExists
	}
	r.byName[g.Name] = g
	r.order = append(r.order, g.Name)
	return nil
}

// Find looks a group up by name.
func (r *Groups) Find(name string) (*Group, bool) {
	g, ok := r.byName[name]
	return g, ok
}

// Len returns the number of groups.
func (r *Groups) Len() int {
	return len(r.byName)
}

// Groups returns every group in creation order.
func (r *Groups) Groups() []*Group {
	return lo.Map(r.order, func(name string, _ int) *Group { return r.byName[name] })
}

// GroupsWithMember returns, in creation order, the groups whose roster lists
// username.
func (r *Groups) GroupsWithMember(username string) []*Group {
	return lo.Filter(r.Groups(), func(g *Group, _ int) bool { return g.HasMember(username) })
}
