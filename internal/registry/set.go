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

import "github.com/samber/lo"

// boundedSet is an insertion-ordered set of names with a fixed capacity.
type boundedSet struct {
	items []string
	cap   int
}

func newBoundedSet(capacity int) boundedSet {
	return boundedSet{items: make([]string, 0, capacity), cap: capacity}
}

func (b *boundedSet) contains(name string) bool {
	return lo.Contains(b.items, name)
}

func (b *boundedSet) full() bool {
	return len(b.items) >= b.cap
}

// add appends name. Callers check contains and full first.
func (b *boundedSet) add(name string) {
	b.items = append(b.items, name)
}

func (b *boundedSet) remove(name string) {
	b.items = lo.Without(b.items, name)
}

func (b *boundedSet) list() []string {
	return append([]string(nil), b.items...)
}
