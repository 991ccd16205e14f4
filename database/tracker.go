/*
 * Copyright 2025 tomoncle.
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

package database

import (
	"github.com/liuyl1992/UnitOfWork/types"
)

// EntityState is the tracking state of an entity inside a DbContext.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
	Deleted
)

var _ types.BaseEnum = Detached

var entityStateNames = [...]string{"Detached", "Unchanged", "Added", "Modified", "Deleted"}

var entityStateDescs = [...]string{
	"not tracked by the context",
	"tracked and not changed since it was read or saved",
	"staged for insertion",
	"staged for update",
	"staged for removal",
}

func (s EntityState) IsValid() bool { return s >= Detached && s <= Deleted }

func (s EntityState) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s EntityState) Name() string {
	if !s.IsValid() {
		return types.IllegalName
	}
	return entityStateNames[s]
}

func (s EntityState) String() string { return types.EnumName(s) }

func (s EntityState) Desc() string {
	if !s.IsValid() {
		return types.IllegalDesc
	}
	return entityStateDescs[s]
}

// EntityEntry is the tracker record of one entity instance.
type EntityEntry struct {
	Entity   interface{}
	Table    string
	State    EntityState
	Snapshot types.JsonObject // column values as last read or saved
	key      string
}

// Key returns the identity key of the entry, empty while the entity has
// no primary key value (for example an Added row with an autoincrement
// key).
func (e *EntityEntry) Key() string { return e.key }

// changeTracker keeps staged entries in staging order plus the identity
// map of persisted entities. It is owned by one DbContext and is not
// safe for concurrent use.
type changeTracker struct {
	entries  []*EntityEntry
	byEntity map[interface{}]*EntityEntry
	identity map[string]*EntityEntry
}

func newChangeTracker() *changeTracker {
	return &changeTracker{
		byEntity: make(map[interface{}]*EntityEntry),
		identity: make(map[string]*EntityEntry),
	}
}

func (t *changeTracker) entry(entity interface{}) (*EntityEntry, bool) {
	e, ok := t.byEntity[entity]
	return e, ok
}

func (t *changeTracker) lookup(key string) (*EntityEntry, bool) {
	e, ok := t.identity[key]
	return e, ok
}

func (t *changeTracker) track(entity interface{}, table, key string, state EntityState) *EntityEntry {
	e := &EntityEntry{Entity: entity, Table: table, State: state, key: key}
	t.entries = append(t.entries, e)
	t.byEntity[entity] = e
	if key != "" && state != Added {
		t.identity[key] = e
	}
	return e
}

func (t *changeTracker) setState(e *EntityEntry, state EntityState) {
	if state == Detached {
		t.detach(e)
		return
	}
	e.State = state
}

func (t *changeTracker) detach(e *EntityEntry) {
	delete(t.byEntity, e.Entity)
	if e.key != "" {
		if cur, ok := t.identity[e.key]; ok && cur == e {
			delete(t.identity, e.key)
		}
	}
	for i, cur := range t.entries {
		if cur == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
	e.State = Detached
}

func (t *changeTracker) pending() []*EntityEntry {
	var out []*EntityEntry
	for _, e := range t.entries {
		if e.State == Added || e.State == Modified || e.State == Deleted {
			out = append(out, e)
		}
	}
	return out
}

func (t *changeTracker) hasChanges() bool {
	for _, e := range t.entries {
		if e.State == Added || e.State == Modified || e.State == Deleted {
			return true
		}
	}
	return false
}

func (t *changeTracker) reset() {
	t.entries = nil
	t.byEntity = make(map[interface{}]*EntityEntry)
	t.identity = make(map[string]*EntityEntry)
}
