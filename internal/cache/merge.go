// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/persist"

	"github.com/pkg/errors"
)

// Patcher writes a single property of v over the stored object.
type Patcher[T any] func(ctx context.Context, tx *persist.Tx, v T) error

// Descriptor binds an object type to its tables.  Merger uses it to
// apply deltas without knowing the type's layout.
type Descriptor[T any] interface {
	Type() mail.ObjectType
	ID(v T) string

	// Insert explodes v and writes all of its rows, replacing
	// whatever is stored for the same id.
	Insert(ctx context.Context, tx *persist.Tx, v T) error

	// Delete removes the object and all of its child rows,
	// reporting whether it was stored.
	Delete(ctx context.Context, tx *persist.Tx, id string) (bool, error)

	DeleteAll(ctx context.Context, tx *persist.Tx) error

	// Prune removes rows of other tables that referred to objects
	// a Reset dropped.
	Prune(ctx context.Context, tx *persist.Tx) error
	Exists(ctx context.Context, tx *persist.Tx, id string) (bool, error)

	// ThreadOf returns the thread whose overwrites a change to the
	// stored object id must retire.  ok is false for types that
	// are not scoped to a thread.
	ThreadOf(ctx context.Context, tx *persist.Tx, id string) (threadID string, ok bool, err error)

	// Patchers returns the fixed set of properties that can be
	// patched individually.  A nil map means the type only
	// supports whole object replacement.
	Patchers() map[string]Patcher[T]
}

// Update is one entry of a delta's updated list.  When Properties is
// nil the whole object is replaced.
type Update[T any] struct {
	Value      T
	Properties []string
}

// Delta is a transition of one object type from OldState to NewState.
type Delta[T any] struct {
	OldState  string
	NewState  string
	Created   []T
	Updated   []Update[T]
	Destroyed []string

	// RejectOnConflict discards the delta when OldState does not
	// match the stored state.  By default the delta is merged and
	// the conflict is still reported.
	RejectOnConflict bool
}

// Merger applies snapshots and deltas of one object type.  Merges of
// the same type are serialized; merges of different types are not.
type Merger[T any] struct {
	db   *persist.DB
	desc Descriptor[T]
	mu   sync.Mutex
}

func newMerger[T any](db *persist.DB, desc Descriptor[T]) *Merger[T] {
	return &Merger[T]{db: db, desc: desc}
}

// Type returns the object type merged by m.
func (m *Merger[T]) Type() mail.ObjectType {
	return m.desc.Type()
}

// State returns the stored state token, "" if never synchronized.
func (m *Merger[T]) State(ctx context.Context) (state string, err error) {
	err = m.db.View(ctx, func(tx *persist.Tx) error {
		state, err = tx.State(ctx, m.desc.Type())
		return err
	})
	return
}

// Reset replaces every stored object of the type with entities and
// records newState regardless of the prior state.
func (m *Merger[T]) Reset(ctx context.Context, entities []T, newState string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	typ := m.desc.Type()
	err := m.db.Update(ctx, func(tx *persist.Tx) error {
		if err := m.desc.DeleteAll(ctx, tx); err != nil {
			return err
		}
		for _, v := range entities {
			if err := m.desc.Insert(ctx, tx, v); err != nil {
				return errors.Wrapf(err, "inserting %s %s", typ, m.desc.ID(v))
			}
		}
		if err := m.desc.Prune(ctx, tx); err != nil {
			return err
		}
		return tx.SetState(ctx, typ, newState)
	})
	if err != nil {
		return errors.Wrapf(err, "reset of %s failed", typ)
	}
	log.Printf("reset %s to state %q with %d objects", typ, newState, len(entities))
	return nil
}

// Append adds entities fetched against the snapshot expectedState
// without advancing the stored state.  It fails with
// ErrBaselineMismatch, writing nothing, when the stored state differs.
func (m *Merger[T]) Append(ctx context.Context, expectedState string, entities []T) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	typ := m.desc.Type()
	return m.db.Update(ctx, func(tx *persist.Tx) error {
		stored, err := tx.State(ctx, typ)
		if err != nil {
			return err
		}
		if stored != expectedState {
			return errors.Wrapf(ErrBaselineMismatch,
				"append of %d %s objects against state %q, cache has %q",
				len(entities), typ, expectedState, stored)
		}
		for _, v := range entities {
			if err := m.desc.Insert(ctx, tx, v); err != nil {
				return errors.Wrapf(err, "inserting %s %s", typ, m.desc.ID(v))
			}
		}
		return nil
	})
}

// ApplyDelta merges d in a single transaction.  A delta whose NewState
// is already stored is ignored.  A delta whose OldState is not the
// stored state is merged (unless d.RejectOnConflict) and reported as
// ErrUpdateConflict; the stored state is then left as it was.
func (m *Merger[T]) ApplyDelta(ctx context.Context, d Delta[T]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	typ := m.desc.Type()
	var stored string
	var conflict, duplicate bool
	err := m.db.Update(ctx, func(tx *persist.Tx) error {
		var err error
		stored, err = tx.State(ctx, typ)
		if err != nil {
			return err
		}
		if d.NewState == stored {
			duplicate = true
			return nil
		}
		conflict = d.OldState != stored
		if conflict && d.RejectOnConflict {
			return nil
		}

		touched := make(map[string]bool)
		touch := func(id string) error {
			threadID, ok, err := m.desc.ThreadOf(ctx, tx, id)
			if err != nil {
				return err
			}
			if ok {
				touched[threadID] = true
			}
			return nil
		}

		for _, v := range d.Created {
			if err := m.desc.Insert(ctx, tx, v); err != nil {
				return errors.Wrapf(err, "inserting created %s %s", typ, m.desc.ID(v))
			}
			if err := touch(m.desc.ID(v)); err != nil {
				return err
			}
		}

		for _, u := range d.Updated {
			// A replacement may move the object to another thread;
			// both threads are touched.
			id := m.desc.ID(u.Value)
			before, hadThread, err := m.desc.ThreadOf(ctx, tx, id)
			if err != nil {
				return err
			}
			applied, err := m.update(ctx, tx, u)
			if err != nil {
				return err
			}
			if applied {
				if hadThread {
					touched[before] = true
				}
				if err := touch(id); err != nil {
					return err
				}
			}
		}

		for _, id := range d.Destroyed {
			// Look the thread up first; the row is gone after.
			if err := touch(id); err != nil {
				return err
			}
			existed, err := m.desc.Delete(ctx, tx, id)
			if err != nil {
				return errors.Wrapf(err, "deleting %s %s", typ, id)
			}
			if !existed {
				log.Printf("Warning: destroyed %s %s is not in the cache; skipping", typ, id)
			}
		}

		for _, threadID := range sortedSet(touched) {
			if err := tx.RetireOverwrites(ctx, threadID); err != nil {
				return err
			}
		}

		if conflict {
			return nil
		}
		return tx.SetState(ctx, typ, d.NewState)
	})
	if err != nil {
		return errors.Wrapf(err, "delta %q -> %q for %s failed", d.OldState, d.NewState, typ)
	}
	if duplicate {
		log.Printf("%s delta to state %q already applied; nothing to do", typ, d.NewState)
		return nil
	}
	if conflict {
		return errors.Wrapf(ErrUpdateConflict, "%s delta from %q, cache has %q", typ, d.OldState, stored)
	}
	return nil
}

// update applies one updated object, reporting false when the object
// is not stored and was skipped.
func (m *Merger[T]) update(ctx context.Context, tx *persist.Tx, u Update[T]) (bool, error) {
	typ := m.desc.Type()
	id := m.desc.ID(u.Value)
	exists, err := m.desc.Exists(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		// The server may be ahead of a delete we have not seen
		// yet, or of a gap left by an earlier reset.
		log.Printf("Warning: updated %s %s is not in the cache; skipping", typ, id)
		return false, nil
	}

	patchers := m.desc.Patchers()
	if u.Properties == nil || patchers == nil {
		if err := m.desc.Insert(ctx, tx, u.Value); err != nil {
			return false, errors.Wrapf(err, "replacing updated %s %s", typ, id)
		}
		return true, nil
	}
	for _, prop := range u.Properties {
		patch, ok := patchers[prop]
		if !ok {
			return false, errors.Wrapf(ErrUnpatchableProperty, "%s property %q", typ, prop)
		}
		if err := patch(ctx, tx, u.Value); err != nil {
			return false, errors.Wrapf(err, "patching %s %s property %q", typ, id, prop)
		}
	}
	return true, nil
}

// Missing returns the ids, in input order, that have no stored object.
func (m *Merger[T]) Missing(ctx context.Context, ids []string) (missing []string, err error) {
	err = m.db.View(ctx, func(tx *persist.Tx) error {
		for _, id := range ids {
			ok, err := m.desc.Exists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !ok {
				missing = append(missing, id)
			}
		}
		return nil
	})
	return
}

// sortedSet returns the keys of s whose value is true, in order.
func sortedSet(s map[string]bool) []string {
	keys := make([]string, 0, len(s))
	for k, v := range s {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
