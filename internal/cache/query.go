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

	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/persist"

	"github.com/pkg/errors"
)

// QueryState is what a caller needs to decide between asking the
// server for query changes and refetching the query.
type QueryState struct {
	// Known is false when the query has never been stored; the
	// remaining query fields are then zero.
	Known               bool
	State               string
	CanCalculateChanges bool
	Valid               bool

	// Thread at the highest position of the window, "" if empty.
	LastThreadID string

	ThreadState  string
	EmailState   string
	MailboxState string
}

// Missing lists the threads a query window names that are not stored.
type Missing struct {
	ThreadState string
	EmailState  string
	ThreadIDs   []string
}

// AddedItem is an insertion reported by a query delta.
type AddedItem struct {
	Index    int    `json:"index"`
	ThreadID string `json:"threadId"`
}

// QueryChanges is an incremental update of a query window.  Removed
// ids are deleted first, then Added items are inserted at their index
// in ascending index order.
type QueryChanges struct {
	OldState string      `json:"oldState"`
	NewState string      `json:"newState"`
	Removed  []string    `json:"removed,omitempty"`
	Added    []AddedItem `json:"added,omitempty"`
}

// QueryState reads the state of queryString together with the Thread,
// Email and Mailbox state tokens.
func (c *Cache) QueryState(ctx context.Context, queryString string) (*QueryState, error) {
	qs := &QueryState{}
	err := c.db.View(ctx, func(tx *persist.Tx) error {
		states, err := tx.States(ctx)
		if err != nil {
			return err
		}
		qs.ThreadState = states[mail.TypeThread]
		qs.EmailState = states[mail.TypeEmail]
		qs.MailboxState = states[mail.TypeMailbox]

		q, ok, err := tx.Query(ctx, queryString)
		if err != nil || !ok {
			return err
		}
		qs.Known = true
		qs.State = q.State
		qs.CanCalculateChanges = q.CanCalculateChanges
		qs.Valid = q.Valid

		last, ok, err := tx.LastQueryItem(ctx, queryString)
		if err != nil {
			return err
		}
		if ok {
			qs.LastThreadID = last.ThreadID
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "reading state of query %q", queryString)
	}
	return qs, nil
}

// Missing returns the thread ids in the window of queryString that are
// not in canonical storage, in window order.
func (c *Cache) Missing(ctx context.Context, queryString string) (*Missing, error) {
	m := &Missing{}
	err := c.db.View(ctx, func(tx *persist.Tx) error {
		var err error
		if m.ThreadState, err = tx.State(ctx, mail.TypeThread); err != nil {
			return err
		}
		if m.EmailState, err = tx.State(ctx, mail.TypeEmail); err != nil {
			return err
		}
		m.ThreadIDs, err = tx.MissingThreadIDs(ctx, queryString)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "computing missing threads of query %q", queryString)
	}
	return m, nil
}

// QueryItems returns the window of queryString in position order.
func (c *Cache) QueryItems(ctx context.Context, queryString string) (items []persist.QueryItem, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		items, err = tx.QueryItems(ctx, queryString)
		return err
	})
	return
}

// Queries returns every stored query string.
func (c *Cache) Queries(ctx context.Context) (queries []string, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		queries, err = tx.QueryStrings(ctx)
		return err
	})
	return
}

// Invalidate marks the window of queryString stale.
func (c *Cache) Invalidate(ctx context.Context, queryString string) error {
	return c.db.Update(ctx, func(tx *persist.Tx) error {
		return tx.InvalidateQuery(ctx, queryString)
	})
}

// InvalidateAll marks every query window stale.  Used after an Email
// or Thread reset, since the windows may no longer match.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	err := c.db.Update(ctx, func(tx *persist.Tx) error {
		return tx.InvalidateAllQueries(ctx)
	})
	if err == nil {
		log.Print("invalidated all query windows")
	}
	return err
}

// ReplaceWindow replaces the window of queryString with threadIDs at
// positions 0..len-1 and records the query's new state.
func (c *Cache) ReplaceWindow(ctx context.Context, queryString string, threadIDs []string, newState string, canCalculateChanges bool) error {
	err := c.db.Update(ctx, func(tx *persist.Tx) error {
		err := tx.UpsertQuery(ctx, &persist.Query{
			QueryString:         queryString,
			State:               newState,
			CanCalculateChanges: canCalculateChanges,
			Valid:               true,
		})
		if err != nil {
			return err
		}
		if err := tx.DeleteQueryItems(ctx, queryString); err != nil {
			return err
		}
		if err := tx.InsertQueryItems(ctx, queryString, 0, threadIDs); err != nil {
			return err
		}
		return tx.DeleteExecutedQueryItemOverwrites(ctx, queryString)
	})
	return errors.Wrapf(err, "replacing window of query %q", queryString)
}

// AppendPage adds a further page of results after the current end of
// the window.  afterThreadID must be the last thread of the window (""
// for an empty window) and expectedState the stored query state;
// otherwise ErrBaselineMismatch is returned and nothing is written.
func (c *Cache) AppendPage(ctx context.Context, queryString, expectedState, afterThreadID string, threadIDs []string) error {
	err := c.db.Update(ctx, func(tx *persist.Tx) error {
		q, ok, err := tx.Query(ctx, queryString)
		if err != nil {
			return err
		}
		if !ok || q.State != expectedState {
			stored := ""
			if ok {
				stored = q.State
			}
			return errors.Wrapf(ErrBaselineMismatch, "page against query state %q, cache has %q", expectedState, stored)
		}
		items, err := tx.QueryItems(ctx, queryString)
		if err != nil {
			return err
		}
		next, anchor := 0, ""
		if len(items) > 0 {
			last := items[len(items)-1]
			next, anchor = last.Position+1, last.ThreadID
		}
		if anchor != afterThreadID {
			return errors.Wrapf(ErrBaselineMismatch, "page after %q, window ends at %q", afterThreadID, anchor)
		}
		present := make(map[string]bool, len(items)+len(threadIDs))
		for _, item := range items {
			present[item.ThreadID] = true
		}
		page := make([]string, 0, len(threadIDs))
		for _, id := range threadIDs {
			if present[id] {
				log.Printf("Warning: added thread %s is already in the window; skipping", id)
				continue
			}
			present[id] = true
			page = append(page, id)
		}
		return tx.InsertQueryItems(ctx, queryString, next, page)
	})
	return errors.Wrapf(err, "appending to window of query %q", queryString)
}

// ApplyQueryChanges merges an incremental update into the window of
// queryString.  A change whose NewState is stored is ignored; one whose
// OldState is not stored fails with ErrUpdateConflict and writes
// nothing; the caller refetches the window.
func (c *Cache) ApplyQueryChanges(ctx context.Context, queryString string, changes QueryChanges) error {
	err := c.db.Update(ctx, func(tx *persist.Tx) error {
		q, ok, err := tx.Query(ctx, queryString)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrap(ErrUpdateConflict, "query is not stored")
		}
		if q.State == changes.NewState {
			return nil
		}
		if q.State != changes.OldState {
			return errors.Wrapf(ErrUpdateConflict, "query changes from %q, cache has %q", changes.OldState, q.State)
		}

		items, err := tx.QueryItems(ctx, queryString)
		if err != nil {
			return err
		}
		ids := applyChanges(items, changes)

		if err := tx.DeleteQueryItems(ctx, queryString); err != nil {
			return err
		}
		if err := tx.InsertQueryItems(ctx, queryString, 0, ids); err != nil {
			return err
		}
		q.State = changes.NewState
		if err := tx.UpsertQuery(ctx, q); err != nil {
			return err
		}
		return tx.DeleteExecutedQueryItemOverwrites(ctx, queryString)
	})
	return errors.Wrapf(err, "applying changes to query %q", queryString)
}

// applyChanges returns the thread ids of items after removing and
// inserting per changes.  Indexes past the end append; an added thread
// already in the window is skipped.
func applyChanges(items []persist.QueryItem, changes QueryChanges) []string {
	removed := make(map[string]bool, len(changes.Removed))
	for _, id := range changes.Removed {
		removed[id] = true
	}
	present := make(map[string]bool, len(items))
	ids := make([]string, 0, len(items)+len(changes.Added))
	for _, item := range items {
		if !removed[item.ThreadID] {
			ids = append(ids, item.ThreadID)
			present[item.ThreadID] = true
		}
	}

	added := append([]AddedItem(nil), changes.Added...)
	sort.SliceStable(added, func(i, j int) bool { return added[i].Index < added[j].Index })
	for _, a := range added {
		if present[a.ThreadID] {
			log.Printf("Warning: added thread %s is already in the window; skipping", a.ThreadID)
			continue
		}
		present[a.ThreadID] = true
		i := a.Index
		if i < 0 {
			i = 0
		}
		if i >= len(ids) {
			ids = append(ids, a.ThreadID)
			continue
		}
		ids = append(ids, "")
		copy(ids[i+1:], ids[i:])
		ids[i] = a.ThreadID
	}
	return ids
}
