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

// Package sync brings the cache up to date with a remote mail store.
package sync

import (
	"context"
	"log"

	"github.com/matta/mailcache/internal/cache"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultPageSize  = 100
	DefaultBatchSize = 50
	DefaultRate      = 10
	DefaultBurst     = 5
)

// Options controls a Sync.
type Options struct {
	// Queries whose windows are refreshed after the objects.
	Queries []string

	// Thread ids requested per query page, and the number of pages
	// kept in each window.
	PageSize int
	MaxPages int

	// Ids per fetch of missing threads or emails.
	BatchSize int

	// Requests per second to the store, and the burst allowed
	// above that rate.
	Rate  rate.Limit
	Burst int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = 1
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Rate <= 0 {
		o.Rate = DefaultRate
	}
	if o.Burst <= 0 {
		o.Burst = DefaultBurst
	}
	return o
}

type syncer struct {
	s       MailStorage
	c       *cache.Cache
	opts    Options
	limiter *rate.Limiter
}

// Sync pulls every object type from s into c, then refreshes the
// window of each query in opts and fetches the threads and emails the
// windows name but the cache lacks.
func Sync(ctx context.Context, s MailStorage, c *cache.Cache, opts Options) error {
	opts = opts.withDefaults()
	y := &syncer{
		s:       s,
		c:       c,
		opts:    opts,
		limiter: rate.NewLimiter(opts.Rate, opts.Burst),
	}

	log.Print("Pulling object changes")
	if err := y.pullObjects(ctx); err != nil {
		return errors.Wrap(err, "failed to sync")
	}
	for _, q := range opts.Queries {
		log.Printf("Refreshing query %q", q)
		if err := y.refreshQuery(ctx, q); err != nil {
			return errors.Wrapf(err, "failed to sync query %q", q)
		}
		if err := y.fetchMissing(ctx, q); err != nil {
			return errors.Wrapf(err, "failed to sync query %q", q)
		}
	}
	return nil
}

// pullObjects brings all four object types up to date concurrently.
// After an Email or Thread reset every query window is invalidated.
func (y *syncer) pullObjects(ctx context.Context) error {
	var emailReset, threadReset bool
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() (err error) {
		emailReset, err = pull(gctx, y.limiter, y.s.Emails(), y.c.Emails)
		return
	})
	grp.Go(func() (err error) {
		threadReset, err = pull(gctx, y.limiter, y.s.Threads(), y.c.Threads)
		return
	})
	grp.Go(func() error {
		_, err := pull(gctx, y.limiter, y.s.Mailboxes(), y.c.Mailboxes)
		return err
	})
	grp.Go(func() error {
		_, err := pull(gctx, y.limiter, y.s.Identities(), y.c.Identities)
		return err
	})
	if err := grp.Wait(); err != nil {
		return err
	}
	if emailReset || threadReset {
		return y.c.InvalidateAll(ctx)
	}
	return nil
}

// pull applies the changes of one object type, falling back to a full
// fetch on first sync and whenever the changes cannot be merged.  It
// reports whether the type was reset.
func pull[T any](ctx context.Context, limiter *rate.Limiter, src ObjectSource[T], m *cache.Merger[T]) (bool, error) {
	typ := m.Type()
	state, err := m.State(ctx)
	if err != nil {
		return false, err
	}
	if state == "" {
		log.Printf("Full sync of %s", typ)
		return true, pullComplete(ctx, limiter, src, m)
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			return false, err
		}
		changes, err := src.Changes(ctx, state)
		if errors.Is(err, ErrCannotCalculateChanges) {
			log.Printf("%s changes since %q are not available; full sync", typ, state)
			return true, pullComplete(ctx, limiter, src, m)
		}
		if err != nil {
			return false, errors.Wrapf(err, "unable to retrieve %s changes", typ)
		}
		log.Printf("Incremental sync of %s from %q to %q: %d created, %d updated, %d destroyed",
			typ, changes.OldState, changes.NewState,
			len(changes.Created), len(changes.Updated), len(changes.Destroyed))

		err = m.ApplyDelta(ctx, changes.Delta())
		if cache.IsConflict(err) {
			log.Printf("%v; full sync", err)
			return true, pullComplete(ctx, limiter, src, m)
		}
		if err != nil {
			return false, err
		}
		if !changes.HasMoreChanges || changes.NewState == state {
			return false, nil
		}
		state = changes.NewState
	}
}

func pullComplete[T any](ctx context.Context, limiter *rate.Limiter, src ObjectSource[T], m *cache.Merger[T]) error {
	if err := limiter.Wait(ctx); err != nil {
		return err
	}
	objects, state, err := src.Get(ctx)
	if err != nil {
		return errors.Wrapf(err, "unable to retrieve all %s objects", m.Type())
	}
	return m.Reset(ctx, objects, state)
}

// refreshQuery brings the window of q up to date, incrementally when
// the window is valid and the store can calculate changes.
func (y *syncer) refreshQuery(ctx context.Context, q string) error {
	qs, err := y.c.QueryState(ctx, q)
	if err != nil {
		return err
	}
	if qs.Known && qs.Valid && qs.CanCalculateChanges {
		if err := y.limiter.Wait(ctx); err != nil {
			return err
		}
		changes, err := y.s.QueryChanges(ctx, q, qs.State)
		if err == nil {
			err = y.c.ApplyQueryChanges(ctx, q, *changes)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCannotCalculateChanges) && !cache.IsConflict(err) {
			return err
		}
		log.Printf("query %q: %v; refetching", q, err)
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return err
	}
	res, err := y.s.Query(ctx, q, "", y.opts.PageSize)
	if err != nil {
		return errors.Wrap(err, "unable to run query")
	}
	if err := y.c.ReplaceWindow(ctx, q, res.ThreadIDs, res.QueryState, res.CanCalculateChanges); err != nil {
		return err
	}

	last := res.ThreadIDs
	for page := 1; page < y.opts.MaxPages && len(last) == y.opts.PageSize; page++ {
		if err := y.limiter.Wait(ctx); err != nil {
			return err
		}
		after := last[len(last)-1]
		next, err := y.s.Query(ctx, q, after, y.opts.PageSize)
		if err != nil {
			return errors.Wrap(err, "unable to run query")
		}
		err = y.c.AppendPage(ctx, q, next.QueryState, after, next.ThreadIDs)
		if errors.Is(err, cache.ErrBaselineMismatch) {
			log.Printf("query %q changed while paging; keeping %d pages", q, page)
			return nil
		}
		if err != nil {
			return err
		}
		last = next.ThreadIDs
	}
	return nil
}

// fetchMissing fetches the threads in the window of q that are not
// cached, and then the emails of those threads that are not cached.
// Objects are appended against the state the store reports; if the
// cache is at a different state they are dropped and picked up by
// the next sync.
func (y *syncer) fetchMissing(ctx context.Context, q string) error {
	missing, err := y.c.Missing(ctx, q)
	if err != nil {
		return err
	}
	if len(missing.ThreadIDs) == 0 {
		return nil
	}
	log.Printf("query %q: fetching %d missing threads", q, len(missing.ThreadIDs))

	var emailIDs []string
	for _, ids := range batches(missing.ThreadIDs, y.opts.BatchSize) {
		threads, err := fetch(ctx, y.limiter, y.s.Threads(), y.c.Threads, ids)
		if err != nil {
			return err
		}
		for _, t := range threads {
			emailIDs = append(emailIDs, t.EmailIDs...)
		}
	}

	emailIDs, err = y.c.Emails.Missing(ctx, emailIDs)
	if err != nil {
		return err
	}
	log.Printf("query %q: fetching %d missing emails", q, len(emailIDs))
	for _, ids := range batches(emailIDs, y.opts.BatchSize) {
		if _, err := fetch(ctx, y.limiter, y.s.Emails(), y.c.Emails, ids); err != nil {
			return err
		}
	}
	return nil
}

// fetch gets ids from src and appends them to m.  Objects that could
// not be appended are not returned.
func fetch[T any](ctx context.Context, limiter *rate.Limiter, src ObjectSource[T], m *cache.Merger[T], ids []string) ([]T, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}
	objects, state, err := src.GetByID(ctx, ids)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to retrieve %d %s objects", len(ids), m.Type())
	}
	err = m.Append(ctx, state, objects)
	if errors.Is(err, cache.ErrBaselineMismatch) {
		log.Printf("Warning: %v; dropping %d objects until the next sync", err, len(objects))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func batches(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}
