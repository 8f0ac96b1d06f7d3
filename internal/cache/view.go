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
	"time"

	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/persist"

	"github.com/pkg/errors"
)

// ThreadOverview is one row of a thread list as a reader shows it,
// with local overwrites applied.
type ThreadOverview struct {
	Position   int
	ThreadID   string
	Subject    string
	Preview    string
	ReceivedAt time.Time
	EmailCount int
	Seen       bool
	Flagged    bool
	Important  bool
	MailboxIDs []string
}

// ThreadOverviews returns the window of queryString in position order.
// Threads pending removal from the query and threads that have not
// been merged yet are left out.
func (c *Cache) ThreadOverviews(ctx context.Context, queryString string) (overviews []ThreadOverview, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		items, err := tx.QueryItems(ctx, queryString)
		if err != nil {
			return err
		}
		removed, err := tx.RemovedThreadIDs(ctx, queryString)
		if err != nil {
			return err
		}
		hidden := make(map[string]bool, len(removed))
		for _, id := range removed {
			hidden[id] = true
		}
		for _, item := range items {
			if hidden[item.ThreadID] {
				continue
			}
			o, ok, err := overview(ctx, tx, item)
			if err != nil {
				return err
			}
			if ok {
				overviews = append(overviews, *o)
			}
		}
		return nil
	})
	err = errors.Wrapf(err, "reading thread overviews of query %q", queryString)
	return
}

func overview(ctx context.Context, tx *persist.Tx, item persist.QueryItem) (*ThreadOverview, bool, error) {
	s, err := tx.SummarizeThread(ctx, item.ThreadID)
	if err != nil {
		return nil, false, err
	}
	if s.EmailCount == 0 {
		return nil, false, nil
	}
	o := &ThreadOverview{
		Position:   item.Position,
		ThreadID:   item.ThreadID,
		Subject:    s.Subject,
		Preview:    s.Preview,
		ReceivedAt: s.ReceivedAt,
		EmailCount: s.EmailCount,
		Seen:       s.KeywordCounts[mail.KeywordSeen] == s.EmailCount,
		Flagged:    s.KeywordCounts[mail.KeywordFlagged] > 0,
		Important:  s.KeywordCounts[mail.KeywordImportant] > 0,
	}

	keywords, err := tx.KeywordOverwrites(ctx, item.ThreadID)
	if err != nil {
		return nil, false, err
	}
	for keyword, value := range keywords {
		switch keyword {
		case mail.KeywordSeen:
			o.Seen = value
		case mail.KeywordFlagged:
			o.Flagged = value
		case mail.KeywordImportant:
			o.Important = value
		}
	}

	mailboxes := make(map[string]bool, len(s.MailboxIDs))
	for _, id := range s.MailboxIDs {
		mailboxes[id] = true
	}
	overwrites, err := tx.MailboxOverwrites(ctx, item.ThreadID)
	if err != nil {
		return nil, false, err
	}
	for id, value := range overwrites {
		mailboxes[id] = value
	}
	o.MailboxIDs = sortedSet(mailboxes)
	return o, true, nil
}

// Email reconstructs the stored email id.  ok is false if it is not
// stored.
func (c *Cache) Email(ctx context.Context, id string) (e *mail.Email, ok bool, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		e, ok, err = tx.LoadEmail(ctx, id)
		return err
	})
	return
}

func (c *Cache) Mailbox(ctx context.Context, id string) (m *mail.Mailbox, ok bool, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		m, ok, err = tx.LoadMailbox(ctx, id)
		return err
	})
	return
}

func (c *Cache) Identity(ctx context.Context, id string) (i *mail.Identity, ok bool, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		i, ok, err = tx.LoadIdentity(ctx, id)
		return err
	})
	return
}
