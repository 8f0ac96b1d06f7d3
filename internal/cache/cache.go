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

// Package cache merges server deltas into the local mail store,
// maintains the materialized windows of saved queries, and layers
// unconfirmed local changes over the merged state.
//
// Every mutating operation is a single transaction.  Conflicts are
// reported to the caller, never retried here; recovering from one
// means fetching a fresh snapshot and calling Reset.
package cache

import (
	"context"

	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/persist"
)

// Cache is the merge and query window engine over one database.
type Cache struct {
	db *persist.DB

	Emails     *Merger[mail.Email]
	Threads    *Merger[mail.Thread]
	Mailboxes  *Merger[mail.Mailbox]
	Identities *Merger[mail.Identity]
}

func New(db *persist.DB) *Cache {
	return &Cache{
		db:         db,
		Emails:     newMerger[mail.Email](db, emailDescriptor{}),
		Threads:    newMerger[mail.Thread](db, threadDescriptor{}),
		Mailboxes:  newMerger[mail.Mailbox](db, mailboxDescriptor{}),
		Identities: newMerger[mail.Identity](db, identityDescriptor{}),
	}
}

// States returns the stored state token of every synchronized type.
func (c *Cache) States(ctx context.Context) (states map[mail.ObjectType]string, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		states, err = tx.States(ctx)
		return err
	})
	return
}
