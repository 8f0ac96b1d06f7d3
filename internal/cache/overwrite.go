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
	"fmt"
	"strings"

	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/persist"

	"github.com/pkg/errors"
)

type fieldKind int

const (
	keywordField fieldKind = iota
	mailboxField
	removalField
)

// Field names one thread-level value a local change can overwrite.
type Field struct {
	kind fieldKind
	key  string
}

var (
	Seen      = Field{keywordField, mail.KeywordSeen}
	Flagged   = Field{keywordField, mail.KeywordFlagged}
	Important = Field{keywordField, mail.KeywordImportant}
)

// InMailbox is whether the thread is in mailboxID.
func InMailbox(mailboxID string) Field {
	return Field{mailboxField, mailboxID}
}

// RemovedFrom is whether the thread is pending removal from the window
// of queryString.
func RemovedFrom(queryString string) Field {
	return Field{removalField, queryString}
}

func (f Field) String() string {
	switch f.kind {
	case keywordField:
		return f.key
	case mailboxField:
		return fmt.Sprintf("mailbox(%s)", f.key)
	default:
		return fmt.Sprintf("removed(%s)", f.key)
	}
}

// ParseField is the inverse of Field.String.
func ParseField(s string) (Field, error) {
	switch s {
	case Seen.key:
		return Seen, nil
	case Flagged.key:
		return Flagged, nil
	case Important.key:
		return Important, nil
	}
	for _, f := range []struct {
		prefix string
		kind   fieldKind
	}{
		{"mailbox(", mailboxField},
		{"removed(", removalField},
	} {
		if strings.HasPrefix(s, f.prefix) && strings.HasSuffix(s, ")") && len(s) > len(f.prefix)+1 {
			return Field{f.kind, s[len(f.prefix) : len(s)-1]}, nil
		}
	}
	return Field{}, errors.Errorf("unknown overwrite field %q", s)
}

// SetOverwrite records a local change to field of threadID.  For a
// RemovedFrom field, true records a pending removal and false drops it.
func (c *Cache) SetOverwrite(ctx context.Context, threadID string, field Field, value bool) error {
	err := c.db.Update(ctx, func(tx *persist.Tx) error {
		switch field.kind {
		case keywordField:
			return tx.SetKeywordOverwrite(ctx, threadID, field.key, value)
		case mailboxField:
			return tx.SetMailboxOverwrite(ctx, threadID, field.key, value)
		}
		if value {
			return tx.AddQueryItemOverwrite(ctx, field.key, threadID)
		}
		return tx.DeleteQueryItemOverwrite(ctx, field.key, threadID)
	})
	return errors.Wrapf(err, "setting %s overwrite of thread %s", field, threadID)
}

// ReadOverwrite returns the overwrite of field for threadID.  ok is
// false when there is none.  For a RemovedFrom field the value is
// always true when ok; an executed removal still hides the thread
// until the window is refreshed.
func (c *Cache) ReadOverwrite(ctx context.Context, threadID string, field Field) (value, ok bool, err error) {
	err = c.db.View(ctx, func(tx *persist.Tx) error {
		switch field.kind {
		case keywordField:
			value, ok, err = tx.KeywordOverwrite(ctx, threadID, field.key)
		case mailboxField:
			value, ok, err = tx.MailboxOverwrite(ctx, threadID, field.key)
		default:
			_, ok, err = tx.QueryItemOverwrite(ctx, field.key, threadID)
			value = ok
		}
		return err
	})
	err = errors.Wrapf(err, "reading %s overwrite of thread %s", field, threadID)
	return
}

// RetireForThread drops the keyword and mailbox overwrites of threadID
// and marks its pending removals executed.  ApplyDelta does this for
// every thread it touches.
func (c *Cache) RetireForThread(ctx context.Context, threadID string) error {
	err := c.db.Update(ctx, func(tx *persist.Tx) error {
		return tx.RetireOverwrites(ctx, threadID)
	})
	return errors.Wrapf(err, "retiring overwrites of thread %s", threadID)
}

// DiscardOverwrites removes every overwrite of threadID.
func (c *Cache) DiscardOverwrites(ctx context.Context, threadID string) error {
	err := c.db.Update(ctx, func(tx *persist.Tx) error {
		return tx.DeleteOverwrites(ctx, threadID)
	})
	return errors.Wrapf(err, "discarding overwrites of thread %s", threadID)
}
