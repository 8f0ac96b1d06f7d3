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

	"github.com/matta/mailcache/internal/explode"
	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/persist"
)

type emailDescriptor struct{}

func (emailDescriptor) Type() mail.ObjectType  { return mail.TypeEmail }
func (emailDescriptor) ID(e mail.Email) string { return e.ID }

func (emailDescriptor) Insert(ctx context.Context, tx *persist.Tx, e mail.Email) error {
	return tx.InsertEmail(ctx, explode.Email(e))
}

func (emailDescriptor) Delete(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	return tx.DeleteEmail(ctx, id)
}

func (emailDescriptor) DeleteAll(ctx context.Context, tx *persist.Tx) error {
	return tx.DeleteAllEmails(ctx)
}

func (emailDescriptor) Prune(context.Context, *persist.Tx) error { return nil }

func (emailDescriptor) Exists(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	return tx.EmailExists(ctx, id)
}

func (emailDescriptor) ThreadOf(ctx context.Context, tx *persist.Tx, id string) (string, bool, error) {
	return tx.EmailThreadID(ctx, id)
}

func (emailDescriptor) Patchers() map[string]Patcher[mail.Email] {
	return map[string]Patcher[mail.Email]{
		mail.PropertyKeywords: func(ctx context.Context, tx *persist.Tx, e mail.Email) error {
			return tx.ReplaceKeywords(ctx, e.ID, explode.Keywords(e.ID, e.Keywords))
		},
		mail.PropertyMailboxIDs: func(ctx context.Context, tx *persist.Tx, e mail.Email) error {
			return tx.ReplaceMailboxes(ctx, e.ID, explode.Mailboxes(e.ID, e.MailboxIDs))
		},
	}
}

type threadDescriptor struct{}

func (threadDescriptor) Type() mail.ObjectType   { return mail.TypeThread }
func (threadDescriptor) ID(t mail.Thread) string { return t.ID }

func (threadDescriptor) Insert(ctx context.Context, tx *persist.Tx, t mail.Thread) error {
	return tx.InsertThread(ctx, explode.Thread(t))
}

// Delete also discards the thread's overwrites; nothing can confirm
// them any more.
func (threadDescriptor) Delete(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	existed, err := tx.DeleteThread(ctx, id)
	if err != nil {
		return false, err
	}
	return existed, tx.DeleteOverwrites(ctx, id)
}

func (threadDescriptor) DeleteAll(ctx context.Context, tx *persist.Tx) error {
	return tx.DeleteAllThreads(ctx)
}

// Prune discards the overwrites of threads the reset did not keep.
func (threadDescriptor) Prune(ctx context.Context, tx *persist.Tx) error {
	return tx.DeleteOrphanOverwrites(ctx)
}

func (threadDescriptor) Exists(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	return tx.ThreadExists(ctx, id)
}

func (threadDescriptor) ThreadOf(ctx context.Context, tx *persist.Tx, id string) (string, bool, error) {
	return id, true, nil
}

func (threadDescriptor) Patchers() map[string]Patcher[mail.Thread] { return nil }

type mailboxDescriptor struct{}

func (mailboxDescriptor) Type() mail.ObjectType    { return mail.TypeMailbox }
func (mailboxDescriptor) ID(m mail.Mailbox) string { return m.ID }

func (mailboxDescriptor) Insert(ctx context.Context, tx *persist.Tx, m mail.Mailbox) error {
	return tx.InsertMailbox(ctx, m)
}

func (mailboxDescriptor) Delete(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	return tx.DeleteMailbox(ctx, id)
}

func (mailboxDescriptor) DeleteAll(ctx context.Context, tx *persist.Tx) error {
	return tx.DeleteAllMailboxes(ctx)
}

func (mailboxDescriptor) Prune(context.Context, *persist.Tx) error { return nil }

func (mailboxDescriptor) Exists(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	return tx.MailboxExists(ctx, id)
}

func (mailboxDescriptor) ThreadOf(context.Context, *persist.Tx, string) (string, bool, error) {
	return "", false, nil
}

// Patchers covers the counters, which change with nearly every email
// delta and are usually sent as a partial update.
func (mailboxDescriptor) Patchers() map[string]Patcher[mail.Mailbox] {
	count := func(prop string, get func(mail.Mailbox) int) Patcher[mail.Mailbox] {
		return func(ctx context.Context, tx *persist.Tx, m mail.Mailbox) error {
			return tx.SetMailboxCount(ctx, m.ID, prop, get(m))
		}
	}
	return map[string]Patcher[mail.Mailbox]{
		mail.PropertyTotalEmails:   count(mail.PropertyTotalEmails, func(m mail.Mailbox) int { return m.TotalEmails }),
		mail.PropertyUnreadEmails:  count(mail.PropertyUnreadEmails, func(m mail.Mailbox) int { return m.UnreadEmails }),
		mail.PropertyTotalThreads:  count(mail.PropertyTotalThreads, func(m mail.Mailbox) int { return m.TotalThreads }),
		mail.PropertyUnreadThreads: count(mail.PropertyUnreadThreads, func(m mail.Mailbox) int { return m.UnreadThreads }),
	}
}

type identityDescriptor struct{}

func (identityDescriptor) Type() mail.ObjectType     { return mail.TypeIdentity }
func (identityDescriptor) ID(i mail.Identity) string { return i.ID }

func (identityDescriptor) Insert(ctx context.Context, tx *persist.Tx, i mail.Identity) error {
	return tx.InsertIdentity(ctx, explode.Identity(i))
}

func (identityDescriptor) Delete(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	return tx.DeleteIdentity(ctx, id)
}

func (identityDescriptor) DeleteAll(ctx context.Context, tx *persist.Tx) error {
	return tx.DeleteAllIdentities(ctx)
}

func (identityDescriptor) Prune(context.Context, *persist.Tx) error { return nil }

func (identityDescriptor) Exists(ctx context.Context, tx *persist.Tx, id string) (bool, error) {
	return tx.IdentityExists(ctx, id)
}

func (identityDescriptor) ThreadOf(context.Context, *persist.Tx, string) (string, bool, error) {
	return "", false, nil
}

func (identityDescriptor) Patchers() map[string]Patcher[mail.Identity] { return nil }
