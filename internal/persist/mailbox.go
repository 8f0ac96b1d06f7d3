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

package persist

import (
	"context"
	"database/sql"

	"github.com/matta/mailcache/internal/mail"

	"github.com/pkg/errors"
)

// mailboxCountColumns maps the patchable count properties of a mailbox
// to their column.
var mailboxCountColumns = map[string]string{
	mail.PropertyTotalEmails:   "total_emails",
	mail.PropertyUnreadEmails:  "unread_emails",
	mail.PropertyTotalThreads:  "total_threads",
	mail.PropertyUnreadThreads: "unread_threads",
}

// InsertMailbox writes a mailbox, replacing it if already stored.
func (tx *Tx) InsertMailbox(ctx context.Context, m mail.Mailbox) error {
	const q = `
INSERT OR REPLACE INTO mailboxes
(mailbox_id, name, parent_id, role, sort_order, total_emails, unread_emails,
 total_threads, unread_threads, is_subscribed)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.exec(ctx, "mailbox insert", q, m.ID, m.Name, m.ParentID, m.Role,
		m.SortOrder, m.TotalEmails, m.UnreadEmails, m.TotalThreads, m.UnreadThreads,
		boolInt(m.IsSubscribed))
	return err
}

// SetMailboxCount sets one of the count properties of a stored mailbox.
func (tx *Tx) SetMailboxCount(ctx context.Context, mailboxID, property string, value int) error {
	column, ok := mailboxCountColumns[property]
	if !ok {
		return errors.Errorf("mailbox property %q is not a count", property)
	}
	_, err := tx.exec(ctx, "mailbox count update",
		`UPDATE mailboxes SET `+column+` = $1 WHERE mailbox_id = $2`, value, mailboxID)
	return err
}

func (tx *Tx) DeleteMailbox(ctx context.Context, mailboxID string) (bool, error) {
	res, err := tx.exec(ctx, "mailbox delete", `DELETE FROM mailboxes WHERE mailbox_id = $1`, mailboxID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "db mailbox delete failed")
	}
	return n > 0, nil
}

func (tx *Tx) DeleteAllMailboxes(ctx context.Context) error {
	_, err := tx.exec(ctx, "mailbox delete all", `DELETE FROM mailboxes`)
	return err
}

func (tx *Tx) MailboxExists(ctx context.Context, mailboxID string) (bool, error) {
	return tx.exists(ctx, "MailboxExists", `SELECT 1 FROM mailboxes WHERE mailbox_id = $1`, mailboxID)
}

// LoadMailbox reads a stored mailbox.
func (tx *Tx) LoadMailbox(ctx context.Context, mailboxID string) (*mail.Mailbox, bool, error) {
	const q = `
SELECT name, parent_id, role, sort_order, total_emails, unread_emails,
 total_threads, unread_threads, is_subscribed
FROM mailboxes WHERE mailbox_id = $1`
	m := &mail.Mailbox{ID: mailboxID}
	var parentID, role sql.NullString
	var subscribed int
	err := tx.tx.QueryRowContext(ctx, q, mailboxID).Scan(&m.Name, &parentID, &role,
		&m.SortOrder, &m.TotalEmails, &m.UnreadEmails, &m.TotalThreads,
		&m.UnreadThreads, &subscribed)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "db query failed in LoadMailbox")
	}
	m.ParentID = parentID.String
	m.Role = role.String
	m.IsSubscribed = subscribed != 0
	return m, true, nil
}
