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
	"time"

	"github.com/matta/mailcache/internal/explode"

	"github.com/pkg/errors"
)

// InsertThread writes an exploded thread, replacing its item list if
// it is already stored.
func (tx *Tx) InsertThread(ctx context.Context, rows *explode.ThreadRows) error {
	if _, err := tx.exec(ctx, "thread delete", `DELETE FROM threads WHERE thread_id = $1`, rows.ThreadID); err != nil {
		return err
	}
	if _, err := tx.exec(ctx, "thread insert", `INSERT INTO threads (thread_id) VALUES ($1)`, rows.ThreadID); err != nil {
		return err
	}
	if len(rows.Items) == 0 {
		return nil
	}
	stmt, err := tx.tx.PrepareContext(ctx, `INSERT INTO thread_items (thread_id, position, email_id) VALUES ($1, $2, $3)`)
	if err != nil {
		return errors.Wrap(err, "db prepare statement failed for thread items")
	}
	defer stmt.Close()
	for _, item := range rows.Items {
		if _, err := stmt.ExecContext(ctx, item.ThreadID, item.Position, item.EmailID); err != nil {
			return errors.Wrap(err, "db thread item insert failed")
		}
	}
	return nil
}

// DeleteThread removes a thread and its item list.  It reports whether
// the thread was stored.
func (tx *Tx) DeleteThread(ctx context.Context, threadID string) (bool, error) {
	res, err := tx.exec(ctx, "thread delete", `DELETE FROM threads WHERE thread_id = $1`, threadID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "db thread delete failed")
	}
	return n > 0, nil
}

func (tx *Tx) DeleteAllThreads(ctx context.Context) error {
	_, err := tx.exec(ctx, "thread delete all", `DELETE FROM threads`)
	return err
}

func (tx *Tx) ThreadExists(ctx context.Context, threadID string) (bool, error) {
	return tx.exists(ctx, "ThreadExists", `SELECT 1 FROM threads WHERE thread_id = $1`, threadID)
}

// ThreadEmailIDs returns the email ids of a thread in position order.
func (tx *Tx) ThreadEmailIDs(ctx context.Context, threadID string) ([]string, error) {
	return tx.selectStrings(ctx, "ThreadEmailIDs",
		`SELECT email_id FROM thread_items WHERE thread_id = $1 ORDER BY position`, threadID)
}

// ThreadSummary is the canonical state of a thread derived from the
// emails stored for it.
type ThreadSummary struct {
	EmailCount int

	// Number of emails carrying each keyword.
	KeywordCounts map[string]int

	// Mailboxes holding at least one of the thread's emails.
	MailboxIDs []string

	// Taken from the most recently received email.
	Subject    string
	Preview    string
	ReceivedAt time.Time
}

// SummarizeThread derives the canonical view state of a thread from
// its stored emails.
func (tx *Tx) SummarizeThread(ctx context.Context, threadID string) (*ThreadSummary, error) {
	s := &ThreadSummary{KeywordCounts: make(map[string]int)}

	const latest = `
SELECT COUNT(*) OVER (), subject, preview, received_at
FROM emails WHERE thread_id = $1
ORDER BY received_at DESC, email_id DESC LIMIT 1`
	var subject, preview sql.NullString
	var received sql.NullInt64
	err := tx.tx.QueryRowContext(ctx, latest, threadID).Scan(&s.EmailCount, &subject, &preview, &received)
	if err == sql.ErrNoRows {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "db query failed in SummarizeThread")
	}
	s.Subject = subject.String
	s.Preview = preview.String
	s.ReceivedAt = fromMillis(received)

	const keywords = `
SELECT k.keyword, COUNT(*)
FROM emails e JOIN email_keywords k ON k.email_id = e.email_id
WHERE e.thread_id = $1
GROUP BY k.keyword`
	rows, err := tx.tx.QueryContext(ctx, keywords, threadID)
	if err != nil {
		return nil, errors.Wrap(err, "db keyword query failed in SummarizeThread")
	}
	defer rows.Close()
	for rows.Next() {
		var keyword string
		var n int
		if err := rows.Scan(&keyword, &n); err != nil {
			return nil, errors.Wrap(err, "db scan failed in SummarizeThread")
		}
		s.KeywordCounts[keyword] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "db rows failed in SummarizeThread")
	}

	s.MailboxIDs, err = tx.selectStrings(ctx, "SummarizeThread mailboxes", `
SELECT DISTINCT m.mailbox_id
FROM emails e JOIN email_mailboxes m ON m.email_id = e.email_id
WHERE e.thread_id = $1
ORDER BY m.mailbox_id`, threadID)
	if err != nil {
		return nil, err
	}
	return s, nil
}
