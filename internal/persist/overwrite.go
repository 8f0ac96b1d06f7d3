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

	"github.com/pkg/errors"
)

func (tx *Tx) SetKeywordOverwrite(ctx context.Context, threadID, keyword string, value bool) error {
	const q = `
INSERT INTO keyword_overwrites (thread_id, keyword, value) VALUES ($1, $2, $3)
ON CONFLICT (thread_id, keyword) DO UPDATE SET value = $3`
	_, err := tx.exec(ctx, "keyword overwrite upsert", q, threadID, keyword, boolInt(value))
	return err
}

func (tx *Tx) KeywordOverwrite(ctx context.Context, threadID, keyword string) (value bool, ok bool, err error) {
	const q = `SELECT value FROM keyword_overwrites WHERE thread_id = $1 AND keyword = $2`
	return tx.boolRow(ctx, "KeywordOverwrite", q, threadID, keyword)
}

// KeywordOverwrites returns every keyword overwrite of a thread.
func (tx *Tx) KeywordOverwrites(ctx context.Context, threadID string) (map[string]bool, error) {
	const q = `SELECT keyword, value FROM keyword_overwrites WHERE thread_id = $1`
	return tx.boolMap(ctx, "KeywordOverwrites", q, threadID)
}

func (tx *Tx) SetMailboxOverwrite(ctx context.Context, threadID, mailboxID string, value bool) error {
	const q = `
INSERT INTO mailbox_overwrites (thread_id, mailbox_id, value) VALUES ($1, $2, $3)
ON CONFLICT (thread_id, mailbox_id) DO UPDATE SET value = $3`
	_, err := tx.exec(ctx, "mailbox overwrite upsert", q, threadID, mailboxID, boolInt(value))
	return err
}

func (tx *Tx) MailboxOverwrite(ctx context.Context, threadID, mailboxID string) (value bool, ok bool, err error) {
	const q = `SELECT value FROM mailbox_overwrites WHERE thread_id = $1 AND mailbox_id = $2`
	return tx.boolRow(ctx, "MailboxOverwrite", q, threadID, mailboxID)
}

// MailboxOverwrites returns every mailbox overwrite of a thread.
func (tx *Tx) MailboxOverwrites(ctx context.Context, threadID string) (map[string]bool, error) {
	const q = `SELECT mailbox_id, value FROM mailbox_overwrites WHERE thread_id = $1`
	return tx.boolMap(ctx, "MailboxOverwrites", q, threadID)
}

// AddQueryItemOverwrite records that threadID was removed from the
// window of queryString.  An existing row is reset to not executed.
func (tx *Tx) AddQueryItemOverwrite(ctx context.Context, queryString, threadID string) error {
	const q = `
INSERT INTO query_item_overwrites (query_string, thread_id, executed) VALUES ($1, $2, 0)
ON CONFLICT (query_string, thread_id) DO UPDATE SET executed = 0`
	_, err := tx.exec(ctx, "query item overwrite upsert", q, queryString, threadID)
	return err
}

func (tx *Tx) DeleteQueryItemOverwrite(ctx context.Context, queryString, threadID string) error {
	const q = `DELETE FROM query_item_overwrites WHERE query_string = $1 AND thread_id = $2`
	_, err := tx.exec(ctx, "query item overwrite delete", q, queryString, threadID)
	return err
}

// QueryItemOverwrite reports whether threadID has a removal overwrite
// for queryString and whether it has been executed.
func (tx *Tx) QueryItemOverwrite(ctx context.Context, queryString, threadID string) (executed bool, ok bool, err error) {
	const q = `SELECT executed FROM query_item_overwrites WHERE query_string = $1 AND thread_id = $2`
	return tx.boolRow(ctx, "QueryItemOverwrite", q, queryString, threadID)
}

// RemovedThreadIDs returns the threads with a removal overwrite for
// queryString, executed or not.
func (tx *Tx) RemovedThreadIDs(ctx context.Context, queryString string) ([]string, error) {
	return tx.selectStrings(ctx, "RemovedThreadIDs",
		`SELECT thread_id FROM query_item_overwrites WHERE query_string = $1 ORDER BY thread_id`, queryString)
}

// DeleteExecutedQueryItemOverwrites drops the removal overwrites of
// queryString that the server has confirmed.
func (tx *Tx) DeleteExecutedQueryItemOverwrites(ctx context.Context, queryString string) error {
	const q = `DELETE FROM query_item_overwrites WHERE query_string = $1 AND executed = 1`
	_, err := tx.exec(ctx, "executed query item overwrite delete", q, queryString)
	return err
}

// RetireOverwrites drops the keyword and mailbox overwrites of a thread
// and marks its query removals executed.
func (tx *Tx) RetireOverwrites(ctx context.Context, threadID string) error {
	if _, err := tx.exec(ctx, "keyword overwrite retire",
		`DELETE FROM keyword_overwrites WHERE thread_id = $1`, threadID); err != nil {
		return err
	}
	if _, err := tx.exec(ctx, "mailbox overwrite retire",
		`DELETE FROM mailbox_overwrites WHERE thread_id = $1`, threadID); err != nil {
		return err
	}
	_, err := tx.exec(ctx, "query item overwrite retire",
		`UPDATE query_item_overwrites SET executed = 1 WHERE thread_id = $1 AND executed = 0`, threadID)
	return err
}

// DeleteOverwrites drops every overwrite of a thread.
func (tx *Tx) DeleteOverwrites(ctx context.Context, threadID string) error {
	for _, table := range []string{"keyword_overwrites", "mailbox_overwrites", "query_item_overwrites"} {
		if _, err := tx.exec(ctx, table+" delete",
			`DELETE FROM `+table+` WHERE thread_id = $1`, threadID); err != nil {
			return err
		}
	}
	return nil
}

// DeleteOrphanOverwrites drops every overwrite whose thread is not
// stored.
func (tx *Tx) DeleteOrphanOverwrites(ctx context.Context) error {
	for _, table := range []string{"keyword_overwrites", "mailbox_overwrites", "query_item_overwrites"} {
		if _, err := tx.exec(ctx, table+" orphan delete",
			`DELETE FROM `+table+` WHERE thread_id NOT IN (SELECT thread_id FROM threads)`); err != nil {
			return err
		}
	}
	return nil
}

// OverwriteCount returns the number of overwrite rows of every kind.
func (tx *Tx) OverwriteCount(ctx context.Context) (int, error) {
	const q = `
SELECT
 (SELECT COUNT(*) FROM keyword_overwrites) +
 (SELECT COUNT(*) FROM mailbox_overwrites) +
 (SELECT COUNT(*) FROM query_item_overwrites)`
	var n int
	if err := tx.tx.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "db query failed in OverwriteCount")
	}
	return n, nil
}

func (tx *Tx) boolRow(ctx context.Context, op, query string, args ...interface{}) (bool, bool, error) {
	var v int
	err := tx.tx.QueryRowContext(ctx, query, args...).Scan(&v)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, errors.Wrapf(err, "db query failed in %s", op)
	}
	return v != 0, true, nil
}

func (tx *Tx) boolMap(ctx context.Context, op, query string, args ...interface{}) (map[string]bool, error) {
	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "db query failed in %s", op)
	}
	defer rows.Close()

	m := make(map[string]bool)
	for rows.Next() {
		var k string
		var v int
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrapf(err, "db scan failed in %s", op)
		}
		m[k] = v != 0
	}
	return m, errors.Wrapf(rows.Err(), "db rows failed in %s", op)
}
