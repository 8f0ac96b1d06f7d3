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
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultBusyTimeout is used by Open when no timeout is given.
const DefaultBusyTimeout = 5 * time.Minute

var (
	createTableSql = []string{
		// The entity_state table holds the state token of the
		// last delta applied for each object type.
		//
		// Field: type
		//
		//   One of "Email", "Thread", "Mailbox", "Identity".
		//
		// Field: state
		//
		//   Opaque token issued by the server.  Only compared for
		//   equality.  A missing row means the type has never
		//   been synchronized.
		`
CREATE TABLE IF NOT EXISTS entity_state (
type TEXT NOT NULL PRIMARY KEY,
state TEXT NOT NULL
);`,
		// The emails table holds the canonical row of each email.
		// Every other email_* table is a child of this one and is
		// removed with it.
		//
		// Field: received_at, sent_at
		//
		//   Milliseconds since the Unix epoch, UTC.  NULL when the
		//   server did not supply the value.
		`
CREATE TABLE IF NOT EXISTS emails (
email_id TEXT NOT NULL PRIMARY KEY,
blob_id TEXT,
thread_id TEXT NOT NULL,
size INTEGER NOT NULL DEFAULT 0,
received_at INTEGER,
sent_at INTEGER,
subject TEXT,
preview TEXT,
has_attachment INTEGER NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS emails_thread_id ON emails (thread_id);`,
		`
CREATE TABLE IF NOT EXISTS email_keywords (
email_id TEXT NOT NULL,
keyword TEXT NOT NULL,
PRIMARY KEY (email_id, keyword),
FOREIGN KEY (email_id) REFERENCES emails (email_id) ON DELETE CASCADE
);`,
		`
CREATE TABLE IF NOT EXISTS email_mailboxes (
email_id TEXT NOT NULL,
mailbox_id TEXT NOT NULL,
PRIMARY KEY (email_id, mailbox_id),
FOREIGN KEY (email_id) REFERENCES emails (email_id) ON DELETE CASCADE
);`,
		// The email_addresses table holds the address list headers.
		//
		// Field: kind
		//
		//   One of "sender", "from", "to", "cc", "bcc", "replyTo".
		//
		// Field: position
		//
		//   Index within the header's list, starting at 0.
		`
CREATE TABLE IF NOT EXISTS email_addresses (
email_id TEXT NOT NULL,
kind TEXT NOT NULL,
position INTEGER NOT NULL,
name TEXT,
address TEXT NOT NULL,
PRIMARY KEY (email_id, kind, position),
FOREIGN KEY (email_id) REFERENCES emails (email_id) ON DELETE CASCADE
);`,
		`
CREATE TABLE IF NOT EXISTS email_in_reply_to (
email_id TEXT NOT NULL,
position INTEGER NOT NULL,
message_id TEXT NOT NULL,
PRIMARY KEY (email_id, position),
FOREIGN KEY (email_id) REFERENCES emails (email_id) ON DELETE CASCADE
);`,
		`
CREATE TABLE IF NOT EXISTS email_message_ids (
email_id TEXT NOT NULL,
position INTEGER NOT NULL,
message_id TEXT NOT NULL,
PRIMARY KEY (email_id, position),
FOREIGN KEY (email_id) REFERENCES emails (email_id) ON DELETE CASCADE
);`,
		// The email_body_parts table describes the parts exposed as
		// text body, html body or attachment.
		//
		// Field: kind
		//
		//   One of "text", "html", "attachment".
		`
CREATE TABLE IF NOT EXISTS email_body_parts (
email_id TEXT NOT NULL,
kind TEXT NOT NULL,
position INTEGER NOT NULL,
part_id TEXT,
blob_id TEXT,
size INTEGER NOT NULL DEFAULT 0,
name TEXT,
type TEXT,
charset TEXT,
disposition TEXT,
cid TEXT,
PRIMARY KEY (email_id, kind, position),
FOREIGN KEY (email_id) REFERENCES emails (email_id) ON DELETE CASCADE
);`,
		`
CREATE TABLE IF NOT EXISTS email_body_values (
email_id TEXT NOT NULL,
part_id TEXT NOT NULL,
value TEXT NOT NULL,
is_encoding_problem INTEGER NOT NULL DEFAULT 0,
is_truncated INTEGER NOT NULL DEFAULT 0,
PRIMARY KEY (email_id, part_id),
FOREIGN KEY (email_id) REFERENCES emails (email_id) ON DELETE CASCADE
);`,
		// The threads and thread_items tables hold the ordered email
		// ids of each thread.
		//
		// Field: email_id
		//
		//   Not a foreign key: a thread may name emails that have
		//   not been fetched yet.  Rows are removed explicitly when
		//   the email is destroyed.
		`
CREATE TABLE IF NOT EXISTS threads (
thread_id TEXT NOT NULL PRIMARY KEY
);`,
		`
CREATE TABLE IF NOT EXISTS thread_items (
thread_id TEXT NOT NULL,
position INTEGER NOT NULL,
email_id TEXT NOT NULL,
PRIMARY KEY (thread_id, position),
FOREIGN KEY (thread_id) REFERENCES threads (thread_id) ON DELETE CASCADE
);`,
		`CREATE INDEX IF NOT EXISTS thread_items_email_id ON thread_items (email_id);`,
		`
CREATE TABLE IF NOT EXISTS mailboxes (
mailbox_id TEXT NOT NULL PRIMARY KEY,
name TEXT NOT NULL,
parent_id TEXT,
role TEXT,
sort_order INTEGER NOT NULL DEFAULT 0,
total_emails INTEGER NOT NULL DEFAULT 0,
unread_emails INTEGER NOT NULL DEFAULT 0,
total_threads INTEGER NOT NULL DEFAULT 0,
unread_threads INTEGER NOT NULL DEFAULT 0,
is_subscribed INTEGER NOT NULL DEFAULT 0
);`,
		`
CREATE TABLE IF NOT EXISTS identities (
identity_id TEXT NOT NULL PRIMARY KEY,
name TEXT,
address TEXT NOT NULL,
text_signature TEXT,
html_signature TEXT,
may_delete INTEGER NOT NULL DEFAULT 0
);`,
		`
CREATE TABLE IF NOT EXISTS identity_addresses (
identity_id TEXT NOT NULL,
kind TEXT NOT NULL,
position INTEGER NOT NULL,
name TEXT,
address TEXT NOT NULL,
PRIMARY KEY (identity_id, kind, position),
FOREIGN KEY (identity_id) REFERENCES identities (identity_id) ON DELETE CASCADE
);`,
		// The queries table holds one row per saved query.
		//
		// Field: query_string
		//
		//   Canonical serialization of the query's filter and sort
		//   parameters.  Opaque to the cache.
		//
		// Field: state
		//
		//   The server's query state token for the materialized
		//   window.
		//
		// Field: valid
		//
		//   Cleared when the window may no longer reflect the
		//   server, e.g. after an Email or Thread reset.
		`
CREATE TABLE IF NOT EXISTS queries (
query_string TEXT NOT NULL PRIMARY KEY,
state TEXT NOT NULL,
can_calculate_changes INTEGER NOT NULL DEFAULT 0,
valid INTEGER NOT NULL DEFAULT 1
);`,
		// The query_items table holds each query's window.
		//
		// Field: position
		//
		//   Dense and 0-based within a query.
		`
CREATE TABLE IF NOT EXISTS query_items (
query_string TEXT NOT NULL,
position INTEGER NOT NULL,
thread_id TEXT NOT NULL,
PRIMARY KEY (query_string, position),
FOREIGN KEY (query_string) REFERENCES queries (query_string) ON DELETE CASCADE
);`,
		// The *_overwrites tables hold local changes the server has
		// not confirmed yet.  Readers prefer them over canonical
		// state.
		`
CREATE TABLE IF NOT EXISTS keyword_overwrites (
thread_id TEXT NOT NULL,
keyword TEXT NOT NULL,
value INTEGER NOT NULL,
PRIMARY KEY (thread_id, keyword)
);`,
		`
CREATE TABLE IF NOT EXISTS mailbox_overwrites (
thread_id TEXT NOT NULL,
mailbox_id TEXT NOT NULL,
value INTEGER NOT NULL,
PRIMARY KEY (thread_id, mailbox_id)
);`,
		// Field: executed
		//
		//   Set once a delta touching the thread has been merged.
		//   The row is dropped on the next window refresh for the
		//   query.
		`
CREATE TABLE IF NOT EXISTS query_item_overwrites (
query_string TEXT NOT NULL,
thread_id TEXT NOT NULL,
executed INTEGER NOT NULL DEFAULT 0,
PRIMARY KEY (query_string, thread_id)
);`,
	}
)

type DB struct {
	db *sql.DB
}

type Tx struct {
	tx *sql.Tx
}

func dsnFromPath(path string, addValues url.Values) (string, error) {
	var u *url.URL
	if !strings.HasPrefix(path, "file:") {
		u = &url.URL{Scheme: "file", Opaque: path}
	} else {
		var err error
		u, err = url.Parse(path)
		if err != nil {
			return "", err
		}
	}
	values := u.Query()
	for k, v := range addValues {
		for _, item := range v {
			values.Add(k, item)
		}
	}
	u.RawQuery = values.Encode()
	return u.String(), nil
}

// Open opens (creating if needed) the cache database at path.  A zero
// busyTimeout selects DefaultBusyTimeout.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*DB, error) {
	// The _busy_timeout is a SQLite extension that controls how
	// long SQLite will poll before giving up.  The default of 5
	// seconds is too short in practice when several merges queue
	// up behind one another.
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	// Transactions take the write lock up front so that a merge
	// never has to upgrade a read lock, which SQLite can only
	// refuse.
	dsn, err := dsnFromPath(path, url.Values{
		"_busy_timeout": {fmt.Sprintf("%d", busyTimeout.Milliseconds())},
		"_foreign_keys": {"on"},
		"_txlock":       {"immediate"},
	})
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not form a DB DSN from "+
				"the given path",
			path)
	}
	log.Printf("opening database at %q\n", dsn)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not open database at %q",
			path, dsn)
	}

	if err = initSchema(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrapf(err,
			"Open(%q) failed: could not initialize the "+
				"database schema", path)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction failed")
	}
	return &Tx{tx}, nil
}

// Update runs fn in a transaction, committing if it returns nil.
func (db *DB) Update(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// View runs fn in a transaction that is always rolled back.  All reads
// made by fn observe one snapshot.
func (db *DB) View(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(tx)
}

func (tx *Tx) Commit() error {
	return errors.Wrap(tx.tx.Commit(), "commit failed")
}

func (tx *Tx) Rollback() error {
	return tx.tx.Rollback()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	for _, sql := range createTableSql {
		if _, err := db.ExecContext(ctx, sql); err != nil {
			return errors.Wrapf(err, "while executing %q", sql)
		}
	}
	log.Printf("schema ready: %d statements", len(createTableSql))
	return nil
}

// exec runs a single statement, naming op in any error.
func (tx *Tx) exec(ctx context.Context, op string, query string, args ...interface{}) (sql.Result, error) {
	res, err := tx.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "db %s failed", op)
	}
	return res, nil
}

// selectStrings runs a query selecting a single TEXT column.
func (tx *Tx) selectStrings(ctx context.Context, op string, query string, args ...interface{}) ([]string, error) {
	rows, err := tx.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "db query failed in %s", op)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrapf(err, "db scan failed in %s", op)
		}
		out = append(out, s)
	}
	return out, errors.Wrapf(rows.Err(), "db rows failed in %s", op)
}

// exists reports whether query returns a row.
func (tx *Tx) exists(ctx context.Context, op string, query string, args ...interface{}) (bool, error) {
	var one int
	err := tx.tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "db query failed in %s", op)
	}
	return true, nil
}

func millis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.UnixMilli(n.Int64).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
