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

	"github.com/matta/mailcache/internal/explode"
	"github.com/matta/mailcache/internal/mail"

	"github.com/pkg/errors"
)

// InsertEmail writes an exploded email, replacing the email and all of
// its child rows if it is already stored.
func (tx *Tx) InsertEmail(ctx context.Context, rows *explode.EmailRows) error {
	id := rows.Email.EmailID
	if _, err := tx.exec(ctx, "email delete", `DELETE FROM emails WHERE email_id = $1`, id); err != nil {
		return err
	}

	e := rows.Email
	const insert = `
INSERT INTO emails
(email_id, blob_id, thread_id, size, received_at, sent_at, subject, preview, has_attachment)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.exec(ctx, "email insert", insert,
		e.EmailID, e.BlobID, e.ThreadID, e.Size, millis(e.ReceivedAt),
		millis(e.SentAt), e.Subject, e.Preview, boolInt(e.HasAttachment)); err != nil {
		return err
	}

	if err := tx.insertKeywords(ctx, rows.Keywords); err != nil {
		return err
	}
	if err := tx.insertMemberships(ctx, rows.Mailboxes); err != nil {
		return err
	}
	if err := tx.insertAddresses(ctx, "email_addresses", "email_id", rows.Addresses); err != nil {
		return err
	}
	if err := tx.insertHeaderIDs(ctx, "email_in_reply_to", rows.InReplyTo); err != nil {
		return err
	}
	if err := tx.insertHeaderIDs(ctx, "email_message_ids", rows.MessageIDs); err != nil {
		return err
	}

	parts, err := tx.tx.PrepareContext(ctx, `
INSERT INTO email_body_parts
(email_id, kind, position, part_id, blob_id, size, name, type, charset, disposition, cid)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`)
	if err != nil {
		return errors.Wrap(err, "db prepare statement failed for body parts")
	}
	defer parts.Close()
	for _, p := range rows.BodyParts {
		if _, err := parts.ExecContext(ctx, p.EmailID, p.Kind, p.Position, p.PartID,
			p.BlobID, p.Size, p.Name, p.Type, p.Charset, p.Disposition, p.Cid); err != nil {
			return errors.Wrap(err, "db body part insert failed")
		}
	}

	values, err := tx.tx.PrepareContext(ctx, `
INSERT INTO email_body_values (email_id, part_id, value, is_encoding_problem, is_truncated)
VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return errors.Wrap(err, "db prepare statement failed for body values")
	}
	defer values.Close()
	for _, v := range rows.BodyValues {
		if _, err := values.ExecContext(ctx, v.EmailID, v.PartID, v.Value,
			boolInt(v.IsEncodingProblem), boolInt(v.IsTruncated)); err != nil {
			return errors.Wrap(err, "db body value insert failed")
		}
	}
	return nil
}

// ReplaceKeywords replaces the keyword set of a stored email.
func (tx *Tx) ReplaceKeywords(ctx context.Context, emailID string, rows []explode.KeywordRow) error {
	if _, err := tx.exec(ctx, "keyword delete", `DELETE FROM email_keywords WHERE email_id = $1`, emailID); err != nil {
		return err
	}
	return tx.insertKeywords(ctx, rows)
}

// ReplaceMailboxes replaces the mailbox membership of a stored email.
func (tx *Tx) ReplaceMailboxes(ctx context.Context, emailID string, rows []explode.MembershipRow) error {
	if _, err := tx.exec(ctx, "membership delete", `DELETE FROM email_mailboxes WHERE email_id = $1`, emailID); err != nil {
		return err
	}
	return tx.insertMemberships(ctx, rows)
}

func (tx *Tx) insertKeywords(ctx context.Context, rows []explode.KeywordRow) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.tx.PrepareContext(ctx, `INSERT INTO email_keywords (email_id, keyword) VALUES ($1, $2)`)
	if err != nil {
		return errors.Wrap(err, "db prepare statement failed for keywords")
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.EmailID, r.Keyword); err != nil {
			return errors.Wrap(err, "db keyword insert failed")
		}
	}
	return nil
}

func (tx *Tx) insertMemberships(ctx context.Context, rows []explode.MembershipRow) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.tx.PrepareContext(ctx, `INSERT INTO email_mailboxes (email_id, mailbox_id) VALUES ($1, $2)`)
	if err != nil {
		return errors.Wrap(err, "db prepare statement failed for memberships")
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.EmailID, r.MailboxID); err != nil {
			return errors.Wrap(err, "db membership insert failed")
		}
	}
	return nil
}

// insertAddresses writes address rows into table, whose parent id
// column is parentColumn.  Both are compile time constants.
func (tx *Tx) insertAddresses(ctx context.Context, table, parentColumn string, rows []explode.AddressRow) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.tx.PrepareContext(ctx, `INSERT INTO `+table+`
(`+parentColumn+`, kind, position, name, address) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return errors.Wrapf(err, "db prepare statement failed for %s", table)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ParentID, r.Kind, r.Position, r.Name, r.Address); err != nil {
			return errors.Wrapf(err, "db %s insert failed", table)
		}
	}
	return nil
}

func (tx *Tx) insertHeaderIDs(ctx context.Context, table string, rows []explode.HeaderIDRow) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.tx.PrepareContext(ctx, `INSERT INTO `+table+`
(email_id, position, message_id) VALUES ($1, $2, $3)`)
	if err != nil {
		return errors.Wrapf(err, "db prepare statement failed for %s", table)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.EmailID, r.Position, r.MessageID); err != nil {
			return errors.Wrapf(err, "db %s insert failed", table)
		}
	}
	return nil
}

// DeleteEmail removes an email, its child rows, and its entries in any
// thread's item list.  It reports whether the email was stored.
func (tx *Tx) DeleteEmail(ctx context.Context, emailID string) (bool, error) {
	res, err := tx.exec(ctx, "email delete", `DELETE FROM emails WHERE email_id = $1`, emailID)
	if err != nil {
		return false, err
	}
	if _, err := tx.exec(ctx, "thread item delete", `DELETE FROM thread_items WHERE email_id = $1`, emailID); err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "db email delete failed")
	}
	return n > 0, nil
}

// DeleteAllEmails removes every email and its child rows.  Thread item
// lists are left alone; they belong to the threads.
func (tx *Tx) DeleteAllEmails(ctx context.Context) error {
	_, err := tx.exec(ctx, "email delete all", `DELETE FROM emails`)
	return err
}

func (tx *Tx) EmailExists(ctx context.Context, emailID string) (bool, error) {
	return tx.exists(ctx, "EmailExists", `SELECT 1 FROM emails WHERE email_id = $1`, emailID)
}

// EmailThreadID returns the thread of a stored email.
func (tx *Tx) EmailThreadID(ctx context.Context, emailID string) (string, bool, error) {
	var threadID string
	err := tx.tx.QueryRowContext(ctx, `SELECT thread_id FROM emails WHERE email_id = $1`, emailID).Scan(&threadID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "db query failed in EmailThreadID")
	}
	return threadID, true, nil
}

// LoadEmail reassembles a stored email from its rows.
func (tx *Tx) LoadEmail(ctx context.Context, emailID string) (*mail.Email, bool, error) {
	const q = `
SELECT blob_id, thread_id, size, received_at, sent_at, subject, preview, has_attachment
FROM emails WHERE email_id = $1`
	e := &mail.Email{ID: emailID}
	var received, sent sql.NullInt64
	var blobID, subject, preview sql.NullString
	var hasAttachment int
	err := tx.tx.QueryRowContext(ctx, q, emailID).Scan(&blobID, &e.ThreadID, &e.Size,
		&received, &sent, &subject, &preview, &hasAttachment)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "db query failed in LoadEmail")
	}
	e.BlobID = blobID.String
	e.Subject = subject.String
	e.Preview = preview.String
	e.ReceivedAt = fromMillis(received)
	e.SentAt = fromMillis(sent)
	e.HasAttachment = hasAttachment != 0

	keywords, err := tx.selectStrings(ctx, "LoadEmail keywords",
		`SELECT keyword FROM email_keywords WHERE email_id = $1 ORDER BY keyword`, emailID)
	if err != nil {
		return nil, false, err
	}
	e.Keywords = set(keywords)

	mailboxes, err := tx.selectStrings(ctx, "LoadEmail mailboxes",
		`SELECT mailbox_id FROM email_mailboxes WHERE email_id = $1 ORDER BY mailbox_id`, emailID)
	if err != nil {
		return nil, false, err
	}
	e.MailboxIDs = set(mailboxes)

	if e.InReplyTo, err = tx.selectStrings(ctx, "LoadEmail in-reply-to",
		`SELECT message_id FROM email_in_reply_to WHERE email_id = $1 ORDER BY position`, emailID); err != nil {
		return nil, false, err
	}
	if e.MessageID, err = tx.selectStrings(ctx, "LoadEmail message ids",
		`SELECT message_id FROM email_message_ids WHERE email_id = $1 ORDER BY position`, emailID); err != nil {
		return nil, false, err
	}

	addrs, err := tx.loadAddresses(ctx, "email_addresses", "email_id", emailID)
	if err != nil {
		return nil, false, err
	}
	e.Sender = addrs[explode.AddressSender]
	e.From = addrs[explode.AddressFrom]
	e.To = addrs[explode.AddressTo]
	e.Cc = addrs[explode.AddressCc]
	e.Bcc = addrs[explode.AddressBcc]
	e.ReplyTo = addrs[explode.AddressReplyTo]

	if err := tx.loadBodyParts(ctx, e); err != nil {
		return nil, false, err
	}
	if err := tx.loadBodyValues(ctx, e); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

func (tx *Tx) loadAddresses(ctx context.Context, table, parentColumn, parentID string) (map[string][]mail.EmailAddress, error) {
	rows, err := tx.tx.QueryContext(ctx, `SELECT kind, name, address FROM `+table+`
WHERE `+parentColumn+` = $1 ORDER BY kind, position`, parentID)
	if err != nil {
		return nil, errors.Wrapf(err, "db query failed for %s", table)
	}
	defer rows.Close()

	out := make(map[string][]mail.EmailAddress)
	for rows.Next() {
		var kind, address string
		var name sql.NullString
		if err := rows.Scan(&kind, &name, &address); err != nil {
			return nil, errors.Wrapf(err, "db scan failed for %s", table)
		}
		out[kind] = append(out[kind], mail.EmailAddress{Name: name.String, Email: address})
	}
	return out, errors.Wrapf(rows.Err(), "db rows failed for %s", table)
}

func (tx *Tx) loadBodyParts(ctx context.Context, e *mail.Email) error {
	const q = `
SELECT kind, part_id, blob_id, size, name, type, charset, disposition, cid
FROM email_body_parts WHERE email_id = $1 ORDER BY kind, position`
	rows, err := tx.tx.QueryContext(ctx, q, e.ID)
	if err != nil {
		return errors.Wrap(err, "db query failed for body parts")
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var partID, blobID, name, typ, charset, disposition, cid sql.NullString
		var p mail.BodyPart
		if err := rows.Scan(&kind, &partID, &blobID, &p.Size, &name, &typ,
			&charset, &disposition, &cid); err != nil {
			return errors.Wrap(err, "db scan failed for body parts")
		}
		p.PartID = partID.String
		p.BlobID = blobID.String
		p.Name = name.String
		p.Type = typ.String
		p.Charset = charset.String
		p.Disposition = disposition.String
		p.Cid = cid.String
		switch kind {
		case explode.PartText:
			e.TextBody = append(e.TextBody, p)
		case explode.PartHTML:
			e.HTMLBody = append(e.HTMLBody, p)
		case explode.PartAttachment:
			e.Attachments = append(e.Attachments, p)
		}
	}
	return errors.Wrap(rows.Err(), "db rows failed for body parts")
}

func (tx *Tx) loadBodyValues(ctx context.Context, e *mail.Email) error {
	const q = `
SELECT part_id, value, is_encoding_problem, is_truncated
FROM email_body_values WHERE email_id = $1`
	rows, err := tx.tx.QueryContext(ctx, q, e.ID)
	if err != nil {
		return errors.Wrap(err, "db query failed for body values")
	}
	defer rows.Close()

	for rows.Next() {
		var partID string
		var v mail.BodyValue
		var encodingProblem, truncated int
		if err := rows.Scan(&partID, &v.Value, &encodingProblem, &truncated); err != nil {
			return errors.Wrap(err, "db scan failed for body values")
		}
		v.IsEncodingProblem = encodingProblem != 0
		v.IsTruncated = truncated != 0
		if e.BodyValues == nil {
			e.BodyValues = make(map[string]mail.BodyValue)
		}
		e.BodyValues[partID] = v
	}
	return errors.Wrap(rows.Err(), "db rows failed for body values")
}

// ChildRowCount returns the number of rows in every email child table
// that belong to emailID.
func (tx *Tx) ChildRowCount(ctx context.Context, emailID string) (int, error) {
	const q = `
SELECT
 (SELECT COUNT(*) FROM email_keywords WHERE email_id = $1) +
 (SELECT COUNT(*) FROM email_mailboxes WHERE email_id = $1) +
 (SELECT COUNT(*) FROM email_addresses WHERE email_id = $1) +
 (SELECT COUNT(*) FROM email_in_reply_to WHERE email_id = $1) +
 (SELECT COUNT(*) FROM email_message_ids WHERE email_id = $1) +
 (SELECT COUNT(*) FROM email_body_parts WHERE email_id = $1) +
 (SELECT COUNT(*) FROM email_body_values WHERE email_id = $1)`
	var n int
	if err := tx.tx.QueryRowContext(ctx, q, emailID).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "db query failed in ChildRowCount")
	}
	return n, nil
}

func set(keys []string) map[string]bool {
	if len(keys) == 0 {
		return nil
	}
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = true
	}
	return m
}
