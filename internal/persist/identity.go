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

// InsertIdentity writes an exploded identity, replacing it and its
// address lists if already stored.
func (tx *Tx) InsertIdentity(ctx context.Context, rows *explode.IdentityRows) error {
	id := rows.Identity
	if _, err := tx.exec(ctx, "identity delete", `DELETE FROM identities WHERE identity_id = $1`, id.ID); err != nil {
		return err
	}
	const q = `
INSERT INTO identities
(identity_id, name, address, text_signature, html_signature, may_delete)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := tx.exec(ctx, "identity insert", q, id.ID, id.Name, id.Email,
		id.TextSignature, id.HTMLSignature, boolInt(id.MayDelete)); err != nil {
		return err
	}
	return tx.insertAddresses(ctx, "identity_addresses", "identity_id", rows.Addresses)
}

func (tx *Tx) DeleteIdentity(ctx context.Context, identityID string) (bool, error) {
	res, err := tx.exec(ctx, "identity delete", `DELETE FROM identities WHERE identity_id = $1`, identityID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "db identity delete failed")
	}
	return n > 0, nil
}

func (tx *Tx) DeleteAllIdentities(ctx context.Context) error {
	_, err := tx.exec(ctx, "identity delete all", `DELETE FROM identities`)
	return err
}

func (tx *Tx) IdentityExists(ctx context.Context, identityID string) (bool, error) {
	return tx.exists(ctx, "IdentityExists", `SELECT 1 FROM identities WHERE identity_id = $1`, identityID)
}

// LoadIdentity reassembles a stored identity from its rows.
func (tx *Tx) LoadIdentity(ctx context.Context, identityID string) (*mail.Identity, bool, error) {
	const q = `
SELECT name, address, text_signature, html_signature, may_delete
FROM identities WHERE identity_id = $1`
	id := &mail.Identity{ID: identityID}
	var name, text, html sql.NullString
	var mayDelete int
	err := tx.tx.QueryRowContext(ctx, q, identityID).Scan(&name, &id.Email, &text, &html, &mayDelete)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "db query failed in LoadIdentity")
	}
	id.Name = name.String
	id.TextSignature = text.String
	id.HTMLSignature = html.String
	id.MayDelete = mayDelete != 0

	addrs, err := tx.loadAddresses(ctx, "identity_addresses", "identity_id", identityID)
	if err != nil {
		return nil, false, err
	}
	id.ReplyTo = addrs[explode.AddressReplyTo]
	id.Bcc = addrs[explode.AddressBcc]
	return id, true, nil
}
