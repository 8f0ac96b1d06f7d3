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

// State returns the stored state token for typ, or "" if the type has
// never been synchronized.
func (tx *Tx) State(ctx context.Context, typ mail.ObjectType) (string, error) {
	const q = `SELECT state FROM entity_state WHERE type = $1`
	var state string
	err := tx.tx.QueryRowContext(ctx, q, string(typ)).Scan(&state)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "db read of %s state failed", typ)
	}
	return state, nil
}

// States returns every stored state token.
func (tx *Tx) States(ctx context.Context) (map[mail.ObjectType]string, error) {
	const q = `SELECT type, state FROM entity_state`
	rows, err := tx.tx.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "db query failed in States")
	}
	defer rows.Close()

	states := make(map[mail.ObjectType]string)
	for rows.Next() {
		var typ, state string
		if err := rows.Scan(&typ, &state); err != nil {
			return nil, errors.Wrap(err, "db scan failed in States")
		}
		states[mail.ObjectType(typ)] = state
	}
	return states, errors.Wrap(rows.Err(), "db rows failed in States")
}

// SetState records state as the token for typ, replacing any prior
// value.
func (tx *Tx) SetState(ctx context.Context, typ mail.ObjectType, state string) error {
	const q = `INSERT INTO entity_state (type, state) VALUES ($1, $2)
		ON CONFLICT (type) DO UPDATE SET state = $2`
	_, err := tx.exec(ctx, "state upsert", q, string(typ), state)
	return err
}
