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

// Query is a row of the queries table.
type Query struct {
	QueryString         string
	State               string
	CanCalculateChanges bool
	Valid               bool
}

// QueryItem is a row of the query_items table.
type QueryItem struct {
	Position int
	ThreadID string
}

// Query reads the row for queryString.
func (tx *Tx) Query(ctx context.Context, queryString string) (*Query, bool, error) {
	const q = `SELECT state, can_calculate_changes, valid FROM queries WHERE query_string = $1`
	row := &Query{QueryString: queryString}
	var canCalculate, valid int
	err := tx.tx.QueryRowContext(ctx, q, queryString).Scan(&row.State, &canCalculate, &valid)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "db query failed in Query")
	}
	row.CanCalculateChanges = canCalculate != 0
	row.Valid = valid != 0
	return row, true, nil
}

// QueryStrings returns every stored query string.
func (tx *Tx) QueryStrings(ctx context.Context) ([]string, error) {
	return tx.selectStrings(ctx, "QueryStrings", `SELECT query_string FROM queries ORDER BY query_string`)
}

// UpsertQuery writes row without touching the query's items.
func (tx *Tx) UpsertQuery(ctx context.Context, row *Query) error {
	const q = `
INSERT INTO queries (query_string, state, can_calculate_changes, valid)
VALUES ($1, $2, $3, $4)
ON CONFLICT (query_string)
DO UPDATE SET (state, can_calculate_changes, valid) = ($2, $3, $4)`
	_, err := tx.exec(ctx, "query upsert", q, row.QueryString, row.State,
		boolInt(row.CanCalculateChanges), boolInt(row.Valid))
	return err
}

// InvalidateQuery clears the valid flag of one query.
func (tx *Tx) InvalidateQuery(ctx context.Context, queryString string) error {
	_, err := tx.exec(ctx, "query invalidate", `UPDATE queries SET valid = 0 WHERE query_string = $1`, queryString)
	return err
}

// InvalidateAllQueries clears the valid flag of every query.
func (tx *Tx) InvalidateAllQueries(ctx context.Context) error {
	_, err := tx.exec(ctx, "query invalidate all", `UPDATE queries SET valid = 0`)
	return err
}

// QueryItems returns the window of queryString in position order.
func (tx *Tx) QueryItems(ctx context.Context, queryString string) ([]QueryItem, error) {
	const q = `SELECT position, thread_id FROM query_items WHERE query_string = $1 ORDER BY position`
	rows, err := tx.tx.QueryContext(ctx, q, queryString)
	if err != nil {
		return nil, errors.Wrap(err, "db query failed in QueryItems")
	}
	defer rows.Close()

	var items []QueryItem
	for rows.Next() {
		var item QueryItem
		if err := rows.Scan(&item.Position, &item.ThreadID); err != nil {
			return nil, errors.Wrap(err, "db scan failed in QueryItems")
		}
		items = append(items, item)
	}
	return items, errors.Wrap(rows.Err(), "db rows failed in QueryItems")
}

// LastQueryItem returns the item with the highest position.
func (tx *Tx) LastQueryItem(ctx context.Context, queryString string) (*QueryItem, bool, error) {
	const q = `
SELECT position, thread_id FROM query_items WHERE query_string = $1
ORDER BY position DESC LIMIT 1`
	var item QueryItem
	err := tx.tx.QueryRowContext(ctx, q, queryString).Scan(&item.Position, &item.ThreadID)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "db query failed in LastQueryItem")
	}
	return &item, true, nil
}

// DeleteQueryItems removes the whole window of queryString.
func (tx *Tx) DeleteQueryItems(ctx context.Context, queryString string) error {
	_, err := tx.exec(ctx, "query item delete", `DELETE FROM query_items WHERE query_string = $1`, queryString)
	return err
}

// InsertQueryItems writes threadIDs at consecutive positions starting
// at first.
func (tx *Tx) InsertQueryItems(ctx context.Context, queryString string, first int, threadIDs []string) error {
	if len(threadIDs) == 0 {
		return nil
	}
	stmt, err := tx.tx.PrepareContext(ctx, `INSERT INTO query_items (query_string, position, thread_id) VALUES ($1, $2, $3)`)
	if err != nil {
		return errors.Wrap(err, "db prepare statement failed for query items")
	}
	defer stmt.Close()
	for i, id := range threadIDs {
		if _, err := stmt.ExecContext(ctx, queryString, first+i, id); err != nil {
			return errors.Wrap(err, "db query item insert failed")
		}
	}
	return nil
}

// MissingThreadIDs returns, in position order, the thread ids in the
// window of queryString that have no row in the threads table.
func (tx *Tx) MissingThreadIDs(ctx context.Context, queryString string) ([]string, error) {
	return tx.selectStrings(ctx, "MissingThreadIDs", `
SELECT qi.thread_id
FROM query_items qi LEFT JOIN threads t ON t.thread_id = qi.thread_id
WHERE qi.query_string = $1 AND t.thread_id IS NULL
ORDER BY qi.position`, queryString)
}
