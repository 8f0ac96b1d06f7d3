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

package sync

// This file replays a journal of recorded cache operations, one JSON
// object per line.  It is used to reproduce merge problems offline.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"

	"github.com/matta/mailcache/internal/cache"
	"github.com/matta/mailcache/internal/mail"

	"github.com/pkg/errors"
)

const maxRecordSize = 64 << 20

type record struct {
	Kind string `json:"kind"`

	// Object records.
	Type             mail.ObjectType `json:"type"`
	State            string          `json:"state"`
	List             json.RawMessage `json:"list"`
	Changes          json.RawMessage `json:"changes"`
	RejectOnConflict bool            `json:"rejectOnConflict"`

	// Query records.
	Query               string              `json:"query"`
	After               string              `json:"after"`
	ThreadIDs           []string            `json:"threadIds"`
	CanCalculateChanges bool                `json:"canCalculateChanges"`
	QueryChanges        *cache.QueryChanges `json:"queryChanges"`

	// Overwrite records.
	Thread string `json:"thread"`
	Field  string `json:"field"`
	Value  bool   `json:"value"`
}

// ReplayStats counts the records of a replay.
type ReplayStats struct {
	// Records is the number of records processed, including the
	// ones that conflicted.  Blank lines are not records.
	Records int

	// Conflicts is the number of records that failed with a
	// conflict and were merged or discarded as the record asked.
	Conflicts int
}

// Replay applies every record read from r to c in order.  Conflicts
// are logged and counted; any other failure stops the replay.
func Replay(ctx context.Context, r io.Reader, c *cache.Cache) (*ReplayStats, error) {
	stats := &ReplayStats{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxRecordSize)
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		if err := validate(recordValidator, data); err != nil {
			return stats, errors.Wrapf(err, "journal line %d", line)
		}
		rec := &record{}
		if err := json.Unmarshal(data, rec); err != nil {
			return stats, errors.Wrapf(err, "journal line %d", line)
		}

		err := rec.apply(ctx, c)
		if cache.IsConflict(err) {
			log.Printf("journal line %d: %v", line, err)
			stats.Conflicts++
			err = nil
		}
		if err != nil {
			return stats, errors.Wrapf(err, "journal line %d", line)
		}
		stats.Records++
	}
	if err := scanner.Err(); err != nil {
		return stats, errors.Wrap(err, "unable to read journal")
	}
	return stats, nil
}

func (r *record) apply(ctx context.Context, c *cache.Cache) error {
	switch r.Kind {
	case "window":
		return c.ReplaceWindow(ctx, r.Query, r.ThreadIDs, r.State, r.CanCalculateChanges)
	case "page":
		return c.AppendPage(ctx, r.Query, r.State, r.After, r.ThreadIDs)
	case "queryChanges":
		return c.ApplyQueryChanges(ctx, r.Query, *r.QueryChanges)
	case "overwrite":
		field, err := cache.ParseField(r.Field)
		if err != nil {
			return err
		}
		return c.SetOverwrite(ctx, r.Thread, field, r.Value)
	}

	switch r.Type {
	case mail.TypeEmail:
		return applyObjects(ctx, c.Emails, r)
	case mail.TypeThread:
		return applyObjects(ctx, c.Threads, r)
	case mail.TypeMailbox:
		return applyObjects(ctx, c.Mailboxes, r)
	case mail.TypeIdentity:
		return applyObjects(ctx, c.Identities, r)
	}
	return errors.Errorf("unknown object type %q", r.Type)
}

func applyObjects[T any](ctx context.Context, m *cache.Merger[T], r *record) error {
	switch r.Kind {
	case "reset", "append":
		var list []T
		if len(r.List) > 0 {
			if err := json.Unmarshal(r.List, &list); err != nil {
				return errors.Wrapf(err, "unable to decode %s list", r.Type)
			}
		}
		if r.Kind == "reset" {
			return m.Reset(ctx, list, r.State)
		}
		return m.Append(ctx, r.State, list)
	case "changes":
		var changes Changes[T]
		if err := json.Unmarshal(r.Changes, &changes); err != nil {
			return errors.Wrapf(err, "unable to decode %s changes", r.Type)
		}
		d := changes.Delta()
		d.RejectOnConflict = r.RejectOnConflict
		return m.ApplyDelta(ctx, d)
	}
	return errors.Errorf("unknown record kind %q", r.Kind)
}
