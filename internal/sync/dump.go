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

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/matta/mailcache/internal/cache"
	"github.com/matta/mailcache/internal/mail"

	"github.com/pkg/errors"
)

// Dump is a MailStorage read from a JSON file holding a recorded
// server: the objects of every type at one state, the changes leading
// to that state, and the result of saved queries.
type Dump struct {
	EmailObjects    objectDump[mail.Email]    `json:"emails"`
	ThreadObjects   objectDump[mail.Thread]   `json:"threads"`
	MailboxObjects  objectDump[mail.Mailbox]  `json:"mailboxes"`
	IdentityObjects objectDump[mail.Identity] `json:"identities"`
	QueryResults    map[string]*queryDump     `json:"queries"`
}

type objectDump[T any] struct {
	State   string        `json:"state"`
	List    []T           `json:"list"`
	History []*Changes[T] `json:"changes"`

	id func(T) string
}

type queryDump struct {
	State               string                `json:"state"`
	CanCalculateChanges bool                  `json:"canCalculateChanges"`
	ThreadIDs           []string              `json:"threadIds"`
	History             []*cache.QueryChanges `json:"changes"`
}

// LoadDump reads and validates a dump.
func LoadDump(r io.Reader) (*Dump, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read dump")
	}
	if err := validate(dumpValidator, data); err != nil {
		return nil, errors.Wrap(err, "invalid dump")
	}
	d := &Dump{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, errors.Wrap(err, "unable to decode dump")
	}
	d.EmailObjects.id = func(e mail.Email) string { return e.ID }
	d.ThreadObjects.id = func(t mail.Thread) string { return t.ID }
	d.MailboxObjects.id = func(m mail.Mailbox) string { return m.ID }
	d.IdentityObjects.id = func(i mail.Identity) string { return i.ID }
	return d, nil
}

// LoadDumpFile is LoadDump on the file at path.
func LoadDumpFile(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open dump")
	}
	defer f.Close()
	return LoadDump(f)
}

func (d *Dump) Emails() ObjectSource[mail.Email]        { return &d.EmailObjects }
func (d *Dump) Threads() ObjectSource[mail.Thread]      { return &d.ThreadObjects }
func (d *Dump) Mailboxes() ObjectSource[mail.Mailbox]   { return &d.MailboxObjects }
func (d *Dump) Identities() ObjectSource[mail.Identity] { return &d.IdentityObjects }

func (o *objectDump[T]) Get(ctx context.Context) ([]T, string, error) {
	return o.List, o.State, nil
}

func (o *objectDump[T]) Changes(ctx context.Context, sinceState string) (*Changes[T], error) {
	if sinceState == o.State {
		return &Changes[T]{OldState: sinceState, NewState: sinceState}, nil
	}
	for _, c := range o.History {
		if c.OldState == sinceState {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrCannotCalculateChanges, "no changes recorded since %q", sinceState)
}

func (o *objectDump[T]) GetByID(ctx context.Context, ids []string) ([]T, string, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var found []T
	for _, v := range o.List {
		if want[o.id(v)] {
			found = append(found, v)
		}
	}
	return found, o.State, nil
}

func (d *Dump) query(queryString string) (*queryDump, error) {
	q, ok := d.QueryResults[queryString]
	if !ok {
		return nil, errors.Errorf("query %q is not in the dump", queryString)
	}
	return q, nil
}

func (d *Dump) Query(ctx context.Context, queryString, afterThreadID string, limit int) (*QueryResult, error) {
	q, err := d.query(queryString)
	if err != nil {
		return nil, err
	}
	ids := q.ThreadIDs
	if afterThreadID != "" {
		ids = nil
		for i, id := range q.ThreadIDs {
			if id == afterThreadID {
				ids = q.ThreadIDs[i+1:]
				break
			}
		}
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return &QueryResult{
		QueryState:          q.State,
		CanCalculateChanges: q.CanCalculateChanges,
		ThreadIDs:           append([]string(nil), ids...),
	}, nil
}

func (d *Dump) QueryChanges(ctx context.Context, queryString, sinceState string) (*cache.QueryChanges, error) {
	q, err := d.query(queryString)
	if err != nil {
		return nil, err
	}
	if !q.CanCalculateChanges {
		return nil, errors.Wrapf(ErrCannotCalculateChanges, "query %q", queryString)
	}
	if sinceState == q.State {
		return &cache.QueryChanges{OldState: sinceState, NewState: sinceState}, nil
	}
	for _, c := range q.History {
		if c.OldState == sinceState {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrCannotCalculateChanges, "no changes to query %q recorded since %q", queryString, sinceState)
}
