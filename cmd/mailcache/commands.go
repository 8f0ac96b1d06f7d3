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

package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/matta/mailcache/internal/cache"
	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/sync"
	"github.com/pkg/errors"
)

var out io.Writer = os.Stdout

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

type queryArg struct {
	Query string `positional-arg-name:"QUERY"`
}

type statusCommand struct{}

func (*statusCommand) Execute([]string) error {
	return withSession(func(s *session) error {
		states, err := s.cache.States(ctx)
		if err != nil {
			return err
		}
		w := newTable()
		for _, typ := range mail.ObjectTypes {
			fmt.Fprintf(w, "%s\t%s\n", typ, orNone(states[typ]))
		}
		queries, err := s.cache.Queries(ctx)
		if err != nil {
			return err
		}
		for _, q := range queries {
			qs, err := s.cache.QueryState(ctx, q)
			if err != nil {
				return err
			}
			items, err := s.cache.QueryItems(ctx, q)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "query %q\t%s\tvalid=%t\tchanges=%t\t%d threads\n",
				q, orNone(qs.State), qs.Valid, qs.CanCalculateChanges, len(items))
		}
		return w.Flush()
	})
}

type missingCommand struct {
	Args queryArg `positional-args:"yes" required:"yes"`
}

func (c *missingCommand) Execute([]string) error {
	return withSession(func(s *session) error {
		m, err := s.cache.Missing(ctx, c.Args.Query)
		if err != nil {
			return err
		}
		for _, id := range m.ThreadIDs {
			fmt.Fprintln(out, id)
		}
		return nil
	})
}

type invalidateCommand struct {
	Args queryArg `positional-args:"yes"`
}

func (c *invalidateCommand) Execute([]string) error {
	return withSession(func(s *session) error {
		if c.Args.Query == "" {
			return s.cache.InvalidateAll(ctx)
		}
		return s.cache.Invalidate(ctx, c.Args.Query)
	})
}

type threadsCommand struct {
	Args queryArg `positional-args:"yes" required:"yes"`
}

func (c *threadsCommand) Execute([]string) error {
	return withSession(func(s *session) error {
		overviews, err := s.cache.ThreadOverviews(ctx, c.Args.Query)
		if err != nil {
			return err
		}
		w := newTable()
		for _, o := range overviews {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
				o.Position, o.ThreadID, flagString(o), o.EmailCount,
				o.ReceivedAt.UTC().Format("2006-01-02 15:04"), o.Subject)
		}
		return w.Flush()
	})
}

// flagString renders the state of a thread the way mail readers do:
// N for unread, F for flagged, I for important.
func flagString(o cache.ThreadOverview) string {
	var b strings.Builder
	for _, f := range []struct {
		set  bool
		char byte
	}{
		{!o.Seen, 'N'},
		{o.Flagged, 'F'},
		{o.Important, 'I'},
	} {
		if f.set {
			b.WriteByte(f.char)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

type setCommand struct {
	Args struct {
		Thread string `positional-arg-name:"THREAD"`
		Field  string `positional-arg-name:"FIELD" description:"$seen, $flagged, $important, mailbox(ID) or removed(QUERY)"`
		Value  string `positional-arg-name:"VALUE"`
	} `positional-args:"yes" required:"yes"`
}

func (c *setCommand) Execute([]string) error {
	field, err := cache.ParseField(c.Args.Field)
	if err != nil {
		return err
	}
	value, err := strconv.ParseBool(c.Args.Value)
	if err != nil {
		return errors.Wrapf(err, "bad value %q", c.Args.Value)
	}
	return withSession(func(s *session) error {
		return s.cache.SetOverwrite(ctx, c.Args.Thread, field, value)
	})
}

type replayCommand struct {
	Args struct {
		File string `positional-arg-name:"FILE" description:"Journal to replay, or - for standard input"`
	} `positional-args:"yes" required:"yes"`
}

func (c *replayCommand) Execute([]string) error {
	var r io.Reader = os.Stdin
	if c.Args.File != "-" {
		f, err := os.Open(c.Args.File)
		if err != nil {
			return errors.Wrap(err, "unable to open journal")
		}
		defer f.Close()
		r = f
	}
	return withSession(func(s *session) error {
		stats, err := sync.Replay(ctx, r, s.cache)
		if stats != nil {
			fmt.Fprintf(out, "%d records replayed, %d conflicts\n", stats.Records, stats.Conflicts)
		}
		return err
	})
}
