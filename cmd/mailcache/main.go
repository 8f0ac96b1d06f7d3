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

// The mailcache command inspects and maintains the local mail cache.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/matta/mailcache/internal/cache"
	"github.com/matta/mailcache/internal/config"
	"github.com/matta/mailcache/internal/persist"
	"github.com/pkg/errors"
)

var opts struct {
	Config   string `short:"c" long:"config" description:"Config file location" default:"~/.mailcache.toml"`
	Database string `short:"d" long:"database" description:"Cache database; overrides the config file"`
}

// ctx is canceled on interrupt.
var ctx = context.Background()

// session is what every command works with.
type session struct {
	conf  *config.Config
	db    *persist.DB
	cache *cache.Cache
}

func open() (*session, error) {
	conf, err := config.Load(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Database != "" {
		conf.Database = opts.Database
	}
	db, err := persist.Open(ctx, conf.DatabasePath(), conf.BusyTimeout.Duration)
	if err != nil {
		return nil, errors.Wrap(err, "unable to initialize database")
	}
	return &session{conf: conf, db: db, cache: cache.New(db)}, nil
}

func (s *session) Close() error {
	return s.db.Close()
}

// withSession opens a session for the duration of fn.
func withSession(fn func(*session) error) error {
	s, err := open()
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func main() {
	var stop context.CancelFunc
	ctx, stop = signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	for _, c := range []struct {
		name, short, long string
		data              interface{}
	}{
		{"status", "Show state tokens and queries", "Print the state token of every object type and the state of every known query.", &statusCommand{}},
		{"missing", "List missing threads", "Print the thread ids in a query window that are not cached.", &missingCommand{}},
		{"invalidate", "Invalidate query windows", "Mark one query, or every query, for a full refetch on the next sync.", &invalidateCommand{}},
		{"threads", "List threads of a query", "Print the thread overviews of a query window with local changes applied.", &threadsCommand{}},
		{"set", "Record a local change", "Overwrite a thread field until the server confirms a change to the thread.", &setCommand{}},
		{"replay", "Replay a journal", "Apply a journal of recorded resets, deltas, query windows and overwrites.", &replayCommand{}},
		{"sync", "Sync from a dump", "Bring the cache up to date with a recorded server dump.", &syncCommand{}},
	} {
		if _, err := parser.AddCommand(c.name, c.short, c.long, c.data); err != nil {
			log.Fatalf("Failed: %v\n", err)
		}
	}

	if _, err := parser.Parse(); err != nil {
		if ferr, ok := err.(*flags.Error); ok && ferr.Type == flags.ErrHelp {
			fmt.Print(ferr.Message)
			os.Exit(0)
		}
		log.Fatalf("Failed: %v\n", err)
	}
}
