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
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/matta/mailcache/internal/sync"
	"github.com/pkg/errors"
)

type syncCommand struct {
	Watch bool `short:"w" long:"watch" description:"Sync again whenever the dump changes"`
	Args  struct {
		Dump string `positional-arg-name:"DUMP"`
	} `positional-args:"yes" required:"yes"`
}

func (c *syncCommand) Execute([]string) error {
	return withSession(func(s *session) error {
		if err := syncDump(s, c.Args.Dump); err != nil {
			return err
		}
		if !c.Watch {
			return nil
		}
		return watchDump(s, c.Args.Dump)
	})
}

func syncDump(s *session, path string) error {
	d, err := sync.LoadDumpFile(path)
	if err != nil {
		return err
	}
	return sync.Sync(ctx, d, s.cache, s.conf.SyncOptions())
}

// watchDump syncs from path each time it is written until ctx is
// canceled.  Failed syncs are logged; the dump may be half written.
func watchDump(s *session, path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "unable to watch dump")
	}
	defer w.Close()

	// The directory, so that a dump replaced by rename is seen.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "unable to watch %s", filepath.Dir(path))
	}
	name := filepath.Clean(path)
	log.Printf("Watching %s", name)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			log.Printf("%s changed; syncing", name)
			if err := syncDump(s, path); err != nil {
				log.Printf("Sync failed: %v", err)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return errors.Wrap(err, "watch failed")
		}
	}
}
