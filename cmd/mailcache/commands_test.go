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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const testJournal = `{"kind": "reset", "type": "Thread", "state": "t1", "list": [{"id": "T1", "emailIds": ["M1"]}]}
{"kind": "reset", "type": "Email", "state": "e1", "list": [{"id": "M1", "threadId": "T1", "receivedAt": "2019-06-01T10:30:00Z", "subject": "hello", "keywords": {"$seen": true}}]}
{"kind": "window", "query": "in:inbox", "state": "q1", "threadIds": ["T1", "T2"], "canCalculateChanges": true}
`

// setup points the commands at a fresh database and captures their
// output.
func setup(t *testing.T) *bytes.Buffer {
	t.Helper()
	dir := t.TempDir()
	opts.Config = filepath.Join(dir, "missing.toml")
	opts.Database = filepath.Join(dir, "cache.db")
	var buf bytes.Buffer
	out = &buf
	t.Cleanup(func() { out = os.Stdout })
	return &buf
}

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommands(t *testing.T) {
	buf := setup(t)

	replay := &replayCommand{}
	replay.Args.File = writeFile(t, "journal.ndjson", testJournal)
	if err := replay.Execute(nil); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got, want := buf.String(), "3 records replayed, 0 conflicts\n"; got != want {
		t.Errorf("replay printed %q, want %q", got, want)
	}

	buf.Reset()
	if err := (&missingCommand{Args: queryArg{"in:inbox"}}).Execute(nil); err != nil {
		t.Fatalf("missing: %v", err)
	}
	if got := buf.String(); got != "T2\n" {
		t.Errorf("missing printed %q, want T2", got)
	}

	set := &setCommand{}
	set.Args.Thread, set.Args.Field, set.Args.Value = "T1", "$flagged", "true"
	if err := set.Execute(nil); err != nil {
		t.Fatalf("set: %v", err)
	}

	buf.Reset()
	if err := (&threadsCommand{Args: queryArg{"in:inbox"}}).Execute(nil); err != nil {
		t.Fatalf("threads: %v", err)
	}
	fields := strings.Fields(buf.String())
	want := []string{"0", "T1", "-F-", "1", "2019-06-01", "10:30", "hello"}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("threads mismatch (-want +got):\n%s", diff)
	}

	if err := (&invalidateCommand{}).Execute(nil); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	buf.Reset()
	if err := (&statusCommand{}).Execute(nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, s := range []string{"Thread", "t1", "Mailbox", "(none)", `query "in:inbox"`, "valid=false", "2 threads"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("status output %q lacks %q", buf.String(), s)
		}
	}
}

func TestSetBadArgs(t *testing.T) {
	setup(t)
	for _, args := range [][3]string{
		{"T1", "unread", "true"},
		{"T1", "$seen", "maybe"},
	} {
		c := &setCommand{}
		c.Args.Thread, c.Args.Field, c.Args.Value = args[0], args[1], args[2]
		if err := c.Execute(nil); err == nil {
			t.Errorf("set %v = nil error", args)
		}
	}
}

func TestSyncCommand(t *testing.T) {
	buf := setup(t)
	c := &syncCommand{}
	c.Args.Dump = writeFile(t, "dump.json", `{
"emails": {"state": "e1", "list": [{"id": "M1", "threadId": "T1", "receivedAt": "2019-06-01T10:30:00Z", "subject": "hello"}]},
"threads": {"state": "t1", "list": [{"id": "T1", "emailIds": ["M1"]}]},
"mailboxes": {"state": "m1"},
"identities": {"state": "i1"},
"queries": {"in:inbox": {"state": "q1", "threadIds": ["T1"]}}
}`)
	if err := c.Execute(nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := (&threadsCommand{Args: queryArg{"in:inbox"}}).Execute(nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "T1") || !strings.Contains(buf.String(), "N--") {
		t.Errorf("threads after sync printed %q", buf.String())
	}
}
