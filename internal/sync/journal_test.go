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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/matta/mailcache/internal/cache"
	"github.com/matta/mailcache/internal/persist"
)

const journal = `
{"kind": "reset", "type": "Email", "state": "e1", "list": [{"id": "M1", "threadId": "T1", "receivedAt": "2019-06-01T00:00:00Z", "subject": "hi"}]}
{"kind": "reset", "type": "Thread", "state": "t1", "list": [{"id": "T1", "emailIds": ["M1"]}]}

{"kind": "changes", "type": "Email", "changes": {"oldState": "e1", "newState": "e2", "updated": [{"id": "M1", "keywords": {"$seen": true}}], "updatedProperties": ["keywords"]}}
{"kind": "changes", "type": "Email", "changes": {"oldState": "e7", "newState": "e8", "destroyed": ["M1"]}, "rejectOnConflict": true}
{"kind": "window", "query": "in:inbox", "state": "q1", "threadIds": ["T1"], "canCalculateChanges": true}
{"kind": "queryChanges", "query": "in:inbox", "queryChanges": {"oldState": "q1", "newState": "q2", "added": [{"index": 1, "threadId": "T2"}]}}
{"kind": "page", "query": "in:inbox", "state": "q2", "after": "T2", "threadIds": ["T3"]}
{"kind": "overwrite", "thread": "T1", "field": "$flagged", "value": true}
`

func TestReplay(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	stats, err := Replay(ctx, strings.NewReader(journal), c)
	if err != nil {
		t.Fatalf("Replay() = %v", err)
	}
	if diff := cmp.Diff(&ReplayStats{Records: 8, Conflicts: 1}, stats); diff != "" {
		t.Errorf("Replay() stats mismatch (-want +got):\n%s", diff)
	}

	e, ok, err := c.Email(ctx, "M1")
	if err != nil || !ok {
		t.Fatalf("Email(M1) = %v, %v; the rejected delta must not destroy it", ok, err)
	}
	if !e.Keywords["$seen"] || e.Subject != "hi" {
		t.Errorf("Email(M1) = %+v, want $seen patched and subject kept", e)
	}
	if s, _ := c.Emails.State(ctx); s != "e2" {
		t.Errorf("Emails.State() = %q, want e2", s)
	}

	items, err := c.QueryItems(ctx, "in:inbox")
	if err != nil {
		t.Fatal(err)
	}
	want := []persist.QueryItem{{Position: 0, ThreadID: "T1"}, {Position: 1, ThreadID: "T2"}, {Position: 2, ThreadID: "T3"}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	if v, ok, _ := c.ReadOverwrite(ctx, "T1", cache.Flagged); !ok || !v {
		t.Errorf("ReadOverwrite(T1, $flagged) = %v, %v; want true, true", v, ok)
	}
}

func TestReplayStops(t *testing.T) {
	cases := []struct {
		name    string
		journal string
		records int
	}{
		{"not json", `{"kind": `, 0},
		{"unknown kind", `{"kind": "merge"}`, 0},
		{"reset without state", `{"kind": "reset", "type": "Email"}`, 0},
		{"unknown type", `{"kind": "reset", "type": "Message", "state": "s1"}`, 0},
		{"bad field", `{"kind": "overwrite", "thread": "T1", "field": "unread", "value": true}`, 0},
		{
			"unpatchable property",
			`{"kind": "reset", "type": "Email", "state": "e1", "list": [{"id": "M1", "threadId": "T1"}]}
{"kind": "changes", "type": "Email", "changes": {"oldState": "e1", "newState": "e2", "updated": [{"id": "M1"}], "updatedProperties": ["subject"]}}`,
			1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestCache(t)
			stats, err := Replay(context.Background(), strings.NewReader(tc.journal), c)
			if err == nil {
				t.Fatal("Replay() = nil error")
			}
			if stats.Records != tc.records {
				t.Errorf("Replay() processed %d records, want %d", stats.Records, tc.records)
			}
		})
	}
}
