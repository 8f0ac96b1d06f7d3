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

package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/matta/mailcache/internal/mail"
	"github.com/matta/mailcache/internal/persist"
	"github.com/pkg/errors"
)

const inbox = "in:inbox"

func window(t *testing.T, c *Cache, q string) []persist.QueryItem {
	t.Helper()
	items, err := c.QueryItems(context.Background(), q)
	if err != nil {
		t.Fatalf("QueryItems(%q) = %v", q, err)
	}
	return items
}

func items(ids ...string) []persist.QueryItem {
	var out []persist.QueryItem
	for i, id := range ids {
		out = append(out, persist.QueryItem{Position: i, ThreadID: id})
	}
	return out
}

func TestReplaceWindow(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	if err := c.ReplaceWindow(ctx, inbox, []string{"A", "B", "C"}, "q1", true); err != nil {
		t.Fatal(err)
	}
	if err := c.ReplaceWindow(ctx, inbox, []string{"D", "A"}, "q2", false); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(items("D", "A"), window(t, c, inbox)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	got, err := c.QueryState(ctx, inbox)
	if err != nil {
		t.Fatal(err)
	}
	want := &QueryState{Known: true, State: "q2", Valid: true, LastThreadID: "A"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("QueryState() mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryStateUnknown(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	if err := c.Threads.Reset(ctx, nil, "t1"); err != nil {
		t.Fatal(err)
	}
	got, err := c.QueryState(ctx, inbox)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(&QueryState{ThreadState: "t1"}, got); diff != "" {
		t.Errorf("QueryState() mismatch (-want +got):\n%s", diff)
	}
}

func TestMissing(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	if err := c.Threads.Reset(ctx, []mail.Thread{{ID: "A", EmailIDs: []string{"M1"}}, {ID: "C"}}, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := c.Emails.Reset(ctx, []mail.Email{testEmail("M1", "A", 0)}, "e1"); err != nil {
		t.Fatal(err)
	}
	if err := c.ReplaceWindow(ctx, inbox, []string{"A", "B", "C"}, "q1", true); err != nil {
		t.Fatal(err)
	}
	got, err := c.Missing(ctx, inbox)
	if err != nil {
		t.Fatal(err)
	}
	want := &Missing{ThreadState: "t1", EmailState: "e1", ThreadIDs: []string{"B"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Missing() mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	for _, q := range []string{inbox, "in:sent"} {
		if err := c.ReplaceWindow(ctx, q, []string{"A"}, "q1", true); err != nil {
			t.Fatal(err)
		}
	}
	valid := func(q string) bool {
		s, err := c.QueryState(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		return s.Valid
	}

	if err := c.Invalidate(ctx, inbox); err != nil {
		t.Fatal(err)
	}
	if valid(inbox) || !valid("in:sent") {
		t.Errorf("after Invalidate(%q): valid = %v, %v; want false, true", inbox, valid(inbox), valid("in:sent"))
	}
	if err := c.InvalidateAll(ctx); err != nil {
		t.Fatal(err)
	}
	if valid("in:sent") {
		t.Error("query still valid after InvalidateAll()")
	}
	if err := c.ReplaceWindow(ctx, inbox, []string{"A"}, "q2", true); err != nil {
		t.Fatal(err)
	}
	if !valid(inbox) {
		t.Error("ReplaceWindow() did not revalidate the query")
	}
}

func TestAppendPage(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	if err := c.ReplaceWindow(ctx, inbox, []string{"A", "B"}, "q1", true); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		state, after string
	}{
		{"q0", "B"},
		{"q1", "A"},
		{"q1", ""},
	}
	for _, tc := range cases {
		err := c.AppendPage(ctx, inbox, tc.state, tc.after, []string{"X"})
		if !errors.Is(err, ErrBaselineMismatch) {
			t.Errorf("AppendPage(%q, %q) = %v, want ErrBaselineMismatch", tc.state, tc.after, err)
		}
	}
	if diff := cmp.Diff(items("A", "B"), window(t, c, inbox)); diff != "" {
		t.Errorf("window changed by a rejected page (-want +got):\n%s", diff)
	}

	if err := c.AppendPage(ctx, inbox, "q1", "B", []string{"C", "D"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(items("A", "B", "C", "D"), window(t, c, inbox)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	// Threads already in the window are not added twice.
	if err := c.AppendPage(ctx, inbox, "q1", "D", []string{"B", "E", "E"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(items("A", "B", "C", "D", "E"), window(t, c, inbox)); diff != "" {
		t.Errorf("window after a page with duplicates mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendPageEmptyWindow(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	if err := c.ReplaceWindow(ctx, inbox, nil, "q1", true); err != nil {
		t.Fatal(err)
	}
	if err := c.AppendPage(ctx, inbox, "q1", "", []string{"A"}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(items("A"), window(t, c, inbox)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyQueryChanges(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	if err := c.ReplaceWindow(ctx, inbox, []string{"A", "B", "C", "D"}, "q1", true); err != nil {
		t.Fatal(err)
	}
	err := c.ApplyQueryChanges(ctx, inbox, QueryChanges{
		OldState: "q1",
		NewState: "q2",
		Removed:  []string{"B", "D"},
		Added:    []AddedItem{{Index: 9, ThreadID: "Z"}, {Index: 0, ThreadID: "N"}, {Index: 2, ThreadID: "M"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(items("N", "A", "M", "C", "Z"), window(t, c, inbox)); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	// Redelivery is ignored.
	err = c.ApplyQueryChanges(ctx, inbox, QueryChanges{OldState: "q1", NewState: "q2", Removed: []string{"A"}})
	if err != nil {
		t.Fatalf("duplicate ApplyQueryChanges() = %v", err)
	}
	err = c.ApplyQueryChanges(ctx, inbox, QueryChanges{OldState: "q0", NewState: "q3", Removed: []string{"A"}})
	if !errors.Is(err, ErrUpdateConflict) {
		t.Errorf("stale ApplyQueryChanges() = %v, want ErrUpdateConflict", err)
	}
	if diff := cmp.Diff(items("N", "A", "M", "C", "Z"), window(t, c, inbox)); diff != "" {
		t.Errorf("window changed by ignored changes (-want +got):\n%s", diff)
	}
	s, err := c.QueryState(ctx, inbox)
	if err != nil {
		t.Fatal(err)
	}
	if s.State != "q2" {
		t.Errorf("query state = %q, want q2", s.State)
	}
}

func TestApplyChanges(t *testing.T) {
	cases := []struct {
		name    string
		items   []string
		changes QueryChanges
		want    []string
	}{
		{
			name:  "empty",
			items: nil,
			changes: QueryChanges{
				Added: []AddedItem{{Index: 0, ThreadID: "A"}},
			},
			want: []string{"A"},
		},
		{
			name:    "remove only",
			items:   []string{"A", "B", "C"},
			changes: QueryChanges{Removed: []string{"A", "C", "X"}},
			want:    []string{"B"},
		},
		{
			name:  "move",
			items: []string{"A", "B", "C"},
			changes: QueryChanges{
				Removed: []string{"C"},
				Added:   []AddedItem{{Index: 0, ThreadID: "C"}},
			},
			want: []string{"C", "A", "B"},
		},
		{
			name:  "duplicate",
			items: []string{"A", "B"},
			changes: QueryChanges{
				Added: []AddedItem{{Index: 0, ThreadID: "B"}, {Index: 1, ThreadID: "C"}, {Index: 2, ThreadID: "C"}},
			},
			want: []string{"A", "C", "B"},
		},
	}
	for _, tc := range cases {
		got := applyChanges(items(tc.items...), tc.changes)
		if diff := cmp.Diff(tc.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s: applyChanges() mismatch (-want +got):\n%s", tc.name, diff)
		}
	}
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	for _, q := range []string{"in:sent", inbox} {
		if err := c.ReplaceWindow(ctx, q, nil, "q1", false); err != nil {
			t.Fatal(err)
		}
	}
	got, err := c.Queries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{inbox, "in:sent"}, got); diff != "" {
		t.Errorf("Queries() mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryChangesJSON(t *testing.T) {
	var got QueryChanges
	err := json.Unmarshal([]byte(`{"oldState": "q1", "newState": "q2", "removed": ["A"], "added": [{"index": 2, "threadId": "B"}]}`), &got)
	if err != nil {
		t.Fatal(err)
	}
	want := QueryChanges{
		OldState: "q1",
		NewState: "q2",
		Removed:  []string{"A"},
		Added:    []AddedItem{{Index: 2, ThreadID: "B"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("json.Unmarshal() mismatch (-want +got):\n%s", diff)
	}
}
