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
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/matta/mailcache/internal/mail"
)

func TestThreadOverviews(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	work := testEmail("M3", "T2", 3, mail.KeywordSeen, mail.KeywordImportant)
	work.MailboxIDs = map[string]bool{"work": true}
	emails := []mail.Email{
		testEmail("M1", "T1", 1, mail.KeywordSeen),
		testEmail("M2", "T1", 2, mail.KeywordFlagged),
		work,
		testEmail("M4", "T3", 4),
	}
	if err := c.Emails.Reset(ctx, emails, "e1"); err != nil {
		t.Fatal(err)
	}
	// T4 is in the window but has not been merged.
	if err := c.ReplaceWindow(ctx, inbox, []string{"T3", "T1", "T4", "T2"}, "q1", true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetOverwrite(ctx, "T2", Seen, false); err != nil {
		t.Fatal(err)
	}
	if err := c.SetOverwrite(ctx, "T2", InMailbox("work"), false); err != nil {
		t.Fatal(err)
	}
	if err := c.SetOverwrite(ctx, "T2", InMailbox("archive"), true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetOverwrite(ctx, "T3", RemovedFrom(inbox), true); err != nil {
		t.Fatal(err)
	}

	got, err := c.ThreadOverviews(ctx, inbox)
	if err != nil {
		t.Fatal(err)
	}
	want := []ThreadOverview{
		{
			Position:   1,
			ThreadID:   "T1",
			Subject:    "subject M2",
			Preview:    "preview M2",
			ReceivedAt: epoch.Add(2 * time.Minute),
			EmailCount: 2,
			Seen:       false,
			Flagged:    true,
			MailboxIDs: []string{"inbox"},
		},
		{
			Position:   3,
			ThreadID:   "T2",
			Subject:    "subject M3",
			Preview:    "preview M3",
			ReceivedAt: epoch.Add(3 * time.Minute),
			EmailCount: 1,
			Seen:       false,
			Important:  true,
			MailboxIDs: []string{"archive"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ThreadOverviews() mismatch (-want +got):\n%s", diff)
	}

	// Merging a change to T2 retires its overwrites.
	err = c.Emails.ApplyDelta(ctx, Delta[mail.Email]{
		OldState: "e1",
		NewState: "e2",
		Updated:  []Update[mail.Email]{{Value: work, Properties: []string{mail.PropertyKeywords}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err = c.ThreadOverviews(ctx, inbox)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !got[1].Seen || !cmp.Equal(got[1].MailboxIDs, []string{"work"}) {
		t.Errorf("T2 after merge = %+v, want canonical seen in work", got[len(got)-1])
	}
}
