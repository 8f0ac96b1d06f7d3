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
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/matta/mailcache/internal/explode"
	"github.com/matta/mailcache/internal/mail"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"), 0)
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Error(err)
		}
	})
	return db
}

func update(t *testing.T, db *DB, fn func(context.Context, *Tx) error) {
	t.Helper()
	ctx := context.Background()
	if err := db.Update(ctx, func(tx *Tx) error { return fn(ctx, tx) }); err != nil {
		t.Fatalf("Update() = %v", err)
	}
}

func TestDSNFromPath(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"cache.db", "file:cache.db?_foreign_keys=on"},
		{"/tmp/cache.db", "file:/tmp/cache.db?_foreign_keys=on"},
		{"file:cache.db?mode=ro", "file:cache.db?_foreign_keys=on&mode=ro"},
	}
	for _, tc := range cases {
		got, err := dsnFromPath(tc.path, url.Values{"_foreign_keys": {"on"}})
		if err != nil {
			t.Errorf("dsnFromPath(%q) = %v", tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("dsnFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestOpenTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	for i := 0; i < 2; i++ {
		db, err := Open(context.Background(), path, time.Second)
		if err != nil {
			t.Fatalf("Open() #%d = %v", i, err)
		}
		db.Close()
	}
}

func TestState(t *testing.T) {
	db := openTest(t)
	update(t, db, func(ctx context.Context, tx *Tx) error {
		s, err := tx.State(ctx, mail.TypeEmail)
		if err != nil {
			return err
		}
		if s != "" {
			t.Errorf("State() of fresh database = %q, want empty", s)
		}
		if err := tx.SetState(ctx, mail.TypeEmail, "e1"); err != nil {
			return err
		}
		if err := tx.SetState(ctx, mail.TypeEmail, "e2"); err != nil {
			return err
		}
		return tx.SetState(ctx, mail.TypeThread, "t1")
	})

	var got map[mail.ObjectType]string
	err := db.View(context.Background(), func(tx *Tx) (err error) {
		got, err = tx.States(context.Background())
		return
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[mail.ObjectType]string{mail.TypeEmail: "e2", mail.TypeThread: "t1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("States() mismatch (-want +got):\n%s", diff)
	}
}

func testEmail() mail.Email {
	return mail.Email{
		ID:         "M1",
		BlobID:     "B1",
		ThreadID:   "T1",
		MailboxIDs: map[string]bool{"inbox": true, "work": true},
		Keywords:   map[string]bool{"$seen": true},
		Size:       1234,
		ReceivedAt: time.Date(2019, 3, 1, 12, 0, 0, 0, time.UTC),
		SentAt:     time.Date(2019, 3, 1, 11, 59, 0, 0, time.UTC),
		MessageID:  []string{"<a@example.com>"},
		InReplyTo:  []string{"<z@example.com>", "<y@example.com>"},
		From:       []mail.EmailAddress{{Name: "Ann", Email: "ann@example.com"}},
		To: []mail.EmailAddress{
			{Email: "bob@example.com"},
			{Name: "Cy", Email: "cy@example.com"},
		},
		Subject:       "hello",
		Preview:       "hi there",
		HasAttachment: true,
		TextBody:      []mail.BodyPart{{PartID: "1", Size: 10, Type: "text/plain", Charset: "utf-8"}},
		Attachments:   []mail.BodyPart{{PartID: "2", BlobID: "B2", Size: 99, Name: "a.pdf", Type: "application/pdf", Disposition: "attachment"}},
		BodyValues:    map[string]mail.BodyValue{"1": {Value: "hi there", IsTruncated: true}},
	}
}

func TestLoadEmail(t *testing.T) {
	db := openTest(t)
	want := testEmail()
	update(t, db, func(ctx context.Context, tx *Tx) error {
		return tx.InsertEmail(ctx, explode.Email(want))
	})

	var got *mail.Email
	var ok bool
	err := db.View(context.Background(), func(tx *Tx) (err error) {
		got, ok, err = tx.LoadEmail(context.Background(), want.ID)
		return
	})
	if err != nil || !ok {
		t.Fatalf("LoadEmail() = %v, %v", ok, err)
	}
	if diff := cmp.Diff(&want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("LoadEmail() mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteEmail(t *testing.T) {
	db := openTest(t)
	e := testEmail()
	update(t, db, func(ctx context.Context, tx *Tx) error {
		if err := tx.InsertEmail(ctx, explode.Email(e)); err != nil {
			return err
		}
		return tx.InsertThread(ctx, explode.Thread(mail.Thread{ID: "T1", EmailIDs: []string{"M0", e.ID}}))
	})
	update(t, db, func(ctx context.Context, tx *Tx) error {
		existed, err := tx.DeleteEmail(ctx, e.ID)
		if err != nil {
			return err
		}
		if !existed {
			t.Error("DeleteEmail() of stored email reported not existed")
		}
		n, err := tx.ChildRowCount(ctx, e.ID)
		if err != nil {
			return err
		}
		if n != 0 {
			t.Errorf("ChildRowCount() after delete = %d, want 0", n)
		}
		ids, err := tx.ThreadEmailIDs(ctx, "T1")
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]string{"M0"}, ids); diff != "" {
			t.Errorf("ThreadEmailIDs() mismatch (-want +got):\n%s", diff)
		}
		existed, err = tx.DeleteEmail(ctx, e.ID)
		if existed {
			t.Error("second DeleteEmail() reported existed")
		}
		return err
	})
}

func TestQueryItems(t *testing.T) {
	db := openTest(t)
	const q = "in:inbox"
	update(t, db, func(ctx context.Context, tx *Tx) error {
		if err := tx.UpsertQuery(ctx, &Query{QueryString: q, State: "q1", Valid: true}); err != nil {
			return err
		}
		if err := tx.InsertQueryItems(ctx, q, 0, []string{"A", "B", "C"}); err != nil {
			return err
		}
		if err := tx.InsertThread(ctx, explode.Thread(mail.Thread{ID: "A"})); err != nil {
			return err
		}
		return tx.InsertThread(ctx, explode.Thread(mail.Thread{ID: "C"}))
	})
	update(t, db, func(ctx context.Context, tx *Tx) error {
		missing, err := tx.MissingThreadIDs(ctx, q)
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]string{"B"}, missing); diff != "" {
			t.Errorf("MissingThreadIDs() mismatch (-want +got):\n%s", diff)
		}
		last, ok, err := tx.LastQueryItem(ctx, q)
		if err != nil {
			return err
		}
		if want := (&QueryItem{Position: 2, ThreadID: "C"}); !ok || !cmp.Equal(want, last) {
			t.Errorf("LastQueryItem() = %+v, %v, want %+v", last, ok, want)
		}
		if err := tx.InvalidateAllQueries(ctx); err != nil {
			return err
		}
		row, _, err := tx.Query(ctx, q)
		if err != nil {
			return err
		}
		if row.Valid {
			t.Error("query still valid after InvalidateAllQueries()")
		}
		return nil
	})
}

func TestOverwrites(t *testing.T) {
	db := openTest(t)
	const q = "in:inbox"
	update(t, db, func(ctx context.Context, tx *Tx) error {
		if err := tx.SetKeywordOverwrite(ctx, "T1", mail.KeywordSeen, true); err != nil {
			return err
		}
		if err := tx.SetMailboxOverwrite(ctx, "T1", "inbox", false); err != nil {
			return err
		}
		if err := tx.AddQueryItemOverwrite(ctx, q, "T1"); err != nil {
			return err
		}
		return tx.RetireOverwrites(ctx, "T1")
	})
	update(t, db, func(ctx context.Context, tx *Tx) error {
		n, err := tx.OverwriteCount(ctx)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("OverwriteCount() after retire = %d, want 1", n)
		}
		executed, ok, err := tx.QueryItemOverwrite(ctx, q, "T1")
		if err != nil {
			return err
		}
		if !ok || !executed {
			t.Errorf("QueryItemOverwrite() = %v, %v, want executed", executed, ok)
		}
		if err := tx.DeleteExecutedQueryItemOverwrites(ctx, q); err != nil {
			return err
		}
		n, err = tx.OverwriteCount(ctx)
		if n != 0 {
			t.Errorf("OverwriteCount() after refresh = %d, want 0", n)
		}
		return err
	})
}
