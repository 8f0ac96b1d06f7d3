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

package explode

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/matta/mailcache/internal/mail"
)

func TestKeywords(t *testing.T) {
	cases := []struct {
		set  map[string]bool
		want []KeywordRow
	}{
		{nil, nil},
		{map[string]bool{"$seen": false}, nil},
		{
			map[string]bool{"$seen": true, "$flagged": true, "$draft": false},
			[]KeywordRow{{"M1", "$flagged"}, {"M1", "$seen"}},
		},
	}
	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, Keywords("M1", tc.set)); diff != "" {
			t.Errorf("Keywords(%v) mismatch (-want +got):\n%s", tc.set, diff)
		}
	}
}

func TestEmail(t *testing.T) {
	e := mail.Email{
		ID:         "M1",
		ThreadID:   "T1",
		MailboxIDs: map[string]bool{"work": true, "inbox": true},
		MessageID:  []string{"<m1@example.com>"},
		InReplyTo:  []string{"<b@example.com>", "<a@example.com>"},
		From:       []mail.EmailAddress{{Name: "Ann", Email: "ann@example.com"}},
		To:         []mail.EmailAddress{{Email: "bob@example.com"}, {Email: "cy@example.com"}},
		TextBody:   []mail.BodyPart{{PartID: "1", Type: "text/plain"}},
		HTMLBody:   []mail.BodyPart{{PartID: "2", Type: "text/html"}},
		BodyValues: map[string]mail.BodyValue{"2": {Value: "<p>hi"}, "1": {Value: "hi"}},
	}
	want := &EmailRows{
		Email:     EmailRow{EmailID: "M1", ThreadID: "T1"},
		Mailboxes: []MembershipRow{{"M1", "inbox"}, {"M1", "work"}},
		Addresses: []AddressRow{
			{ParentID: "M1", Kind: AddressFrom, Position: 0, Name: "Ann", Address: "ann@example.com"},
			{ParentID: "M1", Kind: AddressTo, Position: 0, Address: "bob@example.com"},
			{ParentID: "M1", Kind: AddressTo, Position: 1, Address: "cy@example.com"},
		},
		InReplyTo: []HeaderIDRow{
			{EmailID: "M1", Position: 0, MessageID: "<b@example.com>"},
			{EmailID: "M1", Position: 1, MessageID: "<a@example.com>"},
		},
		MessageIDs: []HeaderIDRow{{EmailID: "M1", Position: 0, MessageID: "<m1@example.com>"}},
		BodyParts: []BodyPartRow{
			{EmailID: "M1", Kind: PartText, Position: 0, BodyPart: mail.BodyPart{PartID: "1", Type: "text/plain"}},
			{EmailID: "M1", Kind: PartHTML, Position: 0, BodyPart: mail.BodyPart{PartID: "2", Type: "text/html"}},
		},
		BodyValues: []BodyValueRow{
			{EmailID: "M1", PartID: "1", BodyValue: mail.BodyValue{Value: "hi"}},
			{EmailID: "M1", PartID: "2", BodyValue: mail.BodyValue{Value: "<p>hi"}},
		},
	}
	if diff := cmp.Diff(want, Email(e), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Email() mismatch (-want +got):\n%s", diff)
	}
}

func TestThread(t *testing.T) {
	got := Thread(mail.Thread{ID: "T1", EmailIDs: []string{"M2", "M1"}})
	want := &ThreadRows{
		ThreadID: "T1",
		Items:    []ThreadItemRow{{"T1", 0, "M2"}, {"T1", 1, "M1"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Thread() mismatch (-want +got):\n%s", diff)
	}
}

func TestIdentity(t *testing.T) {
	id := mail.Identity{
		ID:      "I1",
		Email:   "ann@example.com",
		ReplyTo: []mail.EmailAddress{{Email: "reply@example.com"}},
		Bcc:     []mail.EmailAddress{{Email: "archive@example.com"}},
	}
	got := Identity(id)
	want := &IdentityRows{
		Identity: mail.Identity{ID: "I1", Email: "ann@example.com"},
		Addresses: []AddressRow{
			{ParentID: "I1", Kind: AddressReplyTo, Address: "reply@example.com"},
			{ParentID: "I1", Kind: AddressBcc, Address: "archive@example.com"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Identity() mismatch (-want +got):\n%s", diff)
	}
	if len(id.ReplyTo) != 1 {
		t.Error("Identity() modified its argument")
	}
}
