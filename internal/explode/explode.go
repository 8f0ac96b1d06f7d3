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

// Package explode decomposes composite mail objects into the
// normalized rows stored by package persist.
//
// Every function here is pure.  The child rows returned for an object
// replace all prior child rows of the same kind for that parent id;
// callers never merge them with what is already stored.
package explode

import (
	"sort"
	"time"

	"github.com/matta/mailcache/internal/mail"
)

// Address kinds, shared by email and identity address rows.
const (
	AddressSender  = "sender"
	AddressFrom    = "from"
	AddressTo      = "to"
	AddressCc      = "cc"
	AddressBcc     = "bcc"
	AddressReplyTo = "replyTo"
)

// Body part kinds.
const (
	PartText       = "text"
	PartHTML       = "html"
	PartAttachment = "attachment"
)

// EmailRow is the canonical emails row.
type EmailRow struct {
	EmailID       string
	BlobID        string
	ThreadID      string
	Size          int64
	ReceivedAt    time.Time
	SentAt        time.Time
	Subject       string
	Preview       string
	HasAttachment bool
}

// KeywordRow records that an email carries a keyword.
type KeywordRow struct {
	EmailID string
	Keyword string
}

// MembershipRow records that an email is a member of a mailbox.
type MembershipRow struct {
	EmailID   string
	MailboxID string
}

// AddressRow is one entry of an address list.  ParentID is an email or
// identity id depending on the table it is written to.
type AddressRow struct {
	ParentID string
	Kind     string
	Position int
	Name     string
	Address  string
}

// HeaderIDRow is one entry of the Message-ID or In-Reply-To list.
type HeaderIDRow struct {
	EmailID   string
	Position  int
	MessageID string
}

// BodyPartRow is one entry of the text, html or attachment part list.
type BodyPartRow struct {
	EmailID  string
	Kind     string
	Position int
	mail.BodyPart
}

// BodyValueRow is the decoded value of one body part.
type BodyValueRow struct {
	EmailID string
	PartID  string
	mail.BodyValue
}

// EmailRows is an exploded email.
type EmailRows struct {
	Email      EmailRow
	Keywords   []KeywordRow
	Mailboxes  []MembershipRow
	Addresses  []AddressRow
	InReplyTo  []HeaderIDRow
	MessageIDs []HeaderIDRow
	BodyParts  []BodyPartRow
	BodyValues []BodyValueRow
}

// ThreadItemRow places an email at a position within a thread.
type ThreadItemRow struct {
	ThreadID string
	Position int
	EmailID  string
}

// ThreadRows is an exploded thread.
type ThreadRows struct {
	ThreadID string
	Items    []ThreadItemRow
}

// IdentityRows is an exploded identity.
type IdentityRows struct {
	Identity  mail.Identity
	Addresses []AddressRow
}

// Email explodes e.  Set valued children are emitted sorted, ordered
// children carry their input position.
func Email(e mail.Email) *EmailRows {
	rows := &EmailRows{
		Email: EmailRow{
			EmailID:       e.ID,
			BlobID:        e.BlobID,
			ThreadID:      e.ThreadID,
			Size:          e.Size,
			ReceivedAt:    e.ReceivedAt,
			SentAt:        e.SentAt,
			Subject:       e.Subject,
			Preview:       e.Preview,
			HasAttachment: e.HasAttachment,
		},
		Keywords:  Keywords(e.ID, e.Keywords),
		Mailboxes: Mailboxes(e.ID, e.MailboxIDs),
	}

	lists := []struct {
		kind  string
		addrs []mail.EmailAddress
	}{
		{AddressSender, e.Sender},
		{AddressFrom, e.From},
		{AddressTo, e.To},
		{AddressCc, e.Cc},
		{AddressBcc, e.Bcc},
		{AddressReplyTo, e.ReplyTo},
	}
	for _, l := range lists {
		rows.Addresses = append(rows.Addresses, addresses(e.ID, l.kind, l.addrs)...)
	}

	rows.InReplyTo = headerIDs(e.ID, e.InReplyTo)
	rows.MessageIDs = headerIDs(e.ID, e.MessageID)

	parts := []struct {
		kind  string
		parts []mail.BodyPart
	}{
		{PartText, e.TextBody},
		{PartHTML, e.HTMLBody},
		{PartAttachment, e.Attachments},
	}
	for _, p := range parts {
		for i, part := range p.parts {
			rows.BodyParts = append(rows.BodyParts, BodyPartRow{
				EmailID:  e.ID,
				Kind:     p.kind,
				Position: i,
				BodyPart: part,
			})
		}
	}

	for _, partID := range sortedKeys(e.BodyValues) {
		rows.BodyValues = append(rows.BodyValues, BodyValueRow{
			EmailID:   e.ID,
			PartID:    partID,
			BodyValue: e.BodyValues[partID],
		})
	}
	return rows
}

// Keywords returns the keyword rows for emailID.  Keywords mapped to
// false are not members of the set and produce no row.
func Keywords(emailID string, set map[string]bool) []KeywordRow {
	var rows []KeywordRow
	for _, k := range members(set) {
		rows = append(rows, KeywordRow{EmailID: emailID, Keyword: k})
	}
	return rows
}

// Mailboxes returns the mailbox membership rows for emailID.
func Mailboxes(emailID string, set map[string]bool) []MembershipRow {
	var rows []MembershipRow
	for _, id := range members(set) {
		rows = append(rows, MembershipRow{EmailID: emailID, MailboxID: id})
	}
	return rows
}

// Thread explodes t into its position ordered items.
func Thread(t mail.Thread) *ThreadRows {
	rows := &ThreadRows{ThreadID: t.ID}
	for i, id := range t.EmailIDs {
		rows.Items = append(rows.Items, ThreadItemRow{ThreadID: t.ID, Position: i, EmailID: id})
	}
	return rows
}

// Identity explodes id into its canonical row and address lists.
func Identity(id mail.Identity) *IdentityRows {
	rows := &IdentityRows{Identity: id}
	rows.Identity.ReplyTo = nil
	rows.Identity.Bcc = nil
	rows.Addresses = append(rows.Addresses, addresses(id.ID, AddressReplyTo, id.ReplyTo)...)
	rows.Addresses = append(rows.Addresses, addresses(id.ID, AddressBcc, id.Bcc)...)
	return rows
}

func addresses(parentID, kind string, addrs []mail.EmailAddress) []AddressRow {
	var rows []AddressRow
	for i, a := range addrs {
		rows = append(rows, AddressRow{
			ParentID: parentID,
			Kind:     kind,
			Position: i,
			Name:     a.Name,
			Address:  a.Email,
		})
	}
	return rows
}

func headerIDs(emailID string, ids []string) []HeaderIDRow {
	var rows []HeaderIDRow
	for i, id := range ids {
		rows = append(rows, HeaderIDRow{EmailID: emailID, Position: i, MessageID: id})
	}
	return rows
}

func members(set map[string]bool) []string {
	var keys []string
	for k, v := range set {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
