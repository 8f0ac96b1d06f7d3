package mail

// This file provides the common data objects used by the rest of the
// program.

import "time"

// ObjectType names a kind of object the remote service versions with
// its own state token.
type ObjectType string

const (
	TypeEmail    ObjectType = "Email"
	TypeThread   ObjectType = "Thread"
	TypeMailbox  ObjectType = "Mailbox"
	TypeIdentity ObjectType = "Identity"
)

// ObjectTypes lists every type with a state token, in the order a
// full synchronization pulls them.
var ObjectTypes = []ObjectType{TypeMailbox, TypeIdentity, TypeThread, TypeEmail}

// Property names that may appear in the updated-properties list of an
// Email or Mailbox delta.
const (
	PropertyKeywords      = "keywords"
	PropertyMailboxIDs    = "mailboxIds"
	PropertyTotalEmails   = "totalEmails"
	PropertyUnreadEmails  = "unreadEmails"
	PropertyTotalThreads  = "totalThreads"
	PropertyUnreadThreads = "unreadThreads"
)

// Keywords with a meaning to the cache's readers.
const (
	KeywordSeen      = "$seen"
	KeywordFlagged   = "$flagged"
	KeywordImportant = "$important"
)

// EmailAddress is a single name/address pair from an address header.
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// BodyPart describes one MIME part the server chose to expose as text,
// html or attachment.  The content itself lives in blob storage.
type BodyPart struct {
	PartID      string `json:"partId,omitempty"`
	BlobID      string `json:"blobId,omitempty"`
	Size        int64  `json:"size"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	Charset     string `json:"charset,omitempty"`
	Disposition string `json:"disposition,omitempty"`
	Cid         string `json:"cid,omitempty"`
}

// BodyValue is the decoded text of a body part, keyed by part id in
// Email.BodyValues.
type BodyValue struct {
	Value             string `json:"value"`
	IsEncodingProblem bool   `json:"isEncodingProblem,omitempty"`
	IsTruncated       bool   `json:"isTruncated,omitempty"`
}

// Email is the composite message object as delivered by the remote
// service.
type Email struct {
	// The permanent and unique ID of the message.
	ID string `json:"id"`

	BlobID string `json:"blobId,omitempty"`

	// The thread the message belongs to.  Every email belongs to
	// exactly one thread.
	ThreadID string `json:"threadId"`

	// Sets, represented as maps whose values are always true.
	MailboxIDs map[string]bool `json:"mailboxIds,omitempty"`
	Keywords   map[string]bool `json:"keywords,omitempty"`

	Size       int64     `json:"size"`
	ReceivedAt time.Time `json:"receivedAt"`

	MessageID []string `json:"messageId,omitempty"`
	InReplyTo []string `json:"inReplyTo,omitempty"`

	Sender  []EmailAddress `json:"sender,omitempty"`
	From    []EmailAddress `json:"from,omitempty"`
	To      []EmailAddress `json:"to,omitempty"`
	Cc      []EmailAddress `json:"cc,omitempty"`
	Bcc     []EmailAddress `json:"bcc,omitempty"`
	ReplyTo []EmailAddress `json:"replyTo,omitempty"`

	Subject       string    `json:"subject,omitempty"`
	SentAt        time.Time `json:"sentAt"`
	HasAttachment bool      `json:"hasAttachment,omitempty"`
	Preview       string    `json:"preview,omitempty"`

	TextBody    []BodyPart           `json:"textBody,omitempty"`
	HTMLBody    []BodyPart           `json:"htmlBody,omitempty"`
	Attachments []BodyPart           `json:"attachments,omitempty"`
	BodyValues  map[string]BodyValue `json:"bodyValues,omitempty"`
}

// Thread is the ordered list of emails in a conversation.
type Thread struct {
	ID       string   `json:"id"`
	EmailIDs []string `json:"emailIds"`
}

// Mailbox is a named container of emails.  Role is empty for user
// created mailboxes.
type Mailbox struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ParentID      string `json:"parentId,omitempty"`
	Role          string `json:"role,omitempty"`
	SortOrder     int    `json:"sortOrder"`
	TotalEmails   int    `json:"totalEmails"`
	UnreadEmails  int    `json:"unreadEmails"`
	TotalThreads  int    `json:"totalThreads"`
	UnreadThreads int    `json:"unreadThreads"`
	IsSubscribed  bool   `json:"isSubscribed"`
}

// Identity is a From address the user may send as.
type Identity struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	ReplyTo       []EmailAddress `json:"replyTo,omitempty"`
	Bcc           []EmailAddress `json:"bcc,omitempty"`
	TextSignature string         `json:"textSignature,omitempty"`
	HTMLSignature string         `json:"htmlSignature,omitempty"`
	MayDelete     bool           `json:"mayDelete"`
}
