package store

import "time"

// User of the platform. Color is the highlight tint the user's
// annotations render with; Fallback is the two-letter monogram shown
// when no avatar is available.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Color        string
	Fallback     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document is an annotated text. TextContent is the flattened surface
// annotations anchor into; CrawledAt stays nil until the fetcher has
// pulled the page at URL.
type Document struct {
	ID          string
	URL         string
	Title       string
	TextContent string
	CrawledAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserDocument links a user to a document. Role is 'owner' or 'viewer';
// owners administer sharing, viewers read.
type UserDocument struct {
	UserID     string
	DocumentID string
	Role       string
	CreatedAt  time.Time
}

// Annotation marks the half-open byte range [StartOffset, EndOffset) of
// a document's text. Quote, Prefix, and Suffix capture the anchored
// text and its surroundings so the range can be relocated after the
// document text changes.
type Annotation struct {
	ID          string
	DocumentID  string
	UserID      string
	StartOffset int
	EndOffset   int
	Quote       string
	Prefix      string
	Suffix      string
	Body        string
	Color       string
	Visibility  string // 'private', 'shared', or 'public'
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Comment struct {
	ID           string
	AnnotationID string
	UserID       string
	Body         string
	Visibility   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chat is a discussion thread attached to a document. Messages live as
// a JSON array on the row; chats are small and always loaded whole.
type Chat struct {
	ID         string
	DocumentID string
	UserID     string
	Title      string
	Visibility string
	Messages   []ChatMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ChatMessage struct {
	UserID string    `json:"user_id"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// Group is a named set of users. UserID is the owner; ownership is not
// a membership row.
type Group struct {
	ID        string
	Name      string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type GroupMember struct {
	GroupID   string
	UserID    string
	CreatedAt time.Time
}

type GroupDocument struct {
	GroupID    string
	DocumentID string
	CreatedAt  time.Time
}

// Permission is one explicit grant: a user or group principal holding a
// level on a resource. The (resource, principal) pair is unique and
// writes upsert onto it.
type Permission struct {
	ID            string
	ResourceType  string // 'document', 'annotation', 'comment', 'chat', or 'group'
	ResourceID    string
	PrincipalType string // 'user' or 'group'
	PrincipalID   string
	Level         string // 'read', 'write', or 'admin'
	GrantedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PermissionWithPrincipal carries the joined display fields a sharing
// view needs alongside the raw grant. PrincipalEmail is empty for group
// principals.
type PermissionWithPrincipal struct {
	Permission
	PrincipalName  string
	PrincipalEmail string
}

// AccessDenial is an audit row recorded when a permission check fails.
type AccessDenial struct {
	ID            int64
	UserID        string
	ResourceType  string
	ResourceID    string
	RequiredLevel string
	ActualLevel   string
	DeniedAt      time.Time
}

// Session is a refresh session row, keyed by the SHA-256 of the token
// so a database leak does not expose usable tokens.
type Session struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
