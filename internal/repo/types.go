// Package repo implements the four external entity stores (spec section
// 6.4): User, Post, Message, and the follow graph folded into User. Each
// is a durable, WAL-backed key-value store per the teacher's
// internal/store shape, generalized per entity kind. This is intentionally
// the thin, "opaque key-value store" layer the spec calls out as external
// — the coordination layer (clock, transport, election, replication) is
// the hard part, not this.
package repo

import "time"

// User is keyed by username, compared case-insensitively.
type User struct {
	Username  string          `json:"username"`
	Password  string          `json:"password"`
	CreatedAt time.Time       `json:"createdAt"`
	Followers map[string]bool `json:"followers"`
	Following map[string]bool `json:"following"`
}

// Post is keyed by a UUID postId.
type Post struct {
	PostID    string    `json:"postId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is keyed by a UUID messageId.
type Message struct {
	MessageID        string     `json:"messageId"`
	SenderUsername   string     `json:"senderUsername"`
	ReceiverUsername string     `json:"receiverUsername"`
	Content          string     `json:"content"`
	SentAt           time.Time `json:"sentAt"`
	Read             bool      `json:"read"`
	ReadAt           *time.Time `json:"readAt,omitempty"`
}
