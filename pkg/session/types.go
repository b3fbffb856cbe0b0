// Package session holds per-identity conversation state.
// A conversation is an append-only message log that starts with exactly one
// system grounding message and grows for the lifetime of the process.
package session

import (
	"time"
)

// Role is the author of a message as seen by the completion service.
type Role string

const (
	// RoleSystem marks instructions authored by the service.
	RoleSystem Role = "system"
	// RoleUser marks messages authored on behalf of the client.
	RoleUser Role = "user"
	// RoleAssistant marks completion output.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Kind records why a message was appended. It is bookkeeping for people
// reading raw history and is never sent to the completion service.
type Kind string

const (
	// KindGrounding is the leading system message of every conversation.
	KindGrounding Kind = "grounding"
	// KindAnnouncement is appended when a dataset is uploaded.
	KindAnnouncement Kind = "announcement"
	// KindReminder is the dataset context re-injected on every turn.
	KindReminder Kind = "reminder"
	// KindTurn is a user question or an assistant answer.
	KindTurn Kind = "turn"
)

// Message is a single entry in a conversation.
// Messages are immutable once appended.
type Message struct {
	// ID is assigned by the store on append.
	ID string `json:"id"`
	// Role is the author.
	Role Role `json:"role"`
	// Content is opaque text.
	Content string `json:"content"`
	// Kind explains why the message exists.
	Kind Kind `json:"kind,omitempty"`
	// CreatedAt is assigned by the store on append.
	CreatedAt time.Time `json:"createdAt"`
}

// NewMessage builds an unsaved message.
func NewMessage(role Role, kind Kind, content string) Message {
	return Message{Role: role, Kind: kind, Content: content}
}

// Metadata summarises a conversation without loading its messages.
type Metadata struct {
	Identity     string    `json:"identity"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}
