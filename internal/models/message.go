package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a conversation.
type ChatMessage struct {
	ID        string     `json:"id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	Citations []Citation `json:"citations,omitempty"` // render-only
}

// Citation groups the passages a reply drew from one file.
type Citation struct {
	Filename string   `json:"filename"`
	Snippets []string `json:"snippets"`
}

// NewMessage creates a message with a time-ordered ID.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}
