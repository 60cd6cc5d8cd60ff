package models

import "time"

// Session is the per-user chat state owned by the orchestrator.
type Session struct {
	ID          string         `json:"id"`
	Messages    []ChatMessage  `json:"messages"`
	DataSources []string       `json:"data_sources"`
	ChatSource  string         `json:"chat_source"`
	Routers     []Router       `json:"routers"`      // last-loaded directory listing
	LastResults []SearchResult `json:"last_results"` // overwritten every turn
	Responding  bool           `json:"responding"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewSession creates an empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Messages:  []ChatMessage{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
