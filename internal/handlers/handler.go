package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/config"
	"github.com/OpenMined/network-ensemble-extras/internal/contact"
	"github.com/OpenMined/network-ensemble-extras/internal/store"
)

// emailRegex validates email addresses per RFC 5322 (simplified).
var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ContactSubmitter forwards contact form submissions.
type ContactSubmitter interface {
	Submit(ctx context.Context, s contact.Submission) (*contact.Result, error)
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	routers  store.DataStore
	sessions store.SessionStore
	chat     *chat.Orchestrator
	contact  ContactSubmitter // nil when the form is not configured
	cfg      *config.Config
}

// NewHandler creates a new Handler with the given stores and services.
func NewHandler(routers store.DataStore, sessions store.SessionStore, orch *chat.Orchestrator, cs ContactSubmitter, cfg *config.Config) *Handler {
	return &Handler{
		routers:  routers,
		sessions: sessions,
		chat:     orch,
		contact:  cs,
		cfg:      cfg,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if len(name) > 100 {
		name = name[:100]
	}

	return name
}

// isValidEmail validates email addresses using RFC 5322 pattern.
func isValidEmail(email string) bool {
	if email == "" {
		return true // Empty is valid (optional field)
	}
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}
