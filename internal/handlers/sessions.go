package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/OpenMined/network-ensemble-extras/clients/go/syftrpc"
	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
	"github.com/OpenMined/network-ensemble-extras/internal/store"
)

const maxMessageLength = 8000

// SetSourcesRequest selects the routers a session uses.
type SetSourcesRequest struct {
	DataSources []string `json:"data_sources"`
	ChatSource  string   `json:"chat_source"`
	Refresh     bool     `json:"refresh,omitempty"` // reload the directory first
}

// SendMessageRequest is one user turn.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SessionResponse wraps a rendered session and the error of the last operation.
type SessionResponse struct {
	Session chat.View `json:"session"`
	Error   string    `json:"error,omitempty"`
}

// CreateSession handles POST /api/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	metrics.SessionsCreated.Inc()

	// A failed listing is reported through the session error; the session is
	// still usable once the directory recovers.
	h.chat.LoadRouters(r.Context(), s)

	if err := h.sessions.SaveSession(r.Context(), s); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	h.JSON(w, http.StatusCreated, SessionResponse{Session: chat.Render(s), Error: s.Error})
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.JSON(w, http.StatusOK, SessionResponse{Session: chat.Render(s), Error: s.Error})
}

// SetSources handles PUT /api/sessions/{id}/sources.
func (h *Handler) SetSources(w http.ResponseWriter, r *http.Request) {
	var req SetSourcesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	unlock, ok := h.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()

	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	if req.Refresh || len(s.Routers) == 0 {
		if err := h.chat.LoadRouters(r.Context(), s); err != nil {
			h.saveAndRespond(w, r, s, http.StatusBadGateway)
			return
		}
	}
	if h.cfg.MaxDataSources > 0 && len(req.DataSources) > h.cfg.MaxDataSources {
		h.Error(w, http.StatusBadRequest, fmt.Sprintf("at most %d data sources can be selected", h.cfg.MaxDataSources))
		return
	}
	if err := h.chat.SetSources(s, req.DataSources, req.ChatSource); err != nil {
		h.Error(w, http.StatusBadRequest, chat.ErrorText(err))
		return
	}
	h.saveAndRespond(w, r, s, http.StatusOK)
}

// SendMessage handles POST /api/sessions/{id}/messages.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if utf8.RuneCountInString(req.Content) > maxMessageLength {
		h.Error(w, http.StatusBadRequest, "message is too long")
		return
	}

	unlock, ok := h.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()

	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if h.cfg.PollMaxAttempts > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.cfg.TurnBudget())
		defer cancel()
	}

	_, err := h.chat.Send(ctx, s, req.Content)
	h.saveAndRespond(w, r, s, sendStatus(err))
}

// ResetSession handles DELETE /api/sessions/{id}/messages.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	unlock, ok := h.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()

	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	h.chat.Reset(s)
	h.saveAndRespond(w, r, s, http.StatusOK)
}

// sendStatus maps a turn outcome to an HTTP status.
func sendStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	switch syftrpc.KindOf(err) {
	case syftrpc.KindValidation:
		return http.StatusBadRequest
	case syftrpc.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (h *Handler) lockSession(w http.ResponseWriter, r *http.Request) (func(), bool) {
	unlock, err := h.sessions.Lock(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrSessionBusy) {
			h.Error(w, http.StatusConflict, "a message is already being answered")
			return nil, false
		}
		h.Error(w, http.StatusInternalServerError, "session store error")
		return nil, false
	}
	return unlock, true
}

func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	s, err := h.sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "session store error")
		return nil, false
	}
	if s == nil {
		h.Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func (h *Handler) saveAndRespond(w http.ResponseWriter, r *http.Request, s *models.Session, status int) {
	// The turn already ran; keep its outcome even if the caller went away.
	if err := h.sessions.SaveSession(context.WithoutCancel(r.Context()), s); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	h.JSON(w, status, SessionResponse{Session: chat.Render(s), Error: s.Error})
}
