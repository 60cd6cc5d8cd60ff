package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/OpenMined/network-ensemble-extras/internal/contact"
	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
)

// ContactResponse reports an accepted submission.
type ContactResponse struct {
	Status        string `json:"status"`
	InlineMessage string `json:"inline_message,omitempty"`
}

// Contact handles POST /contact.
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	if h.contact == nil {
		h.Error(w, http.StatusServiceUnavailable, "contact form is not configured")
		return
	}

	var req contact.Submission
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	for name, value := range req.Fields {
		req.Fields[name] = strings.TrimSpace(value)
	}
	if !isValidEmail(req.Fields["email"]) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	res, err := h.contact.Submit(r.Context(), req)
	if err != nil {
		if errors.Is(err, contact.ErrNoFields) {
			metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
			h.Error(w, http.StatusBadRequest, "fields are required")
			return
		}
		metrics.ContactSubmissions.WithLabelValues("failed").Inc()
		h.Error(w, http.StatusBadGateway, "There was an error submitting your request. Please try again.")
		return
	}

	metrics.ContactSubmissions.WithLabelValues("ok").Inc()
	h.JSON(w, http.StatusOK, ContactResponse{Status: "ok", InlineMessage: res.InlineMessage})
}
