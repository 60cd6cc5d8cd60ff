package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// RouterListResponse is the directory listing.
type RouterListResponse struct {
	Routers []models.Router `json:"routers"`
}

// ListRouters handles GET /router/list. Only published routers are listed.
func (h *Handler) ListRouters(w http.ResponseWriter, r *http.Request) {
	routers, err := h.routers.ListRouters(r.Context(), true)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	h.JSON(w, http.StatusOK, RouterListResponse{Routers: routers})
}

// Username handles GET /username.
func (h *Handler) Username(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{"username": h.cfg.Username})
}

// SyftBoxURL handles GET /sburl.
func (h *Handler) SyftBoxURL(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{"url": h.cfg.SyftBoxURL})
}

// UpsertRouter handles POST /router.
func (h *Handler) UpsertRouter(w http.ResponseWriter, r *http.Request) {
	var router models.Router
	if err := json.NewDecoder(r.Body).Decode(&router); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	router.Name = sanitizeName(router.Name)
	router.Author = sanitizeName(router.Author)
	if router.Name == "" || router.Author == "" {
		h.Error(w, http.StatusBadRequest, "name and author are required")
		return
	}
	for _, s := range router.Services {
		if s.Type != models.ServiceSearch && s.Type != models.ServiceChat {
			h.Error(w, http.StatusBadRequest, fmt.Sprintf("unknown service type %q", s.Type))
			return
		}
		if s.Pricing < 0 {
			h.Error(w, http.StatusBadRequest, "pricing must not be negative")
			return
		}
	}

	if err := h.routers.UpsertRouter(r.Context(), &router); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to save router")
		return
	}
	h.JSON(w, http.StatusCreated, router)
}
