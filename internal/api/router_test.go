package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/config"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
	"github.com/OpenMined/network-ensemble-extras/internal/proxy"
	"github.com/OpenMined/network-ensemble-extras/internal/store"
)

type nopDirectory struct{}

func (nopDirectory) ListRouters(ctx context.Context) ([]models.Router, error) { return nil, nil }

type nopDispatcher struct{}

func (nopDispatcher) Search(ctx context.Context, router, author, query string) ([]models.SearchResult, error) {
	return nil, nil
}

func (nopDispatcher) Chat(ctx context.Context, router, author string, messages []models.ChatMessage) (*models.ChatMessage, error) {
	m := models.NewMessage(models.RoleAssistant, "ok")
	return &m, nil
}

func newTestRouter(t *testing.T, upstream string) http.Handler {
	t.Helper()
	ctx := context.Background()

	db, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "routers.db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.UpsertRouter(ctx, &models.Router{Name: "TinyChat", Author: "b@x.org", Published: true,
		Services: []models.Service{{Type: models.ServiceChat, Enabled: true}}}))

	deps := Deps{
		Routers:  db,
		Sessions: store.NewMemoryStore(),
		Chat:     chat.NewOrchestrator(nopDirectory{}, nopDispatcher{}, chat.Options{Logger: zerolog.Nop()}),
	}
	if upstream != "" {
		px, err := proxy.New(upstream, zerolog.Nop())
		require.NoError(t, err)
		deps.Proxy = px
	}
	return NewRouter(zerolog.Nop(), &config.Config{Username: "guest@syft.org"}, deps)
}

func TestRouterEndpoints(t *testing.T) {
	r := newTestRouter(t, "")

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api", http.StatusOK},
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/router/list", http.StatusOK},
		{http.MethodGet, "/username", http.StatusOK},
		{http.MethodGet, "/api/sessions/missing", http.StatusNotFound},
		{http.MethodGet, "/api/proxy/sburl", http.StatusNotFound},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestRouterListsSeededRouters(t *testing.T) {
	r := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/router/list", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Routers []models.Router `json:"routers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Routers, 1)
	assert.Equal(t, "TinyChat", body.Routers[0].Name)
}

func TestRouterRejectsNonJSON(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/router", strings.NewReader("name=x"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRouterMountsProxy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(r.URL.Path))
	}))
	defer upstream.Close()

	r := newTestRouter(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/proxy/api/v1/send/msg", strings.NewReader("raw"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/v1/send/msg", rec.Body.String())
}
