package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenMined/network-ensemble-extras/clients/go/syftrpc"
	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

var cliRouters = []models.Router{
	{Name: "DocsSearch", Author: "a@x", Published: true,
		Services: []models.Service{{Type: models.ServiceSearch, Enabled: true, Pricing: 0.01}}},
	{Name: "TinyChat", Author: "b@x", Published: true,
		Services: []models.Service{{Type: models.ServiceChat, Enabled: true}}},
}

// newBackend serves the directory and answers every dispatch immediately.
func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/router/list", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"routers": cliRouters})
	})
	mux.HandleFunc("/username", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"username":"guest@syft.org"}`))
	})
	var srv *httptest.Server
	mux.HandleFunc("/sburl", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"url": srv.URL})
	})
	mux.HandleFunc("/api/v1/send/msg", func(w http.ResponseWriter, r *http.Request) {
		var body string
		if strings.Contains(r.URL.Query().Get("x-syft-url"), "/rpc/search") {
			body = `[{"content":"X is a letter.","metadata":{"filename":"x.md"}}]`
		} else {
			body = `{"message":{"role":"assistant","content":"X is the 24th letter."}}`
		}
		json.NewEncoder(w).Encode(map[string]any{
			"request_id": "r1",
			"data":       map[string]any{"message": map[string]any{"status_code": 200, "body": json.RawMessage(body)}},
		})
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoutersCommand(t *testing.T) {
	srv := newBackend(t)

	out, err := runCLI(t, "", "routers", "--directory", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "DocsSearch")
	assert.Contains(t, out, "search $0.01")
	assert.Contains(t, out, "chat free")

	out, err = runCLI(t, "", "routers", "--directory", srv.URL, "--type", "chat")
	require.NoError(t, err)
	assert.NotContains(t, out, "DocsSearch")
	assert.Contains(t, out, "TinyChat")

	_, err = runCLI(t, "", "routers", "--directory", srv.URL, "--type", "embed")
	assert.True(t, syftrpc.ErrValidation(err))
}

func TestWhoamiCommand(t *testing.T) {
	srv := newBackend(t)

	out, err := runCLI(t, "", "whoami", "--directory", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "guest@syft.org")
	assert.Contains(t, out, srv.URL)
}

func TestSearchCommand(t *testing.T) {
	srv := newBackend(t)

	out, err := runCLI(t, "", "search", "DocsSearch", "what", "is", "X", "--directory", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "x.md")
	assert.Contains(t, out, "X is a letter.")

	_, err = runCLI(t, "", "search", "TinyChat", "hi", "--directory", srv.URL)
	assert.True(t, syftrpc.ErrValidation(err))
}

func TestChatCommand(t *testing.T) {
	srv := newBackend(t)

	out, err := runCLI(t, "/sources\nWhat is X?\n/reset\n/quit\n",
		"chat", "-c", "TinyChat", "-d", "DocsSearch", "--directory", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Cost per message: $0.01")
	assert.Contains(t, out, "X is the 24th letter.")
	assert.Contains(t, out, "[1] x.md")
	assert.Contains(t, out, "Conversation cleared.")
}

func TestChatCommandRejectsUnknownSource(t *testing.T) {
	srv := newBackend(t)

	_, err := runCLI(t, "", "chat", "-c", "DocsSearch", "--directory", srv.URL)
	assert.True(t, syftrpc.ErrValidation(err))
}

func TestRouterLine(t *testing.T) {
	line := routerLine(models.Router{Name: "Off", Author: "o@x",
		Services: []models.Service{{Type: models.ServiceChat, Enabled: false}}})
	assert.Contains(t, line, "no services")
}

func TestPrintReplyPrefersLinks(t *testing.T) {
	setColor(false)
	var buf bytes.Buffer
	printReply(&buf, chat.MessageView{
		Content:   "answer",
		Citations: []chat.CitationView{{Label: "x.md"}, {Label: "https://d.org/a", Href: "https://d.org/a"}},
	})
	assert.Contains(t, buf.String(), "[1] x.md")
	assert.Contains(t, buf.String(), "[2] https://d.org/a")
}
