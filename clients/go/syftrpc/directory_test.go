package syftrpc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

func TestListRouters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/router/list", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		fmt.Fprint(w, `{"routers":[
			{"name":"DocsSearch","author":"a@x.org","published":true,
			 "services":[{"type":"search","enabled":true,"pricing":0}]},
			{"name":"TinyChat","author":"b@x.org","published":true,
			 "services":[{"type":"chat","enabled":true,"pricing":0.01},{"type":"search","enabled":true,"pricing":0.5}]}
		]}`)
	}))
	defer srv.Close()

	routers, err := NewClient(srv.URL + "/").ListRouters(context.Background())
	require.NoError(t, err)
	require.Len(t, routers, 2)
	assert.Equal(t, "DocsSearch", routers[0].Name)
	assert.Equal(t, 0.01, routers[1].Service(models.ServiceChat).Pricing)

	search := models.FilterRouters(routers, models.ServiceSearch)
	chat := models.FilterRouters(routers, models.ServiceChat)
	assert.Len(t, search, 2)
	require.Len(t, chat, 1)
	assert.Equal(t, "TinyChat", chat[0].Name)
}

func TestDirectoryErrorShaping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"message field", http.StatusBadRequest, `{"message":"bad router"}`, "bad router"},
		{"error field", http.StatusInternalServerError, `{"error":"database error"}`, "database error"},
		{"status line", http.StatusBadGateway, `not json`, "502 Bad Gateway"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Username(context.Background())
			require.Error(t, err)
			assert.True(t, ErrServer(err))

			var re *RequestError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.status, re.Status)
			assert.Equal(t, tc.message, re.Message)
		})
	}
}

func TestDirectoryTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).ListRouters(context.Background())
	require.Error(t, err)
	assert.True(t, ErrTransport(err))
}

func TestDirectoryMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"routers":`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListRouters(context.Background())
	assert.True(t, ErrTransport(err))
}

func TestServerURLResolvedOnceAndCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"url":"https://dispatch.example"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	assert.Equal(t, "https://dispatch.example", c.ServerURL(context.Background()))
	assert.Equal(t, "https://dispatch.example", c.ServerURL(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	c.ResetServerURL()
	c.ServerURL(context.Background())
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestServerURLFallsBackToDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.Equal(t, DefaultServerURL, NewClient(srv.URL).ServerURL(context.Background()))
}

func TestServerURLNotCachedWhenCallerCancels(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, `{"url":"https://real.example"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, DefaultServerURL, c.ServerURL(ctx))
	assert.Equal(t, "https://real.example", c.ServerURL(context.Background()))
	assert.Equal(t, "https://real.example", c.ServerURL(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
