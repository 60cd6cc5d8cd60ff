package syftrpc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSleeper records sleeps instead of waiting.
type fakeSleeper struct {
	calls []time.Duration
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func newPollClient(t *testing.T, handler http.HandlerFunc) (*Client, *fakeSleeper) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	sleeper := &fakeSleeper{}
	c := NewClient(srv.URL)
	c.serverURL = srv.URL
	c.Polling.Sleeper = sleeper
	return c, sleeper
}

func TestPollSucceedsAtAttemptK(t *testing.T) {
	const k = 4
	var calls int32

	c, sleeper := newPollClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < k {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		fmt.Fprint(w, `{"data":{"message":{"status_code":200,"body":{"ok":true}}}}`)
	})

	var states []PollState
	c.Polling.OnAttempt = func(_ int, s PollState) { states = append(states, s) }

	body, err := c.Poll(context.Background(), "/api/v1/send/poll/abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.EqualValues(t, k, atomic.LoadInt32(&calls))
	assert.Len(t, sleeper.calls, k-1)
	for _, d := range sleeper.calls {
		assert.Equal(t, 2*time.Second, d)
	}
	assert.Equal(t, []PollState{PollPending, PollPending, PollPending, PollSucceeded}, states)
}

func TestPollExhaustion(t *testing.T) {
	var calls int32
	c, sleeper := newPollClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusAccepted)
	})

	_, err := c.Poll(context.Background(), "poll/abc")
	require.Error(t, err)
	assert.True(t, ErrTimeout(err))
	assert.False(t, ErrServer(err))
	assert.EqualValues(t, 20, atomic.LoadInt32(&calls))
	assert.Len(t, sleeper.calls, 19)
}

func TestPollTreatsEmbeddedNon200AsPending(t *testing.T) {
	var calls int32
	c, _ := newPollClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `{"data":{"message":{"status_code":202,"body":null}}}`)
			return
		}
		fmt.Fprint(w, `{"data":{"message":{"status_code":200,"body":"done"}}}`)
	})
	c.Polling.MaxAttempts = 3

	body, err := c.Poll(context.Background(), "poll/abc")
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(body))
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestPollTreatsUndecodableOKAsPending(t *testing.T) {
	var calls int32
	c, sleeper := newPollClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			fmt.Fprint(w, `<html>warming up</html>`)
			return
		}
		fmt.Fprint(w, `{"data":{"message":{"status_code":200,"body":"done"}}}`)
	})
	c.Polling.MaxAttempts = 3

	var states []PollState
	c.Polling.OnAttempt = func(_ int, s PollState) { states = append(states, s) }

	body, err := c.Poll(context.Background(), "poll/abc")
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(body))
	assert.Equal(t, []PollState{PollPending, PollSucceeded}, states)
	assert.Len(t, sleeper.calls, 1)
}

func TestPollFailsImmediatelyOnServerError(t *testing.T) {
	var calls int32
	c, sleeper := newPollClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"request not found"}`)
	})

	_, err := c.Poll(context.Background(), "poll/abc")
	require.Error(t, err)
	assert.True(t, ErrServer(err))
	assert.Contains(t, err.Error(), "request not found")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Empty(t, sleeper.calls)
}

func TestPollStopsOnContextCancel(t *testing.T) {
	c, _ := newPollClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	ctx, cancel := context.WithCancel(context.Background())
	c.Polling.Sleeper = SleeperFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	_, err := c.Poll(ctx, "poll/abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnvelopeMessagePayloadUnwrapsJSONString(t *testing.T) {
	m := &EnvelopeMessage{StatusCode: 200, Body: []byte(`"{\"results\":[]}"`)}
	assert.JSONEq(t, `{"results":[]}`, string(m.Payload()))

	plain := &EnvelopeMessage{StatusCode: 200, Body: []byte(`"hello"`)}
	assert.Equal(t, `"hello"`, string(plain.Payload()))
}
