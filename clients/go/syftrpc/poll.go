package syftrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PollState is the state of a dispatched operation as seen by the poll loop.
type PollState int

const (
	PollPending PollState = iota
	PollSucceeded
	PollFailed
	PollTimedOut
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSucceeded:
		return "succeeded"
	case PollFailed:
		return "failed"
	case PollTimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("PollState(%d)", int(s))
}

// Sleeper waits between poll attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// PollConfig controls the poll loop. Delays are fixed; there is no backoff.
type PollConfig struct {
	MaxAttempts int
	Interval    time.Duration
	Sleeper     Sleeper
	// OnAttempt, if set, is called after every attempt with the state it produced.
	OnAttempt func(attempt int, state PollState)
}

// DefaultPollConfig returns 20 attempts, 2s apart.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		MaxAttempts: 20,
		Interval:    2 * time.Second,
		Sleeper:     timerSleeper{},
	}
}

// Envelope is the body returned by the send and poll endpoints.
type Envelope struct {
	RequestID string       `json:"request_id,omitempty"`
	Data      EnvelopeData `json:"data"`
	Message   string       `json:"message,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// EnvelopeData carries either a poll handle or a completed message.
type EnvelopeData struct {
	PollURL string           `json:"poll_url,omitempty"`
	Message *EnvelopeMessage `json:"message,omitempty"`
}

// EnvelopeMessage is the router's reply as relayed by the backend.
type EnvelopeMessage struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// Payload returns the router's reply body. Bodies relayed as JSON strings
// holding JSON are unwrapped.
func (m *EnvelopeMessage) Payload() json.RawMessage {
	if m == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(m.Body, &s); err == nil && json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return m.Body
}

// classify maps one poll response onto the state machine.
func classify(resp *response) (PollState, *EnvelopeMessage, error) {
	switch resp.Status {
	case http.StatusAccepted:
		return PollPending, nil, nil
	case http.StatusOK:
		var env Envelope
		// A 200 without a readable success envelope has not met the success
		// condition yet.
		if err := json.Unmarshal(resp.Body, &env); err != nil {
			return PollPending, nil, nil
		}
		if env.Data.Message != nil && env.Data.Message.StatusCode == http.StatusOK {
			return PollSucceeded, env.Data.Message, nil
		}
		return PollPending, nil, nil
	}
	return PollFailed, nil, serverError(resp)
}

// Poll queries handle until the operation completes, fails, or the attempt
// budget runs out. It returns the router's reply body on success.
func (c *Client) Poll(ctx context.Context, handle string) (json.RawMessage, error) {
	cfg := c.Polling
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPollConfig().MaxAttempts
	}
	if cfg.Sleeper == nil {
		cfg.Sleeper = timerSleeper{}
	}

	url := JoinURLs(c.ServerURL(ctx), handle)
	report := func(attempt int, state PollState) {
		if cfg.OnAttempt != nil {
			cfg.OnAttempt(attempt, state)
		}
	}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		resp, err := c.do(ctx, http.MethodGet, url, nil)
		if err != nil {
			report(attempt, PollFailed)
			return nil, err
		}

		state, msg, err := classify(resp)
		report(attempt, state)

		switch state {
		case PollSucceeded:
			c.Logger.Debug().Str("handle", handle).Int("attempt", attempt).Msg("poll completed")
			return msg.Payload(), nil
		case PollFailed:
			return nil, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		if err := cfg.Sleeper.Sleep(ctx, cfg.Interval); err != nil {
			return nil, transportError(err)
		}
	}

	report(cfg.MaxAttempts, PollTimedOut)
	return nil, &RequestError{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("no result after %d attempts; the request may still be processing", cfg.MaxAttempts),
	}
}
