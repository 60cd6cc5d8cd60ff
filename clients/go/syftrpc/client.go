// Package syftrpc provides a client for the router directory and the
// asynchronous message-passing backend that search and chat routers sit behind.
package syftrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultServerURL is used for dispatch when the directory cannot resolve one.
	DefaultServerURL = "https://syftbox.net"
	// DefaultFrom is the caller identity attached to every dispatched message.
	DefaultFrom = "guest@syft.org"
	// DefaultModel is the model id sent with chat requests.
	DefaultModel = "tinyllama:latest"

	ActionSearch = "search"
	ActionChat   = "chat"

	routedScheme = "syft"
	sendPath     = "/api/v1/send/msg"
)

// Client talks to the local directory backend and to the dispatch server.
type Client struct {
	BaseURL    string // directory backend
	From       string
	Model      string
	HTTPClient *http.Client
	Polling    PollConfig
	Logger     zerolog.Logger

	limiter *rate.Limiter

	mu        sync.Mutex
	serverURL string
}

// NewClient creates a new client for the directory at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		From:       DefaultFrom,
		Model:      DefaultModel,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Polling:    DefaultPollConfig(),
		Logger:     zerolog.Nop(),
	}
}

// SetRateLimit throttles dispatch submissions to perSecond requests with the
// given burst. A non-positive rate removes the limit.
func (c *Client) SetRateLimit(perSecond float64, burst int) {
	if perSecond <= 0 {
		c.limiter = nil
		return
	}
	if burst < 1 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// response is a fully read HTTP response.
type response struct {
	Status     int
	StatusLine string
	Body       []byte
}

// errorBody is the shape servers use to describe failures.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// do performs an HTTP request. Transport failures come back as KindTransport.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (*response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(err)
	}

	return &response{Status: resp.StatusCode, StatusLine: resp.Status, Body: respBody}, nil
}

// serverError shapes a non-successful response into a KindServer error.
func serverError(resp *response) error {
	re := &RequestError{Kind: KindServer, Status: resp.Status}

	var eb errorBody
	if err := json.Unmarshal(resp.Body, &eb); err == nil {
		switch {
		case eb.Message != "":
			re.Message = eb.Message
		case eb.Error != "":
			re.Message = eb.Error
		case eb.Detail != "":
			re.Message = eb.Detail
		}
		if json.Valid(resp.Body) {
			re.Detail = json.RawMessage(resp.Body)
		}
	}
	if re.Message == "" {
		re.Message = resp.StatusLine
		if re.Message == "" {
			re.Message = http.StatusText(resp.Status)
		}
	}
	return re
}

// doJSON performs a request and decodes a 2xx JSON body into out.
func (c *Client) doJSON(ctx context.Context, method, url string, body []byte, out interface{}) error {
	resp, err := c.do(ctx, method, url, body)
	if err != nil {
		return err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return serverError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return transportError(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) directoryURL(path string) string {
	return JoinURLs(strings.TrimSpace(c.BaseURL), path)
}
