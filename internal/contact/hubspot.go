// Package contact submits the data-owner contact form to HubSpot.
package contact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// DefaultBaseURL is the HubSpot Forms API host.
const DefaultBaseURL = "https://api.hsforms.com"

// userTypeField tags every submission from this site.
const (
	userTypeField = "user_type"
	userTypeValue = "data_owner"
)

// ErrNoFields is returned when a submission carries no form fields.
var ErrNoFields = errors.New("submission has no fields")

// Submission is a filled-in contact form.
type Submission struct {
	Fields   map[string]string `json:"fields"`
	HUTK     string            `json:"hutk,omitempty"` // hubspotutk cookie
	PageURI  string            `json:"page_uri,omitempty"`
	PageName string            `json:"page_name,omitempty"`
}

// Result is HubSpot's reply to an accepted submission.
type Result struct {
	InlineMessage string `json:"inlineMessage"`
	RedirectURI   string `json:"redirectUri,omitempty"`
}

// UpstreamError is a non-2xx reply from HubSpot.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("hubspot submission failed: %d %s", e.Status, e.Body)
}

type field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type pageContext struct {
	HUTK     string `json:"hutk,omitempty"`
	PageURI  string `json:"pageUri,omitempty"`
	PageName string `json:"pageName,omitempty"`
}

type payload struct {
	Fields      []field     `json:"fields"`
	Context     pageContext `json:"context"`
	SubmittedAt int64       `json:"submittedAt"`
}

// Client posts submissions to one HubSpot form.
type Client struct {
	BaseURL    string
	PortalID   string
	FormGUID   string
	HTTPClient *http.Client
	now        func() time.Time
}

// NewClient creates a client for the given portal and form.
func NewClient(portalID, formGUID string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		PortalID:   portalID,
		FormGUID:   formGUID,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// Submit forwards s to HubSpot.
func (c *Client) Submit(ctx context.Context, s Submission) (*Result, error) {
	if len(s.Fields) == 0 {
		return nil, ErrNoFields
	}

	body, err := json.Marshal(c.buildPayload(s))
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/submissions/v3/integration/submit/%s/%s", c.BaseURL, c.PortalID, c.FormGUID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(data)}
	}

	var result Result
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, err
		}
	}
	return &result, nil
}

// buildPayload orders fields by name and appends the user type tag.
func (c *Client) buildPayload(s Submission) payload {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		if name != userTypeField {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	fields := make([]field, 0, len(names)+1)
	for _, name := range names {
		fields = append(fields, field{Name: name, Value: s.Fields[name]})
	}
	fields = append(fields, field{Name: userTypeField, Value: userTypeValue})

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	return payload{
		Fields:      fields,
		Context:     pageContext{HUTK: s.HUTK, PageURI: s.PageURI, PageName: s.PageName},
		SubmittedAt: now().UnixMilli(),
	}
}
