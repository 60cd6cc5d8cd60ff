package syftrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// WireMessage is a ChatMessage as routers expect it.
type WireMessage struct {
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

// ChatRequest is the body submitted to a chat router.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []WireMessage `json:"messages"`
}

// NewChatRequest builds the chat body, dropping render-only fields.
func NewChatRequest(model string, messages []models.ChatMessage) ChatRequest {
	req := ChatRequest{Model: model, Messages: make([]WireMessage, 0, len(messages))}
	for _, m := range messages {
		req.Messages = append(req.Messages, WireMessage{Role: m.Role, Content: m.Content})
	}
	return req
}

// chatResponse accepts both {message} and OpenAI-style {choices[].message}.
type chatResponse struct {
	Message *WireMessage `json:"message"`
	Choices []struct {
		Message WireMessage `json:"message"`
	} `json:"choices"`
}

// Search asks a router for passages matching query.
func (c *Client) Search(ctx context.Context, router, author, query string) ([]models.SearchResult, error) {
	payload, err := c.dispatch(ctx, searchURL(author, router, query), nil)
	if err != nil {
		return nil, err
	}
	return decodeSearchResults(payload)
}

// Chat sends a conversation to a router and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, router, author string, messages []models.ChatMessage) (*models.ChatMessage, error) {
	body, err := json.Marshal(NewChatRequest(c.Model, messages))
	if err != nil {
		return nil, err
	}

	payload, err := c.dispatch(ctx, RoutedURL(author, router, ActionChat), body)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, transportError(fmt.Errorf("decode chat response: %w", err))
	}

	var reply *WireMessage
	switch {
	case resp.Message != nil:
		reply = resp.Message
	case len(resp.Choices) > 0:
		reply = &resp.Choices[0].Message
	default:
		return nil, &RequestError{Kind: KindServer, Message: "chat response contained no message", Detail: payload}
	}

	msg := models.NewMessage(models.RoleAssistant, reply.Content)
	return &msg, nil
}

func decodeSearchResults(payload json.RawMessage) ([]models.SearchResult, error) {
	var results []models.SearchResult
	if err := json.Unmarshal(payload, &results); err == nil {
		return results, nil
	}

	var wrapped struct {
		Results []models.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return nil, transportError(fmt.Errorf("decode search response: %w", err))
	}
	if wrapped.Results == nil {
		wrapped.Results = []models.SearchResult{}
	}
	return wrapped.Results, nil
}

// dispatch submits a routed message and returns the router's reply body,
// polling when the backend answers with a handle.
func (c *Client) dispatch(ctx context.Context, routed string, body []byte) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, transportError(err)
		}
	}

	server := c.ServerURL(ctx)
	resp, err := c.do(ctx, http.MethodPost, submitURL(server, routed, c.From), body)
	if err != nil {
		return nil, err
	}
	if resp.Status < 200 || resp.Status > 299 {
		return nil, serverError(resp)
	}

	var env Envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, transportError(fmt.Errorf("decode send response: %w", err))
	}

	if env.Data.PollURL != "" {
		c.Logger.Debug().
			Str("routed_url", routed).
			Str("request_id", env.RequestID).
			Str("poll_url", env.Data.PollURL).
			Msg("dispatch accepted, polling")
		return c.Poll(ctx, env.Data.PollURL)
	}

	if msg := env.Data.Message; msg != nil {
		if msg.StatusCode != 0 && msg.StatusCode != http.StatusOK {
			return nil, serverError(&response{
				Status:     msg.StatusCode,
				StatusLine: http.StatusText(msg.StatusCode),
				Body:       msg.Payload(),
			})
		}
		return msg.Payload(), nil
	}

	return json.RawMessage(resp.Body), nil
}
