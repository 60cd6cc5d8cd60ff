package syftrpc

import (
	"context"
	"net/http"

	"github.com/OpenMined/network-ensemble-extras/internal/models"
)

// RouterListResponse is the response from the router listing endpoint.
type RouterListResponse struct {
	Routers []models.Router `json:"routers"`
}

// ListRouters fetches the routers known to the directory.
func (c *Client) ListRouters(ctx context.Context) ([]models.Router, error) {
	var resp RouterListResponse
	if err := c.doJSON(ctx, http.MethodGet, c.directoryURL("/router/list"), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Routers == nil {
		resp.Routers = []models.Router{}
	}
	return resp.Routers, nil
}

// Username returns the caller identity known to the directory.
func (c *Client) Username(ctx context.Context) (string, error) {
	var resp struct {
		Username string `json:"username"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.directoryURL("/username"), nil, &resp); err != nil {
		return "", err
	}
	return resp.Username, nil
}

// SyftBoxURL returns the dispatch server URL advertised by the directory.
func (c *Client) SyftBoxURL(ctx context.Context) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.directoryURL("/sburl"), nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// ServerURL returns the dispatch server URL, resolving it on first use.
// Resolution failures fall back to DefaultServerURL. The result is cached
// until ResetServerURL is called, unless ctx ended before resolution finished.
func (c *Client) ServerURL(ctx context.Context) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.serverURL != "" {
		return c.serverURL
	}

	u, err := c.SyftBoxURL(ctx)
	if err != nil && ctx.Err() != nil {
		// The caller gave up; the directory may be fine, so resolve again next time.
		c.Logger.Debug().Err(err).Msg("server url resolution canceled")
		return DefaultServerURL
	}
	if err != nil || u == "" {
		c.Logger.Warn().Err(err).Str("fallback", DefaultServerURL).Msg("server url resolution failed")
		u = DefaultServerURL
	}
	c.serverURL = u
	return u
}

// ResetServerURL clears the cached dispatch server URL.
func (c *Client) ResetServerURL() {
	c.mu.Lock()
	c.serverURL = ""
	c.mu.Unlock()
}
