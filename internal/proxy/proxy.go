// Package proxy forwards /api/proxy/* requests to the directory upstream.
package proxy

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
)

var errMissingHost = errors.New("upstream must be an absolute URL")

// Proxy relays method, headers, body and query to a single upstream and
// streams the upstream reply back unchanged.
type Proxy struct {
	upstream *url.URL
	rp       *httputil.ReverseProxy
	logger   zerolog.Logger
}

// New creates a proxy for the given upstream base URL.
func New(upstream string, logger zerolog.Logger) (*Proxy, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, &url.Error{Op: "parse", URL: upstream, Err: errMissingHost}
	}

	p := &Proxy{upstream: target, logger: logger}
	p.rp = &httputil.ReverseProxy{
		Rewrite:        p.rewrite,
		ModifyResponse: p.modifyResponse,
		ErrorHandler:   p.errorHandler,
	}
	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.rp.ServeHTTP(w, r)
}

// rewrite maps /api/proxy/{rest} to {upstream}/{rest}.
func (p *Proxy) rewrite(pr *httputil.ProxyRequest) {
	rest := chi.URLParam(pr.In, "*")
	pr.Out.URL.Path = "/" + strings.TrimPrefix(rest, "/")
	pr.Out.URL.RawPath = ""
	pr.SetURL(p.upstream)
	pr.SetXForwarded()

	p.logger.Debug().
		Str("method", pr.In.Method).
		Str("target", pr.Out.URL.String()).
		Msg("proxying request")
}

func (p *Proxy) modifyResponse(resp *http.Response) error {
	if resp.Header.Get("Content-Type") == "" {
		resp.Header.Set("Content-Type", "application/json")
	}
	metrics.ProxyRequests.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
	return nil
}

func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	p.logger.Error().Err(err).Str("path", r.URL.Path).Msg("proxy error")
	metrics.ProxyRequests.WithLabelValues("error").Inc()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	w.Write([]byte("Proxy error: " + err.Error()))
}
