package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/OpenMined/network-ensemble-extras/internal/metrics"
)

const (
	violationThreshold = 10
	violationWindow    = time.Hour
	blockDuration      = 24 * time.Hour
)

// RateLimit caps requests matching Method and Prefix. An empty Method matches
// every method. KeyFunc picks the bucket a request is counted against.
type RateLimit struct {
	Method   string
	Prefix   string
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

func (l *RateLimit) matches(r *http.Request) bool {
	return (l.Method == "" || l.Method == r.Method) && strings.HasPrefix(r.URL.Path, l.Prefix)
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // block an IP after repeated violations
}

// RateLimiter counts requests per key in fixed Redis windows.
type RateLimiter struct {
	client    *redis.Client
	limits    []RateLimit // first match wins
	allowed   []netip.Prefix
	logger    zerolog.Logger
	autoBlock bool
	now       func() time.Time
}

// quota is the outcome of counting one request.
type quota struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

// DefaultLimits are the per-endpoint limits, most specific first. Each chat
// turn fans out to one dispatch per data source, so sends are the tightest.
func DefaultLimits() []RateLimit {
	return []RateLimit{
		{http.MethodPost, "/api/sessions/", 30, time.Minute, sessionKey},
		{http.MethodPut, "/api/sessions/", 60, time.Minute, sessionKey},
		{http.MethodDelete, "/api/sessions/", 60, time.Minute, sessionKey},
		{http.MethodPost, "/api/sessions", 20, time.Hour, ipKey},
		{http.MethodGet, "/api/sessions/", 240, time.Minute, ipKey},
		{http.MethodPost, "/contact", 5, time.Hour, ipKey},
		{http.MethodPost, "/router", 30, time.Hour, ipKey},
		{http.MethodGet, "/router/list", 120, time.Minute, ipKey},
		{"", "/api/proxy/", 120, time.Minute, ipKey},
	}
}

// NewRateLimiter creates a rate limiter over client using DefaultLimits.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	allowed, invalid := parseWhitelist(cfg.Whitelist)
	for _, entry := range invalid {
		logger.Warn().Str("entry", entry).Msg("ignoring invalid whitelist entry")
	}
	if len(allowed) > 0 {
		logger.Info().Int("entries", len(allowed)).Msg("rate limit whitelist configured")
	}

	return &RateLimiter{
		client:    client,
		limits:    DefaultLimits(),
		allowed:   allowed,
		logger:    logger,
		autoBlock: cfg.AutoBlockEnabled,
		now:       time.Now,
	}
}

// parseWhitelist turns IPs and CIDRs into prefixes. A bare IP becomes a
// single-address prefix. Unparseable entries are returned separately.
func parseWhitelist(entries []string) (prefixes []netip.Prefix, invalid []string) {
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		invalid = append(invalid, entry)
	}
	return prefixes, invalid
}

func (rl *RateLimiter) isWhitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.allowed {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// sessionKey limits per session and client IP, so one client cannot
// exhaust another's budget by guessing its session ID.
func sessionKey(r *http.Request) string {
	id, _, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/api/sessions/"), "/")
	return "ratelimit:session:" + id + ":" + RealIP(r)
}

// RealIP returns the client address: the first X-Forwarded-For hop, then
// X-Real-IP, then the connection's remote host.
func RealIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// windowStart aligns now to the start of its window. Windows are aligned to
// the Unix epoch so every replica agrees on the bucket boundaries.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

// bucketKey names the Redis counter for key in the window starting at start.
func bucketKey(key string, start time.Time) string {
	return key + ":" + strconv.FormatInt(start.Unix(), 10)
}

// retryAfter is the whole number of seconds until resetAt, at least one.
func retryAfter(now, resetAt time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// take counts one request against key. A Redis failure lets the request
// through.
func (rl *RateLimiter) take(ctx context.Context, key string, limit RateLimit) quota {
	now := rl.now()
	start := windowStart(now, limit.Window)
	q := quota{allowed: true, remaining: limit.Requests, resetAt: start.Add(limit.Window)}

	bucket := bucketKey(key, start)
	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, bucket)
	pipe.ExpireAt(ctx, bucket, q.resetAt.Add(time.Second))
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed, allowing request")
		return q
	}

	n := int(count.Val())
	q.allowed = n <= limit.Requests
	q.remaining = max(limit.Requests-n, 0)
	return q
}

// Middleware enforces the first matching limit for each request.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		if rl.isBlocked(ctx, ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			writeLimitError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		q := rl.take(ctx, key, *limit)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(q.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(q.resetAt.Unix(), 10))

		if q.allowed {
			next.ServeHTTP(w, r)
			return
		}

		metrics.RateLimitHits.WithLabelValues(limit.Method + " " + limit.Prefix).Inc()
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "rate_limit_exceeded").
			Str("ip", ip).
			Str("endpoint", r.URL.Path).
			Str("key", key).
			Msg("rate limit exceeded")
		rl.recordViolation(ctx, ip)

		h.Set("Retry-After", strconv.Itoa(retryAfter(rl.now(), q.resetAt)))
		writeLimitError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

func writeLimitError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}

func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	for i := range rl.limits {
		if rl.limits[i].matches(r) {
			return &rl.limits[i]
		}
	}
	return nil
}

func blockKey(ip string) string     { return "ratelimit:blocked:" + ip }
func violationKey(ip string) string { return "ratelimit:violations:" + ip }

func (rl *RateLimiter) isBlocked(ctx context.Context, ip string) bool {
	if !rl.autoBlock {
		return false
	}
	n, err := rl.client.Exists(ctx, blockKey(ip)).Result()
	if err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("block lookup failed")
		return false
	}
	return n > 0
}

// recordViolation counts a rejected request and blocks the IP once it
// reaches violationThreshold. The count expires violationWindow after the
// most recent violation.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	pipe := rl.client.TxPipeline()
	count := pipe.Incr(ctx, violationKey(ip))
	pipe.Expire(ctx, violationKey(ip), violationWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("recording violation failed")
		return
	}
	if count.Val() < violationThreshold {
		return
	}

	if err := rl.client.Set(ctx, blockKey(ip), "repeated rate limit violations", blockDuration).Err(); err != nil {
		rl.logger.Error().Err(err).Str("ip", ip).Msg("blocking IP failed")
		return
	}
	rl.logger.Warn().
		Str("type", "security").
		Str("event", "ip_auto_blocked").
		Str("ip", ip).
		Int64("violations", count.Val()).
		Dur("duration", blockDuration).
		Msg("IP auto-blocked for repeated violations")
}
