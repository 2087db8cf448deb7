package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/invoice-pricing/internal/common"
)

// Limiter decides whether the caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, limit, remaining int64, resetAt time.Time, err error)
}

// Memory is a process-local fixed-window limiter.
type Memory struct {
	l *limiter.Limiter
}

// NewMemory parses a formatted rate such as "300-M" and returns an in-memory limiter.
func NewMemory(formatted string) (*Memory, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, fmt.Errorf("parse rate %q: %w", formatted, err)
	}
	return &Memory{l: limiter.New(memory.NewStore(), rate)}, nil
}

// Allow implements Limiter.
func (m *Memory) Allow(ctx context.Context, key string) (bool, int64, int64, time.Time, error) {
	lc, err := m.l.Get(ctx, key)
	if err != nil {
		return true, 0, 0, time.Time{}, err
	}
	return !lc.Reached, lc.Limit, lc.Remaining, time.Unix(lc.Reset, 0), nil
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter Limiter
	Key     func(*http.Request) string
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Limiter errors fail open.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Limiter == nil || h.Key == nil {
			next.ServeHTTP(w, r)
			return
		}
		allowed, limit, remaining, resetAt, err := h.Limiter.Allow(r.Context(), h.Key(r))
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, common.CodeRateLimited, "rate limit exceeded", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ByRemoteAddr keys requests on the client address. Run chi's RealIP middleware first when behind a proxy.
func ByRemoteAddr(r *http.Request) string {
	return "quote:" + r.RemoteAddr
}
