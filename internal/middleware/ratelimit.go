package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/audit"
	apperrors "github.com/wanpark/access-server-go/internal/errors"
)

// Limiter is satisfied by service.RateLimiter.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration)
}

// KeyFunc picks the bucket a request counts against. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// KeyByIP buckets by client address. Mount after chi's RealIP.
func KeyByIP(r *http.Request) string {
	return r.RemoteAddr
}

// KeyByIdentity buckets by the authenticated subject.
func KeyByIdentity(r *http.Request) string {
	return GetIdentity(r.Context())
}

type RateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
	key     KeyFunc
}

func NewRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string, key KeyFunc) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		key:     key,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := m.key(r)
		if subject == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := fmt.Sprintf("%s:%s", m.prefix, subject)
		allowed, retryAfter := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		if !allowed {
			log.Warn().Str("bucket", m.prefix).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:     audit.EventRateLimitExceed,
				Identity: GetIdentity(r.Context()),
				Outcome:  string(apperrors.ErrCodeRateLimitExceeded),
				Details:  map[string]interface{}{"bucket": m.prefix},
			})
			WriteRateLimited(w, retryAfter)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// WriteRateLimited sets Retry-After in whole seconds, rounding up.
func WriteRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int((retryAfter + time.Second - 1) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	writeError(w, apperrors.RateLimitExceeded())
}
