package middleware

import (
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/rahlquantum/pairing-server-go/internal/errors"
	"github.com/rahlquantum/pairing-server-go/internal/httputil"
	"github.com/rahlquantum/pairing-server-go/internal/service"
)

// IPRateLimitMiddleware throttles by client IP, per route-group prefix. The
// limiter behind it is redis when configured, in-memory otherwise.
type IPRateLimitMiddleware struct {
	limiter service.Limiter
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter service.Limiter, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr

		key := fmt.Sprintf("ip:%s:%s", m.prefix, ip)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		if !allowed {
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
