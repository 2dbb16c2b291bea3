package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"contractseal/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	routeShared      = "shared"
	routeVerify      = "verify"
	routeVerifyBatch = "verify_batch"
	routeQRVerify    = "qr_verify"
)

// enforceRateLimit applies the budget configured for routeID, keyed by the
// client address. It writes the error response and returns false when the
// request must stop.
func (s *Server) enforceRateLimit(c *gin.Context, routeID string) bool {
	policy := s.rateLimits.For(routeID)
	if s.rateLimiter == nil || policy.Limit <= 0 {
		return true
	}
	key := fmt.Sprintf("client:%s:endpoint:%s", c.ClientIP(), routeID)

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, policy.Limit, policy.Window)
	if err != nil {
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		s.logger.Warn("rate limiter unavailable, allowing request", "route", routeID, "error", err)
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retryAfter := int64(time.Until(decision.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		}
	}
}
