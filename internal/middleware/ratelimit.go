package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/logger"
	"medvision-server/internal/metrics"
	"medvision-server/internal/ratelimit"
	"medvision-server/internal/utils"
	"medvision-server/internal/validation"
)

// KeyFunc extracts the identity a request is limited by. An empty key skips
// the limit.
type KeyFunc func(c *gin.Context) string

// ByClientIP limits per client address.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByBodyField limits per value of a JSON body field, such as an email or
// CPF. The body is restored for the handler.
func ByBodyField(field string) KeyFunc {
	return func(c *gin.Context) string {
		if c.Request.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			return ""
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var fields map[string]interface{}
		if err := json.Unmarshal(body, &fields); err != nil {
			return ""
		}
		value, _ := fields[field].(string)
		value = strings.ToLower(strings.TrimSpace(value))
		if field == "cpf" {
			value = validation.NormalizeCPF(value)
		}
		return value
	}
}

// RateLimiter builds rate limit middlewares over one limiter.
type RateLimiter struct {
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics
	log     *logger.Logger
}

// NewRateLimiter creates a rate limiter. A nil limiter, or a nil
// RateLimiter, disables limiting.
func NewRateLimiter(limiter *ratelimit.Limiter, m *metrics.Metrics, log *logger.Logger) *RateLimiter {
	return &RateLimiter{limiter: limiter, metrics: m, log: log}
}

// Limit enforces rule per key. Store failures let the request through.
func (r *RateLimiter) Limit(rule ratelimit.Rule, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil || r.limiter == nil {
			c.Next()
			return
		}
		id := key(c)
		if id == "" {
			c.Next()
			return
		}

		decision, err := r.limiter.Allow(c.Request.Context(), rule, id)
		if err != nil {
			utils.RequestLogger(c).WithError(err).Warn("rate limit store unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			retry := int64(time.Until(decision.ResetAt).Seconds()) + 1
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retry, 10))
			r.metrics.RateLimited(rule.Name)
			r.log.Security("rate_limited", id, map[string]interface{}{"rule": rule.Name, "path": c.FullPath()})
			utils.Abort(c, apperrors.New(apperrors.KindRateLimited, "too many requests, try again later"))
			return
		}
		c.Next()
	}
}
