// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for create endpoints. A client
// retrying a POST sends the same Idempotency-Key; if a still-valid record
// exists for (user, scope, key) the request is marked as a replay and the
// handler answers with the stored resource instead of writing again.
//
// The scope is the route (method + registered path), so one key may be
// reused across different endpoints. Anonymous requests are never replayed:
// they cannot create anything.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/domain"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay" // *domain.Idempotency
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup returns the live record for (userID, scope, key), or
// nil when there is none. TTL is enforced by the implementation.
type IdempotencyLookup func(ctx context.Context, userID uint, scope, key string, now time.Time) (*domain.Idempotency, error)

// IdempotencyValidator validates the Idempotency-Key header on POST
// requests, stashes the key and scope, and marks replays.
//
//   - No header, or not a POST: no-op.
//   - Malformed header: 400.
//   - Live record found: the record is attached (see ReplayOf) and rate
//     limiting is bypassed.
//
// Lookup failures are ignored; the request proceeds as a first attempt.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		scope := c.Request.Method + " " + c.FullPath()
		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemScope, scope)

		if uid := userIDFrom(c); uid != 0 && lookup != nil {
			if rec, err := lookup(c.Request.Context(), uid, scope, key, time.Now().UTC()); err == nil && rec != nil {
				c.Set(ctxKeyIdemReplay, rec)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// GetIdempotencyKey returns the validated key and the scope it applies to.
func GetIdempotencyKey(c *gin.Context) (key, scope string, ok bool) {
	key = c.GetString(ctxKeyIdemKey)
	scope = c.GetString(ctxKeyIdemScope)
	return key, scope, key != ""
}

// ReplayOf returns the stored outcome when this request repeats an earlier
// one.
func ReplayOf(c *gin.Context) (*domain.Idempotency, bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*domain.Idempotency)
	return rec, ok && rec != nil
}
