package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/http/middleware"
	"github.com/tbourn/slotboard/internal/repo"
)

// HeaderReplayed marks a response served from a stored idempotent outcome.
const HeaderReplayed = "Idempotent-Replayed"

// replayID returns the resource id of an earlier request with the same
// Idempotency-Key, if the middleware found one.
func replayID(c *gin.Context) (id uint, status int, found bool) {
	rec, found := middleware.ReplayOf(c)
	if !found {
		return 0, 0, false
	}
	c.Header(HeaderReplayed, "true")
	return rec.ResourceID, rec.Status, true
}

// remember stores the outcome of a keyed create. Failures only cost the
// client a duplicate on retry, so they are logged and swallowed; a
// concurrent request with the same key winning the insert is expected.
func (h *Handlers) remember(c *gin.Context, resourceID uint, status int) {
	key, scope, found := middleware.GetIdempotencyKey(c)
	id := identity(c)
	if !found || id == nil || h.idem == nil {
		return
	}
	err := h.idem.Remember(c.Request.Context(), id.UserID, scope, key, resourceID, status)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		middleware.LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency record not stored")
	}
}
