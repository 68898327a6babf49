// Presence and maintenance handlers.
//
//   - GET  /online               (presence snapshot)
//   - POST /admin/housekeeping   (admin: run one retention sweep now)
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Online godoc
// @ID          online
// @Summary     Who is online
// @Description Same aggregate the websocket publishes as users:onlineCount.
// @Tags        Realtime
// @Produce     json
// @Success     200  {object} realtime.Snapshot
// @Router      /online [get]
func (h *Handlers) Online(c *gin.Context) {
	ok(c, http.StatusOK, h.fabric.Presence().Snapshot())
}

// RunHousekeeping godoc
// @ID          runHousekeeping
// @Summary     Run housekeeping
// @Description Runs every retention pass once and returns per-pass counts. 409 while a sweep is already running.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object} retention.Result
// @Failure     403  {object} handlers.ErrorResponse "Not an admin"
// @Failure     409  {object} handlers.ErrorResponse "Already running"
// @Failure     503  {object} handlers.ErrorResponse "Housekeeping disabled"
// @Router      /admin/housekeeping [post]
func (h *Handlers) RunHousekeeping(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.accounts.RequireAdmin(ctx, identity(c), "run housekeeping"); err != nil {
		failErr(c, err)
		return
	}
	if h.housekeeper == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "housekeeping is disabled")
		return
	}
	// A client hanging up must not abort a sweep halfway through.
	res, err := h.housekeeper.Run(context.WithoutCancel(ctx))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}
