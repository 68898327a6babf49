// Tracker HTTP handlers.
//
//   - GET    /trackers        (list, sorted, weak ETag and 304)
//   - POST   /trackers        (create, Idempotency-Key aware)
//   - PATCH  /trackers/{id}   (partial update)
//   - DELETE /trackers/{id}
package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/repo"
	"github.com/tbourn/slotboard/internal/services"
)

// sortKeys is the sorted list of accepted sort_by values, for messages.
var sortKeys = func() string {
	keys := make([]string, 0, len(repo.TrackerSortColumns))
	for k := range repo.TrackerSortColumns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}()

// CreateTrackerRequest is the JSON payload of POST /trackers.
type CreateTrackerRequest struct {
	EpisodeNumber int     `json:"episode_number" binding:"required" example:"10"`
	MapID         uint    `json:"map_id" binding:"required" example:"5"`
	ChannelID     uint    `json:"channel_id" binding:"required" example:"3"`
	Status        float64 `json:"status" example:"2.5"`
	// Nickname defaults to the account's nickname.
	Nickname string `json:"nickname" example:"Eddie"`
}

// UpdateTrackerRequest is the JSON payload of PATCH /trackers/{id}. Omitted
// fields are left unchanged.
type UpdateTrackerRequest struct {
	Status   *float64 `json:"status" example:"4"`
	Nickname *string  `json:"nickname" example:"Eddie"`
}

// trackerQuery parses and validates the listing parameters.
func trackerQuery(c *gin.Context) (repo.TrackerQuery, bool) {
	q := repo.TrackerQuery{
		SortBy: strings.ToLower(c.DefaultQuery("sort_by", "updated_at")),
		Order:  strings.ToLower(c.DefaultQuery("order", "desc")),
	}
	if _, known := repo.TrackerSortColumns[q.SortBy]; !known {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "sort_by must be one of: "+sortKeys)
		return q, false
	}
	if q.Order != "asc" && q.Order != "desc" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "order must be asc or desc")
		return q, false
	}
	ep, valid := optionalInt(c, "episode_number")
	if !valid {
		return q, false
	}
	q.EpisodeNumber = ep
	return q, true
}

// ListTrackers godoc
// @ID          listTrackers
// @Summary     List trackers
// @Description Returns trackers sorted per sort_by/order. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Trackers
// @Produce     json
// @Param       If-None-Match   header  string  false  "Return 304 if ETag matches"
// @Param       sort_by         query   string  false  "Sort column"  Enums(status, level, nickname, created_at, updated_at) default(updated_at)
// @Param       order           query   string  false  "Sort order"   Enums(asc, desc) default(desc)
// @Param       episode_number  query   int     false  "Only trackers of this episode"
// @Success     200  {array}  domain.Tracker
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /trackers [get]
func (h *Handlers) ListTrackers(c *gin.Context) {
	q, valid := trackerQuery(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	if count, maxTS, err := h.reader.TrackersStats(ctx, q.EpisodeNumber); err == nil {
		scope := "all"
		if q.EpisodeNumber != nil {
			scope = fmt.Sprintf("ep%d", *q.EpisodeNumber)
		}
		var ts int64
		if maxTS != nil {
			ts = maxTS.UnixNano()
		}
		etag := fmt.Sprintf(`W/"trackers:%s:%s:%s:%d:%d"`, scope, q.SortBy, q.Order, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.reader.ListTrackers(ctx, q)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateTracker godoc
// @ID          createTracker
// @Summary     Create a tracker
// @Description Reports a status for a slot and broadcasts tracker:created to the slot's room and globally. Retries with the same Idempotency-Key return the original tracker.
// @Tags        Trackers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"
// @Param       body             body    handlers.CreateTrackerRequest  true  "Tracker"
// @Success     201  {object} domain.Tracker
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Not authenticated"
// @Failure     403  {object} handlers.ErrorResponse "Role too low"
// @Router      /trackers [post]
func (h *Handlers) CreateTracker(c *gin.Context) {
	ctx := c.Request.Context()
	if id, status, found := replayID(c); found {
		t, err := h.reader.Tracker(ctx, id)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, status, t)
		return
	}

	var req CreateTrackerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "episode_number, map_id and channel_id required")
		return
	}
	t, err := h.writer.CreateTracker(ctx, identity(c), services.CreateTrackerInput{
		EpisodeNumber: req.EpisodeNumber,
		MapID:         req.MapID,
		ChannelID:     req.ChannelID,
		Status:        req.Status,
		Nickname:      req.Nickname,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, t.ID, http.StatusCreated)
	ok(c, http.StatusCreated, t)
}

// UpdateTracker godoc
// @ID          updateTracker
// @Summary     Update a tracker
// @Description Changes status and/or nickname and broadcasts tracker:changed. Concurrent updates are last-writer-wins.
// @Tags        Trackers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path     int                            true  "Tracker ID"
// @Param       body  body     handlers.UpdateTrackerRequest  true  "Fields to change"
// @Success     200   {object} domain.Tracker
// @Failure     400   {object} handlers.ErrorResponse "Validation failed"
// @Failure     403   {object} handlers.ErrorResponse "Role too low"
// @Failure     404   {object} handlers.ErrorResponse "Tracker not found"
// @Router      /trackers/{id} [patch]
func (h *Handlers) UpdateTracker(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	var req UpdateTrackerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	t, err := h.writer.UpdateTracker(c.Request.Context(), identity(c), id, services.TrackerPatch{
		Status:   req.Status,
		Nickname: req.Nickname,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTracker godoc
// @ID          deleteTracker
// @Summary     Delete a tracker
// @Description Removes a tracker (its owner while still an editor, or any admin) and broadcasts tracker:deleted.
// @Tags        Trackers
// @Security    BearerAuth
// @Param       id  path  int  true  "Tracker ID"
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed"
// @Failure     404  {object} handlers.ErrorResponse "Tracker not found"
// @Router      /trackers/{id} [delete]
func (h *Handlers) DeleteTracker(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.writer.DeleteTracker(c.Request.Context(), identity(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
