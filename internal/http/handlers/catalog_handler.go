// Catalog HTTP handlers.
//
//   - GET  /episodes
//   - POST /episodes   (admin; 201 when created, 200 when it already existed)
//   - GET  /maps?episode_number=
//   - POST /maps       (admin; same create-if-absent semantics)
//   - GET  /channels
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/domain"
)

// CreateEpisodeRequest is the JSON payload of POST /episodes.
type CreateEpisodeRequest struct {
	Number int    `json:"number" binding:"required" example:"10"`
	Name   string `json:"name" binding:"required" example:"Episode 10"`
}

// CreateMapRequest is the JSON payload of POST /maps.
type CreateMapRequest struct {
	EpisodeNumber int    `json:"episode_number" binding:"required" example:"10"`
	Name          string `json:"name" binding:"required" example:"Harbor"`
	Level         int    `json:"level" example:"40"`
	Favourite     bool   `json:"favourite"`
}

func createdOr200(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}

// ListEpisodes godoc
// @ID          listEpisodes
// @Summary     List episodes
// @Tags        Catalog
// @Produce     json
// @Success     200  {array}  domain.Episode
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /episodes [get]
func (h *Handlers) ListEpisodes(c *gin.Context) {
	items, err := h.catalog.Episodes(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateEpisode godoc
// @ID          createEpisode
// @Summary     Create an episode
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body     handlers.CreateEpisodeRequest  true  "Episode"
// @Success     201   {object} domain.Episode
// @Success     200   {object} domain.Episode "Already existed"
// @Failure     400   {object} handlers.ErrorResponse "Validation failed"
// @Failure     403   {object} handlers.ErrorResponse "Not an admin"
// @Router      /episodes [post]
func (h *Handlers) CreateEpisode(c *gin.Context) {
	var req CreateEpisodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "number and name required")
		return
	}
	e, created, err := h.catalog.CreateEpisode(c.Request.Context(), identity(c), req.Number, req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, createdOr200(created), e)
}

// ListMaps godoc
// @ID          listMaps
// @Summary     List maps
// @Tags        Catalog
// @Produce     json
// @Param       episode_number  query   int  false  "Only maps of this episode"
// @Success     200  {array}  domain.Map
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /maps [get]
func (h *Handlers) ListMaps(c *gin.Context) {
	ep, valid := optionalInt(c, "episode_number")
	if !valid {
		return
	}
	items, err := h.catalog.Maps(c.Request.Context(), ep)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateMap godoc
// @ID          createMap
// @Summary     Create a map
// @Tags        Catalog
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body     handlers.CreateMapRequest  true  "Map"
// @Success     201   {object} domain.Map
// @Success     200   {object} domain.Map "Already existed"
// @Failure     400   {object} handlers.ErrorResponse "Validation failed"
// @Failure     403   {object} handlers.ErrorResponse "Not an admin"
// @Router      /maps [post]
func (h *Handlers) CreateMap(c *gin.Context) {
	var req CreateMapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "episode_number and name required")
		return
	}
	m, created, err := h.catalog.CreateMap(c.Request.Context(), identity(c), domain.Map{
		EpisodeNumber: req.EpisodeNumber,
		Name:          req.Name,
		Level:         req.Level,
		Favourite:     req.Favourite,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, createdOr200(created), m)
}

// ListChannels godoc
// @ID          listChannels
// @Summary     List channels
// @Tags        Catalog
// @Produce     json
// @Success     200  {array}  domain.Channel
// @Router      /channels [get]
func (h *Handlers) ListChannels(c *gin.Context) {
	items, err := h.catalog.Channels(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}
