// Chat HTTP handlers.
//
//   - GET    /chat/history        (bare array, oldest first, 7-day window)
//   - GET    /chat/stats
//   - POST   /chat/messages       (Idempotency-Key aware)
//   - DELETE /chat/messages/{id}  (author or admin)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/services"
	"github.com/tbourn/slotboard/internal/utils"
)

// SendChatRequest is the JSON payload of POST /chat/messages.
type SendChatRequest struct {
	Content string `json:"content" binding:"required" example:"ch3 harbor is full"`
}

// ChatHistory godoc
// @ID          chatHistory
// @Summary     Chat history
// @Description Returns up to limit messages from the last seven days, oldest first. before pages to strictly older messages.
// @Tags        Chat
// @Produce     json
// @Param       limit   query   int     false  "Max messages"  minimum(1) maximum(1000) default(100)
// @Param       before  query   string  false  "RFC 3339 time or unix milliseconds"
// @Success     200  {array}  domain.ChatMessage
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /chat/history [get]
func (h *Handlers) ChatHistory(c *gin.Context) {
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), services.DefaultHistoryLimit), 1, services.MaxHistoryLimit)
	before, err := utils.ParseTimestamp(c.Query("before"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "before: "+err.Error())
		return
	}
	items, err := h.reader.ChatHistory(c.Request.Context(), limit, before)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, items)
}

// ChatStats godoc
// @ID          chatStats
// @Summary     Chat statistics
// @Tags        Chat
// @Produce     json
// @Success     200  {object} services.ChatStats
// @Router      /chat/stats [get]
func (h *Handlers) ChatStats(c *gin.Context) {
	st, err := h.reader.ChatStats(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// SendChatMessage godoc
// @ID          sendChatMessage
// @Summary     Post to the chat
// @Description Posts a message and broadcasts chat:message to every connection.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string  false  "Deduplicates retries"
// @Param       body             body    handlers.SendChatRequest  true  "Message"
// @Success     201  {object} domain.ChatMessage
// @Failure     400  {object} handlers.ErrorResponse "Validation failed"
// @Failure     401  {object} handlers.ErrorResponse "Not authenticated"
// @Failure     403  {object} handlers.ErrorResponse "Role too low"
// @Router      /chat/messages [post]
func (h *Handlers) SendChatMessage(c *gin.Context) {
	ctx := c.Request.Context()
	if id, status, found := replayID(c); found {
		m, err := h.reader.ChatMessage(ctx, id)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, status, m)
		return
	}

	var req SendChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	m, err := h.writer.SendChatMessage(ctx, identity(c), req.Content)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, m.ID, http.StatusCreated)
	ok(c, http.StatusCreated, m)
}

// DeleteChatMessage godoc
// @ID          deleteChatMessage
// @Summary     Delete a chat message
// @Tags        Chat
// @Security    BearerAuth
// @Param       id  path  int  true  "Message ID"
// @Success     204  {string} string "No Content"
// @Failure     403  {object} handlers.ErrorResponse "Not the author"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Router      /chat/messages/{id} [delete]
func (h *Handlers) DeleteChatMessage(c *gin.Context) {
	id, valid := pathID(c, "id")
	if !valid {
		return
	}
	if err := h.writer.DeleteChatMessage(c.Request.Context(), identity(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
