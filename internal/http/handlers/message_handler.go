// Message HTTP handlers.
//
// This file exposes the message actions of the open channel:
//   - POST /feed/messages          (send, optionally as a reply)
//   - POST /messages/{id}/report   (report a loaded message)
//   - GET  /messages/{id}/locate   (position of a loaded message)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a send with that key
// already succeeded for this session, the recorded message is returned with
// `Idempotency-Replayed: true` and nothing is posted.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/http/middleware"
)

//
// DTOs
//

// SendMessageRequest is the JSON payload for posting to the open channel.
// Content is validated by the chat client's filter, not here.
type SendMessageRequest struct {
	Content string `json:"content" example:"anyone at the library tonight?"`
	// ReplyTo is the id of a loaded message.
	ReplyTo string `json:"reply_to,omitempty" example:"0b0c5c2e-7a43-4a40-8c1a-2b7b7d3b8f10"`
}

// MessageResponse wraps one message.
type MessageResponse struct {
	Message domain.Message `json:"message"`
}

// LocateResponse is the index of a message in the view, oldest first.
type LocateResponse struct {
	Index int `json:"index" example:"12"`
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a message
// @Description Posts to the open channel. Requires a display name; subject to the
// @Description content filter and the per-channel send limit.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"
// @Param       body             body    handlers.SendMessageRequest  true  "Message"
// @Success     201  {object}  handlers.MessageResponse
// @Success     200  {object}  handlers.MessageResponse  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Reply target not loaded"
// @Failure     422  {object}  handlers.ErrorResponse  "Rejected content"
// @Failure     429  {object}  handlers.ErrorResponse  "Sending too fast"
// @Failure     503  {object}  handlers.ErrorResponse  "Store unavailable"
// @Router      /feed/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid message payload")
		return
	}

	session := h.client.Session().ID
	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey {
		if prev, found := h.idem.Lookup(session, key, time.Now()); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, MessageResponse{Message: prev})
			return
		}
	}

	m, err := h.client.Send(c.Request.Context(), req.Content, req.ReplyTo)
	if err != nil {
		failErr(c, err)
		return
	}

	if hasKey {
		if err := h.idem.Save(session, key, m, time.Now()); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Msg("idempotency record not saved")
		}
	}
	ok(c, http.StatusCreated, MessageResponse{Message: m})
}

// ReportMessage godoc
// @ID          reportMessage
// @Summary     Report a message
// @Description Counts one report per session; the message is flagged at three.
// @Tags        Messages
// @Produce     json
// @Param       id   path      string  true  "Message id"
// @Success     200  {object}  handlers.MessageResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Already reported"
// @Router      /messages/{id}/report [post]
func (h *Handlers) ReportMessage(c *gin.Context) {
	m, err := h.client.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: m})
}

// LocateMessage godoc
// @ID          locateMessage
// @Summary     Locate a loaded message
// @Tags        Messages
// @Produce     json
// @Param       id   path      string  true  "Message id"
// @Success     200  {object}  handlers.LocateResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not loaded"
// @Router      /messages/{id}/locate [get]
func (h *Handlers) LocateMessage(c *gin.Context) {
	i, err := h.client.Locate(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, LocateResponse{Index: i})
}
