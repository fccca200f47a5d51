// Session and channel HTTP handlers.
//
// This file exposes the endpoints that set up a view:
//   - GET    /session            (session id and display name)
//   - PUT    /session/name       (choose a display name)
//   - DELETE /session/name       (forget the display name)
//   - GET    /channels           (selectable channels)
//
// Handlers are transport-thin: they bind input, call the chat client and
// translate its typed errors into responses.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/feed"
	"github.com/tbourn/go-campus-chat/internal/services"
)

// ChatClient is the chat client consumed by the handlers.
// *services.ChatClient implements it.
type ChatClient interface {
	Session() services.SessionInfo
	ChooseName(ctx context.Context, raw string) (string, error)
	ForgetName(ctx context.Context) error
	Channels() []services.ChannelInfo
	OpenChannel(ctx context.Context, id string) error
	LoadMore(ctx context.Context) (int, error)
	Send(ctx context.Context, text, replyToID string) (domain.Message, error)
	Report(ctx context.Context, id string) (domain.Message, error)
	Locate(ctx context.Context, id string) (int, error)
	View() feed.View
	Watch(ctx context.Context) <-chan feed.View
	CloseView(ctx context.Context)
}

// Handlers groups the UI-shell endpoints.
type Handlers struct {
	client ChatClient
	idem   *IdempotencyStore
}

// New constructs a Handlers bound to client. idem may be nil, which disables
// replay of sends.
func New(client ChatClient, idem *IdempotencyStore) *Handlers {
	return &Handlers{client: client, idem: idem}
}

//
// DTOs
//

// ChooseNameRequest is the JSON payload for choosing a display name.
type ChooseNameRequest struct {
	Name string `json:"name" binding:"required" example:"Quiet Owl"`
}

// ChannelsResponse lists the selectable channels.
type ChannelsResponse struct {
	Channels []services.ChannelInfo `json:"channels"`
}

//
// Handlers
//

// GetSession godoc
// @ID          getSession
// @Summary     Current session
// @Tags        Session
// @Produce     json
// @Success     200  {object}  services.SessionInfo
// @Router      /session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	ok(c, http.StatusOK, h.client.Session())
}

// ChooseName godoc
// @ID          chooseName
// @Summary     Choose a display name
// @Description Reserves the name for this session. Names are unique case-insensitively.
// @Tags        Session
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.ChooseNameRequest  true  "Display name"
// @Success     200   {object}  services.SessionInfo
// @Failure     400   {object}  handlers.ErrorResponse  "Bad request"
// @Failure     422   {object}  handlers.ErrorResponse  "Invalid or taken name"
// @Router      /session/name [put]
func (h *Handlers) ChooseName(c *gin.Context) {
	var req ChooseNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required")
		return
	}
	if _, err := h.client.ChooseName(c.Request.Context(), req.Name); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.client.Session())
}

// ForgetName godoc
// @ID          forgetName
// @Summary     Forget the display name
// @Tags        Session
// @Success     204
// @Failure     503  {object}  handlers.ErrorResponse  "Name service unavailable"
// @Router      /session/name [delete]
func (h *Handlers) ForgetName(c *gin.Context) {
	if err := h.client.ForgetName(c.Request.Context()); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListChannels godoc
// @ID          listChannels
// @Summary     Selectable channels
// @Description Reserved channels first, then the configured location rooms.
// @Tags        Channels
// @Produce     json
// @Success     200  {object}  handlers.ChannelsResponse
// @Router      /channels [get]
func (h *Handlers) ListChannels(c *gin.Context) {
	ok(c, http.StatusOK, ChannelsResponse{Channels: h.client.Channels()})
}
