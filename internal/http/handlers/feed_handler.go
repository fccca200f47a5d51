// Feed HTTP handlers.
//
// This file exposes the view of the open channel:
//   - POST   /channels/{id}/open  (switch the view)
//   - GET    /feed                (current snapshot)
//   - POST   /feed/more           (load the next older page)
//   - GET    /feed/stream         (server-sent snapshots)
//   - DELETE /feed                (close the view)
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/feed"
)

// ViewResponse is a feed snapshot plus the failure the user should see.
type ViewResponse struct {
	feed.View
	Error *ErrorResponse `json:"error,omitempty"`
}

// LoadMoreResponse reports how many older messages were added.
type LoadMoreResponse struct {
	Added   int  `json:"added" example:"25"`
	HasMore bool `json:"has_more" example:"true"`
}

func viewResponse(v feed.View) ViewResponse {
	resp := ViewResponse{View: v}
	if v.Messages == nil {
		resp.Messages = []domain.Message{}
	}
	if v.Err != nil {
		_, body := errorBody(v.Err)
		resp.Error = &body
	}
	return resp
}

// OpenChannel godoc
// @ID          openChannel
// @Summary     Open a channel
// @Description Loads cached then server history and starts live updates. With cached
// @Description messages shown, transient server failures are not reported.
// @Tags        Feed
// @Produce     json
// @Param       id   path      string  true  "Channel id"  example(general)
// @Success     200  {object}  handlers.ViewResponse
// @Failure     422  {object}  handlers.ErrorResponse  "Invalid channel"
// @Failure     503  {object}  handlers.ErrorResponse  "Messages unavailable"
// @Router      /channels/{id}/open [post]
func (h *Handlers) OpenChannel(c *gin.Context) {
	if err := h.client.OpenChannel(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, viewResponse(h.client.View()))
}

// GetFeed godoc
// @ID          getFeed
// @Summary     Current view
// @Tags        Feed
// @Produce     json
// @Success     200  {object}  handlers.ViewResponse
// @Router      /feed [get]
func (h *Handlers) GetFeed(c *gin.Context) {
	ok(c, http.StatusOK, viewResponse(h.client.View()))
}

// LoadMore godoc
// @ID          loadMore
// @Summary     Load older messages
// @Description Concurrent calls for the same page collapse into one fetch.
// @Tags        Feed
// @Produce     json
// @Success     200  {object}  handlers.LoadMoreResponse
// @Failure     422  {object}  handlers.ErrorResponse  "No channel open"
// @Failure     503  {object}  handlers.ErrorResponse  "Messages unavailable"
// @Router      /feed/more [post]
func (h *Handlers) LoadMore(c *gin.Context) {
	n, err := h.client.LoadMore(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, LoadMoreResponse{Added: n, HasMore: h.client.View().HasMore})
}

// StreamFeed godoc
// @ID          streamFeed
// @Summary     Stream the view
// @Description Server-sent events named "view", each carrying a full snapshot. A slow
// @Description reader only receives the latest snapshot.
// @Tags        Feed
// @Produce     text/event-stream
// @Success     200  {object}  handlers.ViewResponse
// @Router      /feed/stream [get]
func (h *Handlers) StreamFeed(c *gin.Context) {
	views := h.client.Watch(c.Request.Context())
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		v, open := <-views
		if !open {
			return false
		}
		c.SSEvent("view", viewResponse(v))
		return true
	})
}

// CloseFeed godoc
// @ID          closeFeed
// @Summary     Close the view
// @Tags        Feed
// @Success     204
// @Router      /feed [delete]
func (h *Handlers) CloseFeed(c *gin.Context) {
	h.client.CloseView(c.Request.Context())
	noContent(c)
}
