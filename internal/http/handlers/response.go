// Package handlers provides HTTP handler implementations for the UI-shell API.
//
// This file defines the response helpers shared by all endpoints. Every error
// goes out as an ErrorResponse with a stable code; rate-limit errors also
// carry the wait in seconds, both in the body and in Retry-After.
//
// Example error response:
//
//	HTTP/1.1 422 Unprocessable Entity
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_input",
//	  "message": "message is too long"
//	}
package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"the message is not loaded"`
	// Seconds until a rate-limited action may be retried
	RetryAfterSeconds int `json:"retry_after_seconds,omitempty" example:"28"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

func failWith(c *gin.Context, status int, resp ErrorResponse) {
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, resp)
}

// failErr translates a chat client error into a response.
func failErr(c *gin.Context, err error) {
	status, resp := errorBody(err)
	if resp.RetryAfterSeconds > 0 {
		c.Header("Retry-After", strconv.Itoa(resp.RetryAfterSeconds))
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	failWith(c, status, resp)
}

// errorBody builds the envelope of err without writing it.
func errorBody(err error) (int, ErrorResponse) {
	status, code := statusFor(domain.KindOf(err))
	resp := ErrorResponse{Code: code, Message: messageFor(err)}
	if wait := domain.RetryAfter(err); wait > 0 {
		resp.RetryAfterSeconds = int(math.Ceil(wait.Seconds()))
	}
	return status, resp
}

// Fail is the exported variant of fail() for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
