// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; the UI shell branches on them.
// Errors coming out of the chat client carry a domain kind, and failErr maps
// that kind onto a status and code so handlers never switch on individual
// error values.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "rate_limited",
//	  "message": "slow down, you can post again in 28s",
//	  "retry_after_seconds": 28
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Chat client kinds:
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeConfiguration = "configuration_error"
	ErrCodeStorageFull   = "storage_full"
)

// statusFor maps an error kind onto the HTTP status and code of its response.
func statusFor(kind domain.ErrorKind) (int, string) {
	switch kind {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity, ErrCodeInvalidInput
	case domain.KindRateLimited:
		return http.StatusTooManyRequests, ErrCodeRateLimited
	case domain.KindTransient:
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	case domain.KindPermission:
		return http.StatusForbidden, ErrCodeForbidden
	case domain.KindConfiguration:
		return http.StatusServiceUnavailable, ErrCodeConfiguration
	case domain.KindStorageQuota:
		return http.StatusInsufficientStorage, ErrCodeStorageFull
	case domain.KindNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// genericMessages replace the text of kinds that are not shown to the user as
// is.
var genericMessages = map[domain.ErrorKind]string{
	domain.KindTransient:    "messages are unavailable right now, try again shortly",
	domain.KindStorageQuota: "local storage is full",
}

// messageFor returns the text shown to the user. Only user-visible kinds
// carry their own message; the rest never leak their cause.
func messageFor(err error) string {
	var de *domain.Error
	if domain.UserVisible(err) && errors.As(err, &de) && de.Msg != "" {
		return de.Msg
	}
	if msg, ok := genericMessages[domain.KindOf(err)]; ok {
		return msg
	}
	return "internal server error"
}
