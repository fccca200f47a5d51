// Package services composes the chat client components into the operations
// the UI shell calls. This file holds the errors the facade itself returns;
// component errors pass through unchanged.
package services

import (
	"fmt"
	"time"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

var (
	// ErrDuplicateMessage is returned when the same text is sent twice to one
	// channel within the duplicate window.
	ErrDuplicateMessage = &domain.Error{Kind: domain.KindValidation, Op: "chat.send", Msg: "you just sent that message"}

	// ErrReplyNotLoaded is returned when the reply target is not in the view.
	ErrReplyNotLoaded = &domain.Error{Kind: domain.KindNotFound, Op: "chat.send", Msg: "the message you are replying to is not loaded"}
)

// rejected wraps a filter reason as a validation error.
func rejected(msg string) error {
	return domain.E(domain.KindValidation, "chat.send", msg, nil)
}

// rateLimited reports the wait before the next send is accepted.
func rateLimited(wait time.Duration) error {
	secs := int(wait.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &domain.Error{
		Kind:       domain.KindRateLimited,
		Op:         "chat.send",
		Msg:        fmt.Sprintf("slow down, you can post again in %ds", secs),
		RetryAfter: wait,
	}
}
