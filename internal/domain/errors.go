package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies failures by how the UI shell must react to them.
type ErrorKind int

const (
	// KindInternal is anything not otherwise classified.
	KindInternal ErrorKind = iota
	// KindValidation: rejected by the filter or input validation. Always shown,
	// never retried.
	KindValidation
	// KindRateLimited: shown with the remaining wait, never retried.
	KindRateLimited
	// KindTransient: network unavailable / deadline exceeded. Retried by the
	// subscription mechanism; shown only when no cached data exists.
	KindTransient
	// KindPermission: authentication or partition-mapping defect. Hard failure.
	KindPermission
	// KindConfiguration: missing index or similar, actionable by an operator.
	KindConfiguration
	// KindStorageQuota: durable client storage is full.
	KindStorageQuota
	// KindNotFound: the referenced message is not loaded / does not exist.
	KindNotFound
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindPermission:
		return "permission"
	case KindConfiguration:
		return "configuration"
	case KindStorageQuota:
		return "storage_quota"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is the typed error carried across package boundaries.
type Error struct {
	Kind ErrorKind
	// Op names the failing operation, e.g. "feed.open".
	Op string
	// Msg is safe to show to a user.
	Msg string
	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return e.Op + ": " + msg
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind and message, so package-level
// sentinels built from Error work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// E builds an *Error.
func E(kind ErrorKind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether an automatic retry can succeed.
func Retryable(err error) bool { return IsKind(err, KindTransient) }

// RetryAfter returns the wait carried by a rate-limit error, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// UserVisible reports whether err must be shown to the user as is. Transient
// and quota failures are absorbed by the layers that produce them.
func UserVisible(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindRateLimited, KindPermission, KindConfiguration, KindNotFound:
		return err != nil
	}
	return false
}
