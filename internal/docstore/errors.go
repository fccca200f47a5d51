package docstore

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

var (
	transientMarkers = []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"sql: database is closed",
		"sql: connection is already closed",
		"driver: bad connection",
		"connection refused",
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"no connection",
	}
	permissionMarkers = []string{
		"readonly database",
		"read-only",
		"permission denied",
		"access denied",
		"not authorized",
		"authorization",
	}
	configurationMarkers = []string{
		"no such table",
		"no such index",
		"no such column",
	}
)

// Classify maps a store failure onto the domain error taxonomy. Errors that
// already carry a kind pass through unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return domain.E(domain.KindTransient, op, "store unavailable", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return domain.E(domain.KindNotFound, op, "message not found", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, transientMarkers):
		return domain.E(domain.KindTransient, op, "store unavailable", err)
	case containsAny(msg, permissionMarkers):
		return domain.E(domain.KindPermission, op, "store refused access", err)
	case containsAny(msg, configurationMarkers):
		return domain.E(domain.KindConfiguration, op, "store schema is not configured", err)
	}
	return domain.E(domain.KindInternal, op, "", err)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
