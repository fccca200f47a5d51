// Package identity holds the client's pseudo-identities: the per-tab session
// with its chosen display name, the per-partition anonymous subjects, and the
// registry that reserves display names.
package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
)

// Storage keys.
const (
	KeySessionID   = "session:id"
	KeyDisplayName = "session:display_name"
)

// Reserver reserves display names. *NameRegistry implements it.
type Reserver interface {
	Reserve(ctx context.Context, display, key, sessionID string) error
	Release(ctx context.Context, sessionID string) error
}

// Session is the per-tab pseudo-identity. Its id keys rate-limit records and
// name reservations and is never attached to messages.
type Session struct {
	kv  kvstore.KV
	res Reserver
	log zerolog.Logger

	mu   sync.RWMutex
	id   string
	name string
}

// NewSession restores the session from kv, or starts a new one. Storage that
// is absent or failing only costs persistence across reloads.
func NewSession(kv kvstore.KV, res Reserver, log zerolog.Logger) *Session {
	s := &Session{kv: kv, res: res, log: log.With().Str("component", "session").Logger()}
	if v, ok := s.load(KeySessionID); ok {
		s.id = v
	} else {
		s.id = "anon-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
		s.store(KeySessionID, s.id)
	}
	if v, ok := s.load(KeyDisplayName); ok {
		if display, _, err := NormalizeName(v); err == nil {
			s.name = display
		}
	}
	return s
}

// ID returns the session identity.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// DisplayName returns the chosen name, if any.
func (s *Session) DisplayName() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name, s.name != ""
}

// ChooseName validates, reserves and persists a display name.
func (s *Session) ChooseName(ctx context.Context, raw string) (string, error) {
	display, key, err := NormalizeName(raw)
	if err != nil {
		return "", err
	}
	if s.res != nil {
		if err := s.res.Reserve(ctx, display, key, s.ID()); err != nil {
			return "", err
		}
	}
	s.mu.Lock()
	s.name = display
	s.mu.Unlock()
	s.store(KeyDisplayName, display)
	s.log.Info().Str("session_id", s.ID()).Msg("display name chosen")
	return display, nil
}

// Forget drops the display name and its reservation.
func (s *Session) Forget(ctx context.Context) error {
	if s.res != nil {
		if err := s.res.Release(ctx, s.ID()); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.name = ""
	s.mu.Unlock()
	if s.kv != nil {
		if err := s.kv.Delete(KeyDisplayName); err != nil {
			s.log.Debug().Err(err).Msg("display name not cleared from storage")
		}
	}
	return nil
}

// RequireName returns the display name or a validation error.
func (s *Session) RequireName() (string, error) {
	if name, ok := s.DisplayName(); ok {
		return name, nil
	}
	return "", domain.E(domain.KindValidation, "identity.name", "choose a display name first", nil)
}

func (s *Session) load(key string) (string, bool) {
	if s.kv == nil {
		return "", false
	}
	v, ok, err := s.kv.Get(key)
	if err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("session storage unreadable")
		return "", false
	}
	return v, ok && v != ""
}

func (s *Session) store(key, value string) {
	if s.kv == nil {
		return
	}
	if err := s.kv.Set(key, value); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("session storage write failed")
	}
}
