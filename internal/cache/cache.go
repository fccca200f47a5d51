// Package cache is the local, best-effort cache tier consulted before network
// reads of channel history.
//
// The Redis tier keeps one sorted set per (partition, channel). The score is
// the message creation time in microseconds, which is unique within a channel,
// and the member is the JSON-encoded message. Callers treat every error as a
// miss.
package cache

import (
	"context"
	"time"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// Tier is the cache contract used by the feed controller.
type Tier interface {
	// Latest returns up to n messages of the channel, newest first.
	Latest(ctx context.Context, partition, channel string, n int) ([]domain.Message, error)
	// Before returns up to n messages created strictly before before, newest
	// first.
	Before(ctx context.Context, partition, channel string, before time.Time, n int) ([]domain.Message, error)
	// Put writes messages through, replacing cached copies with the same
	// creation time.
	Put(ctx context.Context, partition, channel string, msgs []domain.Message) error
	// DropBefore evicts every cached message created strictly before before.
	DropBefore(ctx context.Context, partition, channel string, before time.Time) error
}

// Nop is a Tier that never holds anything.
type Nop struct{}

func (Nop) Latest(context.Context, string, string, int) ([]domain.Message, error) { return nil, nil }

func (Nop) Before(context.Context, string, string, time.Time, int) ([]domain.Message, error) {
	return nil, nil
}

func (Nop) Put(context.Context, string, string, []domain.Message) error { return nil }

func (Nop) DropBefore(context.Context, string, string, time.Time) error { return nil }
