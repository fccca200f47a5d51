// Package docstore is the Document Store collaborator of the chat client: one
// isolated partition per channel group, offering query, insert, the atomic
// report increment and change notification for the "messages" collection.
//
// A Partition is backed by its own SQLite database (see package repo) and an
// in-process change feed. Errors crossing this boundary are classified into
// the domain taxonomy by Classify.
package docstore

import (
	"context"
	"time"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// Order is the creation-time ordering of a query.
type Order int

const (
	// Desc returns newest first (history pages).
	Desc Order = iota
	// Asc returns oldest first (live tail).
	Asc
)

func (o Order) String() string {
	if o == Asc {
		return "asc"
	}
	return "desc"
}

// Query selects messages of one channel.
type Query struct {
	Channel string
	// Before bounds a Desc query (exclusive); zero means newest.
	Before time.Time
	// After bounds an Asc query (exclusive).
	After time.Time
	Order Order
	Limit int
}

// Store is the per-partition document store.
type Store interface {
	// Name identifies the partition ("G", "S", "M" or "L").
	Name() string
	// DSN identifies the backing database. Two stores sharing a DSN are the
	// same partition.
	DSN() string
	Query(ctx context.Context, q Query) ([]domain.Message, error)
	// Insert stores m and returns it with the store-assigned id and creation
	// time.
	Insert(ctx context.Context, m domain.Message) (domain.Message, error)
	// IncrementReports atomically adds one report to message id of channel
	// and flags it once the count reaches flagAt.
	IncrementReports(ctx context.Context, channel, id string, flagAt int) (domain.Message, error)
	// Listen delivers messages of q.Channel created strictly after q.After,
	// oldest first: first everything already stored, then new inserts.
	// onAdded is never called concurrently with itself. onError receives
	// transient failures while they are being retried and the final error
	// when listening gives up.
	Listen(q Query, onAdded func([]domain.Message), onError func(error)) Subscription
	Close() error
}

// Subscription is a live listener. After Stop returns no further onAdded
// call starts and none is in progress. Stop is idempotent and must not be
// called from inside onAdded.
type Subscription interface {
	Stop()
}
