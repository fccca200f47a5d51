package identity

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/tbourn/go-campus-chat/internal/docstore"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/repo"
)

// Opener opens the secondary connection used for name reservation.
type Opener func(ctx context.Context) (*gorm.DB, error)

// SQLiteOpener opens the database at path.
func SQLiteOpener(path string) Opener {
	return func(context.Context) (*gorm.DB, error) { return repo.OpenSQLite(path) }
}

// NameRegistry reserves display names through a connection that exists only
// for the duration of one reservation. Backend connections are capped across
// all clients, so the connection is opened explicitly before use, closed
// explicitly after, and at most MaxOpen reservations run at once.
type NameRegistry struct {
	open Opener
	sem  *semaphore.Weighted
	log  zerolog.Logger
	now  func() time.Time

	inUse atomic.Int64
	peak  atomic.Int64
}

// NewNameRegistry builds a registry. maxOpen <= 0 means 1.
func NewNameRegistry(open Opener, maxOpen int64, log zerolog.Logger) *NameRegistry {
	if maxOpen <= 0 {
		maxOpen = 1
	}
	return &NameRegistry{
		open: open,
		sem:  semaphore.NewWeighted(maxOpen),
		log:  log.With().Str("component", "name_registry").Logger(),
		now:  time.Now,
	}
}

// Reserve claims key for sessionID.
func (r *NameRegistry) Reserve(ctx context.Context, display, key, sessionID string) error {
	return r.with(ctx, "identity.reserve", func(db *gorm.DB) error {
		err := repo.ReserveName(ctx, db, key, display, sessionID, r.now())
		if errors.Is(err, repo.ErrNameTaken) {
			return ErrNameTaken
		}
		return err
	})
}

// Release drops the reservation held by sessionID.
func (r *NameRegistry) Release(ctx context.Context, sessionID string) error {
	return r.with(ctx, "identity.release", func(db *gorm.DB) error {
		return repo.ReleaseName(ctx, db, sessionID)
	})
}

// PeakOpen reports the highest number of simultaneously open connections.
func (r *NameRegistry) PeakOpen() int64 { return r.peak.Load() }

func (r *NameRegistry) with(ctx context.Context, op string, fn func(*gorm.DB) error) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return domain.E(domain.KindTransient, op, "name service busy", err)
	}
	defer r.sem.Release(1)

	db, err := r.open(ctx)
	if err != nil {
		return docstore.Classify(op, err)
	}
	n := r.inUse.Add(1)
	for {
		p := r.peak.Load()
		if n <= p || r.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer func() {
		r.inUse.Add(-1)
		if err := repo.Close(db); err != nil {
			r.log.Warn().Err(err).Msg("closing reservation connection")
		}
	}()

	return docstore.Classify(op, fn(db))
}
