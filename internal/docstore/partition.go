package docstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/repo"
)

// RetryPolicy bounds the exponential backoff of a subscription catch-up.
type RetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
	// MaxElapsed stops retrying after this long; zero retries until stopped.
	MaxElapsed time.Duration
}

// DefaultRetry is used when Options.Retry is zero.
var DefaultRetry = RetryPolicy{Initial: 250 * time.Millisecond, Max: 15 * time.Second}

// Options configures a Partition.
type Options struct {
	Name string
	Path string
	// Migrate creates the schema and indexes on open. Off means the operator
	// owns the schema; a missing index then surfaces as a configuration error.
	Migrate bool
	Retry   RetryPolicy
	// Buffer is the per-listener queue length before a listener falls back
	// to catching up from the database.
	Buffer int
	Now    func() time.Time
}

// Partition is a Store backed by one SQLite database.
type Partition struct {
	name  string
	dsn   string
	db    *gorm.DB
	log   zerolog.Logger
	now   func() time.Time
	retry RetryPolicy
	buf   int

	writeMu   sync.Mutex
	feed      *broker
	indexesOK atomic.Bool
	closed    atomic.Bool

	// beforeQuery, when set, runs ahead of every query. Tests use it to
	// inject failures.
	beforeQuery func(Query) error
}

// Open opens the partition database at opts.Path.
func Open(opts Options, log zerolog.Logger) (*Partition, error) {
	db, err := repo.OpenSQLite(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open partition %s: %w", opts.Name, err)
	}
	if opts.Migrate {
		if err := repo.AutoMigrate(db); err != nil {
			_ = repo.Close(db)
			return nil, fmt.Errorf("migrate partition %s: %w", opts.Name, err)
		}
	}
	return New(opts, db, log), nil
}

// New wraps an already opened database.
func New(opts Options, db *gorm.DB, log zerolog.Logger) *Partition {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry == (RetryPolicy{}) {
		opts.Retry = DefaultRetry
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	return &Partition{
		name:  opts.Name,
		dsn:   opts.Path,
		db:    db,
		log:   log.With().Str("component", "docstore").Str("partition", opts.Name).Logger(),
		now:   opts.Now,
		retry: opts.Retry,
		buf:   opts.Buffer,
		feed:  newBroker(),
	}
}

// Name implements Store.
func (p *Partition) Name() string { return p.name }

// DSN implements Store.
func (p *Partition) DSN() string { return p.dsn }

// DB exposes the partition database to collaborators sharing it (the
// identity provider and the name registry).
func (p *Partition) DB() *gorm.DB { return p.db }

// Ping checks that the database answers.
func (p *Partition) Ping(ctx context.Context) error {
	const op = "docstore.ping"
	if p.closed.Load() {
		return domain.E(domain.KindTransient, op, "store closed", nil)
	}
	return Classify(op, p.db.WithContext(ctx).Exec("SELECT 1").Error)
}

// Query implements Store.
func (p *Partition) Query(ctx context.Context, q Query) ([]domain.Message, error) {
	const op = "docstore.query"
	if p.closed.Load() {
		return nil, domain.E(domain.KindTransient, op, "store closed", nil)
	}
	if p.beforeQuery != nil {
		if err := p.beforeQuery(q); err != nil {
			return nil, Classify(op, err)
		}
	}
	if err := p.checkIndexes(ctx, op); err != nil {
		return nil, err
	}

	var (
		out []domain.Message
		err error
	)
	switch q.Order {
	case Asc:
		out, err = repo.ListAfter(ctx, p.db, q.Channel, q.After, q.Limit)
	default:
		out, err = repo.ListBefore(ctx, p.db, q.Channel, q.Before, q.Limit)
	}
	if err != nil {
		return nil, Classify(op, err)
	}
	return out, nil
}

// Insert implements Store. Inserts are serialized so that per-channel
// timestamps and publication order agree.
func (p *Partition) Insert(ctx context.Context, m domain.Message) (domain.Message, error) {
	const op = "docstore.insert"
	if p.closed.Load() {
		return domain.Message{}, domain.E(domain.KindTransient, op, "store closed", nil)
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	saved, err := repo.CreateMessage(ctx, p.db, m, p.now())
	if err != nil {
		return domain.Message{}, Classify(op, err)
	}
	p.feed.publish(saved)
	p.log.Debug().Str("channel", saved.Channel).Str("message_id", saved.ID).Msg("message stored")
	return saved, nil
}

// IncrementReports implements Store.
func (p *Partition) IncrementReports(ctx context.Context, channel, id string, flagAt int) (domain.Message, error) {
	const op = "docstore.report"
	if p.closed.Load() {
		return domain.Message{}, domain.E(domain.KindTransient, op, "store closed", nil)
	}
	m, err := repo.IncrementReports(ctx, p.db, channel, id, flagAt)
	if err != nil {
		return domain.Message{}, Classify(op, err)
	}
	return m, nil
}

// Listen implements Store.
func (p *Partition) Listen(q Query, onAdded func([]domain.Message), onError func(error)) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	id, l := p.feed.add(q.Channel, p.buf)
	s := &subscription{
		p:       p,
		channel: q.Channel,
		last:    q.After,
		onAdded: onAdded,
		onError: onError,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(id, l)
	return s
}

// Close releases the database. Live subscriptions stop delivering once their
// next query fails.
func (p *Partition) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return repo.Close(p.db)
}

// checkIndexes refuses queries while a required composite index is missing.
// Retrying cannot help until an operator creates it, so the error is a
// configuration error rather than a transient one.
func (p *Partition) checkIndexes(ctx context.Context, op string) error {
	if p.indexesOK.Load() {
		return nil
	}
	missing := repo.MissingIndexes(p.db.WithContext(ctx))
	if len(missing) == 0 {
		p.indexesOK.Store(true)
		return nil
	}
	// An unreachable database also reports no indexes.
	if err := p.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return Classify(op, err)
	}
	p.log.Error().Strs("missing_indexes", missing).Msg("partition is missing required indexes")
	return domain.E(domain.KindConfiguration, op,
		fmt.Sprintf("partition %s is missing required index %s", p.name, strings.Join(missing, ", ")), nil)
}
