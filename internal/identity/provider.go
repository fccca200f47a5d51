package identity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-campus-chat/internal/docstore"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
	"github.com/tbourn/go-campus-chat/internal/repo"
)

// Provider is the anonymous identity of one partition. Sign-in happens on
// first use and is best effort: a failure blocks sends but not reads, and is
// not cached, so the next send tries again.
type Provider struct {
	partition string
	db        *gorm.DB
	kv        kvstore.KV
	log       zerolog.Logger

	mu      sync.Mutex
	subject string

	signIn func(ctx context.Context) (string, error)
}

// NewProvider builds the provider of partition, issuing identities from db.
// A subject obtained earlier is restored from kv when present.
func NewProvider(partition string, db *gorm.DB, kv kvstore.KV, log zerolog.Logger) *Provider {
	p := &Provider{
		partition: partition,
		db:        db,
		kv:        kv,
		log:       log.With().Str("component", "identity").Str("partition", partition).Logger(),
	}
	p.signIn = func(ctx context.Context) (string, error) {
		rec, err := repo.CreateAnonIdentity(ctx, p.db, time.Now())
		if err != nil {
			return "", err
		}
		return rec.ID, nil
	}
	return p
}

// Partition names the partition this identity belongs to.
func (p *Provider) Partition() string { return p.partition }

func (p *Provider) storageKey() string { return "identity:" + p.partition }

// Cached returns the subject without signing in.
func (p *Provider) Cached() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subject == "" {
		p.restore()
	}
	return p.subject, p.subject != ""
}

// Subject returns the opaque subject id, signing in if needed.
func (p *Provider) Subject(ctx context.Context) (string, error) {
	const op = "identity.sign_in"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subject == "" {
		p.restore()
	}
	if p.subject != "" {
		return p.subject, nil
	}

	id, err := p.signIn(ctx)
	if err != nil {
		err = docstore.Classify(op, err)
		if domain.KindOf(err) == domain.KindInternal {
			err = domain.E(domain.KindPermission, op, "anonymous sign-in failed", err)
		}
		p.log.Warn().Err(err).Msg("anonymous sign-in failed")
		return "", err
	}
	p.subject = id
	if p.kv != nil {
		if err := p.kv.Set(p.storageKey(), id); err != nil {
			p.log.Debug().Err(err).Msg("subject not persisted")
		}
	}
	p.log.Info().Msg("anonymous sign-in")
	return id, nil
}

// restore reads a persisted subject; storage failures read as absent.
func (p *Provider) restore() {
	if p.kv == nil {
		return
	}
	if v, ok, err := p.kv.Get(p.storageKey()); err == nil && ok && v != "" {
		p.subject = v
	}
}
