// Package moderation implements replies and reports on loaded messages.
package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-campus-chat/internal/cache"
	"github.com/tbourn/go-campus-chat/internal/docstore"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
	"github.com/tbourn/go-campus-chat/internal/observability"
)

const (
	// ReportThreshold is the report count at which a message is flagged.
	ReportThreshold = 3
	// ReplyPreviewRunes bounds the body snapshot carried by a reply.
	ReplyPreviewRunes = 120
)

var (
	ErrNotLoaded       = &domain.Error{Kind: domain.KindNotFound, Op: "moderation.locate", Msg: "message is not loaded"}
	ErrAlreadyReported = &domain.Error{Kind: domain.KindValidation, Op: "moderation.report", Msg: "you already reported this message"}
)

// Window is the loaded feed the actions work against. *feed.Controller
// implements it.
type Window interface {
	Find(id string) (domain.Message, int, bool)
	Apply(m domain.Message) bool
}

// Resolver finds the store of a channel.
type Resolver interface {
	ResolveStore(id string) (docstore.Store, error)
}

// ReplyTo builds the reply link snapshot of target.
func ReplyTo(target domain.Message) *domain.ReplyLink {
	return &domain.ReplyLink{
		MessageID: target.ID,
		Username:  target.Username,
		Content:   clip(target.Content, ReplyPreviewRunes),
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Service runs moderation actions for one view.
type Service struct {
	win       Window
	router    Resolver
	cache     cache.Tier
	kv        kvstore.KV
	threshold int
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[string]*reportLock
}

type reportLock struct {
	sync.Mutex
	refs int
}

// NewService wires the actions. kv remembers which messages a session has
// reported and may be nil.
func NewService(win Window, r Resolver, tier cache.Tier, kv kvstore.KV, log zerolog.Logger) *Service {
	if tier == nil {
		tier = cache.Nop{}
	}
	return &Service{
		win:       win,
		router:    r,
		cache:     tier,
		kv:        kv,
		threshold: ReportThreshold,
		pending:   make(map[string]*reportLock),
		log:       log.With().Str("component", "moderation").Logger(),
	}
}

// Reply returns the reply link for a loaded message.
func (s *Service) Reply(id string) (*domain.ReplyLink, error) {
	m, _, ok := s.win.Find(id)
	if !ok {
		return nil, ErrNotLoaded
	}
	return ReplyTo(m), nil
}

// Locate returns the index of a loaded message for "scroll to original". It
// never fetches.
func (s *Service) Locate(id string) (int, error) {
	_, i, ok := s.win.Find(id)
	if !ok {
		return -1, ErrNotLoaded
	}
	return i, nil
}

// Report adds the session's report to message id of channel. The increment
// and the flag happen in one server-side statement, and only a message stored
// in channel can be reported. Reports by one session on one message are
// serialized.
func (s *Service) Report(ctx context.Context, sessionID, channel, id string) (domain.Message, error) {
	const op = "moderation.report"
	store, err := s.router.ResolveStore(channel)
	if err != nil {
		return domain.Message{}, err
	}
	ch, err := domain.ParseChannel(channel)
	if err != nil {
		return domain.Message{}, err
	}
	channel = ch.ID
	if m, _, ok := s.win.Find(id); ok && m.Channel != channel {
		return domain.Message{}, domain.E(domain.KindValidation, op, "message belongs to another channel", nil)
	}

	marker := reportKey(sessionID, id)
	unlock := s.lock(marker)
	defer unlock()
	if s.kv != nil {
		if _, seen, err := s.kv.Get(marker); err == nil && seen {
			observability.Reports.WithLabelValues("duplicate").Inc()
			return domain.Message{}, ErrAlreadyReported
		}
	}

	m, err := store.IncrementReports(ctx, channel, id, s.threshold)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return domain.Message{}, domain.E(domain.KindNotFound, op, "message not found", err)
		}
		s.log.Warn().Err(err).Str("message_id", id).Msg("report failed")
		return domain.Message{}, err
	}

	if s.kv != nil {
		if err := s.kv.Set(marker, time.Now().UTC().Format(time.RFC3339)); err != nil {
			s.log.Debug().Err(err).Msg("report marker not persisted")
		}
	}
	s.win.Apply(m)
	if err := s.cache.Put(ctx, store.Name(), m.Channel, []domain.Message{m}); err != nil {
		s.log.Debug().Err(err).Msg("cache not updated after report")
	}

	outcome := "counted"
	if m.Reported {
		outcome = "flagged"
	}
	observability.Reports.WithLabelValues(outcome).Inc()
	s.log.Info().Str("message_id", id).Int("report_count", m.ReportCount).Bool("reported", m.Reported).Msg("message reported")
	return m, nil
}

// lock holds the report lock of key until the returned func is called.
func (s *Service) lock(key string) func() {
	s.mu.Lock()
	l := s.pending[key]
	if l == nil {
		l = &reportLock{}
		s.pending[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(s.pending, key)
		}
		s.mu.Unlock()
	}
}

func reportKey(sessionID, id string) string {
	return fmt.Sprintf("report:%s:%s", sessionID, id)
}
