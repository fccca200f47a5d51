package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

type subscription struct {
	p       *Partition
	channel string
	onAdded func([]domain.Message)
	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex // held while calling back
	stopped bool
	last    time.Time // newest delivered creation time
}

// Stop implements Subscription.
func (s *subscription) Stop() {
	s.cancel()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *subscription) run(id uint64, l *listener) {
	defer close(s.done)
	defer s.p.feed.remove(s.channel, id)

	if !s.catchUp() {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case m := <-l.ch:
			batch := []domain.Message{m}
		drain:
			for {
				select {
				case m := <-l.ch:
					batch = append(batch, m)
				default:
					break drain
				}
			}
			s.deliver(batch)
		case <-l.kick:
			if l.lagged.Swap(false) && !s.catchUp() {
				return
			}
		}
	}
}

// catchUp delivers everything stored after the last delivered message,
// retrying transient failures with exponential backoff. It reports false
// when the subscription should end.
func (s *subscription) catchUp() bool {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.p.retry.Initial
	b.MaxInterval = s.p.retry.Max
	b.MaxElapsedTime = s.p.retry.MaxElapsed

	var batch []domain.Message
	err := backoff.RetryNotify(func() error {
		msgs, err := s.p.Query(s.ctx, Query{Channel: s.channel, After: s.last, Order: Asc})
		if err != nil {
			if domain.Retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		batch = msgs
		return nil
	}, backoff.WithContext(b, s.ctx), func(err error, wait time.Duration) {
		s.p.log.Warn().Err(err).Dur("retry_in", wait).Str("channel", s.channel).Msg("live catch-up failed; retrying")
		s.fail(err)
	})
	if s.ctx.Err() != nil {
		return false
	}
	if err != nil {
		s.p.log.Error().Err(err).Str("channel", s.channel).Msg("live subscription gave up")
		s.fail(err)
		return false
	}
	s.deliver(batch)
	return true
}

func (s *subscription) deliver(batch []domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	fresh := batch[:0:0]
	for _, m := range batch {
		if m.CreatedAt.After(s.last) {
			fresh = append(fresh, m)
			s.last = m.CreatedAt
		}
	}
	if len(fresh) > 0 && s.onAdded != nil {
		s.onAdded(fresh)
	}
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.onError == nil {
		return
	}
	s.onError(err)
}
