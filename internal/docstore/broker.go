package docstore

import (
	"sync"
	"sync/atomic"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// broker fans inserts out to the listeners of their channel. Publishing never
// blocks: a listener whose buffer is full is marked lagged and catches up
// from the database instead.
type broker struct {
	mu   sync.Mutex
	next uint64
	subs map[string]map[uint64]*listener
}

type listener struct {
	ch     chan domain.Message
	kick   chan struct{}
	lagged atomic.Bool
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[uint64]*listener)}
}

func (b *broker) add(channel string, buffer int) (uint64, *listener) {
	if buffer <= 0 {
		buffer = 1
	}
	l := &listener{
		ch:   make(chan domain.Message, buffer),
		kick: make(chan struct{}, 1),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[uint64]*listener)
	}
	b.subs[channel][b.next] = l
	return b.next, l
}

func (b *broker) remove(channel string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m := b.subs[channel]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(b.subs, channel)
		}
	}
}

func (b *broker) publish(m domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, l := range b.subs[m.Channel] {
		select {
		case l.ch <- m:
		default:
			l.lagged.Store(true)
			select {
			case l.kick <- struct{}{}:
			default:
			}
		}
	}
}

func (b *broker) listeners(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[channel])
}
