// Package feed drives the message feed of one open channel view: history
// from the cache tier and then the server, followed by a live subscription
// whose deliveries are merged into the view's window.
//
// A Controller owns at most one subscription. Opening another channel or
// closing the view stops it, and a generation counter discards anything that
// resolves for a channel the view has already left.
package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-campus-chat/internal/cache"
	"github.com/tbourn/go-campus-chat/internal/docstore"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/observability"
)

// Defaults.
const (
	PageSize         = 25
	LiveSafetyMargin = 2 * time.Second
)

// Resolver finds the store of a channel. *router.Router implements it.
type Resolver interface {
	ResolveStore(id string) (docstore.Store, error)
}

// Options tunes a Controller. Zero values take the defaults.
type Options struct {
	PageSize     int
	SafetyMargin time.Duration
	// CacheTimeout bounds each cache call so a slow cache never delays the
	// server read.
	CacheTimeout time.Duration
	Now          func() time.Time
}

// View is a snapshot of the controller handed to the UI shell.
type View struct {
	Channel   string           `json:"channel"`
	State     State            `json:"state"`
	Messages  []domain.Message `json:"messages"`
	HasMore   bool             `json:"has_more"`
	LiveSince time.Time        `json:"live_since"`
	// Err is the failure the user should see, if any.
	Err error `json:"-"`
}

// ErrNoChannel is returned by operations that need an open channel.
var ErrNoChannel = &domain.Error{Kind: domain.KindValidation, Op: "feed", Msg: "no channel is open"}

// Controller is the feed of one view.
type Controller struct {
	router Resolver
	cache  cache.Tier
	log    zerolog.Logger
	opts   Options

	mu       sync.Mutex
	gen      uint64
	state    State
	win      Window
	store    docstore.Store
	sub      docstore.Subscription
	err      error
	watchers map[uint64]chan View
	nextW    uint64

	more singleflight.Group
}

// NewController builds an idle controller. A nil tier disables caching.
func NewController(r Resolver, tier cache.Tier, opts Options, log zerolog.Logger) *Controller {
	if tier == nil {
		tier = cache.Nop{}
	}
	if opts.PageSize <= 0 {
		opts.PageSize = PageSize
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = LiveSafetyMargin
	}
	if opts.CacheTimeout <= 0 {
		opts.CacheTimeout = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		router:   r,
		cache:    tier,
		log:      log.With().Str("component", "feed").Logger(),
		opts:     opts,
		watchers: make(map[uint64]chan View),
	}
}

// Open switches the view to channel id. It returns once history is loaded
// and the live subscription is open. A nil error with cached data shown is
// possible even when the server read failed transiently.
func (c *Controller) Open(ctx context.Context, id string) error {
	const op = "feed.open"
	store, err := c.router.ResolveStore(id)
	if err != nil {
		return err
	}
	ch, err := domain.ParseChannel(id)
	if err != nil {
		return err
	}
	channel := ch.ID

	c.mu.Lock()
	c.gen++
	gen := c.gen
	old := c.sub
	c.sub = nil
	c.store = store
	c.win = newWindow(channel)
	c.err = nil
	c.state = LoadingCacheHistory
	c.notifyLocked()
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}
	log := c.log.With().Str("channel", channel).Str("partition", store.Name()).Logger()

	// Cache first, shown optimistically.
	cached := c.cacheLatest(ctx, store.Name(), channel)
	if !c.apply(gen, func() {
		if len(cached) > 0 {
			c.win.replace(cached)
			c.win.HasMore = len(cached) >= c.opts.PageSize
		}
		c.state = LoadingServerHistory
	}) {
		return nil
	}

	// The server read replaces the cached list wholesale.
	page, qerr := store.Query(ctx, docstore.Query{Channel: channel, Order: docstore.Desc, Limit: c.opts.PageSize})
	if qerr != nil {
		observability.FeedLoads.WithLabelValues("server", "error").Inc()
		surfaced := c.serverFailure(op, qerr, len(cached) > 0)
		if surfaced != nil {
			log.Error().Err(qerr).Msg("history load failed")
			c.apply(gen, func() {
				c.err = surfaced
				c.state = Idle
			})
			return surfaced
		}
		log.Warn().Err(qerr).Int("cached", len(cached)).Msg("server history unavailable; showing cached messages")
	} else {
		observability.FeedLoads.WithLabelValues("server", "hit").Inc()
		if !c.apply(gen, func() {
			c.win.replace(page)
			c.win.HasMore = len(page) >= c.opts.PageSize
		}) {
			return nil
		}
		if len(page) >= c.opts.PageSize && !overlaps(cached, page) {
			// The cached run is older than the server page and not contiguous
			// with it; paging back through it would skip messages.
			c.cacheDropBefore(ctx, store.Name(), channel, oldest(page))
		}
		c.cachePut(ctx, store.Name(), channel, page)
	}

	// History is settled; fix the boundary, then subscribe.
	var since time.Time
	if !c.apply(gen, func() {
		if t, ok := c.win.newest(); ok {
			since = t
		} else {
			since = c.opts.Now().Add(-c.opts.SafetyMargin).UTC()
		}
		c.win.LiveSince = since
	}) {
		return nil
	}

	sub := store.Listen(docstore.Query{Channel: channel, After: since, Order: docstore.Asc},
		func(msgs []domain.Message) { c.onLive(gen, store.Name(), channel, msgs) },
		func(err error) { c.onLiveError(gen, err) },
	)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		sub.Stop()
		return nil
	}
	c.sub = sub
	c.state = Live
	c.notifyLocked()
	c.mu.Unlock()
	log.Debug().Time("live_since", since).Msg("channel live")
	return nil
}

// serverFailure decides what a failed history read shows. It returns nil
// when the failure stays silent.
func (c *Controller) serverFailure(op string, err error, haveData bool) error {
	switch domain.KindOf(err) {
	case domain.KindConfiguration, domain.KindPermission:
		return err
	}
	if haveData {
		return nil
	}
	if domain.Retryable(err) {
		return err
	}
	return domain.E(domain.KindTransient, op, "messages are unavailable right now", err)
}

// LoadMore fetches the page older than the oldest loaded message and returns
// how many messages were added. Concurrent calls for the same cursor share
// one fetch.
func (c *Controller) LoadMore(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.win.Channel == "" || c.store == nil {
		c.mu.Unlock()
		return 0, ErrNoChannel
	}
	if !c.win.HasMore {
		c.mu.Unlock()
		return 0, nil
	}
	gen, store, channel, cursor := c.gen, c.store, c.win.Channel, c.win.Oldest
	c.mu.Unlock()

	key := fmt.Sprintf("%d:%d", gen, cursor.UnixMicro())
	v, err, _ := c.more.Do(key, func() (any, error) {
		return c.loadMore(ctx, gen, store, channel, cursor)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *Controller) loadMore(ctx context.Context, gen uint64, store docstore.Store, channel string, cursor time.Time) (int, error) {
	const op = "feed.load_more"
	if !c.apply(gen, func() {
		if c.state == Live {
			c.state = LoadingMoreHistory
		}
	}) {
		return 0, nil
	}
	restore := func() {
		c.apply(gen, func() {
			if c.state == LoadingMoreHistory {
				c.state = Live
			}
		})
	}

	page := c.cacheBefore(ctx, store.Name(), channel, cursor)
	if len(page) < c.opts.PageSize {
		// A short cache page may just be a cold cache.
		q := docstore.Query{Channel: channel, Before: cursor, Order: docstore.Desc, Limit: c.opts.PageSize}
		fresh, err := store.Query(ctx, q)
		if err != nil {
			observability.FeedLoads.WithLabelValues("server", "error").Inc()
			restore()
			if domain.KindOf(err) == domain.KindInternal {
				err = domain.E(domain.KindTransient, op, "older messages are unavailable right now", err)
			}
			c.log.Warn().Err(err).Str("channel", channel).Msg("load more failed")
			return 0, err
		}
		observability.FeedLoads.WithLabelValues("server", "hit").Inc()
		page = fresh
		c.cachePut(ctx, store.Name(), channel, page)
	}

	added := 0
	c.apply(gen, func() {
		added = c.win.add(page)
		if len(page) < c.opts.PageSize {
			c.win.HasMore = false
		}
		if c.state == LoadingMoreHistory {
			c.state = Live
		}
	})
	return added, nil
}

// Apply swaps in a newer copy of a loaded message, e.g. after a report.
func (c *Controller) Apply(m domain.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Channel != c.win.Channel || !c.win.update(m) {
		return false
	}
	c.notifyLocked()
	return true
}

// Deliver adds a message the session just stored to the window of the open
// channel without waiting for the live subscription. It is a no-op until the
// channel is live, so the live boundary is never moved past unseen messages.
func (c *Controller) Deliver(m domain.Message) bool {
	c.mu.Lock()
	if m.Channel != c.win.Channel || c.store == nil || (c.state != Live && c.state != LoadingMoreHistory) {
		c.mu.Unlock()
		return false
	}
	if c.win.add([]domain.Message{m}) == 0 {
		c.mu.Unlock()
		return false
	}
	partition := c.store.Name()
	c.notifyLocked()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CacheTimeout)
	defer cancel()
	c.cachePut(ctx, partition, m.Channel, []domain.Message{m})
	return true
}

// Find returns a loaded message and its index in the window.
func (c *Controller) Find(id string) (domain.Message, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.win.index(id)
	if i < 0 {
		return domain.Message{}, -1, false
	}
	return c.win.Messages[i], i, true
}

// Channel returns the open channel, or "".
func (c *Controller) Channel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.win.Channel
}

// Snapshot returns the current view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Watch streams snapshots until ctx is done. The first value is the current
// view; a slow reader only ever sees the latest one.
func (c *Controller) Watch(ctx context.Context) <-chan View {
	ch := make(chan View, 1)
	c.mu.Lock()
	c.nextW++
	id := c.nextW
	c.watchers[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.watchers, id)
		close(ch)
		c.mu.Unlock()
	}()
	return ch
}

// Close stops the subscription and empties the view.
func (c *Controller) Close() {
	c.mu.Lock()
	c.gen++
	old := c.sub
	c.sub = nil
	c.store = nil
	c.win = Window{}
	c.err = nil
	c.state = Idle
	c.notifyLocked()
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

func (c *Controller) onLive(gen uint64, partition, channel string, msgs []domain.Message) {
	added := 0
	if !c.apply(gen, func() {
		added = c.win.add(msgs)
		if added > 0 && c.state != Idle {
			c.err = nil
		}
	}) || added == 0 {
		return
	}
	observability.LiveDeliveries.Add(float64(added))
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CacheTimeout)
	defer cancel()
	c.cachePut(ctx, partition, channel, msgs)
}

func (c *Controller) onLiveError(gen uint64, err error) {
	c.apply(gen, func() {
		if domain.Retryable(err) {
			// Retried by the subscription; only worth showing on an empty view.
			if len(c.win.Messages) == 0 {
				c.err = err
			}
			return
		}
		c.log.Error().Err(err).Str("channel", c.win.Channel).Msg("live subscription ended")
		c.err = err
		c.state = Idle
	})
}

// apply runs fn under the lock when gen is still current and publishes the
// result. It reports whether fn ran.
func (c *Controller) apply(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	fn()
	c.notifyLocked()
	return true
}

func (c *Controller) snapshotLocked() View {
	return View{
		Channel:   c.win.Channel,
		State:     c.state,
		Messages:  c.win.clone(),
		HasMore:   c.win.HasMore,
		LiveSince: c.win.LiveSince,
		Err:       c.err,
	}
}

// notifyLocked hands the latest snapshot to every watcher, replacing one the
// watcher has not read yet.
func (c *Controller) notifyLocked() {
	if len(c.watchers) == 0 {
		return
	}
	v := c.snapshotLocked()
	for _, ch := range c.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

func (c *Controller) cacheLatest(ctx context.Context, partition, channel string) []domain.Message {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CacheTimeout)
	defer cancel()
	msgs, err := c.cache.Latest(ctx, partition, channel, c.opts.PageSize)
	return c.cacheResult(err, msgs, channel)
}

func (c *Controller) cacheBefore(ctx context.Context, partition, channel string, before time.Time) []domain.Message {
	if before.IsZero() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.CacheTimeout)
	defer cancel()
	msgs, err := c.cache.Before(ctx, partition, channel, before, c.opts.PageSize)
	return c.cacheResult(err, msgs, channel)
}

func (c *Controller) cacheResult(err error, msgs []domain.Message, channel string) []domain.Message {
	switch {
	case err != nil:
		observability.FeedLoads.WithLabelValues("cache", "error").Inc()
		c.log.Debug().Err(err).Str("channel", channel).Msg("cache read failed")
		return nil
	case len(msgs) == 0:
		observability.FeedLoads.WithLabelValues("cache", "miss").Inc()
		return nil
	}
	observability.FeedLoads.WithLabelValues("cache", "hit").Inc()
	return msgs
}

func (c *Controller) cacheDropBefore(ctx context.Context, partition, channel string, before time.Time) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CacheTimeout)
	defer cancel()
	if err := c.cache.DropBefore(ctx, partition, channel, before); err != nil {
		c.log.Debug().Err(err).Str("channel", channel).Msg("cache evict failed")
	}
}

// overlaps reports whether the newest cached message is at least as new as
// the oldest message of the server page.
func overlaps(cached, page []domain.Message) bool {
	if len(cached) == 0 || len(page) == 0 {
		return false
	}
	var newest time.Time
	for _, m := range cached {
		if m.CreatedAt.After(newest) {
			newest = m.CreatedAt
		}
	}
	return !newest.Before(oldest(page))
}

func oldest(msgs []domain.Message) time.Time {
	var t time.Time
	for i, m := range msgs {
		if i == 0 || m.CreatedAt.Before(t) {
			t = m.CreatedAt
		}
	}
	return t
}

func (c *Controller) cachePut(ctx context.Context, partition, channel string, msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.CacheTimeout)
	defer cancel()
	if err := c.cache.Put(ctx, partition, channel, msgs); err != nil {
		c.log.Debug().Err(err).Str("channel", channel).Msg("cache write failed")
	}
}
