// Package services – ChatClient
//
// ChatClient is the single entry point of the UI shell. It owns the session,
// one feed view and the moderation actions, and routes every send through the
// filter, the duplicate check, the rate limiter and the channel router before
// anything reaches a store.
//
// Observability: every public method opens a span and counts its result by
// error kind.
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/go-campus-chat/internal/cache"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/feed"
	"github.com/tbourn/go-campus-chat/internal/filter"
	"github.com/tbourn/go-campus-chat/internal/identity"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
	"github.com/tbourn/go-campus-chat/internal/moderation"
	"github.com/tbourn/go-campus-chat/internal/observability"
	"github.com/tbourn/go-campus-chat/internal/ratelimit"
	"github.com/tbourn/go-campus-chat/internal/router"
)

const tracerName = "services/ChatClient"

// DefaultDuplicateWindow is how long the last text of a channel blocks an
// identical send.
const DefaultDuplicateWindow = 30 * time.Second

// Options tunes a ChatClient. Zero values take the defaults.
type Options struct {
	Feed            feed.Options
	Rules           filter.Rules
	DuplicateWindow time.Duration
	Now             func() time.Time
}

// SessionInfo describes the session to the UI shell.
type SessionInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	HasName     bool   `json:"has_name"`
}

// ChannelInfo is one selectable channel.
type ChannelInfo struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Partitioned bool   `json:"partitioned"`
}

type lastSend struct {
	text string
	at   time.Time
}

// ChatClient composes the chat components for one session and one view.
type ChatClient struct {
	session *identity.Session
	router  *router.Router
	limiter *ratelimit.Limiter
	feed    *feed.Controller
	mod     *moderation.Service
	log     zerolog.Logger
	opts    Options

	mu   sync.Mutex
	last map[string]lastSend
}

// NewChatClient wires a client. tier and kv may be nil.
func NewChatClient(
	session *identity.Session,
	r *router.Router,
	tier cache.Tier,
	kv kvstore.KV,
	limiter *ratelimit.Limiter,
	opts Options,
	log zerolog.Logger,
) *ChatClient {
	if opts.Rules == (filter.Rules{}) {
		opts.Rules = filter.DefaultRules
	}
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Feed.Now == nil {
		opts.Feed.Now = opts.Now
	}
	fc := feed.NewController(r, tier, opts.Feed, log)
	return &ChatClient{
		session: session,
		router:  r,
		limiter: limiter,
		feed:    fc,
		mod:     moderation.NewService(fc, r, tier, kv, log),
		log:     log.With().Str("component", "chat").Logger(),
		opts:    opts,
		last:    make(map[string]lastSend),
	}
}

// Session returns the session identity and display name.
func (c *ChatClient) Session() SessionInfo {
	name, ok := c.session.DisplayName()
	return SessionInfo{ID: c.session.ID(), DisplayName: name, HasName: ok}
}

// ChooseName reserves and stores a display name for the session.
func (c *ChatClient) ChooseName(ctx context.Context, raw string) (name string, err error) {
	ctx, op := observability.Start(ctx, tracerName, "ChooseName")
	defer func() { op.End(err) }()
	return c.session.ChooseName(ctx, raw)
}

// ForgetName releases the display name.
func (c *ChatClient) ForgetName(ctx context.Context) (err error) {
	ctx, op := observability.Start(ctx, tracerName, "ForgetName")
	defer func() { op.End(err) }()
	return c.session.Forget(ctx)
}

// Channels lists the selectable channels.
func (c *ChatClient) Channels() []ChannelInfo {
	chs := c.router.Channels()
	out := make([]ChannelInfo, 0, len(chs))
	for _, ch := range chs {
		out = append(out, ChannelInfo{
			ID:          ch.ID,
			Kind:        ch.Kind.String(),
			Partitioned: c.router.IsPartitioned(ch.ID),
		})
	}
	return out
}

// OpenChannel switches the view to channel id.
func (c *ChatClient) OpenChannel(ctx context.Context, id string) (err error) {
	ctx, op := observability.Start(ctx, tracerName, "OpenChannel", attribute.String("channel.id", id))
	defer func() { op.End(err) }()
	return c.feed.Open(ctx, id)
}

// LoadMore fetches the next older page of the view.
func (c *ChatClient) LoadMore(ctx context.Context) (n int, err error) {
	ctx, op := observability.Start(ctx, tracerName, "LoadMore", attribute.String("channel.id", c.feed.Channel()))
	defer func() { op.End(err) }()
	return c.feed.LoadMore(ctx)
}

// Send posts text to the open channel, optionally replying to a loaded
// message. The stored message is returned; it also reaches the view through
// the live subscription.
func (c *ChatClient) Send(ctx context.Context, text, replyToID string) (msg domain.Message, err error) {
	channel := c.feed.Channel()
	ctx, op := observability.Start(ctx, tracerName, "Send", attribute.String("channel.id", channel))
	defer func() { op.End(err) }()

	name, err := c.session.RequireName()
	if err != nil {
		return domain.Message{}, err
	}
	if channel == "" {
		return domain.Message{}, feed.ErrNoChannel
	}

	verdict := c.opts.Rules.Check(text)
	if !verdict.Valid {
		observability.MessagesRejected.WithLabelValues(string(verdict.Reason)).Inc()
		return domain.Message{}, rejected(verdict.Reason.Message())
	}

	now := c.opts.Now()
	if c.isDuplicate(channel, verdict.Text, now) {
		observability.MessagesRejected.WithLabelValues("duplicate").Inc()
		return domain.Message{}, ErrDuplicateMessage
	}

	var reply *domain.ReplyLink
	if replyToID = strings.TrimSpace(replyToID); replyToID != "" {
		if reply, err = c.mod.Reply(replyToID); err != nil {
			return domain.Message{}, ErrReplyNotLoaded
		}
	}

	if d := c.limiter.Check(c.session.ID(), channel, now); !d.Allowed {
		wait := d.RetryAfter(now)
		observability.RateLimited.WithLabelValues(kindOf(channel)).Inc()
		c.log.Info().Str("channel", channel).Dur("retry_after", wait).Str("reason", string(d.Reason)).Msg("send rate limited")
		return domain.Message{}, rateLimited(wait)
	}

	ch, binding, err := c.router.Resolve(channel)
	if err != nil {
		return domain.Message{}, err
	}

	subject, err := binding.Identity.Subject(ctx)
	if err != nil {
		return domain.Message{}, err
	}

	msg, err = binding.Store.Insert(ctx, domain.Message{
		Channel:  ch.ID,
		Username: name,
		Content:  verdict.Text,
		ReplyTo:  reply,
		AuthorID: subject,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("channel", ch.ID).Msg("send failed")
		return domain.Message{}, err
	}

	c.mu.Lock()
	c.last[ch.ID] = lastSend{text: verdict.Text, at: now}
	c.mu.Unlock()
	c.feed.Deliver(msg)
	observability.MessagesSent.WithLabelValues(ch.Kind.String()).Inc()
	c.log.Debug().Str("channel", ch.ID).Str("message_id", msg.ID).Msg("message sent")
	return msg, nil
}

func kindOf(channel string) string {
	ch, err := domain.ParseChannel(channel)
	if err != nil {
		return "invalid"
	}
	return ch.Kind.String()
}

func (c *ChatClient) isDuplicate(channel, text string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.last[channel]
	return ok && prev.text == text && now.Sub(prev.at) < c.opts.DuplicateWindow
}

// Report flags message id of the open channel on behalf of the session.
func (c *ChatClient) Report(ctx context.Context, id string) (msg domain.Message, err error) {
	channel := c.feed.Channel()
	ctx, op := observability.Start(ctx, tracerName, "Report",
		attribute.String("channel.id", channel),
		attribute.String("message.id", id),
	)
	defer func() { op.End(err) }()
	if channel == "" {
		return domain.Message{}, feed.ErrNoChannel
	}
	return c.mod.Report(ctx, c.session.ID(), channel, id)
}

// Locate returns the position of a loaded message in the view.
func (c *ChatClient) Locate(ctx context.Context, id string) (i int, err error) {
	_, op := observability.Start(ctx, tracerName, "Locate", attribute.String("message.id", id))
	defer func() { op.End(err) }()
	return c.mod.Locate(id)
}

// View returns the current snapshot of the view.
func (c *ChatClient) View() feed.View { return c.feed.Snapshot() }

// Watch streams view snapshots until ctx is done.
func (c *ChatClient) Watch(ctx context.Context) <-chan feed.View { return c.feed.Watch(ctx) }

// CloseView stops the live subscription and empties the view.
func (c *ChatClient) CloseView(ctx context.Context) {
	_, op := observability.Start(ctx, tracerName, "CloseView")
	c.feed.Close()
	op.End(nil)
}

// Close releases the view. Stores are owned by the caller.
func (c *ChatClient) Close() error {
	c.feed.Close()
	return nil
}
