package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// Options configures the Redis tier.
type Options struct {
	// Capacity is the number of newest messages kept per channel.
	Capacity int
	// TTL expires an idle channel set.
	TTL time.Duration
}

// DefaultOptions keeps the newest 500 messages for a day.
var DefaultOptions = Options{Capacity: 500, TTL: 24 * time.Hour}

// Redis is a Tier backed by Redis sorted sets.
type Redis struct {
	client rueidis.Client
	opts   Options
	log    zerolog.Logger
}

// Dial connects to addr.
func Dial(addr string, db int, opts Options, log zerolog.Logger) (*Redis, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
		SelectDB:    db,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	return NewRedis(client, opts, log), nil
}

// NewRedis wraps an existing client.
func NewRedis(client rueidis.Client, opts Options, log zerolog.Logger) *Redis {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultOptions.Capacity
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions.TTL
	}
	return &Redis{
		client: client,
		opts:   opts,
		log:    log.With().Str("component", "cache").Logger(),
	}
}

// Close releases the client.
func (r *Redis) Close() { r.client.Close() }

func key(partition, channel string) string {
	return "feed:" + partition + ":" + channel
}

func score(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixMicro(), 10)
}

// Latest implements Tier.
func (r *Redis) Latest(ctx context.Context, partition, channel string, n int) ([]domain.Message, error) {
	return r.revRange(ctx, key(partition, channel), "+inf", n)
}

// Before implements Tier.
func (r *Redis) Before(ctx context.Context, partition, channel string, before time.Time, n int) ([]domain.Message, error) {
	return r.revRange(ctx, key(partition, channel), "("+score(before), n)
}

func (r *Redis) revRange(ctx context.Context, k, max string, n int) ([]domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := r.client.Do(ctx,
		r.client.B().Zrevrangebyscore().Key(k).Max(max).Min("-inf").Limit(0, int64(n)).Build(),
	).AsStrSlice()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(members))
	for _, raw := range members {
		var m domain.Message
		if err := sonic.UnmarshalString(raw, &m); err != nil {
			// One bad member must not poison the page.
			r.log.Warn().Err(err).Str("key", k).Msg("dropping undecodable cache member")
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Put implements Tier.
func (r *Redis) Put(ctx context.Context, partition, channel string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	k := key(partition, channel)
	cmds := make(rueidis.Commands, 0, 2*len(msgs)+2)
	for _, m := range msgs {
		member, err := sonic.MarshalString(m)
		if err != nil {
			return err
		}
		s := score(m.CreatedAt)
		cmds = append(cmds,
			r.client.B().Zremrangebyscore().Key(k).Min(s).Max(s).Build(),
			r.client.B().Zadd().Key(k).ScoreMember().ScoreMember(float64(m.CreatedAt.UTC().UnixMicro()), member).Build(),
		)
	}
	cmds = append(cmds,
		r.client.B().Zremrangebyrank().Key(k).Start(0).Stop(int64(-r.opts.Capacity-1)).Build(),
		r.client.B().Expire().Key(k).Seconds(int64(r.opts.TTL/time.Second)).Build(),
	)
	for _, res := range r.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return err
		}
	}
	return nil
}

// DropBefore implements Tier.
func (r *Redis) DropBefore(ctx context.Context, partition, channel string, before time.Time) error {
	return r.client.Do(ctx,
		r.client.B().Zremrangebyscore().Key(key(partition, channel)).Min("-inf").Max("("+score(before)).Build(),
	).Error()
}
