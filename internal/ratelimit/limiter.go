// Package ratelimit implements the per-(identity, channel) burst + cooldown
// limiter that gates outgoing messages.
//
// Each (identity, channel) pair gets a window that opens on the first
// submission and lasts BurstWindow. Up to BurstLimit submissions are allowed in
// it; the window start does not move on later submissions. The first attempt
// past the limit starts a Cooldown during which everything is denied, after
// which the record resets to empty.
//
// Records live in durable client storage (kvstore.KV) so they survive reloads
// but not device changes. This is abuse friction, not a security boundary: any
// client can clear its own storage. Storage failures therefore fail open:
//   - unreadable or corrupt records are treated as absent;
//   - a full store triggers eviction of records idle past the retention horizon
//     and one retry, then the decision proceeds without persistence.
//
// Within one process the read-modify-write of a record is serialized by a
// mutex. Several processes sharing the same store get no stronger guarantee
// than one read-modify-write per submission.
package ratelimit

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
)

const keyPrefix = "ratelimit:"

// Config holds the limiter thresholds.
type Config struct {
	BurstLimit  int           // immediate sends allowed per window (default 3)
	BurstWindow time.Duration // measured from the first send (default 120s)
	Cooldown    time.Duration // imposed once the burst is exceeded (default 30s)
	Retention   time.Duration // idle records older than this are evictable (default 5m)
	// SweepEvery runs an opportunistic sweep of stale records after this many
	// checks. Zero disables sweeping.
	SweepEvery int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		BurstLimit:  3,
		BurstWindow: 120 * time.Second,
		Cooldown:    30 * time.Second,
		Retention:   5 * time.Minute,
		SweepEvery:  200,
	}
}

// Reason explains a denial.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonBurstExceeded Reason = "burst_exceeded"
	ReasonCoolingDown   Reason = "cooling_down"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed bool
	// Remaining is the number of sends left in the current window.
	Remaining int
	// ResetTime is when the window (allowed) or the cooldown (denied) ends.
	ResetTime time.Time
	Reason    Reason
}

// RetryAfter returns how long the caller must wait, relative to now.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed || !d.ResetTime.After(now) {
		return 0
	}
	return d.ResetTime.Sub(now)
}

// Record is the persisted state for one (identity, channel) pair.
type Record struct {
	Count         int   `json:"count"`
	WindowStart   int64 `json:"windowStart"`             // unix ms
	CooldownUntil int64 `json:"cooldownUntil,omitempty"` // unix ms, 0 when not cooling down
}

// lastActivity is the latest boundary the record still matters for.
func (r Record) lastActivity(window time.Duration) time.Time {
	end := time.UnixMilli(r.WindowStart).Add(window)
	if cd := time.UnixMilli(r.CooldownUntil); r.CooldownUntil != 0 && cd.After(end) {
		end = cd
	}
	return end
}

// Limiter is safe for concurrent use.
type Limiter struct {
	cfg Config
	kv  kvstore.KV
	log zerolog.Logger

	mu     sync.Mutex
	checks int
}

// New constructs a Limiter. Zero or negative thresholds fall back to
// DefaultConfig values.
func New(kv kvstore.KV, cfg Config, log zerolog.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = def.BurstLimit
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = def.BurstWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.SweepEvery < 0 {
		cfg.SweepEvery = 0
	}
	return &Limiter{
		cfg: cfg,
		kv:  kv,
		log: log.With().Str("component", "ratelimit").Logger(),
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config { return l.cfg }

// Key returns the storage key of an (identity, channel) record.
func Key(identity, channel string) string {
	return keyPrefix + identity + ":" + channel
}

// Check decides whether identity may send to channel at now and records the
// attempt.
func (l *Limiter) Check(identity, channel string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Sweep before touching the requested record so a stale record can be
	// evicted even when it is the one being checked.
	l.checks++
	if l.cfg.SweepEvery > 0 && l.checks >= l.cfg.SweepEvery {
		l.evictStale(now)
		l.checks = 0
	}

	key := Key(identity, channel)
	rec, ok := l.load(key)
	nowMS := now.UnixMilli()

	if ok {
		switch {
		case rec.CooldownUntil != 0 && nowMS < rec.CooldownUntil:
			return Decision{
				Allowed:   false,
				Remaining: 0,
				ResetTime: time.UnixMilli(rec.CooldownUntil),
				Reason:    ReasonCoolingDown,
			}
		case rec.CooldownUntil != 0:
			ok = false // cooldown over: reset to empty
		case now.Sub(time.UnixMilli(rec.WindowStart)) >= l.cfg.BurstWindow:
			ok = false // window rolled over
		}
	}
	if !ok {
		rec = Record{WindowStart: nowMS}
	}

	if rec.Count < l.cfg.BurstLimit {
		rec.Count++
		l.store(key, rec, now)
		return Decision{
			Allowed:   true,
			Remaining: l.cfg.BurstLimit - rec.Count,
			ResetTime: time.UnixMilli(rec.WindowStart).Add(l.cfg.BurstWindow),
		}
	}

	rec.CooldownUntil = now.Add(l.cfg.Cooldown).UnixMilli()
	l.store(key, rec, now)
	return Decision{
		Allowed:   false,
		Remaining: 0,
		ResetTime: time.UnixMilli(rec.CooldownUntil),
		Reason:    ReasonBurstExceeded,
	}
}

// Peek reports the current state without recording an attempt.
func (l *Limiter) Peek(identity, channel string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.load(Key(identity, channel))
	nowMS := now.UnixMilli()
	switch {
	case ok && rec.CooldownUntil != 0 && nowMS < rec.CooldownUntil:
		return Decision{ResetTime: time.UnixMilli(rec.CooldownUntil), Reason: ReasonCoolingDown}
	case !ok || rec.CooldownUntil != 0 || now.Sub(time.UnixMilli(rec.WindowStart)) >= l.cfg.BurstWindow:
		return Decision{Allowed: true, Remaining: l.cfg.BurstLimit, ResetTime: now.Add(l.cfg.BurstWindow)}
	case rec.Count >= l.cfg.BurstLimit:
		// The next attempt will start a cooldown.
		return Decision{ResetTime: now.Add(l.cfg.Cooldown), Reason: ReasonBurstExceeded}
	default:
		return Decision{
			Allowed:   true,
			Remaining: l.cfg.BurstLimit - rec.Count,
			ResetTime: time.UnixMilli(rec.WindowStart).Add(l.cfg.BurstWindow),
		}
	}
}

// Reset drops the record of an (identity, channel) pair.
func (l *Limiter) Reset(identity, channel string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.kv.Delete(Key(identity, channel)); err != nil {
		l.log.Warn().Err(err).Str("channel", channel).Msg("rate limit reset failed")
	}
}

// load reads a record; any failure reads as "no record".
func (l *Limiter) load(key string) (Record, bool) {
	raw, ok, err := l.kv.Get(key)
	if err != nil {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limit record unreadable; treating as absent")
		return Record{}, false
	}
	if !ok {
		return Record{}, false
	}
	var rec Record
	if err := sonic.UnmarshalString(raw, &rec); err != nil || rec.WindowStart <= 0 || rec.Count < 0 {
		l.log.Warn().Err(err).Str("key", key).Msg("rate limit record corrupt; discarding")
		_ = l.kv.Delete(key)
		return Record{}, false
	}
	return rec, true
}

// store writes a record. A full store is handled by evicting stale records and
// retrying once; after that the decision stands without persistence.
func (l *Limiter) store(key string, rec Record, now time.Time) {
	raw, err := sonic.MarshalString(rec)
	if err != nil {
		l.log.Error().Err(err).Str("key", key).Msg("rate limit record encode failed")
		return
	}
	err = l.kv.Set(key, raw)
	if err == nil {
		return
	}
	if domain.IsKind(err, domain.KindStorageQuota) {
		evicted := l.evictStale(now)
		if err = l.kv.Set(key, raw); err == nil {
			l.log.Info().Int("evicted", evicted).Msg("rate limit storage recovered after eviction")
			return
		}
	}
	l.log.Warn().Err(err).Str("key", key).Msg("rate limit record not persisted")
}

// evictStale deletes records whose window and cooldown ended more than
// Retention ago, plus anything that no longer decodes. It returns the number of
// deleted records.
func (l *Limiter) evictStale(now time.Time) int {
	horizon := now.Add(-l.cfg.Retention)
	var stale []string
	err := l.kv.Scan(keyPrefix, func(k, v string) error {
		var rec Record
		if err := sonic.UnmarshalString(v, &rec); err != nil || rec.WindowStart <= 0 {
			stale = append(stale, k)
			return nil
		}
		if rec.lastActivity(l.cfg.BurstWindow).Before(horizon) {
			stale = append(stale, k)
		}
		return nil
	})
	if err != nil {
		l.log.Warn().Err(err).Msg("rate limit sweep failed")
	}
	n := 0
	for _, k := range stale {
		if err := l.kv.Delete(k); err == nil {
			n++
		}
	}
	if n > 0 {
		l.log.Debug().Int("evicted", n).Msg("rate limit sweep")
	}
	return n
}
