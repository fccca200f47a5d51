package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-campus-chat/internal/cache"
	"github.com/tbourn/go-campus-chat/internal/config"
	"github.com/tbourn/go-campus-chat/internal/docstore"
	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/feed"
	"github.com/tbourn/go-campus-chat/internal/identity"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
	"github.com/tbourn/go-campus-chat/internal/ratelimit"
	"github.com/tbourn/go-campus-chat/internal/router"
	"github.com/tbourn/go-campus-chat/internal/services"
)

// app holds the chat client and everything it must release on shutdown.
type app struct {
	client  *services.ChatClient
	kv      kvstore.KV
	closers []func() error
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newApp opens client storage, the partitions and the optional cache tier,
// and wires the chat client over them. On error everything already opened
// is released.
func newApp(cfg config.Config, log zerolog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	// Client storage
	if cfg.Storage.Path == "" {
		a.kv = kvstore.NewMemory(cfg.Storage.QuotaBytes)
		log.Warn().Msg("client storage is in memory; the session ends with the process")
	} else {
		if err := ensureDir(cfg.Storage.Path); err != nil {
			return nil, err
		}
		bs, err := kvstore.OpenBolt(cfg.Storage.Path, cfg.Storage.QuotaBytes)
		if err != nil {
			return nil, fmt.Errorf("open client storage: %w", err)
		}
		a.kv = bs
		a.closers = append(a.closers, bs.Close)
	}

	// Partitions and their identity providers
	retry := docstore.RetryPolicy{Initial: cfg.Feed.RetryInitial, Max: cfg.Feed.RetryMax}
	paths := cfg.Partitions.Paths()
	bindings := make(map[domain.Partition]router.Binding, len(paths))
	for _, p := range domain.Partitions {
		name := router.PartitionName(p)
		if err := ensureDir(paths[p]); err != nil {
			return nil, err
		}
		part, err := docstore.Open(docstore.Options{
			Name:    name,
			Path:    paths[p],
			Migrate: cfg.Partitions.Migrate,
			Retry:   retry,
		}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, part.Close)
		bindings[p] = router.Binding{
			Store:    part,
			Identity: identity.NewProvider(name, part.DB(), a.kv, log),
		}
	}
	r, err := router.New(bindings, cfg.Feed.Locations)
	if err != nil {
		return nil, err
	}

	// Cache tier
	var tier cache.Tier = cache.Nop{}
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.Dial(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, cache.Options{
			Capacity: cfg.Cache.Capacity,
			TTL:      cfg.Cache.TTL,
		}, log)
		if err != nil {
			// The cache is best-effort; run without it.
			log.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("cache tier disabled")
		} else {
			tier = rc
			a.closers = append(a.closers, func() error { rc.Close(); return nil })
		}
	}

	names := identity.NewNameRegistry(
		identity.SQLiteOpener(cfg.Partitions.Main),
		int64(cfg.Partitions.NameConnections),
		log,
	)
	session := identity.NewSession(a.kv, names, log)

	limiter := ratelimit.New(a.kv, ratelimit.Config{
		BurstLimit:  cfg.Limits.Burst,
		BurstWindow: cfg.Limits.Window,
		Cooldown:    cfg.Limits.Cooldown,
		Retention:   cfg.Limits.Retention,
		SweepEvery:  cfg.Limits.SweepEvery,
	}, log)

	a.client = services.NewChatClient(session, r, tier, a.kv, limiter, services.Options{
		Feed: feed.Options{
			PageSize:     cfg.Feed.PageSize,
			SafetyMargin: cfg.Feed.SafetyMargin,
			CacheTimeout: cfg.Cache.Timeout,
		},
		DuplicateWindow: cfg.Limits.Duplicate,
	}, log)
	a.closers = append(a.closers, a.client.Close)

	return a, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}
