package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/config"
	"github.com/roach88/authsync/internal/consortium"
	"github.com/roach88/authsync/internal/engine"
	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/partition"
	"github.com/roach88/authsync/internal/rules"
)

// closer releases a resource opened while wiring.
type closer func() error

// FromConfig wires an App from cfg. The returned function releases the
// broker and cache connections after the App is closed.
func FromConfig(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (*App, func() error, error) {
	var closers []closer
	release := func() error {
		var first error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && first == nil {
				first = err
			}
		}
		return first
	}

	rs, c, err := NewRuleStore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, c)

	sink, c, err := NewSink(cfg, logger)
	if err != nil {
		release()
		return nil, nil, err
	}
	closers = append(closers, c)

	var members *consortium.Static
	if cfg.ConsortiumFile != "" {
		if members, err = consortium.LoadFile(cfg.ConsortiumFile); err != nil {
			release()
			return nil, nil, err
		}
	}

	a := New(Options{
		DataDir:     cfg.DataDir,
		Rules:       rs,
		Membership:  members,
		Sink:        sink,
		OutboxBatch: cfg.OutboxBatch,
		Partition:   []partition.Option{partition.WithPageSize(cfg.PartitionSize)},
		Metrics:     m,
		Logger:      logger,
	})
	return a, release, nil
}

// NewRuleStore loads linking rules from cfg.RulesDir, or the embedded
// defaults, behind an in-process cache and, when REDIS_ADDR is set, a shared
// Redis cache.
func NewRuleStore(cfg *config.Config, logger *zap.Logger) (rules.Store, closer, error) {
	var (
		rs  []rules.LinkingRule
		err error
	)
	if cfg.RulesDir != "" {
		rs, err = rules.LoadDir(cfg.RulesDir)
	} else {
		rs, err = rules.Default()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load linking rules: %w", err)
	}
	static, err := rules.NewStatic(rs)
	if err != nil {
		return nil, nil, err
	}

	var store rules.Store = static
	release := closer(func() error { return nil })
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store = rules.NewRedisCache(client, store, cfg.RuleCacheTTL, cfg.RedisPrefix, logger)
		release = client.Close
		logger.Info("linking rules cached in redis", zap.String("addr", cfg.RedisAddr))
	}
	return rules.NewCache(store, cfg.RuleCacheTTL), release, nil
}

// NewSink connects to NATS JetStream when NATS_URL is set. Otherwise relayed
// events are logged.
func NewSink(cfg *config.Config, logger *zap.Logger) (engine.Sink, closer, error) {
	if cfg.NATSURL == "" {
		logger.Warn("NATS_URL not set, change events are logged only")
		return engine.LogSink{Logger: logger}, func() error { return nil }, nil
	}
	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("authsync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	sink, err := event.NewJetStream(js, cfg.NATSStream, cfg.NATSSubjectPrefix, logger)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	return sink, func() error { return nc.Drain() }, nil
}

// Schedule registers the outbox relay and the archive purge on s.
func (a *App) Schedule(ctx context.Context, s *engine.Scheduler, cfg *config.Config) error {
	if err := s.Add(ctx, "outbox-relay", cfg.OutboxSchedule, func(ctx context.Context) error {
		_, err := a.relay.Flush(ctx)
		return err
	}); err != nil {
		return err
	}
	return s.Add(ctx, "archive-purge", cfg.ArchivePurgeSchedule, func(ctx context.Context) error {
		n, err := a.PurgeArchives(ctx, cfg.ArchiveRetention)
		if n > 0 {
			a.logger.Info("archived authorities purged", zap.Int("count", n))
		}
		return err
	})
}
