package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/mindalert/internal/alert"
	"github.com/kiranshivaraju/mindalert/internal/cache"
	"github.com/kiranshivaraju/mindalert/internal/config"
	"github.com/kiranshivaraju/mindalert/internal/mailer"
	"github.com/kiranshivaraju/mindalert/internal/store"
)

type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(ctx context.Context, fn func(*store.PostgresStore) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(store.NewPostgresStore(pool))
}

// withManager builds the same alert manager the server runs, delivering
// through the configured SMTP relay and locking through Redis.
func (c *commandContext) withManager(ctx context.Context, fn func(*alert.Manager, *config.Config) error) error {
	return c.withStore(ctx, func(st *store.PostgresStore) error {
		cfg := c.config
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		return fn(alert.NewManager(st, mailer.NewSMTP(cfg.SMTP), rc, cfg.Delivery), cfg)
	})
}
