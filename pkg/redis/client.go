// Package redis holds the shared Redis connection and the key layout the
// sales desk stores under it: idempotency records for sale intake, fixed
// window counters for the intake rate limit, and lock names for
// reconciliation and the cron cycle.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/salesdesk-backend/pkg/config"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

const (
	keyNamespace = "sd"

	idempotencySegment = "idempotency"
	rateLimitSegment   = "rate_limit"
	lockSegment        = "lock"

	saleLockScope = "reconciliation"
	cronLockScope = "cron-worker"
)

var errNotInitialized = errors.New("redis client not initialized")

type commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Client is the process-wide Redis handle.
type Client struct {
	cmds commands
	raw  *redis.Client
	now  func() time.Time
}

// Pinger is what the readiness check calls.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IdempotencyStore is what the intake idempotency middleware needs.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// New connects using cfg and pings once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"redis_addr": opts.Addr,
			"redis_db":   opts.DB,
			"pool_size":  opts.PoolSize,
		}), "redis connection established")
	}
	return newClient(raw, raw), nil
}

func newClient(cmds commands, raw *redis.Client) *Client {
	return &Client{cmds: cmds, raw: raw, now: time.Now}
}

// optionsFromConfig prefers the URL; explicit settings fill whatever the URL
// left unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address == "":
		return nil, errors.New("redis url or address is required")
	}

	opts.DB = orInt(opts.DB, cfg.DB)
	opts.PoolSize = orInt(opts.PoolSize, cfg.PoolSize)
	opts.MinIdleConns = orInt(opts.MinIdleConns, cfg.MinIdleConns)
	opts.DialTimeout = orDuration(opts.DialTimeout, cfg.DialTimeout)
	opts.ReadTimeout = orDuration(opts.ReadTimeout, cfg.ReadTimeout)
	opts.WriteTimeout = orDuration(opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v == 0 {
		return fallback
	}
	return v
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.cmds == nil {
		return "", errNotInitialized
	}
	return c.cmds.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.cmds == nil {
		return errNotInitialized
	}
	return c.cmds.Set(ctx, key, value, ttl).Err()
}

// SetNX claims key for ttl and reports whether this caller won it.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.cmds == nil {
		return false, errNotInitialized
	}
	return c.cmds.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.cmds == nil {
		return errNotInitialized
	}
	return c.cmds.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts one hit for scope in the current window and
// reports whether the count is within limit. Windows are aligned to the
// clock, and each counter is created with its expiry before it is
// incremented, so a counter never outlives its window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.cmds == nil {
		return false, 0, errNotInitialized
	}
	if window <= 0 {
		return false, 0, errors.New("rate limit window must be positive")
	}
	key := c.windowKey(scope, window)
	if err := c.cmds.SetNX(ctx, key, 0, window).Err(); err != nil {
		return false, 0, fmt.Errorf("open rate window: %w", err)
	}
	count, err := c.cmds.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("count rate window: %w", err)
	}
	return count <= limit, count, nil
}

func (c *Client) windowKey(scope string, window time.Duration) string {
	slot := c.now().UnixNano() / int64(window)
	return c.RateLimitKey(scope) + ":" + strconv.FormatInt(slot, 10)
}

// IdempotencyKey names the stored response for one Idempotency-Key.
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(idempotencySegment, scope, id)
}

// RateLimitKey names the counters of one rate-limit scope.
func (c *Client) RateLimitKey(scope string) string {
	return joinKey(rateLimitSegment, scope)
}

// SaleLockKey names the reconciliation lock of one sale.
func (c *Client) SaleLockKey(saleID uuid.UUID) string {
	return joinKey(lockSegment, saleLockScope, saleID.String())
}

// CronLockKey names the lock that admits one cron cycle per environment.
func (c *Client) CronLockKey(env string) string {
	return joinKey(lockSegment, cronLockScope, env)
}

// Raw is handed to redislock, which drives Redis itself.
func (c *Client) Raw() *redis.Client {
	return c.raw
}

func (c *Client) Ping(ctx context.Context) error {
	if c.cmds == nil {
		return errNotInitialized
	}
	return c.cmds.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
