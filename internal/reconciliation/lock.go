package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"

	pkgredis "github.com/angelmondragon/salesdesk-backend/pkg/redis"
)

const defaultLockTTL = 30 * time.Second

// ErrLocked is returned when another worker holds the sale's lock.
var ErrLocked = errors.New("reconciliation already in progress for sale")

// Unlock releases a lock obtained from a Locker.
type Unlock func(ctx context.Context) error

// Locker serializes work on a single sale across processes.
type Locker interface {
	Obtain(ctx context.Context, saleID uuid.UUID) (Unlock, error)
}

// RedisLocker implements Locker with redislock.
type RedisLocker struct {
	client *redislock.Client
	keyFor func(saleID uuid.UUID) string
	ttl    time.Duration
}

// NewRedisLocker builds a Locker over the shared Redis client.
func NewRedisLocker(rdb *pkgredis.Client, ttl time.Duration) (*RedisLocker, error) {
	if rdb == nil || rdb.Raw() == nil {
		return nil, errors.New("redis client required for reconciliation lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client: redislock.New(rdb.Raw()),
		keyFor: func(saleID uuid.UUID) string { return rdb.SaleLockKey(saleID) },
		ttl:    ttl,
	}, nil
}

func (l *RedisLocker) Obtain(ctx context.Context, saleID uuid.UUID) (Unlock, error) {
	lock, err := l.client.Obtain(ctx, l.keyFor(saleID), l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("obtain reconciliation lock: %w", err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("release reconciliation lock: %w", err)
		}
		return nil
	}, nil
}

// NoopLocker grants every request. It suits single-process deployments.
type NoopLocker struct{}

func (NoopLocker) Obtain(context.Context, uuid.UUID) (Unlock, error) {
	return func(context.Context) error { return nil }, nil
}
