package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockNotAcquired is returned when another holder owns the lock
var ErrLockNotAcquired = errors.New("lock not acquired")

// ErrLockLost means the lease could not be renewed while fn was running.
var ErrLockLost = errors.New("lock lost")

const defaultLockTTL = 30 * time.Second

// Locker provides distributed locking operations
type Locker struct {
	client    *Client
	locks     *redislock.Client
	keyPrefix string
}

func NewLocker(client *Client, keyPrefix string) *Locker {
	if keyPrefix == "" {
		keyPrefix = "lock:"
	}
	return &Locker{
		client:    client,
		locks:     redislock.New(client.rdb),
		keyPrefix: keyPrefix,
	}
}

// WithLock runs fn while holding key. It fails fast with ErrLockNotAcquired
// when the key is already held. The lease is renewed every ttl/2 while fn
// runs; if a renewal fails the context passed to fn is cancelled and WithLock
// returns ErrLockLost.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	lock, err := l.locks.Obtain(ctx, l.keyPrefix+key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockNotAcquired
	}
	if err != nil {
		return err
	}
	log := l.client.logger.WithContext(ctx).WithField("lock", key)
	log.Debug("Acquired lock")

	runCtx, cancel := context.WithCancelCause(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.renew(runCtx, lock, ttl, cancel)
	}()

	err = fn(runCtx)
	lost := context.Cause(runCtx)
	cancel(nil)
	wg.Wait()

	if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
		log.WithError(rerr).Warn("Failed to release lock")
	}
	if errors.Is(lost, ErrLockLost) {
		log.WithError(lost).Error("Lost lock while running")
		return lost
	}
	return err
}

func (l *Locker) renew(ctx context.Context, lock *redislock.Lock, ttl time.Duration, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, ttl, nil); err != nil {
				if ctx.Err() != nil {
					return
				}
				cancel(fmt.Errorf("%w: %s: %v", ErrLockLost, lock.Key(), err))
				return
			}
		}
	}
}
