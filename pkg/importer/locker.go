package importer

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBatchLocked is returned when another commit run holds the batch.
var ErrBatchLocked = errors.New("batch is locked by another commit run")

// Locker serializes commit runs over the same batch across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// LocalLocker serializes commit runs within one process. A second run on a
// held key fails fast with ErrBatchLocked. The ttl is ignored; the key is
// released when fn returns.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return ErrBatchLocked
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}
