package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/stock_ledger/config"
	"bitbucket.org/mmdatafocus/stock_ledger/models"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

// KeyLocker serializes writers of the same stock keys across the whole call,
// on top of the row locks taken inside the transaction. Implementations lock
// keys in sorted order; release is always safe to call.
type KeyLocker interface {
	LockKeys(ctx context.Context, keys []models.StockKey) (release func(), err error)
}

// NoopKeyLocker relies on the store's row locks alone.
type NoopKeyLocker struct{}

func (NoopKeyLocker) LockKeys(context.Context, []models.StockKey) (func(), error) {
	return func() {}, nil
}

// LocalKeyLocker serializes keys inside one process.
type LocalKeyLocker struct {
	mu    sync.Mutex
	locks map[models.StockKey]*sync.Mutex
}

func NewLocalKeyLocker() *LocalKeyLocker {
	return &LocalKeyLocker{locks: make(map[models.StockKey]*sync.Mutex)}
}

func (l *LocalKeyLocker) keyMutex(k models.StockKey) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[k]
	if !ok {
		m = &sync.Mutex{}
		l.locks[k] = m
	}
	return m
}

func (l *LocalKeyLocker) LockKeys(ctx context.Context, keys []models.StockKey) (func(), error) {
	held := make([]*sync.Mutex, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
	for _, k := range models.SortedStockKeys(keys) {
		if err := ctx.Err(); err != nil {
			release()
			return func() {}, err
		}
		m := l.keyMutex(k)
		m.Lock()
		held = append(held, m)
	}
	return release, nil
}

// RedisKeyLocker holds one redislock per key for instances sharing a store.
type RedisKeyLocker struct {
	locker *redislock.Client
	logger *logrus.Logger
	ttl    time.Duration
	wait   time.Duration
}

func NewRedisKeyLocker(locker *redislock.Client, logger *logrus.Logger, ttl time.Duration) *RedisKeyLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisKeyLocker{locker: locker, logger: logger, ttl: ttl, wait: ttl}
}

func stockLockKey(k models.StockKey) string {
	return fmt.Sprintf("lock:stock:%d:%d", k.ProductId, k.WarehouseId)
}

func (l *RedisKeyLocker) LockKeys(ctx context.Context, keys []models.StockKey) (func(), error) {
	if l.locker == nil {
		err := errors.New("redis lock is nil")
		config.LogError(l.logger, "PostingLock.go", "LockKeys", "Redis lock not initialized", keys, err)
		return func() {}, err
	}

	var held []*redislock.Lock
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// the caller's ctx may already be done
			relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = held[i].Release(relCtx)
			cancel()
		}
	}

	for _, k := range models.SortedStockKeys(keys) {
		obtainCtx, cancel := context.WithTimeout(ctx, l.wait)
		lock, err := l.locker.Obtain(obtainCtx, stockLockKey(k), l.ttl, &redislock.Options{
			RetryStrategy: redislock.LimitRetry(redislock.ExponentialBackoff(10*time.Millisecond, 500*time.Millisecond), 64),
		})
		cancel()
		if errors.Is(err, redislock.ErrNotObtained) {
			release()
			config.LogError(l.logger, "PostingLock.go", "LockKeys", "Could not obtain stock key lock", k, err)
			return func() {}, &models.ConcurrencyError{Op: "LockKeys", Err: err}
		} else if err != nil {
			release()
			config.LogError(l.logger, "PostingLock.go", "LockKeys", "Error obtaining stock key lock", k, err)
			if errors.Is(err, context.DeadlineExceeded) {
				return func() {}, &models.ConcurrencyError{Op: "LockKeys", Err: err}
			}
			return func() {}, err
		}
		held = append(held, lock)
	}
	return release, nil
}
