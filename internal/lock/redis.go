package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Redis — распределённые флаги занятости на bsm/redislock.
// Захват продлевается фоново каждые ttl/2, пока не вызван Release;
// при падении процесса флаг истекает через ttl.
type Redis struct {
	rdb    redis.UniversalClient
	locker *redislock.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis создаёт набор флагов. prefix добавляется к каждому ключу.
func NewRedis(rdb redis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *Redis {
	return &Redis{
		rdb:    rdb,
		locker: redislock.New(rdb),
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "promotion_lock")),
	}
}

// Acquire захватывает флаг key без ожидания.
func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	lk, err := r.locker.Obtain(ctx, r.prefix+key, r.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("захват флага %s: %w", key, err)
	}

	lease := &redisLease{
		lock:   lk,
		key:    key,
		ttl:    r.ttl,
		logger: r.logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()
	return lease, nil
}

// Held сообщает, занят ли флаг key.
func (r *Redis) Held(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("проверка флага %s: %w", key, err)
	}
	return n > 0, nil
}

// CheckReady проверяет доступность Redis.
// Реализует интерфейс handlers.ReadinessChecker.
func (r *Redis) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}

// redisLease — захваченный флаг с фоновым продлением.
type redisLease struct {
	lock   *redislock.Lock
	key    string
	ttl    time.Duration
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// keepAlive продлевает флаг до Release или потери владения.
func (l *redisLease) keepAlive() {
	defer close(l.done)

	interval := l.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := l.lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				l.logger.Warn("Не удалось продлить флаг промоушена",
					slog.String("key", l.key),
					slog.String("error", err.Error()),
				)
				if errors.Is(err, redislock.ErrNotObtained) {
					return
				}
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	var err error
	l.once.Do(func() {
		close(l.stop)
		<-l.done
		if rerr := l.lock.Release(ctx); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
			err = fmt.Errorf("снятие флага %s: %w", l.key, rerr)
		}
	})
	return err
}
