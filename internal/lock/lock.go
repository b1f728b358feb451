// Пакет lock — флаг занятости направления промоушена.
// Local хранит флаги в памяти процесса, Redis — распределённо (bsm/redislock),
// чтобы несколько реплик консоли не запускали промоушен одного направления одновременно.
package lock

import (
	"context"
	"errors"
)

// ErrHeld — направление уже занято другим промоушеном.
var ErrHeld = errors.New("направление промоушена занято")

// Lease — захваченный флаг. Release снимает его; повторный Release безопасен.
type Lease interface {
	Release(ctx context.Context) error
}

// Guard — набор флагов занятости по ключу.
type Guard interface {
	// Acquire захватывает флаг key. Занятый флаг — ErrHeld.
	Acquire(ctx context.Context, key string) (Lease, error)
	// Held сообщает, занят ли флаг key.
	Held(ctx context.Context, key string) (bool, error)
}
