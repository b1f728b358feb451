package lock

import (
	"context"
	"sync"
)

// Local — флаги занятости в памяти процесса.
type Local struct {
	mu   sync.Mutex
	held map[string]uint64
	seq  uint64
}

// NewLocal создаёт пустой набор флагов.
func NewLocal() *Local {
	return &Local{held: make(map[string]uint64)}
}

// Acquire захватывает флаг key.
func (l *Local) Acquire(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.seq++
	l.held[key] = l.seq
	return &localLease{owner: l, key: key, token: l.seq}, nil
}

// Held сообщает, занят ли флаг key.
func (l *Local) Held(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok, nil
}

// localLease снимает флаг, только если он всё ещё принадлежит этому захвату.
type localLease struct {
	owner *Local
	key   string
	token uint64
}

func (ll *localLease) Release(_ context.Context) error {
	ll.owner.mu.Lock()
	defer ll.owner.mu.Unlock()
	if ll.owner.held[ll.key] == ll.token {
		delete(ll.owner.held, ll.key)
	}
	return nil
}
