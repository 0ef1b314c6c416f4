package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sealnote/transfer-service/internal/core/domain"
)

// Locker is a process-local ports.UserLocker.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

func (l *Locker) Acquire(_ context.Context, userID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[userID]; busy {
		return nil, domain.ErrUserBusy
	}
	l.held[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, userID)
			l.mu.Unlock()
		})
	}, nil
}

// ReplayGuard is a process-local secondfactor.ReplayGuard.
type ReplayGuard struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewReplayGuard(now func() time.Time) *ReplayGuard {
	if now == nil {
		now = time.Now
	}
	return &ReplayGuard{used: make(map[string]time.Time), now: now}
}

func (g *ReplayGuard) MarkUsed(_ context.Context, userID string, counter int64, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for k, exp := range g.used {
		if !now.Before(exp) {
			delete(g.used, k)
		}
	}

	key := fmt.Sprintf("%s:%d", userID, counter)
	if _, seen := g.used[key]; seen {
		return false, nil
	}
	g.used[key] = now.Add(ttl)
	return true, nil
}
