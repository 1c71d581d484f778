package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter - rate limiter на юзера (sliding window). Защищает агрегатор от
// частых нажатий "баланс" / "транзакции".
type Limiter struct {
	mu       sync.Mutex
	requests map[int64][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time
}

type Config struct {
	RequestsPerMinute int
	// Window - ширина окна, по умолчанию минута
	Window time.Duration
	// CleanupInterval - как часто выкидывать старые записи
	CleanupInterval time.Duration
}

// New запускает фоновую очистку, она живет до отмены ctx.
func New(ctx context.Context, cfg Config) *Limiter {
	limit := cfg.RequestsPerMinute
	if limit <= 0 {
		limit = 10
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	l := &Limiter{
		requests: make(map[int64][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
	go l.cleanup(ctx, interval)
	return l
}

func (l *Limiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	fresh := l.fresh(userID, now)

	if len(fresh) >= l.limit {
		l.requests[userID] = fresh
		return false
	}

	l.requests[userID] = append(fresh, now)
	return true
}

func (l *Limiter) RemainingRequests(userID int64) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	cnt := 0
	for _, t := range l.requests[userID] {
		if t.After(cutoff) {
			cnt++
		}
	}

	if rem := l.limit - cnt; rem > 0 {
		return rem
	}
	return 0
}

// ResetTime - когда освободится следующий слот (приблизительно)
func (l *Limiter) ResetTime(userID int64) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.requests[userID]
	if len(ts) == 0 {
		return l.now()
	}

	oldest := ts[0]
	for _, t := range ts[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}
	return oldest.Add(l.window)
}

// fresh оставляет только запросы внутри окна. Вызывать под l.mu.
func (l *Limiter) fresh(userID int64, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	old := l.requests[userID]
	fresh := old[:0]
	for _, t := range old {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}
	return fresh
}

func (l *Limiter) cleanup(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			l.removeStale()
		}
	}
}

func (l *Limiter) removeStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for uid := range l.requests {
		fresh := l.fresh(uid, now)
		if len(fresh) == 0 {
			delete(l.requests, uid)
		} else {
			l.requests[uid] = fresh
		}
	}
}

// Len - сколько пользователей сейчас отслеживается
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}
