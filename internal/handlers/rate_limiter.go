package handlers

import (
	"strings"
	"sync"
	"time"
)

// throttle gates pricing requests per caller key. A nil throttle admits
// everything.
type throttle interface {
	Allow(key string) bool
}

// orgThrottle counts requests per org in fixed windows. A counter resets when
// its window lapses; stale orgs are swept opportunistically, at most once per
// window, while the lock is already held.
type orgThrottle struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	counters  map[string]*orgWindow
	lastSweep time.Time
}

type orgWindow struct {
	seen     int
	openedAt time.Time
}

func newOrgThrottle(limit int, window time.Duration, clock func() time.Time) throttle {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &orgThrottle{
		limit:    limit,
		window:   window,
		clock:    clock,
		counters: make(map[string]*orgWindow),
	}
}

func (t *orgThrottle) Allow(key string) bool {
	if t == nil {
		return true
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "unscoped"
	}
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	counter, ok := t.counters[key]
	if !ok || now.Sub(counter.openedAt) >= t.window {
		t.counters[key] = &orgWindow{seen: 1, openedAt: now}
		t.sweepLocked(now)
		return true
	}
	if counter.seen >= t.limit {
		return false
	}
	counter.seen++
	return true
}

func (t *orgThrottle) sweepLocked(now time.Time) {
	if now.Sub(t.lastSweep) < t.window {
		return
	}
	t.lastSweep = now
	for key, counter := range t.counters {
		if now.Sub(counter.openedAt) >= t.window {
			delete(t.counters, key)
		}
	}
}
