package idempotency

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]entry
	now func() time.Time

	swept time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, m: map[string]entry{}, now: time.Now}
}

func (s *Memory) Begin(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	if e, ok := s.m[key]; ok && now.Before(e.expires) {
		if e.value == pending {
			return "", ErrInProgress
		}
		return e.value, nil
	}
	s.m[key] = entry{value: pending, expires: now.Add(s.ttl)}
	return "", nil
}

func (s *Memory) Commit(_ context.Context, key, resultID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry{value: resultID, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *Memory) Abort(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// sweep drops expired keys at most once per ttl. Callers hold mu.
func (s *Memory) sweep(now time.Time) {
	if now.Sub(s.swept) < s.ttl {
		return
	}
	for k, e := range s.m {
		if !now.Before(e.expires) {
			delete(s.m, k)
		}
	}
	s.swept = now
}
