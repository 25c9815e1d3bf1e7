package quota

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local CounterStore. Expired windows are swept
// periodically so the map does not grow with every address ever seen.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Window
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a MemoryStore and starts its cleanup loop.
// A non-positive cleanupInterval disables the loop.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		windows: make(map[string]Window),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

var _ CounterStore = (*MemoryStore)(nil)

// Update applies fn under the store lock.
func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, found := s.windows[key]
	next, allowed := fn(cur, found)
	if !allowed {
		return cur, false, nil
	}
	s.windows[key] = next
	return next, true, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// Close stops the cleanup loop.
func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes every expired window.
func (s *MemoryStore) sweep() {
	now := s.now()
	s.mu.Lock()
	for key, w := range s.windows {
		if w.Expired(now) {
			delete(s.windows, key)
		}
	}
	s.mu.Unlock()
}
