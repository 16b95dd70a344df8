package session

import (
	"sync"
	"time"
)

type item struct {
	state     State
	expiresAt time.Time
}

// Store keeps session states in memory between web requests. Entries expire
// after ttl of inactivity.
type Store struct {
	mu    sync.Mutex
	items map[string]item
	ttl   time.Duration
	now   func() time.Time

	done chan struct{}
	once sync.Once
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{
		items: make(map[string]item),
		ttl:   ttl,
		now:   time.Now,
		done:  make(chan struct{}),
	}
}

// Load returns the stored state for id, or a fresh session when id is
// unknown or expired.
func (s *Store) Load(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return New()
	}
	if s.now().After(it.expiresAt) {
		delete(s.items, id)
		return New()
	}
	return it.state
}

func (s *Store) Save(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state.ID] = item{state: state, expiresAt: s.now().Add(s.ttl)}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for id, it := range s.items {
		if now.After(it.expiresAt) {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

// Janitor runs Cleanup every interval until Shutdown.
func (s *Store) Janitor(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

func (s *Store) Shutdown() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
