package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore — Store в памяти процесса. Используется, когда Redis не настроен:
// дедупликация и блокировка работают в пределах одного экземпляра.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

type entry struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore создаёт хранилище в памяти.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Claim(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = &entry{value: token, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Release(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.live(key); ok && e.value == token {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) Seen(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.live(key)
	return ok, nil
}

func (s *MemoryStore) Remember(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &entry{value: "1", expiresAt: s.now().Add(ttl)}
	return nil
}

// Cleanup удаляет истёкшие ключи. Вызывается периодически до отмены ctx.
func (s *MemoryStore) Cleanup(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// live возвращает неистёкшую запись. Вызывается под мьютексом.
func (s *MemoryStore) live(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}
