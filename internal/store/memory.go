package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/paypulse/internal/payment"
)

// MemoryStore keeps the log in a slice. Used for tests and single-process runs.
type MemoryStore struct {
	mu       sync.RWMutex
	payments []payment.Payment
	ids      map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (s *MemoryStore) Append(_ context.Context, p payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[p.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
	}
	s.ids[p.ID] = struct{}{}
	s.payments = append(s.payments, p)
	return nil
}

func (s *MemoryStore) Range(ctx context.Context, from, to time.Time) ([]payment.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]payment.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		if inRange(p.CreatedAt, from, to) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Len returns the number of stored payments.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.payments)
}

func (s *MemoryStore) Close() error { return nil }
