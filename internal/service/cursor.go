package service

import (
	"context"
	"sync"

	"github.com/vinicioflores/GreenCarrot/internal/entity"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
)

var _ repository.CursorStore = (*MemoryCursorStore)(nil)

// MemoryCursorStore keeps cursors for the life of the process only.
type MemoryCursorStore struct {
	mu     sync.Mutex
	counts map[entity.Stream]int64
}

func NewMemoryCursorStore() *MemoryCursorStore {
	return &MemoryCursorStore{counts: make(map[entity.Stream]int64)}
}

func (m *MemoryCursorStore) Load(_ context.Context, stream entity.Stream) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.counts[stream]
	return n, ok, nil
}

func (m *MemoryCursorStore) Save(_ context.Context, stream entity.Stream, count int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[stream] = count
	return nil
}
