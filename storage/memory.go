package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/ilievs/pinboard/core"
)

// Memory keeps encoded dashboards in process. It is used when no database is
// configured and in tests.
type Memory struct {
	mu   sync.Mutex
	docs map[int][]byte
}

var _ core.Persister = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{docs: make(map[int][]byte)}
}

func (m *Memory) SaveDashboard(_ context.Context, d *core.Dashboard) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode dashboard %d: %w", d.ID, err)
	}
	m.mu.Lock()
	m.docs[d.ID] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) FindDashboard(_ context.Context, id int) (*core.Dashboard, error) {
	m.mu.Lock()
	data, ok := m.docs[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return decodeDashboard(data)
}

func (m *Memory) LoadDashboards(_ context.Context) ([]*core.Dashboard, error) {
	m.mu.Lock()
	ids := make([]int, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)

	out := make([]*core.Dashboard, 0, len(ids))
	for _, id := range ids {
		d, err := m.FindDashboard(context.Background(), id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
