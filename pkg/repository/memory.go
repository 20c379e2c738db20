package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/triagent/pkg/model"
)

// memoryLog implements DecisionLog in memory, for tests and dry runs
type memoryLog struct {
	mu      sync.Mutex
	records []*model.DecisionRecord
}

// NewMemory creates an in-memory decision log
func NewMemory() DecisionLog {
	return &memoryLog{}
}

func (m *memoryLog) Append(ctx context.Context, record *model.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *record
	m.records = append(m.records, &c)
	return nil
}

func (m *memoryLog) List(ctx context.Context) ([]*model.DecisionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.DecisionRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}
