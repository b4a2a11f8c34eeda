package memory

import (
	"context"
	"sync"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
)

// MemoryAlertRepository keeps a bounded alert history, newest first on read.
// When the capacity is exceeded the oldest alerts are evicted.
type MemoryAlertRepository struct {
	alerts   []*domain.Alert
	capacity int
	mu       sync.RWMutex
}

func NewMemoryAlertRepository(capacity int) ports.AlertRepository {
	return &MemoryAlertRepository{capacity: capacity}
}

func (r *MemoryAlertRepository) Add(ctx context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.alerts = append(r.alerts, alert)
	if len(r.alerts) > r.capacity {
		r.alerts = r.alerts[len(r.alerts)-r.capacity:]
	}
	return nil
}

func (r *MemoryAlertRepository) Recent(ctx context.Context, limit int) ([]*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.alerts) {
		limit = len(r.alerts)
	}

	out := make([]*domain.Alert, 0, limit)
	for i := len(r.alerts) - 1; i >= len(r.alerts)-limit; i-- {
		out = append(out, r.alerts[i])
	}
	return out, nil
}
