package memory

import (
	"context"
	"sync"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	apperrors "faceview/pkg/errors"
)

// MemoryStatsRepository holds the latest snapshot per camera. Snapshots are
// ephemeral; a camera's entry is deleted when its tile unmounts.
type MemoryStatsRepository struct {
	snapshots map[domain.CameraID]*domain.StatsSnapshot
	mu        sync.RWMutex
}

func NewMemoryStatsRepository() ports.StatsRepository {
	return &MemoryStatsRepository{
		snapshots: make(map[domain.CameraID]*domain.StatsSnapshot),
	}
}

func (r *MemoryStatsRepository) Put(ctx context.Context, snap *domain.StatsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots[snap.CameraID] = snap
	return nil
}

func (r *MemoryStatsRepository) Latest(ctx context.Context, cameraID domain.CameraID) (*domain.StatsSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, exists := r.snapshots[cameraID]
	if !exists {
		return nil, apperrors.NewNotFoundError("stats")
	}
	return snap, nil
}

func (r *MemoryStatsRepository) Delete(ctx context.Context, cameraID domain.CameraID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.snapshots, cameraID)
	return nil
}
