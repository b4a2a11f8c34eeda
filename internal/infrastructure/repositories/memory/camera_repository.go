package memory

import (
	"context"
	"sync"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
)

// MemoryCameraRepository mirrors the signaling service's camera inventory.
// Put replaces the whole set, keeping the order the inventory reported.
type MemoryCameraRepository struct {
	cameras map[domain.CameraID]domain.Camera
	order   []domain.CameraID
	mu      sync.RWMutex
}

func NewMemoryCameraRepository() ports.CameraRepository {
	return &MemoryCameraRepository{
		cameras: make(map[domain.CameraID]domain.Camera),
	}
}

func (r *MemoryCameraRepository) Put(ctx context.Context, cameras []domain.Camera) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cameras = make(map[domain.CameraID]domain.Camera, len(cameras))
	r.order = r.order[:0]
	for _, cam := range cameras {
		if _, exists := r.cameras[cam.ID]; exists {
			continue
		}
		r.cameras[cam.ID] = cam
		r.order = append(r.order, cam.ID)
	}
	return nil
}

func (r *MemoryCameraRepository) GetByID(ctx context.Context, id domain.CameraID) (*domain.Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cam, exists := r.cameras[id]
	if !exists {
		return nil, domain.ErrCameraNotFound
	}
	return &cam, nil
}

func (r *MemoryCameraRepository) List(ctx context.Context) ([]domain.Camera, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Camera, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.cameras[id])
	}
	return out, nil
}
