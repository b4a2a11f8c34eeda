package ports

import (
	"context"

	"faceview/internal/core/domain"
)

type CameraRepository interface {
	Put(ctx context.Context, cameras []domain.Camera) error
	GetByID(ctx context.Context, id domain.CameraID) (*domain.Camera, error)
	List(ctx context.Context) ([]domain.Camera, error)
}

type AlertRepository interface {
	Add(ctx context.Context, alert *domain.Alert) error
	Recent(ctx context.Context, limit int) ([]*domain.Alert, error)
}

type StatsRepository interface {
	Put(ctx context.Context, snap *domain.StatsSnapshot) error
	Latest(ctx context.Context, cameraID domain.CameraID) (*domain.StatsSnapshot, error)
	Delete(ctx context.Context, cameraID domain.CameraID) error
}
