package monitoring

import (
	"context"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
)

// InstrumentedStatsRepository mirrors every stored snapshot into the
// Prometheus collector on the way to the real repository.
type InstrumentedStatsRepository struct {
	inner     ports.StatsRepository
	collector *PrometheusCollector
}

func NewInstrumentedStatsRepository(inner ports.StatsRepository, collector *PrometheusCollector) ports.StatsRepository {
	return &InstrumentedStatsRepository{
		inner:     inner,
		collector: collector,
	}
}

func (r *InstrumentedStatsRepository) Put(ctx context.Context, snap *domain.StatsSnapshot) error {
	if err := r.inner.Put(ctx, snap); err != nil {
		return err
	}
	r.collector.RecordStats(snap)
	return nil
}

func (r *InstrumentedStatsRepository) Latest(ctx context.Context, cameraID domain.CameraID) (*domain.StatsSnapshot, error) {
	return r.inner.Latest(ctx, cameraID)
}

func (r *InstrumentedStatsRepository) Delete(ctx context.Context, cameraID domain.CameraID) error {
	if err := r.inner.Delete(ctx, cameraID); err != nil {
		return err
	}
	r.collector.clearCameraStats(cameraID)
	return nil
}
