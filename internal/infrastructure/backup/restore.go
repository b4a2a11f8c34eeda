package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	"faceview/pkg/backup"
	"go.uber.org/zap"
)

// RestoreService reloads persisted alert history at startup.
type RestoreService struct {
	snapshots *backup.Service
	alertRepo ports.AlertRepository
	logger    *zap.SugaredLogger
}

// NewRestoreService creates a restore service.
func NewRestoreService(snapshots *backup.Service, alertRepo ports.AlertRepository, logger *zap.SugaredLogger) *RestoreService {
	return &RestoreService{
		snapshots: snapshots,
		alertRepo: alertRepo,
		logger:    logger,
	}
}

// RestoreLatest replays the newest snapshot into the alert repository and
// reports how many alerts it loaded. An empty storage is not an error; a
// fresh deployment has nothing to restore.
func (rs *RestoreService) RestoreLatest(ctx context.Context) (int, error) {
	names, err := rs.snapshots.ListSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	latest, ok := newestSnapshot(names)
	if !ok {
		rs.logger.Debug("no alert snapshots found")
		return 0, nil
	}

	snap, err := rs.snapshots.LoadSnapshot(ctx, latest)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot %s: %w", latest, err)
	}
	if snap.Version == "" {
		return 0, fmt.Errorf("snapshot %s has no version", latest)
	}

	var alerts []*domain.Alert
	if len(snap.Alerts) > 0 {
		if err := json.Unmarshal(snap.Alerts, &alerts); err != nil {
			return 0, fmt.Errorf("failed to decode snapshot %s: %w", latest, err)
		}
	}

	// Snapshots hold the history newest first. Replay oldest first so the
	// repository ends up in the order it had when the snapshot was taken.
	for i := len(alerts) - 1; i >= 0; i-- {
		if err := rs.alertRepo.Add(ctx, alerts[i]); err != nil {
			return 0, fmt.Errorf("failed to restore alert %s: %w", alerts[i].ID, err)
		}
	}

	rs.logger.Infow("alert history restored", "snapshot", latest, "alerts", len(alerts))
	return len(alerts), nil
}

// newestSnapshot picks the snapshot with the latest name-encoded time.
func newestSnapshot(names []string) (string, bool) {
	var (
		best     string
		bestTime time.Time
	)
	for _, name := range names {
		ts, ok := backup.SnapshotTime(name)
		if !ok {
			continue
		}
		if best == "" || ts.After(bestTime) {
			best = name
			bestTime = ts
		}
	}
	return best, best != ""
}
