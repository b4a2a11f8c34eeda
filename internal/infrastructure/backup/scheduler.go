package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"faceview/internal/core/ports"
	"faceview/pkg/backup"
	"go.uber.org/zap"
)

// Scheduler periodically snapshots the alert history to storage so a
// restart does not wipe the audit trail.
type Scheduler struct {
	snapshots     *backup.Service
	alertRepo     ports.AlertRepository
	interval      time.Duration
	retentionDays int
	logger        *zap.SugaredLogger
	stopChan      chan struct{}
	doneChan      chan struct{}
}

// Config contains scheduler configuration.
type Config struct {
	Interval      time.Duration
	RetentionDays int
}

// NewScheduler creates a snapshot scheduler.
func NewScheduler(snapshots *backup.Service, alertRepo ports.AlertRepository, cfg Config, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		snapshots:     snapshots,
		alertRepo:     alertRepo,
		interval:      cfg.Interval,
		retentionDays: cfg.RetentionDays,
		logger:        logger,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start runs the snapshot loop until Stop is called or the context ends.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.doneChan)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSnapshot(ctx)
		case <-s.stopChan:
			// Final flush covers alerts raised since the last tick.
			s.runSnapshot(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends the loop and waits for the final snapshot to finish.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	<-s.doneChan
}

// runSnapshot writes the current alert history as one snapshot.
func (s *Scheduler) runSnapshot(ctx context.Context) {
	// limit 0 reads the full history, newest first
	alerts, err := s.alertRepo.Recent(ctx, 0)
	if err != nil {
		s.logger.Errorw("failed to read alert history", "error", err)
		return
	}
	if len(alerts) == 0 {
		s.logger.Debug("alert history empty, skipping snapshot")
		return
	}

	payload, err := json.Marshal(alerts)
	if err != nil {
		s.logger.Errorw("failed to marshal alert history", "error", err)
		return
	}

	name, err := s.snapshots.CreateSnapshot(ctx, &backup.Snapshot{
		Alerts: payload,
		Metadata: map[string]interface{}{
			"alert_count": len(alerts),
		},
	})
	if err != nil {
		s.logger.Errorw("failed to create snapshot", "error", err)
		return
	}

	s.logger.Infow("alert history snapshot written", "snapshot", name, "alerts", len(alerts))

	if err := s.cleanupOldSnapshots(ctx); err != nil {
		s.logger.Warnw("failed to cleanup old snapshots", "error", err)
	}
}

// cleanupOldSnapshots removes snapshots older than the retention window.
func (s *Scheduler) cleanupOldSnapshots(ctx context.Context) error {
	names, err := s.snapshots.ListSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)

	for _, name := range names {
		ts, ok := backup.SnapshotTime(name)
		if !ok {
			s.logger.Warnw("unrecognized snapshot name", "snapshot", name)
			continue
		}
		if ts.Before(cutoff) {
			if err := s.snapshots.DeleteSnapshot(ctx, name); err != nil {
				s.logger.Warnw("failed to delete expired snapshot", "snapshot", name, "error", err)
				continue
			}
			s.logger.Infow("deleted expired snapshot", "snapshot", name, "age", time.Since(ts))
		}
	}

	return nil
}
