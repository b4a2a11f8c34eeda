package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"faceview/internal/core/domain"
)

// alertEnvelope is the wire form published on the alert channel. InstanceID
// lets consumers attribute an alert to the viewer instance that raised it.
type alertEnvelope struct {
	InstanceID string        `json:"instance_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Alert      *domain.Alert `json:"alert"`
}

// AlertBus publishes raised alerts on a Redis channel for external
// consumers (notification services, dashboards). It is one sink among the
// deduplicator's fan-out; publish failures never block alerting.
type AlertBus struct {
	client     *redis.Client
	channel    string
	instanceID string
	logger     *zap.SugaredLogger
}

func NewAlertBus(client *redis.Client, channel, instanceID string, logger *zap.SugaredLogger) *AlertBus {
	return &AlertBus{
		client:     client,
		channel:    channel,
		instanceID: instanceID,
		logger:     logger,
	}
}

// PublishAlert implements ports.AlertSink.
func (b *AlertBus) PublishAlert(ctx context.Context, alert *domain.Alert) error {
	envelope := alertEnvelope{
		InstanceID: b.instanceID,
		Timestamp:  time.Now(),
		Alert:      alert,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	b.logger.Debugw("published alert",
		"camera_id", alert.CameraID,
		"alert_id", alert.ID,
	)
	return nil
}
