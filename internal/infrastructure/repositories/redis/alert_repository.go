package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
)

const alertHistoryKey = "faceview:alerts:recent"

// RedisAlertRepository stores the alert history in a capped Redis list,
// newest first, shared across viewer instances.
type RedisAlertRepository struct {
	client   *redis.Client
	capacity int
}

func NewRedisAlertRepository(client *redis.Client, capacity int) ports.AlertRepository {
	return &RedisAlertRepository{
		client:   client,
		capacity: capacity,
	}
}

func (r *RedisAlertRepository) Add(ctx context.Context, alert *domain.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, alertHistoryKey, data)
	pipe.LTrim(ctx, alertHistoryKey, 0, int64(r.capacity)-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store alert in Redis: %w", err)
	}
	return nil
}

func (r *RedisAlertRepository) Recent(ctx context.Context, limit int) ([]*domain.Alert, error) {
	if limit <= 0 || limit > r.capacity {
		limit = r.capacity
	}

	entries, err := r.client.LRange(ctx, alertHistoryKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts from Redis: %w", err)
	}

	out := make([]*domain.Alert, 0, len(entries))
	for _, entry := range entries {
		var alert domain.Alert
		if err := json.Unmarshal([]byte(entry), &alert); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		out = append(out, &alert)
	}
	return out, nil
}
