package repositories

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"faceview/internal/core/ports"
	"faceview/internal/infrastructure/repositories/memory"
	redisrepo "faceview/internal/infrastructure/repositories/redis"
	"faceview/pkg/config"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	useRedis         bool
	redisClient      *redis.Client
	alertHistorySize int
	logger           *zap.SugaredLogger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis:         cfg.Redis.Enabled,
		alertHistorySize: cfg.Alerts.HistorySize,
		logger:           logger,
	}

	// Try to connect to Redis if enabled
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using Redis alert history")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// CreateCameraRepository creates the inventory mirror. Always memory: the
// signaling service is the source of truth and every instance mirrors it.
func (f *RepositoryFactory) CreateCameraRepository() ports.CameraRepository {
	return memory.NewMemoryCameraRepository()
}

// CreateAlertRepository creates the alert history (Redis when available so
// the history is shared across instances, memory otherwise).
func (f *RepositoryFactory) CreateAlertRepository() ports.AlertRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisAlertRepository(f.redisClient, f.alertHistorySize)
	}
	return memory.NewMemoryAlertRepository(f.alertHistorySize)
}

// CreateStatsRepository creates the stats registry. Always memory: snapshots
// describe this instance's own media links and die with the session.
func (f *RepositoryFactory) CreateStatsRepository() ports.StatsRepository {
	return memory.NewMemoryStatsRepository()
}

// RedisClient exposes the shared client for the alert bus; nil when Redis is
// disabled or unreachable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if !f.useRedis {
		return nil
	}
	return f.redisClient
}

// Close closes Redis connection if used
func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
