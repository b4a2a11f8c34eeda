package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"faceview/internal/core/services"
	httphandlers "faceview/internal/handlers/http"
	backupinfra "faceview/internal/infrastructure/backup"
	"faceview/internal/infrastructure/channel"
	"faceview/internal/infrastructure/distributed"
	"faceview/internal/infrastructure/middleware"
	"faceview/internal/infrastructure/monitoring"
	"faceview/internal/infrastructure/reliability"
	repositories "faceview/internal/infrastructure/repositories"
	"faceview/internal/infrastructure/signaling"
	webrtcinfra "faceview/internal/infrastructure/webrtc"
	"faceview/pkg/backup"
	"faceview/pkg/circuitbreaker"
	"faceview/pkg/config"
	"faceview/pkg/logger"
	"faceview/pkg/tracing"
	"faceview/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// version is stamped into alert snapshots and the health endpoint.
const version = "1.0.0"

func main() {
	startTime := time.Now()

	// Config file location can be overridden; a missing file falls back to
	// defaults plus env overrides.
	configPath := os.Getenv("FACEVIEW_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	log.Infow("configuration loaded",
		"address", cfg.Server.Address,
		"signaling_url", cfg.Signaling.BaseURL,
		"channel_url", cfg.Channel.URL,
		"redis_enabled", cfg.Redis.Enabled,
		"auth_enabled", cfg.Auth.Enabled,
		"jwt_secret", utils.MaskSensitive(cfg.Auth.JWTSecret, 2),
	)

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	// Initialize repositories
	cameraRepo := repoFactory.CreateCameraRepository()
	alertRepo := repoFactory.CreateAlertRepository()
	statsRepo := repoFactory.CreateStatsRepository()

	// Initialize monitoring
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
		statsRepo = monitoring.NewInstrumentedStatsRepository(statsRepo, collector)
	}

	// Signaling client for camera inventory and WebRTC negotiation. The
	// circuit breaker wrapper sheds calls while the service is down; the
	// client itself retries transient failures.
	restClient := signaling.NewRestClient(
		cfg.Signaling.BaseURL,
		cfg.Signaling.RequestTimeout,
		cfg.Signaling.RetryAttempts,
		log,
	)
	signalerClient := reliability.NewSignalerWrapper(restClient, circuitbreaker.DefaultConfig(), log)

	// Shared detection event channel
	channelClient := channel.NewWebSocketClient(
		cfg.Channel.URL,
		cfg.Channel.HandshakeTimeout,
		cfg.Channel.PingInterval,
		cfg.Channel.PongTimeout,
		cfg.Channel.MaxMessageSizeBytes,
		log,
	)
	detectionRouter := channel.NewRouter(
		channelClient,
		cfg.Channel.URL,
		cfg.Channel.Reconnect.MaxAttempts,
		cfg.Channel.Reconnect.InitialDelay,
		cfg.Channel.Reconnect.MaxDelay,
		log,
	)

	// WebRTC configuration (including STUN/TURN from config)
	var iceServers []webrtc.ICEServer
	if len(cfg.WebRTC.ICEServers) > 0 {
		for _, s := range cfg.WebRTC.ICEServers {
			iceServers = append(iceServers, webrtc.ICEServer{
				URLs:       s.URLs,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	} else {
		// Fallback STUN server if not configured
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	transport := webrtcinfra.NewViewerTransport(webrtcinfra.TransportConfig{
		ICEServers:         iceServers,
		NegotiationTimeout: cfg.WebRTC.NegotiationTimeout,
	}, signalerClient, log)

	// Initialize the viewing pipeline
	viewerService := services.NewViewerService(services.ViewerConfig{
		ReconnectDelay:   cfg.Session.ReconnectDelay,
		StatsInterval:    cfg.Session.StatsInterval,
		DefaultQuality:   cfg.Session.DefaultQuality,
		AlertMinInterval: cfg.Alerts.MinInterval,
	}, signalerClient, transport, detectionRouter, cameraRepo, alertRepo, statsRepo, log)

	if collector != nil {
		viewerService.OnSessionChange(collector.RecordSessionChange)
		detectionRouter.SubscribeChannelHealth(collector.RecordChannelEvent)
		viewerService.AddAlertSink(collector)
	}

	// Fan alerts out to other instances when Redis is available
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		alertBus := distributed.NewAlertBus(redisClient, cfg.Redis.AlertChannel, uuid.New().String(), log)
		viewerService.AddAlertSink(alertBus)
	}

	// appCtx governs the background loops: the detection channel and the
	// snapshot scheduler.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// Reload the persisted alert history before detections start flowing,
	// then keep snapshotting it on an interval.
	var backupSched *backupinfra.Scheduler
	if cfg.Backup.Enabled {
		snapshotStore, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			log.Fatalw("failed to open snapshot storage", "error", err)
		}
		snapshots := backup.NewService(snapshotStore, version)

		restoreCtx, restoreCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if _, err := backupinfra.NewRestoreService(snapshots, alertRepo, log).RestoreLatest(restoreCtx); err != nil {
			log.Warnw("alert history restore failed", "error", err)
		}
		restoreCancel()

		backupSched = backupinfra.NewScheduler(snapshots, alertRepo, backupinfra.Config{
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
		}, log)
		go backupSched.Start(appCtx)
	}

	// Run the detection channel for the lifetime of the process. A spent
	// retry budget leaves the channel down until restart; readiness reports
	// it.
	go func() {
		if err := detectionRouter.Run(appCtx); err != nil {
			log.Errorw("detection channel terminated", "error", err)
		}
	}()

	// Prefetch the camera inventory; Cameras() refreshes lazily if this
	// fails.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := viewerService.RefreshInventory(bootCtx); err != nil {
		log.Warnw("initial inventory refresh failed", "error", err)
	}
	bootCancel()

	// Readiness checks
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddChannelCheck(detectionRouter)
	healthChecker.AddSignalingCheck(signalerClient, 5*time.Second)
	if redisClient := repoFactory.RedisClient(); redisClient != nil {
		healthChecker.AddRedisCheck(redisClient, 2*time.Second)
	}

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(middleware.RecoveryMiddleware(log))
	engine.Use(middleware.ErrorHandlerMiddleware(log))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.TracingMiddleware())
	}
	engine.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	viewerHandler := httphandlers.NewViewerHandler(viewerService, viewerService.Renderer(), log)
	api := engine.Group("/api/v1")
	if cfg.Auth.Enabled {
		api.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	}
	viewerHandler.SetupRoutes(api)

	// Health check endpoint
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"version":   version,
			"timestamp": time.Now(),
			"uptime":    utils.FormatDuration(time.Since(startTime)),
		})
	})

	// Readiness endpoint
	engine.GET("/readyz", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting FaceView viewer server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down FaceView viewer server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown HTTP server gracefully
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		// Force close if graceful shutdown fails
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	// Tear down every session and the background loops. Stopping the
	// scheduler flushes one last snapshot.
	viewerService.Close()
	viewerHandler.Close()
	if backupSched != nil {
		backupSched.Stop()
	}
	appCancel()

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracer", "error", err)
	}

	log.Info("FaceView viewer server stopped")
}
