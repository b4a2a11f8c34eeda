package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"

	"faceview/internal/camsim"
	"faceview/internal/core/domain"
	"faceview/pkg/logger"
)

var cameraNames = []string{
	"Lobby Entrance",
	"Parking Lot",
	"Loading Dock",
	"Server Room",
	"Rooftop Access",
	"Main Corridor",
}

func main() {
	addr := flag.String("addr", ":8090", "listen address for the negotiation API and event feed")
	cameraCount := flag.Int("cameras", 4, "number of simulated cameras")
	interval := flag.Duration("interval", 2*time.Second, "beat interval of the detection scenario")
	restricted := flag.String("restricted", "", "comma-separated camera ids that refuse offers")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	zapLogger := logger.New(*logLevel, "console")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	cameras := fleet(*cameraCount)

	publishers, err := camsim.NewPublisherPool([]webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}, log)
	if err != nil {
		log.Fatalw("Failed to create publisher pool", "error", err)
	}
	defer publishers.Close()

	feed := camsim.NewDetectionFeed(log)
	simulator := camsim.NewSimulator(cameras, restrictedSet(*restricted), publishers, feed, log)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	simulator.SetupRoutes(engine)

	scenarioCtx, scenarioCancel := context.WithCancel(context.Background())
	defer scenarioCancel()
	go camsim.NewScenario(feed, cameras, *interval, log).Run(scenarioCtx)

	srv := &http.Server{
		Addr:    *addr,
		Handler: engine,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting camera simulator on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Simulator failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during simulator shutdown", "error", err)
	}

	log.Info("Camera simulator stopped")
}

// fleet builds the camera inventory. Odd-numbered cameras are plain security
// cameras so viewers see both camera types in the list.
func fleet(count int) []domain.Camera {
	cameras := make([]domain.Camera, 0, count)
	for i := 0; i < count; i++ {
		camType := domain.CameraTypeFacial
		if i%2 == 1 {
			camType = domain.CameraTypeSecurity
		}
		cameras = append(cameras, domain.Camera{
			ID:   domain.CameraID(fmt.Sprintf("cam-%d", i+1)),
			Name: cameraNames[i%len(cameraNames)],
			Type: camType,
		})
	}
	return cameras
}

func restrictedSet(raw string) map[domain.CameraID]bool {
	set := make(map[domain.CameraID]bool)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			set[domain.CameraID(id)] = true
		}
	}
	return set
}
