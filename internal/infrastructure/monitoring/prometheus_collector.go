package monitoring

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"faceview/internal/core/domain"
)

// PrometheusCollector translates pipeline events into Prometheus metrics.
// It observes the viewer service and the detection router from the outside;
// the core never depends on it.
type PrometheusCollector struct {
	sessionsByState    *prometheus.GaugeVec
	sessionTransitions *prometheus.CounterVec
	alertsTotal        *prometheus.CounterVec
	channelConnected   prometheus.Gauge
	channelEvents      *prometheus.CounterVec

	cameraBitrate   *prometheus.GaugeVec
	cameraFrameRate *prometheus.GaugeVec
	cameraRTT       *prometheus.GaugeVec

	mu     sync.Mutex
	states map[domain.CameraID]domain.SessionState
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsByState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "faceview_sessions",
			Help: "Watched camera sessions by current state",
		}, []string{"state"}),

		sessionTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faceview_session_transitions_total",
			Help: "Session state transitions by target state",
		}, []string{"state"}),

		alertsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faceview_alerts_total",
			Help: "Unknown face alerts raised per camera",
		}, []string{"camera_id"}),

		channelConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "faceview_channel_connected",
			Help: "Whether the shared detection channel is connected (0/1)",
		}),

		channelEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faceview_channel_events_total",
			Help: "Detection channel health events by kind",
		}, []string{"kind"}),

		cameraBitrate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "faceview_camera_bitrate_bps",
			Help: "Received bitrate per camera in bits per second",
		}, []string{"camera_id"}),

		cameraFrameRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "faceview_camera_frame_rate",
			Help: "Received frame rate per camera",
		}, []string{"camera_id"}),

		cameraRTT: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "faceview_camera_rtt_seconds",
			Help: "Media link round-trip time per camera",
		}, []string{"camera_id"}),

		states: make(map[domain.CameraID]domain.SessionState),
	}
}

// RecordSessionChange maintains the live per-state gauge. Closed sessions
// leave the gauge entirely; their per-camera stats are cleared with them.
func (p *PrometheusCollector) RecordSessionChange(change domain.StateChange) {
	p.sessionTransitions.WithLabelValues(string(change.State)).Inc()

	p.mu.Lock()
	prev, tracked := p.states[change.CameraID]
	if change.State == domain.SessionClosed {
		delete(p.states, change.CameraID)
	} else {
		p.states[change.CameraID] = change.State
	}
	p.mu.Unlock()

	if tracked {
		p.sessionsByState.WithLabelValues(string(prev)).Dec()
	}
	if change.State == domain.SessionClosed {
		p.clearCameraStats(change.CameraID)
		return
	}
	p.sessionsByState.WithLabelValues(string(change.State)).Inc()
}

// PublishAlert implements ports.AlertSink so the collector can ride the
// deduplicator's fan-out.
func (p *PrometheusCollector) PublishAlert(ctx context.Context, alert *domain.Alert) error {
	p.alertsTotal.WithLabelValues(string(alert.CameraID)).Inc()
	return nil
}

// RecordChannelEvent tracks the shared channel's health topic.
func (p *PrometheusCollector) RecordChannelEvent(ev domain.ChannelEvent) {
	p.channelEvents.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case domain.ChannelConnected:
		p.channelConnected.Set(1)
	case domain.ChannelDisconnected, domain.ChannelGaveUp:
		p.channelConnected.Set(0)
	}
}

// RecordStats publishes one camera's latest snapshot.
func (p *PrometheusCollector) RecordStats(snap *domain.StatsSnapshot) {
	id := string(snap.CameraID)
	p.cameraBitrate.WithLabelValues(id).Set(float64(snap.BitrateBps))
	p.cameraFrameRate.WithLabelValues(id).Set(snap.FrameRate)
	p.cameraRTT.WithLabelValues(id).Set(snap.RTT.Seconds())
}

func (p *PrometheusCollector) clearCameraStats(cameraID domain.CameraID) {
	id := string(cameraID)
	p.cameraBitrate.DeleteLabelValues(id)
	p.cameraFrameRate.DeleteLabelValues(id)
	p.cameraRTT.DeleteLabelValues(id)
}
