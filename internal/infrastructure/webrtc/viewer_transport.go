package webrtc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	apperrors "faceview/pkg/errors"
	"faceview/pkg/tracing"
)

const (
	rtpBufferSize = 1500 // MTU size
	pliInterval   = 3 * time.Second
)

// TransportConfig holds the viewer-side WebRTC settings.
type TransportConfig struct {
	ICEServers         []webrtc.ICEServer
	NegotiationTimeout time.Duration
}

// ViewerTransport opens one receive-only peer connection per camera and
// drives the offer/answer/candidate exchange through the Signaler.
type ViewerTransport struct {
	config   TransportConfig
	signaler ports.Signaler
	logger   *zap.SugaredLogger

	mu       sync.Mutex
	attempts map[domain.CameraID]int
}

func NewViewerTransport(config TransportConfig, signaler ports.Signaler, logger *zap.SugaredLogger) *ViewerTransport {
	return &ViewerTransport{
		config:   config,
		signaler: signaler,
		logger:   logger,
		attempts: make(map[domain.CameraID]int),
	}
}

// Open negotiates a media link for one camera. It blocks until ICE reports
// the link connected or the negotiation timeout expires; on every failure
// path the peer connection is closed before returning.
func (t *ViewerTransport) Open(ctx context.Context, cameraID domain.CameraID) (ports.MediaHandle, error) {
	attempt := t.nextAttempt(cameraID)
	ctx, span := tracing.TraceNegotiation(ctx, string(cameraID), attempt)
	defer span.End()

	negCtx, cancel := context.WithTimeout(ctx, t.config.NegotiationTimeout)
	defer cancel()

	pc, err := t.newPeerConnection()
	if err != nil {
		span.RecordError(err)
		return nil, apperrors.NewTransportError("failed to create peer connection", err)
	}

	handle := newMediaHandle(pc, cameraID, t.logger)

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		handle.Close()
		span.RecordError(err)
		return nil, apperrors.NewTransportError("failed to add video transceiver", err)
	}

	connected := make(chan struct{})
	var connectedOnce sync.Once

	pc.OnTrack(handle.onTrack)
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Debugw("peer connection state changed", "camera_id", cameraID, "state", state.String())
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		t.logger.Infow("ice connection state changed", "camera_id", cameraID, "state", state.String())
		switch state {
		case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
			connectedOnce.Do(func() { close(connected) })
			handle.setLink(domain.LinkUp, nil)
		case webrtc.ICEConnectionStateDisconnected:
			handle.setLink(domain.LinkDegraded, nil)
		case webrtc.ICEConnectionStateFailed:
			handle.setLink(domain.LinkDown, apperrors.NewTransportError("ice connection failed", nil))
		case webrtc.ICEConnectionStateClosed:
			handle.setLink(domain.LinkDown, nil)
		}
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON().Candidate
		go func() {
			// Candidates may trickle after Open has returned, so they do not
			// ride on the negotiation context.
			if err := t.signaler.SendCandidate(context.Background(), cameraID, candidate); err != nil {
				t.logger.Debugw("failed to send ice candidate", "camera_id", cameraID, "error", err)
			}
		}()
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		handle.Close()
		span.RecordError(err)
		return nil, apperrors.NewNegotiationError("failed to create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		handle.Close()
		span.RecordError(err)
		return nil, apperrors.NewNegotiationError("failed to set local description", err)
	}

	answerSDP, err := t.signaler.Offer(negCtx, cameraID, offer.SDP)
	if err != nil {
		handle.Close()
		span.RecordError(err)
		return nil, err
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answerSDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		handle.Close()
		span.RecordError(err)
		return nil, apperrors.NewNegotiationError("failed to set remote description", err)
	}

	select {
	case <-connected:
	case <-negCtx.Done():
		handle.Close()
		err := apperrors.NewNegotiationError("ice connection not established in time", negCtx.Err())
		span.RecordError(err)
		return nil, err
	}

	t.logger.Infow("media link established", "camera_id", cameraID, "attempt", attempt)
	return handle, nil
}

func (t *ViewerTransport) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   t.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
}

func (t *ViewerTransport) nextAttempt(cameraID domain.CameraID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[cameraID]++
	return t.attempts[cameraID]
}

// mediaHandle is the live link for one camera. Receive counters are updated
// by the track reader; link callbacks are serialized and stop after Close.
type mediaHandle struct {
	pc       *webrtc.PeerConnection
	cameraID domain.CameraID
	logger   *zap.SugaredLogger

	bytes     atomic.Uint64
	frames    atomic.Uint64
	videoSSRC atomic.Uint32
	capBps    atomic.Int64

	mu      sync.Mutex
	linkFn  func(domain.LinkState, error)
	pending *linkEvent
	closed  bool
	done    chan struct{}

	notifyMu sync.Mutex
}

type linkEvent struct {
	state domain.LinkState
	cause error
}

func newMediaHandle(pc *webrtc.PeerConnection, cameraID domain.CameraID, logger *zap.SugaredLogger) *mediaHandle {
	return &mediaHandle{
		pc:       pc,
		cameraID: cameraID,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// OnLinkState registers the callback. A degradation or loss that fired
// before registration is replayed so the owner never misses it.
func (h *mediaHandle) OnLinkState(fn func(domain.LinkState, error)) {
	h.mu.Lock()
	h.linkFn = fn
	replay := h.pending
	h.pending = nil
	h.mu.Unlock()

	if replay != nil {
		h.notifyMu.Lock()
		fn(replay.state, replay.cause)
		h.notifyMu.Unlock()
	}
}

func (h *mediaHandle) setLink(state domain.LinkState, cause error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	fn := h.linkFn
	if fn == nil {
		if state != domain.LinkUp {
			h.pending = &linkEvent{state: state, cause: cause}
		}
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.notifyMu.Lock()
	fn(state, cause)
	h.notifyMu.Unlock()
}

func (h *mediaHandle) Counters() domain.TransportCounters {
	return domain.TransportCounters{
		BytesReceived:  h.bytes.Load(),
		FramesReceived: h.frames.Load(),
	}
}

// RTT reads the round-trip time of the succeeded ICE candidate pair from the
// peer connection's stats report.
func (h *mediaHandle) RTT() (time.Duration, bool) {
	for _, stat := range h.pc.GetStats() {
		pair, ok := stat.(webrtc.ICECandidatePairStats)
		if !ok || pair.State != webrtc.StatsICECandidatePairStateSucceeded {
			continue
		}
		if pair.CurrentRoundTripTime <= 0 {
			continue
		}
		return time.Duration(pair.CurrentRoundTripTime * float64(time.Second)), true
	}
	return 0, false
}

// ApplyBitrateCap sends a REMB asking the sender to stay under the cap. A
// cap applied before the video track has arrived is kept and sent when the
// track starts.
func (h *mediaHandle) ApplyBitrateCap(maxBitrateBps int) error {
	h.capBps.Store(int64(maxBitrateBps))
	ssrc := h.videoSSRC.Load()
	if ssrc == 0 {
		return nil
	}
	return h.writeREMB(ssrc, maxBitrateBps)
}

func (h *mediaHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.linkFn = nil
	h.pending = nil
	close(h.done)
	h.mu.Unlock()

	return h.pc.Close()
}

func (h *mediaHandle) onTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	h.logger.Infow("remote track started",
		"camera_id", h.cameraID,
		"kind", track.Kind().String(),
		"codec", track.Codec().MimeType,
	)

	if track.Kind() != webrtc.RTPCodecTypeVideo {
		go h.drainTrack(track)
		return
	}

	ssrc := uint32(track.SSRC())
	h.videoSSRC.Store(ssrc)
	if queued := h.capBps.Load(); queued > 0 {
		if err := h.writeREMB(ssrc, int(queued)); err != nil {
			h.logger.Debugw("failed to send queued bitrate cap", "camera_id", h.cameraID, "error", err)
		}
	}

	go h.readVideoTrack(track)
	go h.drainRTCP(receiver)
	go h.keyframeLoop(ssrc)
}

// readVideoTrack accumulates receive counters. The RTP marker bit closes a
// frame, which is what the frame-rate derivation counts.
func (h *mediaHandle) readVideoTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, rtpBufferSize)
	pkt := &rtp.Packet{}

	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		h.bytes.Add(uint64(n))

		if err := pkt.Unmarshal(buf[:n]); err != nil {
			h.logger.Debugw("error unmarshaling rtp packet", "camera_id", h.cameraID, "error", err)
			continue
		}
		if pkt.Marker {
			h.frames.Add(1)
		}
	}
}

func (h *mediaHandle) drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, rtpBufferSize)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// drainRTCP keeps the interceptor chain fed with inbound reports.
func (h *mediaHandle) drainRTCP(receiver *webrtc.RTPReceiver) {
	for {
		if _, _, err := receiver.ReadRTCP(); err != nil {
			return
		}
	}
}

// keyframeLoop requests a keyframe immediately and then periodically, so a
// fresh viewer renders without waiting for the sender's own cadence.
func (h *mediaHandle) keyframeLoop(ssrc uint32) {
	h.writePLI(ssrc)

	ticker := time.NewTicker(pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.writePLI(ssrc)
		}
	}
}

func (h *mediaHandle) writePLI(ssrc uint32) {
	err := h.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
	if err != nil {
		h.logger.Debugw("error sending pli", "camera_id", h.cameraID, "error", err)
	}
}

func (h *mediaHandle) writeREMB(ssrc uint32, maxBitrateBps int) error {
	return h.pc.WriteRTCP([]rtcp.Packet{&rtcp.ReceiverEstimatedMaximumBitrate{
		Bitrate: float32(maxBitrateBps),
		SSRCs:   []uint32{ssrc},
	}})
}
