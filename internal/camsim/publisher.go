package camsim

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"

	"faceview/internal/core/domain"
)

const (
	publishFrameRate = 15
	// Every keyframeEvery-th sample is padded larger, giving the received
	// bitrate a realistic sawtooth.
	keyframeEvery   = 30
	frameSize       = 1200
	keyframePadding = 8
)

// PublisherPool owns one synthetic VP8 feed per negotiated viewer session.
// A new offer for a camera replaces that camera's previous session.
type PublisherPool struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[domain.CameraID]*publisherSession
}

type publisherSession struct {
	pc     *webrtc.PeerConnection
	cancel context.CancelFunc
}

func NewPublisherPool(iceServers []webrtc.ICEServer, logger *zap.SugaredLogger) (*PublisherPool, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)

	return &PublisherPool{
		api:      api,
		config:   webrtc.Configuration{ICEServers: iceServers},
		logger:   logger,
		sessions: make(map[domain.CameraID]*publisherSession),
	}, nil
}

// Answer negotiates one viewer session. ICE candidates are gathered before
// returning, so the answer SDP carries them inline and the viewer's trickled
// candidates are the only ones exchanged separately.
func (p *PublisherPool) Answer(cameraID domain.CameraID, offerSDP string) (string, error) {
	pc, err := p.api.NewPeerConnection(p.config)
	if err != nil {
		return "", fmt.Errorf("failed to create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video",
		string(cameraID),
	)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to create video track: %w", err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to add track: %w", err)
	}

	// Drain RTCP so the interceptor chain keeps running.
	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(rtcpBuf); err != nil {
				if err != io.EOF {
					p.logger.Debugw("rtcp read ended", "camera_id", cameraID, "error", err)
				}
				return
			}
		}
	}()

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		p.logger.Debugw("publisher ice state changed", "camera_id", cameraID, "state", state.String())
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.drop(cameraID, pc)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offerSDP,
	}); err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to set remote offer: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		return "", fmt.Errorf("failed to set local answer: %w", err)
	}
	<-gatherComplete

	streamCtx, cancel := context.WithCancel(context.Background())
	session := &publisherSession{pc: pc, cancel: cancel}

	p.mu.Lock()
	if old, ok := p.sessions[cameraID]; ok {
		old.cancel()
		old.pc.Close()
	}
	p.sessions[cameraID] = session
	p.mu.Unlock()

	go p.streamFrames(streamCtx, cameraID, track)

	p.logger.Infow("publisher session negotiated", "camera_id", cameraID)
	return pc.LocalDescription().SDP, nil
}

// AddCandidate applies one trickled viewer candidate to the camera's current
// session.
func (p *PublisherPool) AddCandidate(cameraID domain.CameraID, candidate string) error {
	p.mu.Lock()
	session, ok := p.sessions[cameraID]
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("no active session for camera %s", cameraID)
	}
	return session.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

// streamFrames writes samples at a steady rate. The payload bytes are not
// decodable video; viewers account packets and frame markers, they never
// decode.
func (p *PublisherPool) streamFrames(ctx context.Context, cameraID domain.CameraID, track *webrtc.TrackLocalStaticSample) {
	ticker := time.NewTicker(time.Second / publishFrameRate)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := media.Sample{
				Data:     syntheticFrame(frame),
				Duration: time.Second / publishFrameRate,
			}
			if err := track.WriteSample(sample); err != nil {
				p.logger.Debugw("error writing sample", "camera_id", cameraID, "error", err)
				return
			}
			frame++
		}
	}
}

func syntheticFrame(n int) []byte {
	size := frameSize
	if n%keyframeEvery == 0 {
		size = frameSize * keyframePadding
	}
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(n + i)
	}
	return data
}

func (p *PublisherPool) drop(cameraID domain.CameraID, pc *webrtc.PeerConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session, ok := p.sessions[cameraID]
	if !ok || session.pc != pc {
		return
	}
	session.cancel()
	session.pc.Close()
	delete(p.sessions, cameraID)

	p.logger.Infow("publisher session dropped", "camera_id", cameraID)
}

// SessionCount returns the number of live viewer sessions.
func (p *PublisherPool) SessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close tears down every active session.
func (p *PublisherPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, session := range p.sessions {
		session.cancel()
		session.pc.Close()
		delete(p.sessions, id)
	}
}
