package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"faceview/internal/core/domain"
	"faceview/internal/core/ports"
	apperrors "faceview/pkg/errors"

	"go.uber.org/zap/zaptest"
)

// handleAudit counts media handles across a test so leaks are visible.
type handleAudit struct {
	mu      sync.Mutex
	open    int
	maxOpen int
	opened  int
}

func (a *handleAudit) onOpen() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open++
	a.opened++
	if a.open > a.maxOpen {
		a.maxOpen = a.open
	}
}

func (a *handleAudit) onClose() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open--
}

func (a *handleAudit) openNow() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func (a *handleAudit) maxEverOpen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxOpen
}

func (a *handleAudit) totalOpened() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opened
}

type fakeHandle struct {
	audit *handleAudit

	mu       sync.Mutex
	closed   bool
	linkFn   func(domain.LinkState, error)
	caps     []int
	counters domain.TransportCounters
	rtt      time.Duration
	rttOK    bool
}

func (h *fakeHandle) OnLinkState(fn func(domain.LinkState, error)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.linkFn = fn
}

func (h *fakeHandle) Counters() domain.TransportCounters {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.counters
}

func (h *fakeHandle) RTT() (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rtt, h.rttOK
}

func (h *fakeHandle) ApplyBitrateCap(maxBitrateBps int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.caps = append(h.caps, maxBitrateBps)
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	h.audit.onClose()
	return nil
}

func (h *fakeHandle) pushLink(ls domain.LinkState, err error) {
	h.mu.Lock()
	fn := h.linkFn
	h.mu.Unlock()
	if fn != nil {
		fn(ls, err)
	}
}

func (h *fakeHandle) setCounters(c domain.TransportCounters) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.counters = c
}

func (h *fakeHandle) lastCap() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.caps) == 0 {
		return 0, false
	}
	return h.caps[len(h.caps)-1], true
}

func (h *fakeHandle) capCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.caps)
}

// fakeTransport scripts Open outcomes. gate, when set, holds negotiations
// until the channel is closed; fail is a queue of one-shot errors consumed
// before successful opens; failAll makes every open fail.
type fakeTransport struct {
	audit handleAudit

	mu      sync.Mutex
	gate    chan struct{}
	fail    []error
	failAll error
	handles []*fakeHandle
	opens   int
}

func (ft *fakeTransport) Open(ctx context.Context, cameraID domain.CameraID) (ports.MediaHandle, error) {
	ft.mu.Lock()
	ft.opens++
	gate := ft.gate
	var err error
	if ft.failAll != nil {
		err = ft.failAll
	} else if len(ft.fail) > 0 {
		err = ft.fail[0]
		ft.fail = ft.fail[1:]
	}
	ft.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	h := &fakeHandle{audit: &ft.audit, rtt: 20 * time.Millisecond, rttOK: true}
	ft.audit.onOpen()
	ft.mu.Lock()
	ft.handles = append(ft.handles, h)
	ft.mu.Unlock()
	return h, nil
}

func (ft *fakeTransport) openCalls() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.opens
}

func (ft *fakeTransport) lastHandle() *fakeHandle {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if len(ft.handles) == 0 {
		return nil
	}
	return ft.handles[len(ft.handles)-1]
}

// transitionRecorder collects session transitions in delivery order.
type transitionRecorder struct {
	mu      sync.Mutex
	changes []domain.StateChange
}

func (r *transitionRecorder) record(change domain.StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *transitionRecorder) states() []domain.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make([]domain.SessionState, 0, len(r.changes))
	for _, c := range r.changes {
		states = append(states, c.State)
	}
	return states
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testCamera() domain.Camera {
	return domain.Camera{ID: "cam-1", Name: "Lobby Entrance", Type: domain.CameraTypeFacial}
}

func statesEqual(got, want []domain.SessionState) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestStreamSession_Lifecycle(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{}
	rec := &transitionRecorder{}

	s := NewStreamSession(testCamera(), ft, logger)
	s.OnStateChange(rec.record)

	if got := s.State(); got != domain.SessionIdle {
		t.Fatalf("initial state = %v, want %v", got, domain.SessionIdle)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := s.State(); got != domain.SessionConnected {
		t.Errorf("state after Start = %v, want %v", got, domain.SessionConnected)
	}
	if got := ft.audit.openNow(); got != 1 {
		t.Errorf("open handles after Start = %d, want 1", got)
	}

	s.Stop()
	if got := s.State(); got != domain.SessionClosed {
		t.Errorf("state after Stop = %v, want %v", got, domain.SessionClosed)
	}
	if got := ft.audit.openNow(); got != 0 {
		t.Errorf("open handles after Stop = %d, want 0", got)
	}

	// Stop is idempotent.
	s.Stop()

	want := []domain.SessionState{domain.SessionNegotiating, domain.SessionConnected, domain.SessionClosed}
	if got := rec.states(); !statesEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestStreamSession_SecondStartRejected(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{}

	s := NewStreamSession(testCamera(), ft, logger)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := s.Start(context.Background()); !errors.Is(err, domain.ErrSessionActive) {
		t.Errorf("second Start() error = %v, want %v", err, domain.ErrSessionActive)
	}
	if got := ft.openCalls(); got != 1 {
		t.Errorf("transport opens = %d, want 1", got)
	}
	s.Stop()
}

func TestStreamSession_ApplyQualityOutsideConnected(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	for level := range domain.QualityProfiles {
		profile, _ := domain.ProfileFor(level)

		// Idle session: no error, nothing observable changes.
		ft := &fakeTransport{}
		s := NewStreamSession(testCamera(), ft, logger)
		if err := s.ApplyQuality(profile); err != nil {
			t.Errorf("ApplyQuality(%s) on idle session error = %v, want nil", level, err)
		}
		if s.Profile() != nil {
			t.Errorf("Profile() on idle session = %v, want nil", s.Profile())
		}

		// Closed session after a failed start.
		ft.failAll = apperrors.NewNegotiationError("offer rejected", nil)
		if err := s.Start(context.Background()); err == nil {
			t.Fatal("Start() error = nil, want failure")
		}
		if err := s.ApplyQuality(profile); err != nil {
			t.Errorf("ApplyQuality(%s) on closed session error = %v, want nil", level, err)
		}
		if s.Profile() != nil {
			t.Errorf("Profile() on closed session = %v, want nil", s.Profile())
		}
	}
}

func TestStreamSession_ApplyQualityWhenConnected(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{}

	s := NewStreamSession(testCamera(), ft, logger)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	profile, _ := domain.ProfileFor(domain.QualityHigh)
	if err := s.ApplyQuality(profile); err != nil {
		t.Fatalf("ApplyQuality() error = %v", err)
	}

	applied, ok := ft.lastHandle().lastCap()
	if !ok || applied != profile.MaxBitrateBps {
		t.Errorf("applied cap = %d (%v), want %d", applied, ok, profile.MaxBitrateBps)
	}
	if got := s.Profile(); got == nil || got.Level != domain.QualityHigh {
		t.Errorf("Profile() = %v, want high", got)
	}
}

func TestStreamSession_OpenFailure(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{failAll: apperrors.NewNegotiationError("offer rejected", nil)}

	s := NewStreamSession(testCamera(), ft, logger)
	err := s.Start(context.Background())
	if err == nil {
		t.Fatal("Start() error = nil, want negotiation failure")
	}
	if got := s.State(); got != domain.SessionClosed {
		t.Errorf("state after failed Start = %v, want %v", got, domain.SessionClosed)
	}
	if s.LastError() == nil {
		t.Error("LastError() = nil, want the negotiation error")
	}
	if got := ft.audit.openNow(); got != 0 {
		t.Errorf("open handles = %d, want 0", got)
	}
}

func TestStreamSession_StopDuringNegotiation(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	gate := make(chan struct{})
	ft := &fakeTransport{gate: gate}
	rec := &transitionRecorder{}

	s := NewStreamSession(testCamera(), ft, logger)
	s.OnStateChange(rec.record)

	done := make(chan error, 1)
	go func() {
		done <- s.Start(context.Background())
	}()

	waitFor(t, time.Second, "negotiating state", func() bool {
		return s.State() == domain.SessionNegotiating
	})
	s.Stop()
	if got := s.State(); got != domain.SessionClosed {
		t.Fatalf("state after Stop = %v, want %v", got, domain.SessionClosed)
	}

	// Let the in-flight negotiation complete; its handle must not survive
	// the already-closed session.
	close(gate)
	if err := <-done; err != nil {
		t.Errorf("Start() after Stop error = %v, want nil", err)
	}
	waitFor(t, time.Second, "handle release", func() bool {
		return ft.audit.openNow() == 0
	})
	if got := ft.audit.totalOpened(); got != 1 {
		t.Errorf("handles opened = %d, want 1", got)
	}

	want := []domain.SessionState{domain.SessionNegotiating, domain.SessionClosed}
	if got := rec.states(); !statesEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestStreamSession_LinkDownClosesSession(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{}

	s := NewStreamSession(testCamera(), ft, logger)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ft.lastHandle().pushLink(domain.LinkDown, errors.New("ice failed"))

	if got := s.State(); got != domain.SessionClosed {
		t.Errorf("state after link down = %v, want %v", got, domain.SessionClosed)
	}
	if !apperrors.IsRecoverable(s.LastError()) {
		t.Errorf("LastError() = %v, want a recoverable transport error", s.LastError())
	}
	if got := ft.audit.openNow(); got != 0 {
		t.Errorf("open handles = %d, want 0", got)
	}
}

func TestStreamSession_DegradedRecovers(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{}
	rec := &transitionRecorder{}

	s := NewStreamSession(testCamera(), ft, logger)
	s.OnStateChange(rec.record)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	h := ft.lastHandle()
	h.pushLink(domain.LinkDegraded, nil)
	if got := s.State(); got != domain.SessionDegraded {
		t.Errorf("state after degrade = %v, want %v", got, domain.SessionDegraded)
	}

	h.pushLink(domain.LinkUp, nil)
	if got := s.State(); got != domain.SessionConnected {
		t.Errorf("state after recovery = %v, want %v", got, domain.SessionConnected)
	}

	want := []domain.SessionState{
		domain.SessionNegotiating,
		domain.SessionConnected,
		domain.SessionDegraded,
		domain.SessionConnected,
	}
	if got := rec.states(); !statesEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestStreamSession_StaleLinkCallbackIgnored(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{}
	rec := &transitionRecorder{}

	s := NewStreamSession(testCamera(), ft, logger)
	s.OnStateChange(rec.record)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	old := ft.lastHandle()
	s.Stop()

	before := len(rec.states())
	old.pushLink(domain.LinkDown, errors.New("late ice failure"))
	if got := len(rec.states()); got != before {
		t.Errorf("stale link callback produced transitions: %v", rec.states())
	}
	if got := s.State(); got != domain.SessionClosed {
		t.Errorf("state = %v, want %v", got, domain.SessionClosed)
	}
}

func TestStreamSession_AtMostOneHandlePerCamera(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	ft := &fakeTransport{}

	s := NewStreamSession(testCamera(), ft, logger)
	for i := 0; i < 10; i++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		s.Stop()
	}

	if got := ft.audit.maxEverOpen(); got != 1 {
		t.Errorf("max concurrently open handles = %d, want 1", got)
	}
	if got := ft.audit.openNow(); got != 0 {
		t.Errorf("open handles after final Stop = %d, want 0", got)
	}
	if got := ft.audit.totalOpened(); got != 10 {
		t.Errorf("handles opened = %d, want 10", got)
	}
}
