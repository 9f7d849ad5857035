package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.enteract.dev/enteract/audiodev"
	"go.enteract.dev/enteract/internal/types"
)

type testBackend struct {
	mu         sync.Mutex
	endpoints  []audiodev.Endpoint
	loopback   map[string]string
	aggSupport bool
	aggSeq     int
	destroyed  []string
	streams    []*testStream
	openGate   chan struct{} // when set, OpenStream blocks until closed
}

func newTestBackend(eps ...audiodev.Endpoint) *testBackend {
	return &testBackend{
		endpoints:  eps,
		loopback:   make(map[string]string),
		aggSupport: true,
	}
}

func (b *testBackend) Endpoints() ([]audiodev.Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]audiodev.Endpoint, len(b.endpoints))
	copy(out, b.endpoints)
	return out, nil
}

func (b *testBackend) LoopbackSource(output audiodev.Endpoint) (string, audiodev.StreamFormat, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.loopback[output.ID]
	if !ok {
		return "", audiodev.StreamFormat{}, false
	}
	return id, output.NativeFormat, true
}

func (b *testBackend) CreateAggregate(spec audiodev.AggregateSpec) (audiodev.Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.aggSupport {
		return audiodev.Endpoint{}, audiodev.ErrAggregateUnsupported
	}
	b.aggSeq++
	ep := audiodev.Endpoint{
		ID:   fmt.Sprintf("agg-%d", b.aggSeq),
		UID:  spec.UID,
		Name: spec.Name,
		Kind: audiodev.KindAggregate,
		NativeFormat: audiodev.StreamFormat{
			SampleRate: 48000, Channels: 2,
			SampleType: audiodev.SampleF32, Interleaved: true,
		},
	}
	b.endpoints = append(b.endpoints, ep)
	return ep, nil
}

func (b *testBackend) DestroyAggregate(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed = append(b.destroyed, id)
	for i, ep := range b.endpoints {
		if ep.ID == id {
			b.endpoints = append(b.endpoints[:i], b.endpoints[i+1:]...)
			break
		}
	}
	return nil
}

func (b *testBackend) OpenStream(deviceID string, format audiodev.StreamFormat, framesPerBuffer int, cb audiodev.StreamCallback, onError func(error)) (audiodev.Stream, error) {
	b.mu.Lock()
	gate := b.openGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	s := &testStream{cb: cb, onError: onError, framesPerBuffer: framesPerBuffer}
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *testBackend) Close() error { return nil }

func (b *testBackend) lastStream() *testStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

type testStream struct {
	cb              audiodev.StreamCallback
	onError         func(error)
	framesPerBuffer int

	mu      sync.Mutex
	started bool
}

func (s *testStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *testStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *testStream) Close() error { return nil }

func (s *testStream) push(buf audiodev.Buffer) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if started {
		s.cb(buf)
	}
}

// fail reports a runtime stream fault the way a host API would.
func (s *testStream) fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *testStream) isStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testMic() audiodev.Endpoint {
	return audiodev.Endpoint{
		ID: "dev-mic", UID: "uid-mic", Name: "Microphone",
		Kind: audiodev.KindInput, IsDefault: true,
		NativeFormat: audiodev.StreamFormat{
			SampleRate: 16000, Channels: 1,
			SampleType: audiodev.SampleF32, Interleaved: true,
		},
	}
}

func testSpeaker() audiodev.Endpoint {
	return audiodev.Endpoint{
		ID: "dev-spk", UID: "uid-spk", Name: "Speakers",
		Kind: audiodev.KindOutput, IsDefault: true,
		NativeFormat: audiodev.StreamFormat{
			SampleRate: 48000, Channels: 2,
			SampleType: audiodev.SampleF32, Interleaved: true,
		},
	}
}

func newTestController(t *testing.T, backend *testBackend, chunks chan types.AudioChunk) *Controller {
	t.Helper()
	cfg := ControllerConfig{
		Catalog: audiodev.NewCatalog(backend, ""),
		Backend: backend,
	}
	if chunks != nil {
		cfg.OnChunk = func(c types.AudioChunk) { chunks <- c }
	}
	return NewController(cfg)
}

func TestControllerStartStop(t *testing.T) {
	backend := newTestBackend(testMic(), testSpeaker())
	backend.loopback["dev-spk"] = "dev-spk-monitor"
	chunks := make(chan types.AudioChunk, 64)
	c := newTestController(t, backend, chunks)

	// Empty selection captures the default output.
	if err := c.Start(context.Background(), StartConfig{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	status := c.Status()
	if status.State != "running" {
		t.Fatalf("State = %q, want running", status.State)
	}
	if status.ActiveEndpointUID != "uid-spk" {
		t.Errorf("ActiveEndpointUID = %q, want uid-spk", status.ActiveEndpointUID)
	}
	if status.SampleRate != PipelineRate {
		t.Errorf("SampleRate = %d, want %d", status.SampleRate, PipelineRate)
	}

	// Drive enough stereo 48 kHz audio through the stream for one chunk.
	stream := backend.lastStream()
	for i := 0; i < 3; i++ {
		stream.push(audiodev.Buffer{F32: voicedFrames(2400, 2)})
	}
	select {
	case chunk := <-chunks:
		if chunk.DeviceID != "uid-spk" {
			t.Errorf("chunk DeviceID = %q, want uid-spk", chunk.DeviceID)
		}
	case <-time.After(time.Second):
		t.Fatal("no chunk emitted")
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := c.Status().State; got != "idle" {
		t.Errorf("State after Stop = %q, want idle", got)
	}
}

func TestControllerBusy(t *testing.T) {
	backend := newTestBackend(testMic())
	c := newTestController(t, backend, nil)

	if err := c.Start(context.Background(), StartConfig{InputSelector: "uid-mic"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop(context.Background())

	if err := c.Start(context.Background(), StartConfig{InputSelector: "uid-mic"}); !errors.Is(err, ErrBusy) {
		t.Errorf("second Start() error = %v, want ErrBusy", err)
	}
}

func TestControllerStopIdempotent(t *testing.T) {
	c := newTestController(t, newTestBackend(testMic()), nil)
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("Stop() on idle controller error = %v", err)
	}
}

func TestControllerUnknownSelector(t *testing.T) {
	c := newTestController(t, newTestBackend(testMic()), nil)

	err := c.Start(context.Background(), StartConfig{OutputSelector: "no-such-device"})
	if !errors.Is(err, ErrEndpointUnknown) {
		t.Fatalf("Start() error = %v, want ErrEndpointUnknown", err)
	}

	status := c.Status()
	if status.State != "failed" {
		t.Errorf("State = %q, want failed", status.State)
	}
	if status.FaultKind != "endpoint-unknown" {
		t.Errorf("FaultKind = %q, want endpoint-unknown", status.FaultKind)
	}

	// A failed session must not block the next attempt.
	if err := c.Start(context.Background(), StartConfig{InputSelector: "uid-mic"}); err != nil {
		t.Fatalf("Start() after failure error = %v", err)
	}
	c.Stop(context.Background())
}

func TestControllerWrongKindSelector(t *testing.T) {
	backend := newTestBackend(testMic(), testSpeaker())
	c := newTestController(t, backend, nil)

	err := c.Start(context.Background(), StartConfig{InputSelector: "uid-spk"})
	if !errors.Is(err, audiodev.ErrEndpointUnsuitable) {
		t.Errorf("Start() error = %v, want ErrEndpointUnsuitable", err)
	}
}

func TestControllerReconfigure(t *testing.T) {
	backend := newTestBackend(testMic(), testSpeaker())
	backend.loopback["dev-spk"] = "dev-spk-monitor"
	c := newTestController(t, backend, nil)

	if err := c.Start(context.Background(), StartConfig{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := c.Reconfigure(context.Background(), StartConfig{InputSelector: "uid-mic"}); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	defer c.Stop(context.Background())

	status := c.Status()
	if status.State != "running" {
		t.Fatalf("State = %q, want running", status.State)
	}
	if status.ActiveEndpointUID != "uid-mic" {
		t.Errorf("ActiveEndpointUID = %q, want uid-mic", status.ActiveEndpointUID)
	}
}

func TestControllerDestroysEphemeralOnStop(t *testing.T) {
	// No loopback route, so the output capture builds an aggregate.
	backend := newTestBackend(testSpeaker())
	c := newTestController(t, backend, nil)

	if err := c.Start(context.Background(), StartConfig{OutputSelector: "uid-spk"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	uid := c.ActiveAggregateUID()
	if !strings.HasPrefix(uid, audiodev.DefaultProvenancePrefix) {
		t.Fatalf("aggregate uid %q missing provenance prefix", uid)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	backend.mu.Lock()
	destroyed := len(backend.destroyed)
	backend.mu.Unlock()
	if destroyed == 0 {
		t.Error("ephemeral aggregate not destroyed on stop")
	}
}

func TestControllerStopDuringStarting(t *testing.T) {
	backend := newTestBackend(testMic())
	backend.openGate = make(chan struct{})
	c := newTestController(t, backend, nil)

	startDone := make(chan error, 1)
	go func() {
		startDone <- c.Start(context.Background(), StartConfig{InputSelector: "uid-mic"})
	}()
	waitFor(t, "starting state", func() bool { return c.Status().State == "starting" })

	// Stop arrives while Start is still assembling; the new session must
	// be rolled back instead of running unowned.
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() during starting error = %v", err)
	}
	close(backend.openGate)

	if err := <-startDone; err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := c.Status().State; got != "idle" {
		t.Fatalf("state after stop-during-starting = %q, want idle", got)
	}
	if stream := backend.lastStream(); stream != nil && stream.isStarted() {
		t.Error("rolled-back session left its stream running")
	}
}

func TestControllerRuntimeFaultFailsSession(t *testing.T) {
	backend := newTestBackend(testMic())
	c := newTestController(t, backend, nil)

	if err := c.Start(context.Background(), StartConfig{InputSelector: "uid-mic"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stream := backend.lastStream()

	stream.fail(errors.New("device unplugged"))
	waitFor(t, "failed state", func() bool { return c.Status().State == "failed" })

	status := c.Status()
	if status.FaultKind != "capture-fault" {
		t.Errorf("FaultKind = %q, want capture-fault", status.FaultKind)
	}
	if status.FaultMessage == "" {
		t.Error("FaultMessage empty after capture fault")
	}
	waitFor(t, "stream teardown", func() bool { return !stream.isStarted() })

	// A faulted session must not block the next attempt.
	if err := c.Start(context.Background(), StartConfig{InputSelector: "uid-mic"}); err != nil {
		t.Fatalf("Start() after fault error = %v", err)
	}
	c.Stop(context.Background())
}

func TestControllerSessionOverrides(t *testing.T) {
	backend := newTestBackend(testMic())
	c := newTestController(t, backend, nil)

	err := c.Start(context.Background(), StartConfig{
		InputSelector: "uid-mic",
		Overrides: Overrides{
			PipelineRate:       8000,
			EmitInterval:       50 * time.Millisecond,
			WindowSeconds:      2,
			TranscribeInterval: 400 * time.Millisecond,
			MinVoicedSeconds:   1,
			VoiceThreshold:     0.5,
			OverlapSeconds:     0.5,
			FramesPerBuffer:    1024,
		},
	})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop(context.Background())

	if got := c.Status().SampleRate; got != 8000 {
		t.Errorf("SampleRate = %d, want 8000", got)
	}

	c.mu.RLock()
	proc := c.current.proc
	c.mu.RUnlock()
	if proc.emitSamples != 400 {
		t.Errorf("emitSamples = %d, want 400", proc.emitSamples)
	}
	if proc.windowSamples != 16000 {
		t.Errorf("windowSamples = %d, want 16000", proc.windowSamples)
	}
	if proc.transcribeSamples != 3200 {
		t.Errorf("transcribeSamples = %d, want 3200", proc.transcribeSamples)
	}
	if proc.minVoicedSamples != 8000 {
		t.Errorf("minVoicedSamples = %d, want 8000", proc.minVoicedSamples)
	}
	if proc.overlapSamples != 4000 {
		t.Errorf("overlapSamples = %d, want 4000", proc.overlapSamples)
	}
	if proc.cfg.VoiceThreshold != 0.5 {
		t.Errorf("VoiceThreshold = %v, want 0.5", proc.cfg.VoiceThreshold)
	}
	if stream := backend.lastStream(); stream.framesPerBuffer != 1024 {
		t.Errorf("framesPerBuffer = %d, want 1024", stream.framesPerBuffer)
	}
}

func TestControllerStopSuppressesInflightResult(t *testing.T) {
	backend := newTestBackend(testMic())
	block := make(chan struct{})
	tr := &fakeTranscriber{text: "late arrival", block: block}

	var chunkHold atomic.Bool
	chunkGate := make(chan struct{})
	results := make(chan types.TranscriptionResult, 4)
	c := NewController(ControllerConfig{
		Catalog:     audiodev.NewCatalog(backend, ""),
		Backend:     backend,
		Transcriber: tr,
		DrainGrace:  2 * time.Second,
		OnChunk: func(types.AudioChunk) {
			if chunkHold.Load() {
				<-chunkGate
			}
		},
		OnTranscript: func(r types.TranscriptionResult) { results <- r },
	})

	if err := c.Start(context.Background(), StartConfig{InputSelector: "uid-mic"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.mu.RLock()
	proc := c.current.proc
	c.mu.RUnlock()

	stream := backend.lastStream()
	for i := 0; i < 20; i++ { // two seconds, enough for a voiced dispatch
		stream.push(audiodev.Buffer{F32: voicedFrames(1600, 1)})
	}
	waitFor(t, "transcription dispatch", func() bool { return tr.callCount() == 1 })

	// Stall the drain so the suppression flag must be raised before the
	// processor goroutine finishes, not after.
	chunkHold.Store(true)
	stream.push(audiodev.Buffer{F32: voicedFrames(1600, 1)})

	stopDone := make(chan error, 1)
	go func() { stopDone <- c.Stop(context.Background()) }()
	waitFor(t, "suppression flag", func() bool { return proc.stopped.Load() })

	close(block) // the in-flight transcription completes now
	proc.WaitInflight(time.Second)
	close(chunkGate)

	if err := <-stopDone; err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	select {
	case r := <-results:
		t.Errorf("in-flight result surfaced after stop: %q", r.Text)
	default:
	}
}

func TestControllerReclaimsLeakedAtConstruction(t *testing.T) {
	leaked := audiodev.Endpoint{
		ID:   "agg-old",
		UID:  audiodev.DefaultProvenancePrefix + "stale",
		Name: "Enteract Capture stale",
		Kind: audiodev.KindAggregate,
		NativeFormat: audiodev.StreamFormat{
			SampleRate: 48000, Channels: 2,
			SampleType: audiodev.SampleF32, Interleaved: true,
		},
	}
	backend := newTestBackend(testMic(), leaked)
	newTestController(t, backend, nil)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.destroyed) != 1 || backend.destroyed[0] != "agg-old" {
		t.Errorf("destroyed = %v, want [agg-old]", backend.destroyed)
	}
}
