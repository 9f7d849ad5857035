package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.enteract.dev/enteract/audiodev"
	"go.enteract.dev/enteract/internal/types"
)

var (
	// ErrBusy is returned when a session operation conflicts with one
	// already in progress.
	ErrBusy = errors.New("capture session already active")
	// ErrEndpointUnknown is returned when a selector resolves to nothing.
	ErrEndpointUnknown = errors.New("unknown audio endpoint")
)

// State is the session lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// DefaultDrainGrace bounds how long Stop waits for queued audio and the
// in-flight transcription before tearing the device down.
const DefaultDrainGrace = 250 * time.Millisecond

// Overrides tunes one session's pipeline away from the defaults. Zero
// fields keep the defaults.
type Overrides struct {
	PipelineRate       int
	EmitInterval       time.Duration
	WindowSeconds      float64
	TranscribeInterval time.Duration
	MinVoicedSeconds   float64
	VoiceThreshold     float64
	OverlapSeconds     float64
	FramesPerBuffer    int
}

// StartConfig selects the sources for one capture session. Selectors are
// resolved through the catalog (uid, then id, then name). With both empty
// the default output endpoint is captured.
type StartConfig struct {
	InputSelector  string
	OutputSelector string
	Overrides      Overrides
}

// ControllerConfig wires a Controller to its collaborators.
type ControllerConfig struct {
	Catalog *audiodev.Catalog
	Backend audiodev.Backend

	Transcriber  Transcriber
	OnChunk      func(types.AudioChunk)
	OnTranscript func(types.TranscriptionResult)

	ProvenancePrefix string
	FramesPerBuffer  int
	DrainGrace       time.Duration
}

type session struct {
	id      string
	device  *audiodev.VirtualDevice
	loop    *Loop
	proc    *Processor
	cancel  context.CancelFunc
	runDone chan struct{}
}

// Controller owns the capture session lifecycle: at most one session exists
// at a time, and every path out of a session destroys its virtual device.
type Controller struct {
	cfg     ControllerConfig
	janitor *audiodev.Janitor

	mu            sync.RWMutex
	state         State
	current       *session
	stopRequested bool
	faultKind     string
	faultMessage  string
}

// NewController creates a controller and reclaims any virtual devices a
// previous process left behind.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.ProvenancePrefix == "" {
		cfg.ProvenancePrefix = audiodev.DefaultProvenancePrefix
	}
	if cfg.FramesPerBuffer == 0 {
		cfg.FramesPerBuffer = 4096
	}
	if cfg.DrainGrace == 0 {
		cfg.DrainGrace = DefaultDrainGrace
	}

	c := &Controller{
		cfg:     cfg,
		janitor: audiodev.NewJanitor(cfg.Backend, cfg.ProvenancePrefix),
		state:   StateIdle,
	}
	if n, err := c.janitor.ReclaimLeaked(""); err != nil {
		slog.Warn("startup device reclaim failed", "error", err)
	} else if n > 0 {
		slog.Info("reclaimed devices from previous run", "count", n)
	}
	return c
}

// SetTranscriber swaps the recognizer. Only allowed while no session runs.
func (c *Controller) SetTranscriber(t Transcriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle && c.state != StateFailed {
		return ErrBusy
	}
	c.cfg.Transcriber = t
	return nil
}

// Start resolves the selected endpoints, assembles a virtual capture
// device, and runs the processing pipeline. Returns ErrBusy if a session
// is already active. A Stop issued while Start is in flight wins: the new
// session is rolled back and the controller returns to idle.
func (c *Controller) Start(ctx context.Context, start StartConfig) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateFailed {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateStarting
	c.stopRequested = false
	c.faultKind, c.faultMessage = "", ""
	c.mu.Unlock()

	sess, err := c.startSession(ctx, start)

	c.mu.Lock()
	stopReq := c.stopRequested
	c.stopRequested = false
	if err != nil {
		if stopReq {
			c.state = StateIdle
		} else {
			c.state = StateFailed
			c.faultKind = faultKindFor(err)
			c.faultMessage = err.Error()
		}
		c.mu.Unlock()
		return err
	}
	if stopReq {
		c.state = StateStopping
		c.mu.Unlock()
		if terr := c.teardown(sess); terr != nil {
			slog.Warn("teardown after stop-during-start failed", "session", sess.id, "error", terr)
		}
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		slog.Info("capture session stopped during start", "session", sess.id)
		return nil
	}
	c.current = sess
	c.state = StateRunning
	c.mu.Unlock()
	slog.Info("capture session started",
		"session", sess.id,
		"endpoint", sess.device.SourceUID(),
		"ephemeral", sess.device.Ephemeral)
	return nil
}

func (c *Controller) startSession(ctx context.Context, start StartConfig) (*session, error) {
	input, output, err := c.resolveEndpoints(start)
	if err != nil {
		return nil, err
	}

	sess := &session{
		id:      uuid.NewString(),
		runDone: make(chan struct{}),
	}

	framesPerBuffer := start.Overrides.FramesPerBuffer
	if framesPerBuffer == 0 {
		framesPerBuffer = c.cfg.FramesPerBuffer
	}

	device, err := audiodev.Assemble(c.cfg.Backend, audiodev.AssembleConfig{
		SessionID:       sess.id,
		Input:           input,
		Output:          output,
		Prefix:          c.cfg.ProvenancePrefix,
		FramesPerBuffer: framesPerBuffer,
	})
	if err != nil {
		return nil, err
	}
	sess.device = device

	sess.loop = NewLoop(device.NegotiatedFormat())
	sess.proc = NewProcessor(ProcessorConfig{
		DeviceUID:          device.SourceUID(),
		SourceFormat:       device.NegotiatedFormat(),
		PipelineRate:       start.Overrides.PipelineRate,
		EmitInterval:       start.Overrides.EmitInterval,
		WindowSeconds:      start.Overrides.WindowSeconds,
		TranscribeInterval: start.Overrides.TranscribeInterval,
		MinVoicedSeconds:   start.Overrides.MinVoicedSeconds,
		VoiceThreshold:     start.Overrides.VoiceThreshold,
		OverlapSeconds:     start.Overrides.OverlapSeconds,
		Transcriber:        c.cfg.Transcriber,
		OnChunk:            c.cfg.OnChunk,
		OnTranscript:       c.cfg.OnTranscript,
	})

	// The session outlives the Start call; its lifetime is bound to Stop,
	// not to the caller's context.
	runCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel
	go func() {
		defer close(sess.runDone)
		sess.proc.Run(runCtx, sess.loop)
	}()

	onError := func(streamErr error) {
		// Stream fault callbacks may arrive on the platform's audio
		// thread; the teardown must not run there.
		go c.handleFault(sess, streamErr)
	}
	if err := sess.device.Start(sess.loop.Callback, onError); err != nil {
		cancel()
		<-sess.runDone
		if derr := sess.device.Destroy(); derr != nil {
			slog.Warn("failed to destroy device after start failure", "error", derr)
		}
		return nil, err
	}
	return sess, nil
}

func (c *Controller) resolveEndpoints(start StartConfig) (input, output *audiodev.Endpoint, err error) {
	if start.InputSelector != "" {
		ep, ok := c.cfg.Catalog.Find(start.InputSelector)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrEndpointUnknown, start.InputSelector)
		}
		if ep.Kind != audiodev.KindInput {
			return nil, nil, fmt.Errorf("%w: %q is not an input", audiodev.ErrEndpointUnsuitable, start.InputSelector)
		}
		input = &ep
	}
	if start.OutputSelector != "" {
		ep, ok := c.cfg.Catalog.Find(start.OutputSelector)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrEndpointUnknown, start.OutputSelector)
		}
		if ep.Kind != audiodev.KindOutput {
			return nil, nil, fmt.Errorf("%w: %q is not an output", audiodev.ErrEndpointUnsuitable, start.OutputSelector)
		}
		output = &ep
	}
	if input == nil && output == nil {
		ep, ok := c.cfg.Catalog.Default(audiodev.KindOutput)
		if !ok {
			return nil, nil, fmt.Errorf("%w: no default output", ErrEndpointUnknown)
		}
		output = &ep
	}
	return input, output, nil
}

func faultKindFor(err error) string {
	switch {
	case errors.Is(err, ErrEndpointUnknown):
		return "endpoint-unknown"
	case errors.Is(err, audiodev.ErrEndpointUnsuitable):
		return "endpoint-unsuitable"
	case errors.Is(err, audiodev.ErrDeviceStartFailed):
		return "device-start-failed"
	case errors.Is(err, audiodev.ErrCatalogUnavailable):
		return "catalog-unavailable"
	}
	return "internal"
}

// teardown winds a detached session down: unhook the device so no new
// frames arrive, suppress any result still in flight, drain what the
// callback already queued, then destroy the virtual device.
func (c *Controller) teardown(sess *session) error {
	if err := sess.device.Stop(); err != nil {
		slog.Warn("stream stop failed", "session", sess.id, "error", err)
	}
	sess.loop.CloseIntake()
	sess.proc.Stop()
	sess.cancel()

	select {
	case <-sess.runDone:
	case <-time.After(c.cfg.DrainGrace):
		slog.Warn("processor drain exceeded grace period", "session", sess.id)
	}
	sess.proc.WaitInflight(c.cfg.DrainGrace)

	err := sess.device.Destroy()
	if _, jerr := c.janitor.ReclaimLeaked(""); jerr != nil {
		slog.Warn("post-session device reclaim failed", "error", jerr)
	}
	return err
}

// handleFault moves a running session to failed after an unrecoverable
// stream error. Late callbacks for a session that already stopped are
// ignored.
func (c *Controller) handleFault(sess *session, streamErr error) {
	c.mu.Lock()
	if c.current != sess {
		c.mu.Unlock()
		return
	}
	c.current = nil
	c.state = StateFailed
	c.faultKind = "capture-fault"
	c.faultMessage = streamErr.Error()
	c.mu.Unlock()

	slog.Error("capture fault", "session", sess.id, "error", streamErr)
	if err := c.teardown(sess); err != nil {
		slog.Warn("teardown after capture fault failed", "session", sess.id, "error", err)
	}
}

// Stop ends the session: a running session is torn down, a session still
// starting is flagged so the concurrent Start rolls it back. Idempotent.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateStarting:
		c.stopRequested = true
		c.mu.Unlock()
		return nil
	case StateRunning:
	default:
		c.mu.Unlock()
		return nil
	}
	sess := c.current
	c.current = nil
	c.state = StateStopping
	c.mu.Unlock()

	err := c.teardown(sess)

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()

	slog.Info("capture session stopped",
		"session", sess.id,
		"droppedFrames", sess.loop.Dropped(),
		"displacedWindows", sess.proc.Displaced())
	return err
}

// Reconfigure stops the active session, if any, and starts a new one with
// the given selection.
func (c *Controller) Reconfigure(ctx context.Context, start StartConfig) error {
	if err := c.Stop(ctx); err != nil {
		return fmt.Errorf("stop previous session: %w", err)
	}
	return c.Start(ctx, start)
}

// Status reports the session state and pipeline counters.
func (c *Controller) Status() types.SessionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := types.SessionStatus{
		State:        c.state.String(),
		FaultKind:    c.faultKind,
		FaultMessage: c.faultMessage,
	}
	if c.current != nil {
		status.ActiveEndpointUID = c.current.device.SourceUID()
		status.SampleRate = c.current.proc.cfg.PipelineRate
		status.DroppedFrames = c.current.loop.Dropped()
		status.DisplacedWindows = c.current.proc.Displaced()
		status.LastChunkTime = c.current.proc.LastChunkMillis()
		status.LastTranscript = c.current.proc.LastTranscriptMillis()
	}
	return status
}

// SessionID returns the running session's id, empty when idle.
func (c *Controller) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.id
}

// ActiveAggregateUID returns the provenance uid of the running session's
// aggregate device, empty when none applies.
func (c *Controller) ActiveAggregateUID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return ""
	}
	return c.current.device.AggregateUID()
}

// Shutdown stops any running session and reclaims leaked devices. Called
// once at application exit.
func (c *Controller) Shutdown(ctx context.Context) error {
	err := c.Stop(ctx)
	if _, jerr := c.janitor.ReclaimLeaked(""); jerr != nil && err == nil {
		err = jerr
	}
	return err
}
