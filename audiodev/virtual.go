package audiodev

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// LifecycleState tracks a virtual device through its session.
type LifecycleState int

const (
	StateCreated LifecycleState = iota
	StateStarted
	StateStopped
	StateDestroyed
)

// AssembleConfig selects the sources a virtual capture device must expose.
// At least one of Input/Output must be set. Output selects loopback of
// that endpoint's rendered audio; Input+Output selects a mixed capture.
type AssembleConfig struct {
	SessionID       string
	Input           *Endpoint
	Output          *Endpoint
	Prefix          string // provenance prefix for ephemeral aggregates
	FramesPerBuffer int
}

// VirtualDevice composes one or more endpoints into a single clocked pull
// source delivering interleaved frames in a known format.
type VirtualDevice struct {
	SessionID string
	Composed  []Endpoint
	// Ephemeral is set when this core created the backing device and must
	// destroy it on teardown.
	Ephemeral bool

	backend      Backend
	openDeviceID string
	aggregate    *Endpoint
	format       StreamFormat
	frames       int

	mu     sync.Mutex
	state  LifecycleState
	stream Stream
}

// Assemble chooses or builds a backing device satisfying the config. It
// never substitutes a different endpoint: if the requested source cannot
// be captured, it fails with ErrEndpointUnsuitable.
func Assemble(backend Backend, cfg AssembleConfig) (*VirtualDevice, error) {
	if cfg.Input == nil && cfg.Output == nil {
		return nil, fmt.Errorf("%w: no endpoint selected", ErrEndpointUnsuitable)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultProvenancePrefix
	}

	vd := &VirtualDevice{
		SessionID: cfg.SessionID,
		backend:   backend,
		frames:    cfg.FramesPerBuffer,
		state:     StateCreated,
	}

	switch {
	case cfg.Input != nil && cfg.Output == nil:
		// Single microphone input: bind directly.
		vd.Composed = []Endpoint{*cfg.Input}
		vd.openDeviceID = cfg.Input.ID
		vd.format = cfg.Input.NativeFormat

	case cfg.Input == nil && cfg.Output != nil:
		// System-output loopback: prefer the platform's render-loopback
		// route, fall back to an ephemeral aggregate with an output tap.
		if id, format, ok := backend.LoopbackSource(*cfg.Output); ok {
			vd.Composed = []Endpoint{*cfg.Output}
			vd.openDeviceID = id
			vd.format = format
			break
		}
		agg, err := createAggregate(backend, prefix, []Endpoint{*cfg.Output}, true)
		if err != nil {
			return nil, err
		}
		vd.Composed = []Endpoint{*cfg.Output}
		vd.openDeviceID = agg.ID
		vd.aggregate = &agg
		vd.format = agg.NativeFormat
		vd.Ephemeral = true

	default:
		// Microphone plus system output: always an ephemeral aggregate.
		agg, err := createAggregate(backend, prefix, []Endpoint{*cfg.Input, *cfg.Output}, true)
		if err != nil {
			return nil, err
		}
		vd.Composed = []Endpoint{*cfg.Input, *cfg.Output}
		vd.openDeviceID = agg.ID
		vd.aggregate = &agg
		vd.format = agg.NativeFormat
		vd.Ephemeral = true
	}

	return vd, nil
}

func createAggregate(backend Backend, prefix string, composed []Endpoint, tap bool) (Endpoint, error) {
	uid := prefix + uuid.NewString()
	spec := AggregateSpec{
		Name:       "Enteract Capture " + uid[len(prefix):len(prefix)+8],
		UID:        uid,
		TapOutputs: tap,
	}
	for _, ep := range composed {
		spec.SubEndpointIDs = append(spec.SubEndpointIDs, ep.ID)
	}

	agg, err := backend.CreateAggregate(spec)
	if err != nil {
		if errors.Is(err, ErrAggregateUnsupported) {
			return Endpoint{}, fmt.Errorf("%w: %v", ErrEndpointUnsuitable, err)
		}
		return Endpoint{}, fmt.Errorf("%w: create aggregate: %v", ErrEndpointUnsuitable, err)
	}
	slog.Info("created ephemeral aggregate device", "uid", agg.UID, "subdevices", len(spec.SubEndpointIDs))
	return agg, nil
}

// NegotiatedFormat returns the native format the stream will deliver.
func (vd *VirtualDevice) NegotiatedFormat() StreamFormat { return vd.format }

// SourceUID returns the uid of the primary composed endpoint, used for
// status reporting and chunk attribution.
func (vd *VirtualDevice) SourceUID() string {
	if len(vd.Composed) == 0 {
		return ""
	}
	return vd.Composed[0].UID
}

// AggregateUID returns the provenance uid of the backing aggregate, empty
// when the device binds an endpoint directly.
func (vd *VirtualDevice) AggregateUID() string {
	if vd.aggregate == nil {
		return ""
	}
	return vd.aggregate.UID
}

// Start opens and starts the capture stream, delivering frames to cb on
// the platform's real-time thread. onError, when non-nil, is invoked for
// unrecoverable runtime stream faults.
func (vd *VirtualDevice) Start(cb StreamCallback, onError func(error)) error {
	vd.mu.Lock()
	defer vd.mu.Unlock()

	if vd.state == StateDestroyed {
		return fmt.Errorf("%w: device destroyed", ErrDeviceStartFailed)
	}
	if vd.state == StateStarted {
		return nil
	}

	stream, err := vd.backend.OpenStream(vd.openDeviceID, vd.format, vd.frames, cb, onError)
	if err != nil {
		return fmt.Errorf("%w: open stream: %v", ErrDeviceStartFailed, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: %v", ErrDeviceStartFailed, err)
	}

	vd.stream = stream
	vd.state = StateStarted
	return nil
}

// Stop stops the capture stream. Safe to call in any state.
func (vd *VirtualDevice) Stop() error {
	vd.mu.Lock()
	defer vd.mu.Unlock()

	if vd.state != StateStarted {
		return nil
	}

	err := vd.stream.Stop()
	if cerr := vd.stream.Close(); err == nil {
		err = cerr
	}
	vd.stream = nil
	vd.state = StateStopped
	return err
}

// Destroy tears the device down. Idempotent; only ephemeral devices are
// actually deleted from the host directory.
func (vd *VirtualDevice) Destroy() error {
	vd.mu.Lock()
	if vd.state == StateDestroyed {
		vd.mu.Unlock()
		return nil
	}
	stream := vd.stream
	vd.stream = nil
	vd.state = StateDestroyed
	vd.mu.Unlock()

	if stream != nil {
		_ = stream.Stop()
		_ = stream.Close()
	}
	if vd.Ephemeral && vd.aggregate != nil {
		if err := vd.backend.DestroyAggregate(vd.aggregate.ID); err != nil {
			return fmt.Errorf("destroy aggregate %s: %w", vd.aggregate.UID, err)
		}
		slog.Info("destroyed ephemeral aggregate device", "uid", vd.aggregate.UID)
	}
	return nil
}
