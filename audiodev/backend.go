package audiodev

// Buffer carries one callback's worth of frames in the device's native
// interleaved layout. Exactly one slice is set, matching the stream's
// sample type. The slices are only valid for the duration of the callback.
type Buffer struct {
	F32 []float32
	I16 []int16
	I32 []int32
}

// Frames returns the number of interleaved frames in the buffer.
func (b Buffer) Frames(channels int) int {
	if channels <= 0 {
		return 0
	}
	switch {
	case b.F32 != nil:
		return len(b.F32) / channels
	case b.I16 != nil:
		return len(b.I16) / channels
	case b.I32 != nil:
		return len(b.I32) / channels
	}
	return 0
}

// StreamCallback receives frames on the platform's real-time thread. It
// must not block, allocate, or call back into the backend.
type StreamCallback func(buf Buffer)

// Stream is a started or startable capture stream on a backing device.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// AggregateSpec describes an aggregate device to be built by the backend.
type AggregateSpec struct {
	Name string
	// UID must carry the application's provenance prefix so the janitor
	// can identify the device later.
	UID string
	// SubEndpointIDs lists the composed endpoints, inputs first.
	SubEndpointIDs []string
	// TapOutputs requests a process-audio tap on composed output endpoints.
	TapOutputs bool
	// SampleRate is the requested common clock rate; zero lets the
	// backend negotiate.
	SampleRate int
}

// Backend is the platform audio-device directory. It is the only layer
// that talks to host audio APIs; everything above it is platform-agnostic.
type Backend interface {
	// Endpoints enumerates all usable endpoints. Devices with zero usable
	// streams are omitted.
	Endpoints() ([]Endpoint, error)

	// LoopbackSource resolves an output endpoint to the capture device
	// that delivers its rendered audio, when the platform exposes one.
	LoopbackSource(output Endpoint) (deviceID string, format StreamFormat, ok bool)

	// CreateAggregate builds a virtual aggregate device. Backends without
	// aggregate support return ErrAggregateUnsupported.
	CreateAggregate(spec AggregateSpec) (Endpoint, error)

	// DestroyAggregate deletes an aggregate device by id. Destroying an
	// already-removed device is not an error.
	DestroyAggregate(id string) error

	// OpenStream opens a capture stream on the device. framesPerBuffer is
	// a hint; the callback may receive a different frame count. onError,
	// when non-nil, receives unrecoverable runtime stream faults; it may
	// be invoked from any thread and must not block.
	OpenStream(deviceID string, format StreamFormat, framesPerBuffer int, cb StreamCallback, onError func(error)) (Stream, error)

	// Close releases the backend.
	Close() error
}
