// Package audiodev provides audio endpoint discovery and virtual capture
// device assembly on top of a platform backend.
package audiodev

import "errors"

// DefaultProvenancePrefix tags the uid of every virtual device this
// application creates. The janitor only ever destroys devices whose uid
// starts with this prefix.
const DefaultProvenancePrefix = "enteract-vcap-"

// ErrCatalogUnavailable is returned when endpoint enumeration failed and
// the catalog holds no usable snapshot.
var ErrCatalogUnavailable = errors.New("audiodev: endpoint catalog unavailable")

// ErrEndpointUnsuitable is returned when no virtual device satisfying the
// requested configuration can be assembled.
var ErrEndpointUnsuitable = errors.New("audiodev: endpoint unsuitable for requested capture")

// ErrDeviceStartFailed is returned when the backing device refused to start.
var ErrDeviceStartFailed = errors.New("audiodev: device start failed")

// ErrAggregateUnsupported is returned by backends that cannot build
// aggregate devices.
var ErrAggregateUnsupported = errors.New("audiodev: aggregate devices not supported by backend")

// Kind classifies an endpoint.
type Kind int

const (
	KindInput Kind = iota
	KindOutput
	KindAggregate
)

// String returns the wire name used in frontend payloads.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindOutput:
		return "output"
	case KindAggregate:
		return "virtual-aggregate"
	default:
		return "unknown"
	}
}

// SampleType identifies the native sample encoding of a stream.
type SampleType int

const (
	SampleF32 SampleType = iota
	SampleI16
	SampleI32
)

// String returns the wire name used in frontend payloads.
func (t SampleType) String() string {
	switch t {
	case SampleF32:
		return "f32"
	case SampleI16:
		return "i16"
	case SampleI32:
		return "i32"
	default:
		return "unknown"
	}
}

// StreamFormat describes the native PCM format of an endpoint.
type StreamFormat struct {
	SampleRate  int
	Channels    int
	SampleType  SampleType
	Interleaved bool
}

// Endpoint is a logical audio device exposed by the host.
type Endpoint struct {
	// ID is the backend-assigned identifier, stable for the process
	// lifetime only.
	ID string
	// UID is the persistent textual identifier, unique across the catalog.
	UID string
	// Name is the human-readable label.
	Name string

	Kind         Kind
	IsDefault    bool
	NativeFormat StreamFormat

	// SupportsLoopback reports whether this endpoint can deliver, as
	// capture, the audio routed to an output.
	SupportsLoopback bool

	// EphemeralCandidate marks aggregates that carry this application's
	// provenance prefix and may be reclaimed by the janitor.
	EphemeralCandidate bool
}
