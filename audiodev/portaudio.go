//go:build cgo

package audiodev

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend over PortAudio. PortAudio has no
// aggregate-device construction, so mixed mic+output capture is reported
// unsuitable here; output loopback is available where the host exposes a
// monitor capture device for the output.
type PortAudioBackend struct {
	mu      sync.Mutex
	devices map[string]*portaudio.DeviceInfo
}

// NewPortAudioBackend initializes PortAudio and returns the backend.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}
	return &PortAudioBackend{devices: make(map[string]*portaudio.DeviceInfo)}, nil
}

// deviceUID builds a persistent identifier from the host API and device
// name, which survive reboots unlike PortAudio's device indices.
func deviceUID(d *portaudio.DeviceInfo) string {
	host := "unknown"
	if d.HostApi != nil {
		host = strings.ToLower(strings.ReplaceAll(d.HostApi.Name, " ", "-"))
	}
	return "pa:" + host + ":" + d.Name
}

// Endpoints enumerates the PortAudio device directory. Duplex devices
// yield one endpoint per direction.
func (b *PortAudioBackend) Endpoints() ([]Endpoint, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	defaultIn, _ := portaudio.DefaultInputDevice()
	defaultOut, _ := portaudio.DefaultOutputDevice()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.devices = make(map[string]*portaudio.DeviceInfo, len(devices))

	var eps []Endpoint
	for i, d := range devices {
		uid := deviceUID(d)
		if d.MaxInputChannels > 0 {
			id := fmt.Sprintf("pa-%d-in", i)
			b.devices[id] = d
			eps = append(eps, Endpoint{
				ID:        id,
				UID:       uid + ":in",
				Name:      d.Name,
				Kind:      KindInput,
				IsDefault: d == defaultIn,
				NativeFormat: StreamFormat{
					SampleRate:  int(d.DefaultSampleRate),
					Channels:    clampChannels(d.MaxInputChannels),
					SampleType:  SampleF32,
					Interleaved: true,
				},
			})
		}
		if d.MaxOutputChannels > 0 {
			id := fmt.Sprintf("pa-%d-out", i)
			b.devices[id] = d
			ep := Endpoint{
				ID:        id,
				UID:       uid + ":out",
				Name:      d.Name,
				Kind:      KindOutput,
				IsDefault: d == defaultOut,
				NativeFormat: StreamFormat{
					SampleRate:  int(d.DefaultSampleRate),
					Channels:    clampChannels(d.MaxOutputChannels),
					SampleType:  SampleF32,
					Interleaved: true,
				},
			}
			if _, _, ok := b.findMonitorLocked(devices, d); ok {
				ep.SupportsLoopback = true
			}
			eps = append(eps, ep)
		}
	}
	return eps, nil
}

// clampChannels keeps virtual many-channel devices from negotiating absurd
// layouts; two channels is the most any downstream consumer uses.
func clampChannels(n int) int {
	if n > 2 {
		return 2
	}
	return n
}

// findMonitorLocked locates the capture device that mirrors an output's
// rendered audio: PulseAudio "Monitor of X" sources, WASAPI loopback
// endpoints, and Windows "Stereo Mix".
func (b *PortAudioBackend) findMonitorLocked(devices []*portaudio.DeviceInfo, out *portaudio.DeviceInfo) (*portaudio.DeviceInfo, int, bool) {
	outName := strings.ToLower(out.Name)
	for i, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		name := strings.ToLower(d.Name)
		switch {
		case strings.HasPrefix(name, "monitor of ") && strings.Contains(name, outName):
			return d, i, true
		case strings.Contains(name, outName) && strings.Contains(name, "loopback"):
			return d, i, true
		case strings.Contains(name, "stereo mix"):
			return d, i, true
		}
	}
	return nil, 0, false
}

// LoopbackSource resolves an output endpoint to its monitor capture device.
func (b *PortAudioBackend) LoopbackSource(output Endpoint) (string, StreamFormat, bool) {
	devices, err := portaudio.Devices()
	if err != nil {
		return "", StreamFormat{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	out, ok := b.devices[output.ID]
	if !ok {
		return "", StreamFormat{}, false
	}
	mon, idx, ok := b.findMonitorLocked(devices, out)
	if !ok {
		return "", StreamFormat{}, false
	}

	id := fmt.Sprintf("pa-%d-in", idx)
	b.devices[id] = mon
	return id, StreamFormat{
		SampleRate:  int(mon.DefaultSampleRate),
		Channels:    clampChannels(mon.MaxInputChannels),
		SampleType:  SampleF32,
		Interleaved: true,
	}, true
}

// CreateAggregate is not supported by PortAudio.
func (b *PortAudioBackend) CreateAggregate(spec AggregateSpec) (Endpoint, error) {
	return Endpoint{}, ErrAggregateUnsupported
}

// DestroyAggregate is a no-op; this backend never creates aggregates.
func (b *PortAudioBackend) DestroyAggregate(id string) error { return nil }

// OpenStream opens a float32 capture stream on the device. PortAudio
// surfaces failures synchronously from Start/Stop, so onError is never
// invoked by this backend.
func (b *PortAudioBackend) OpenStream(deviceID string, format StreamFormat, framesPerBuffer int, cb StreamCallback, onError func(error)) (Stream, error) {
	b.mu.Lock()
	device, ok := b.devices[deviceID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown device: %s", deviceID)
	}
	if framesPerBuffer <= 0 {
		framesPerBuffer = 512
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = framesPerBuffer

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		cb(Buffer{F32: in})
	})
	if err != nil {
		return nil, fmt.Errorf("open stream on %q: %w", device.Name, err)
	}
	return &paStream{stream: stream}, nil
}

// Close terminates PortAudio.
func (b *PortAudioBackend) Close() error {
	return portaudio.Terminate()
}

type paStream struct {
	stream *portaudio.Stream
}

func (s *paStream) Start() error { return s.stream.Start() }
func (s *paStream) Stop() error  { return s.stream.Stop() }
func (s *paStream) Close() error { return s.stream.Close() }
