//go:build !cgo

package audiodev

import "errors"

// errPortAudioUnavailable reports that the PortAudio backend was compiled
// out because cgo is disabled; see portaudio.go for the real implementation.
var errPortAudioUnavailable = errors.New("portaudio backend unavailable: built without cgo")

// PortAudioBackend is a placeholder when cgo is disabled. Every operation
// fails with errPortAudioUnavailable.
type PortAudioBackend struct{}

func NewPortAudioBackend() (*PortAudioBackend, error) {
	return nil, errPortAudioUnavailable
}

func (b *PortAudioBackend) Endpoints() ([]Endpoint, error) {
	return nil, errPortAudioUnavailable
}

func (b *PortAudioBackend) LoopbackSource(output Endpoint) (string, StreamFormat, bool) {
	return "", StreamFormat{}, false
}

func (b *PortAudioBackend) CreateAggregate(spec AggregateSpec) (Endpoint, error) {
	return Endpoint{}, errPortAudioUnavailable
}

func (b *PortAudioBackend) DestroyAggregate(id string) error { return nil }

func (b *PortAudioBackend) OpenStream(deviceID string, format StreamFormat, framesPerBuffer int, cb StreamCallback, onError func(error)) (Stream, error) {
	return nil, errPortAudioUnavailable
}

func (b *PortAudioBackend) Close() error { return nil }
