package audiodev

import (
	"errors"
	"fmt"
	"sync"
)

// fakeBackend is an in-memory Backend for tests. Aggregate support is
// optional so both platform variants can be exercised.
type fakeBackend struct {
	mu         sync.Mutex
	endpoints  []Endpoint
	enumErr    error
	aggSupport bool
	aggSeq     int
	loopback   map[string]string // output endpoint id -> monitor device id
	destroyed  []string
	streams    []*fakeStream
}

func newFakeBackend(eps ...Endpoint) *fakeBackend {
	return &fakeBackend{
		endpoints:  eps,
		aggSupport: true,
		loopback:   make(map[string]string),
	}
}

func (f *fakeBackend) Endpoints() ([]Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	out := make([]Endpoint, len(f.endpoints))
	copy(out, f.endpoints)
	return out, nil
}

func (f *fakeBackend) LoopbackSource(output Endpoint) (string, StreamFormat, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.loopback[output.ID]
	if !ok {
		return "", StreamFormat{}, false
	}
	return id, output.NativeFormat, true
}

func (f *fakeBackend) CreateAggregate(spec AggregateSpec) (Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.aggSupport {
		return Endpoint{}, ErrAggregateUnsupported
	}
	f.aggSeq++
	ep := Endpoint{
		ID:   fmt.Sprintf("agg-%d", f.aggSeq),
		UID:  spec.UID,
		Name: spec.Name,
		Kind: KindAggregate,
		NativeFormat: StreamFormat{
			SampleRate:  48000,
			Channels:    2,
			SampleType:  SampleF32,
			Interleaved: true,
		},
	}
	f.endpoints = append(f.endpoints, ep)
	return ep, nil
}

func (f *fakeBackend) DestroyAggregate(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, id)
	for i, ep := range f.endpoints {
		if ep.ID == id {
			f.endpoints = append(f.endpoints[:i], f.endpoints[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeBackend) OpenStream(deviceID string, format StreamFormat, framesPerBuffer int, cb StreamCallback, onError func(error)) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	for _, ep := range f.endpoints {
		if ep.ID == deviceID {
			found = true
			break
		}
	}
	if !found {
		if _, ok := f.loopbackDevice(deviceID); !ok {
			return nil, errors.New("unknown device")
		}
	}
	s := &fakeStream{deviceID: deviceID, cb: cb, onError: onError}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeBackend) loopbackDevice(id string) (string, bool) {
	for _, v := range f.loopback {
		if v == id {
			return v, true
		}
	}
	return "", false
}

func (f *fakeBackend) Close() error { return nil }

type fakeStream struct {
	deviceID string
	cb       StreamCallback
	onError  func(error)

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *fakeStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// push delivers a buffer through the stream callback as the platform
// real-time thread would.
func (s *fakeStream) push(buf Buffer) {
	s.mu.Lock()
	started := s.started
	cb := s.cb
	s.mu.Unlock()
	if started && cb != nil {
		cb(buf)
	}
}

// Test fixtures shared across the package.

func micEndpoint() Endpoint {
	return Endpoint{
		ID:        "dev-mic",
		UID:       "uid-mic",
		Name:      "Built-in Microphone",
		Kind:      KindInput,
		IsDefault: true,
		NativeFormat: StreamFormat{
			SampleRate:  48000,
			Channels:    1,
			SampleType:  SampleF32,
			Interleaved: true,
		},
	}
}

func speakerEndpoint() Endpoint {
	return Endpoint{
		ID:        "dev-spk",
		UID:       "uid-spk",
		Name:      "Built-in Output",
		Kind:      KindOutput,
		IsDefault: true,
		NativeFormat: StreamFormat{
			SampleRate:  44100,
			Channels:    2,
			SampleType:  SampleF32,
			Interleaved: true,
		},
	}
}
