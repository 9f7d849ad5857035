// Package stt provides the speech recognizer interface and implementations.
package stt

import "context"

// Result is the outcome of one recognition request.
type Result struct {
	Text     string `json:"text"`
	Language string `json:"language"` // detected language code, may be empty
}

// Provider is a speech recognizer. Implementations exist for remote APIs
// and for local whisper.cpp.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// DisplayName returns the human-readable provider name.
	DisplayName() string

	// IsLocal reports whether recognition runs without network calls.
	IsLocal() bool

	// RequiresSetup reports whether setup (e.g. a model download) is
	// needed before the provider can transcribe.
	RequiresSetup() bool

	// IsReady reports whether the provider can transcribe now.
	IsReady() bool

	// SetupProgress returns setup progress 0-100, -1 if not started.
	SetupProgress() int

	// Setup performs initialization such as downloading a model. The
	// progress callback receives a percentage.
	Setup(ctx context.Context, progress func(percent int)) error

	// Transcribe converts mono 16 kHz float32 samples to text. language
	// is a source hint; empty means auto-detect.
	Transcribe(ctx context.Context, audio []float32, language string) (*Result, error)

	// Close releases resources held by the provider.
	Close() error
}

// Registry holds the available recognizers by name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing any with the same name.
func (r *Registry) Register(p Provider) {
	r.providers[p.Name()] = p
}

// Get returns a provider by name, nil if absent.
func (r *Registry) Get(name string) Provider {
	return r.providers[name]
}

// List returns all registered providers.
func (r *Registry) List() []Provider {
	result := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		result = append(result, p)
	}
	return result
}

// Close releases every provider.
func (r *Registry) Close() error {
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
