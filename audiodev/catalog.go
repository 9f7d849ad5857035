package audiodev

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Catalog is the only place in the system that reads the host's audio
// device directory. It normalizes devices into Endpoint records and tracks
// the defaults per kind.
type Catalog struct {
	backend Backend
	prefix  string

	mu        sync.RWMutex
	endpoints []Endpoint
	lastErr   error
}

// NewCatalog creates a catalog over the backend and takes an initial
// snapshot. An enumeration failure does not fail construction; the catalog
// reports ErrCatalogUnavailable until a Refresh succeeds.
func NewCatalog(backend Backend, provenancePrefix string) *Catalog {
	if provenancePrefix == "" {
		provenancePrefix = DefaultProvenancePrefix
	}
	c := &Catalog{backend: backend, prefix: provenancePrefix}
	if err := c.Refresh(); err != nil {
		slog.Warn("initial endpoint enumeration failed", "error", err)
	}
	return c
}

// ProvenancePrefix returns the uid prefix marking this application's
// virtual devices.
func (c *Catalog) ProvenancePrefix() string { return c.prefix }

// Refresh forces re-enumeration. On failure the previous snapshot is
// discarded and the catalog becomes unavailable.
func (c *Catalog) Refresh() error {
	eps, err := c.backend.Endpoints()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.endpoints = nil
		c.lastErr = fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
		return c.lastErr
	}

	normalized := make([]Endpoint, 0, len(eps))
	seenDefault := make(map[Kind]bool)
	for _, ep := range eps {
		if ep.NativeFormat.Channels <= 0 {
			slog.Warn("dropping endpoint with no usable streams", "name", ep.Name)
			continue
		}
		// At most one default per kind survives normalization.
		if ep.IsDefault {
			if seenDefault[ep.Kind] {
				ep.IsDefault = false
			} else {
				seenDefault[ep.Kind] = true
			}
		}
		if ep.Kind == KindAggregate && strings.HasPrefix(ep.UID, c.prefix) {
			ep.EphemeralCandidate = true
		}
		normalized = append(normalized, ep)
	}

	c.endpoints = normalized
	c.lastErr = nil
	return nil
}

// List returns the current endpoint snapshot.
func (c *Catalog) List() ([]Endpoint, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.lastErr != nil {
		return nil, c.lastErr
	}
	out := make([]Endpoint, len(c.endpoints))
	copy(out, c.endpoints)
	return out, nil
}

// Default returns the current default endpoint for the kind.
func (c *Catalog) Default(kind Kind) (Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ep := range c.endpoints {
		if ep.Kind == kind && ep.IsDefault {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// Find resolves a selector to an endpoint. UIDs win over ids, ids over
// names, so persisted selections survive id churn across restarts.
func (c *Catalog) Find(selector string) (Endpoint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ep := range c.endpoints {
		if ep.UID == selector {
			return ep, true
		}
	}
	for _, ep := range c.endpoints {
		if ep.ID == selector {
			return ep, true
		}
	}
	for _, ep := range c.endpoints {
		if ep.Name == selector {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// Available reports whether the catalog holds a usable snapshot.
func (c *Catalog) Available() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr == nil
}
