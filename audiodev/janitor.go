package audiodev

import (
	"log/slog"
	"strings"
)

// Janitor reclaims virtual aggregate devices left behind by crashed
// processes. It identifies them solely by the provenance prefix on the
// device uid; endpoints without the prefix are never touched.
type Janitor struct {
	backend Backend
	prefix  string
}

// NewJanitor creates a janitor using the given provenance prefix.
func NewJanitor(backend Backend, provenancePrefix string) *Janitor {
	if provenancePrefix == "" {
		provenancePrefix = DefaultProvenancePrefix
	}
	return &Janitor{backend: backend, prefix: provenancePrefix}
}

// ReclaimLeaked destroys provenance-prefixed aggregates not referenced by
// the active session (activeUID may be empty when no session is running).
// Returns the number of devices reclaimed. Enumeration failure is returned
// as-is; per-device destroy failures are logged and skipped.
func (j *Janitor) ReclaimLeaked(activeUID string) (int, error) {
	eps, err := j.backend.Endpoints()
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for _, ep := range eps {
		if ep.Kind != KindAggregate {
			continue
		}
		if !strings.HasPrefix(ep.UID, j.prefix) {
			continue
		}
		if activeUID != "" && ep.UID == activeUID {
			continue
		}
		if err := j.backend.DestroyAggregate(ep.ID); err != nil {
			slog.Warn("failed to reclaim leaked aggregate", "uid", ep.UID, "error", err)
			continue
		}
		slog.Info("reclaimed leaked aggregate device", "uid", ep.UID)
		reclaimed++
	}
	return reclaimed, nil
}
