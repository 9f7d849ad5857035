//go:build !cgo

// Package hotkey registers global keyboard shortcuts.
package hotkey

import "log/slog"

// HotkeyManager is a placeholder when cgo is disabled; the gohook-based
// implementation in hotkey.go requires cgo. Start and Stop are no-ops.
type HotkeyManager struct {
	toggleCapture func()
}

// NewHotkeyManager creates a manager. toggleCapture fires on the
// capture-toggle shortcut (Ctrl+Shift+R).
func NewHotkeyManager(toggleCapture func()) *HotkeyManager {
	return &HotkeyManager{toggleCapture: toggleCapture}
}

// Start is a no-op without cgo; global hooks are unavailable.
func (m *HotkeyManager) Start() error {
	slog.Warn("global hotkeys unavailable: built without cgo")
	return nil
}

// Stop is a no-op without cgo.
func (m *HotkeyManager) Stop() {}
