//go:build cgo

// Package hotkey registers global keyboard shortcuts.
package hotkey

import (
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// HotkeyManager listens for global shortcuts and invokes callbacks. The
// underlying hook is process-wide, so only one manager should run.
type HotkeyManager struct {
	toggleCapture func()

	mu      sync.Mutex
	running bool
}

// NewHotkeyManager creates a manager. toggleCapture fires on the
// capture-toggle shortcut (Ctrl+Shift+R).
func NewHotkeyManager(toggleCapture func()) *HotkeyManager {
	return &HotkeyManager{toggleCapture: toggleCapture}
}

// Start registers the shortcuts and begins listening in the background.
func (m *HotkeyManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	hook.Register(hook.KeyDown, []string{"r", "ctrl", "shift"}, func(e hook.Event) {
		slog.Debug("capture toggle hotkey pressed")
		if m.toggleCapture != nil {
			m.toggleCapture()
		}
	})

	events := hook.Start()
	go func() {
		<-hook.Process(events)
		slog.Debug("hotkey listener exited")
	}()

	m.running = true
	slog.Info("global hotkeys registered", "toggleCapture", "ctrl+shift+r")
	return nil
}

// Stop unregisters the shortcuts and stops the listener.
func (m *HotkeyManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	hook.End()
	m.running = false
}
