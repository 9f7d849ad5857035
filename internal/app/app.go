// Package app provides the core application service for Wails bindings.
package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v3/pkg/application"

	"go.enteract.dev/enteract/audiodev"
	"go.enteract.dev/enteract/capture"
	"go.enteract.dev/enteract/config"
	"go.enteract.dev/enteract/history"
	"go.enteract.dev/enteract/hotkey"
	"go.enteract.dev/enteract/internal/types"
	"go.enteract.dev/enteract/langdetect"
	"go.enteract.dev/enteract/stt"
)

// Service provides application functionality bound to Wails.
// This struct focuses on orchestration; the pipeline lives in capture.
type Service struct {
	cfg     *config.Config
	hotkey  *hotkey.HotkeyManager
	history *history.Store

	backend    audiodev.Backend
	catalog    *audiodev.Catalog
	controller *capture.Controller
	recognizer *stt.Registry

	// UI references, set via Init
	app    *application.App
	window application.Window

	version string
}

// New creates a new Service. Call Init after the Wails app is created.
func New(version string) *Service {
	return &Service{version: version}
}

// GetVersion returns the application version.
func (s *Service) GetVersion() string {
	return s.version
}

// Init initializes the service with app and window references.
// Must be called after the Wails application is created.
func (s *Service) Init(app *application.App, window application.Window) {
	s.app = app
	s.window = window

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = &config.Config{}
	}
	s.cfg = cfg

	s.setupHistory()
	s.setupBackend()
	s.setupRecognizers()
	s.setupController()
	s.setupHotkey()
}

// Shutdown cleans up resources.
func (s *Service) Shutdown() {
	if s.hotkey != nil {
		s.hotkey.Stop()
	}
	if s.controller != nil {
		if err := s.controller.Shutdown(context.Background()); err != nil {
			slog.Error("shutdown capture controller", "error", err)
		}
	}
	if s.recognizer != nil {
		if err := s.recognizer.Close(); err != nil {
			slog.Error("close recognizers", "error", err)
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			slog.Error("close audio backend", "error", err)
		}
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Error("close history store", "error", err)
		}
	}
}

func (s *Service) setupHistory() {
	configDir, err := os.UserConfigDir()
	if err != nil {
		slog.Error("get config dir for history", "error", err)
		return
	}

	path := filepath.Join(configDir, "enteract", "history")
	store, err := history.Open(path)
	if err != nil {
		slog.Error("open history store", "error", err)
		return
	}
	s.history = store
	slog.Info("history store opened", "path", path)
}

func (s *Service) setupBackend() {
	backend, err := audiodev.NewPortAudioBackend()
	if err != nil {
		slog.Error("init audio backend", "error", err)
		return
	}
	s.backend = backend
	s.catalog = audiodev.NewCatalog(backend, audiodev.DefaultProvenancePrefix)
	slog.Info("audio backend initialized", "available", s.catalog.Available())
}

func (s *Service) setupRecognizers() {
	s.recognizer = stt.NewRegistry()

	rcfg := s.cfg.Recognizer
	if rcfg.APIKey != "" {
		s.recognizer.Register(stt.NewWhisperAPI(stt.WhisperAPIConfig{
			APIKey:  rcfg.APIKey,
			BaseURL: rcfg.BaseURL,
			Model:   rcfg.Model,
		}))
		slog.Info("registered whisper API recognizer")
	}

	local, err := stt.NewWhisperLocal(stt.WhisperLocalConfig{ModelSize: "base"})
	if err != nil {
		slog.Error("init local whisper recognizer", "error", err)
	} else {
		s.recognizer.Register(local)
		if local.HasBinary() {
			slog.Info("registered local whisper recognizer", "ready", local.IsReady())
		} else {
			slog.Warn("local whisper registered but whisper.cpp binary not found")
		}
	}

	slog.Info("recognizers initialized", "count", len(s.recognizer.List()))
}

func (s *Service) setupController() {
	if s.backend == nil {
		slog.Error("capture controller not created: no audio backend")
		return
	}

	s.controller = capture.NewController(capture.ControllerConfig{
		Catalog:         s.catalog,
		Backend:         s.backend,
		Transcriber:     s.activeTranscriber(),
		FramesPerBuffer: s.cfg.Capture.FramesPerBuffer,
		OnChunk: func(chunk types.AudioChunk) {
			s.emit(EventAudioChunk, chunk)
		},
		OnTranscript: s.handleTranscript,
	})
}

// handleTranscript tags the transcript's language, persists it, and
// forwards it to the frontend.
func (s *Service) handleTranscript(result types.TranscriptionResult) {
	code, name := langdetect.Detect(result.Text)
	if code != "auto" {
		result.Language = code
		result.LanguageName = name
	}

	if s.history != nil {
		entry := types.TranscriptEntry{
			SessionID:  s.controller.SessionID(),
			Text:       result.Text,
			Confidence: result.Confidence,
			StartTime:  result.StartTime,
			EndTime:    result.EndTime,
			Timestamp:  result.Timestamp,
			Language:   result.Language,
		}
		if err := s.history.Append(entry); err != nil {
			slog.Warn("persist transcript", "error", err)
		}
	}

	s.emit(EventTranscriptionResult, result)
}

func (s *Service) setupHotkey() {
	s.hotkey = hotkey.NewHotkeyManager(func() {
		go s.ToggleCapture()
	})
	if err := s.hotkey.Start(); err != nil {
		slog.Error("start hotkey", "error", err)
	}
}

// ShowWindow brings the main window to the front.
func (s *Service) ShowWindow() {
	if s.window != nil {
		s.window.Show()
		s.window.Focus()
	}
}

// emit is a safe wrapper around app.Event.Emit.
func (s *Service) emit(name string, data any) {
	if s.app != nil {
		s.app.Event.Emit(name, data)
	}
}
