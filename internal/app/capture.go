package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.enteract.dev/enteract/capture"
	"go.enteract.dev/enteract/config"
	"go.enteract.dev/enteract/internal/types"
	"go.enteract.dev/enteract/stt"
)

// recognizerAdapter bridges an stt.Provider into the capture pipeline with
// a fixed language hint.
type recognizerAdapter struct {
	provider stt.Provider
	language string
}

func (r recognizerAdapter) Transcribe(ctx context.Context, samples []float32) (string, error) {
	result, err := r.provider.Transcribe(ctx, samples, r.language)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// activeTranscriber resolves the configured recognizer, falling back to any
// registered one.
func (s *Service) activeTranscriber() capture.Transcriber {
	if s.recognizer == nil {
		return nil
	}
	provider := s.recognizer.Get(s.cfg.Recognizer.Provider)
	if provider == nil {
		providers := s.recognizer.List()
		if len(providers) == 0 {
			return nil
		}
		provider = providers[0]
	}
	return recognizerAdapter{provider: provider, language: s.cfg.Recognizer.Language}
}

// ─────────────────────────────────────────────────────────────────────────────
// Endpoints
// ─────────────────────────────────────────────────────────────────────────────

// ListEndpoints returns the current audio endpoint catalog.
func (s *Service) ListEndpoints() ([]types.EndpointInfo, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("audio backend not available")
	}
	eps, err := s.catalog.List()
	if err != nil {
		return nil, err
	}

	out := make([]types.EndpointInfo, len(eps))
	for i, ep := range eps {
		out[i] = types.EndpointInfo{
			ID:               ep.ID,
			UID:              ep.UID,
			Name:             ep.Name,
			Kind:             ep.Kind.String(),
			IsDefault:        ep.IsDefault,
			SampleRate:       ep.NativeFormat.SampleRate,
			Channels:         ep.NativeFormat.Channels,
			SampleType:       ep.NativeFormat.SampleType.String(),
			SupportsLoopback: ep.SupportsLoopback,
		}
	}
	return out, nil
}

// RefreshEndpoints re-enumerates the host's audio devices.
func (s *Service) RefreshEndpoints() error {
	if s.catalog == nil {
		return fmt.Errorf("audio backend not available")
	}
	return s.catalog.Refresh()
}

// SetCaptureSelection persists which endpoints future sessions capture.
func (s *Service) SetCaptureSelection(inputUID, outputUID string) error {
	return s.cfg.SetCaptureSelection(inputUID, outputUID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Capture session
// ─────────────────────────────────────────────────────────────────────────────

// StartCapture starts a capture session on the persisted endpoint
// selection. Empty selection captures the default output.
func (s *Service) StartCapture() error {
	if s.controller == nil {
		return fmt.Errorf("capture not available")
	}
	return s.controller.Start(context.Background(), capture.StartConfig{
		InputSelector:  s.cfg.Capture.InputEndpointUID,
		OutputSelector: s.cfg.Capture.OutputEndpointUID,
	})
}

// StartCaptureOn starts a capture session on explicit endpoint selectors.
func (s *Service) StartCaptureOn(inputSelector, outputSelector string) error {
	if s.controller == nil {
		return fmt.Errorf("capture not available")
	}
	return s.controller.Start(context.Background(), capture.StartConfig{
		InputSelector:  inputSelector,
		OutputSelector: outputSelector,
	})
}

// StopCapture stops the running capture session, if any.
func (s *Service) StopCapture() error {
	if s.controller == nil {
		return nil
	}
	return s.controller.Stop(context.Background())
}

// ToggleCapture starts or stops capture, used by the global hotkey and the
// tray menu.
func (s *Service) ToggleCapture() {
	if s.controller == nil {
		return
	}
	status := s.controller.Status()
	var err error
	if status.State == "running" || status.State == "starting" {
		err = s.StopCapture()
	} else {
		err = s.StartCapture()
	}
	if err != nil {
		slog.Error("toggle capture", "error", err)
	}
	s.emit(EventCaptureStatus, s.controller.Status())
}

// GetCaptureStatus reports the session state and pipeline counters.
func (s *Service) GetCaptureStatus() types.SessionStatus {
	if s.controller == nil {
		return types.SessionStatus{State: "idle", FaultKind: "backend-unavailable"}
	}
	return s.controller.Status()
}

// ─────────────────────────────────────────────────────────────────────────────
// Recognizers
// ─────────────────────────────────────────────────────────────────────────────

// GetRecognizers returns the available speech recognizers.
func (s *Service) GetRecognizers() []types.RecognizerInfo {
	if s.recognizer == nil {
		return nil
	}
	providers := s.recognizer.List()
	out := make([]types.RecognizerInfo, len(providers))
	for i, p := range providers {
		out[i] = types.RecognizerInfo{
			Name:          p.Name(),
			DisplayName:   p.DisplayName(),
			IsLocal:       p.IsLocal(),
			RequiresSetup: p.RequiresSetup(),
			SetupProgress: p.SetupProgress(),
			IsReady:       p.IsReady(),
		}
	}
	return out
}

// SetRecognizer selects the recognizer for future sessions.
func (s *Service) SetRecognizer(name string) error {
	if s.recognizer == nil {
		return fmt.Errorf("recognizers not initialized")
	}
	provider := s.recognizer.Get(name)
	if provider == nil {
		return fmt.Errorf("recognizer not found: %s", name)
	}

	rcfg := s.cfg.Recognizer
	rcfg.Provider = name
	if err := s.cfg.SetRecognizer(rcfg); err != nil {
		return err
	}

	adapter := recognizerAdapter{provider: provider, language: rcfg.Language}
	if err := s.controller.SetTranscriber(adapter); err != nil {
		return fmt.Errorf("recognizer will apply after the session stops: %w", err)
	}
	return nil
}

// SetRecognizerAPIKey stores the API key and registers the API recognizer.
func (s *Service) SetRecognizerAPIKey(apiKey string) error {
	rcfg := s.cfg.Recognizer
	rcfg.APIKey = apiKey
	if err := s.cfg.SetRecognizer(rcfg); err != nil {
		return err
	}
	if apiKey != "" && s.recognizer != nil {
		s.recognizer.Register(stt.NewWhisperAPI(stt.WhisperAPIConfig{
			APIKey:  apiKey,
			BaseURL: rcfg.BaseURL,
			Model:   rcfg.Model,
		}))
	}
	return nil
}

// SetupRecognizer runs provider setup (e.g. a model download) in the
// background, emitting progress events.
func (s *Service) SetupRecognizer(name string) error {
	if s.recognizer == nil {
		return fmt.Errorf("recognizers not initialized")
	}
	provider := s.recognizer.Get(name)
	if provider == nil {
		return fmt.Errorf("recognizer not found: %s", name)
	}

	go func() {
		err := provider.Setup(context.Background(), func(percent int) {
			s.emit(EventSetupProgress, map[string]any{
				"provider": name,
				"progress": percent,
			})
		})
		if err != nil {
			slog.Error("recognizer setup failed", "provider", name, "error", err)
			s.emit(EventSetupError, map[string]any{
				"provider": name,
				"error":    err.Error(),
			})
			return
		}
		s.emit(EventSetupComplete, name)
	}()
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Transcript history
// ─────────────────────────────────────────────────────────────────────────────

// GetRecentTranscripts returns up to limit persisted transcripts, newest
// first.
func (s *Service) GetRecentTranscripts(limit int) ([]types.TranscriptEntry, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history store not available")
	}
	return s.history.Recent(limit)
}

// GetSessionTranscripts returns all transcripts of one session.
func (s *Service) GetSessionTranscripts(sessionID string) ([]types.TranscriptEntry, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history store not available")
	}
	return s.history.BySession(sessionID)
}

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// GetCaptureConfig returns the persisted capture selection.
func (s *Service) GetCaptureConfig() config.CaptureConfig {
	return s.cfg.Capture
}

// GetRecognizerConfig returns the recognizer settings with the API key
// masked.
func (s *Service) GetRecognizerConfig() config.RecognizerConfig {
	rcfg := s.cfg.Recognizer
	if rcfg.APIKey != "" {
		rcfg.APIKey = "********"
	}
	return rcfg
}
