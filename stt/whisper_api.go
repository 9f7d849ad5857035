package stt

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// WhisperAPI implements Provider using OpenAI's hosted transcription API.
type WhisperAPI struct {
	client openai.Client
	model  string

	mu    sync.RWMutex
	ready bool
}

// WhisperAPIConfig holds configuration for WhisperAPI.
type WhisperAPIConfig struct {
	APIKey  string
	BaseURL string // optional, for OpenAI-compatible servers
	Model   string // optional, defaults to whisper-1
}

// NewWhisperAPI creates the hosted-API provider.
func NewWhisperAPI(cfg WhisperAPIConfig) *WhisperAPI {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = string(openai.AudioModelWhisper1)
	}

	return &WhisperAPI{
		client: openai.NewClient(opts...),
		model:  model,
		ready:  cfg.APIKey != "",
	}
}

func (w *WhisperAPI) Name() string        { return "whisper-api" }
func (w *WhisperAPI) DisplayName() string { return "OpenAI Whisper API" }
func (w *WhisperAPI) IsLocal() bool       { return false }
func (w *WhisperAPI) RequiresSetup() bool { return false }
func (w *WhisperAPI) SetupProgress() int  { return 100 }

func (w *WhisperAPI) IsReady() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ready
}

func (w *WhisperAPI) Setup(_ context.Context, _ func(percent int)) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.ready {
		return fmt.Errorf("API key is required")
	}
	return nil
}

// Transcribe uploads the audio as WAV and returns the recognized text.
func (w *WhisperAPI) Transcribe(ctx context.Context, audio []float32, language string) (*Result, error) {
	if !w.IsReady() {
		return nil, fmt.Errorf("whisper API is not ready: API key required")
	}

	wav := encodeWAV(audio, 16000)
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(w.model),
	}
	// The API rejects "auto"; omitting the field means auto-detect.
	if language != "" && language != "auto" {
		params.Language = openai.String(language)
	}

	resp, err := w.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	return &Result{Text: resp.Text, Language: language}, nil
}

func (w *WhisperAPI) Close() error { return nil }
