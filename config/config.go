// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName        = "enteract"
	configFileName = "config.json"
)

// RecognizerConfig selects and parameterizes the speech recognizer.
type RecognizerConfig struct {
	Provider string `json:"provider,omitempty"` // "whisper-api" or "whisper-local"
	Model    string `json:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	BaseURL  string `json:"base_url,omitempty"` // for OpenAI-compatible servers
	Language string `json:"language,omitempty"` // source hint, empty for auto
}

// CaptureConfig holds the persisted endpoint selection and pipeline
// overrides. Endpoints are stored by uid so selections survive restarts.
type CaptureConfig struct {
	InputEndpointUID  string `json:"input_endpoint_uid,omitempty"`
	OutputEndpointUID string `json:"output_endpoint_uid,omitempty"`
	FramesPerBuffer   int    `json:"frames_per_buffer,omitempty"`
}

// Config represents the application configuration.
type Config struct {
	Capture    CaptureConfig    `json:"capture"`
	Recognizer RecognizerConfig `json:"recognizer"`
}

func defaultConfig() *Config {
	return &Config{
		Recognizer: RecognizerConfig{Provider: "whisper-local"},
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Load reads the configuration, returning defaults when no file exists.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Recognizer.Provider == "" {
		cfg.Recognizer.Provider = "whisper-local"
	}
	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// SetCaptureSelection persists the endpoint selection.
func (c *Config) SetCaptureSelection(inputUID, outputUID string) error {
	c.Capture.InputEndpointUID = inputUID
	c.Capture.OutputEndpointUID = outputUID
	return c.Save()
}

// SetRecognizer persists the recognizer selection.
func (c *Config) SetRecognizer(r RecognizerConfig) error {
	if r.Provider == "" {
		return fmt.Errorf("recognizer provider is required")
	}
	c.Recognizer = r
	return c.Save()
}
