// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName        = "syllablaze"
	configFileName = "config.json"
)

// Sample-rate modes for audio capture.
const (
	// RateModeTarget opens the input stream directly at the transcription
	// target rate when the device supports it.
	RateModeTarget = "target"
	// RateModeNative opens the input stream at the device's native rate;
	// the frame processor resamples afterwards.
	RateModeNative = "native"
)

// Engine identifiers.
const (
	EngineWhisperCPP = "whisper-cpp"
	EngineWhisperAPI = "whisper-api"
)

// Config represents the application configuration.
// The core reads these values; editing them is the settings UI's job.
type Config struct {
	InputDevice    string `json:"input_device,omitempty"`     // empty = system default
	SampleRateMode string `json:"sample_rate_mode,omitempty"` // "target" or "native"
	Engine         string `json:"engine,omitempty"`           // "whisper-cpp" or "whisper-api"
	Model          string `json:"model,omitempty"`            // model name, e.g. "base"
	ModelDir       string `json:"model_dir,omitempty"`        // directory holding ggml models
	Language       string `json:"language,omitempty"`         // language hint, empty = auto-detect
	APIKey         string `json:"api_key,omitempty"`          // for the whisper-api engine
}

// Load loads configuration from the config file.
// Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
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
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Path returns the location of the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Dir returns the application's config directory.
func Dir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName), nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.SampleRateMode == "" {
		c.SampleRateMode = RateModeTarget
	}
	if c.Engine == "" {
		c.Engine = EngineWhisperCPP
	}
	if c.Model == "" {
		c.Model = "base"
	}
	if c.ModelDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.ModelDir = filepath.Join(home, ".syllablaze", "models")
		}
	}
}

func (c *Config) validate() error {
	switch c.SampleRateMode {
	case RateModeTarget, RateModeNative:
	default:
		return fmt.Errorf("invalid sample_rate_mode: %s", c.SampleRateMode)
	}
	switch c.Engine {
	case EngineWhisperCPP, EngineWhisperAPI:
	default:
		return fmt.Errorf("invalid engine: %s", c.Engine)
	}
	if c.Engine == EngineWhisperAPI && c.APIKey == "" {
		return fmt.Errorf("api key required for %s", EngineWhisperAPI)
	}
	return nil
}
