package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration lets TOML files spell durations as strings ("5s", "30m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type ServerConfig struct {
	Port string `toml:"port"`
	Mode string `toml:"mode"`
}

type BackendConfig struct {
	BaseURL             string   `toml:"base_url"`
	Timeout             Duration `toml:"timeout"`
	PlaceholderAnalysis bool     `toml:"placeholder_analysis"`
}

type BreakerConfig struct {
	Enabled     bool     `toml:"enabled"`
	MaxRequests uint32   `toml:"max_requests"`
	Interval    Duration `toml:"interval"`
	Timeout     Duration `toml:"timeout"`
	MinRequests uint32   `toml:"min_requests"`
	FailureRate float64  `toml:"failure_rate"`
}

type AnalysisConfig struct {
	NeedsClassification bool `toml:"needs_classification"`
}

type ChatConfig struct {
	Provider     string `toml:"provider"`
	Model        string `toml:"model"`
	APIKey       string `toml:"api_key"`
	BaseURL      string `toml:"base_url"`
	SystemPrompt string `toml:"system_prompt"`
}

type SessionConfig struct {
	Store           string   `toml:"store"`
	RedisURL        string   `toml:"redis_url"`
	TTL             Duration `toml:"ttl"`
	CleanupInterval Duration `toml:"cleanup_interval"`
	CookieName      string   `toml:"cookie_name"`
	SecureCookie    bool     `toml:"secure_cookie"`
}

type UIConfig struct {
	MessageTTL Duration `toml:"message_ttl"`
}

type UploadConfig struct {
	MaxBytes      int64  `toml:"max_bytes"`
	RecordingName string `toml:"recording_name"`
	RecordingType string `toml:"recording_type"`
}

type LoggingConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Backend  BackendConfig  `toml:"backend"`
	Breaker  BreakerConfig  `toml:"breaker"`
	Analysis AnalysisConfig `toml:"analysis"`
	Chat     ChatConfig     `toml:"chat"`
	Session  SessionConfig  `toml:"session"`
	UI       UIConfig       `toml:"ui"`
	Upload   UploadConfig   `toml:"upload"`
	Logging  LoggingConfig  `toml:"logging"`
}

const defaultSystemPrompt = "You are a helpful assistant answering questions about Parkinson's disease, " +
	"its symptoms, voice-based screening and next steps. You do not diagnose; " +
	"recommend consulting a healthcare professional when appropriate."

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "release",
		},
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:5000",
		},
		Breaker: BreakerConfig{
			Enabled:     true,
			MaxRequests: 3,
			Interval:    Duration{time.Minute},
			Timeout:     Duration{30 * time.Second},
			MinRequests: 3,
			FailureRate: 0.6,
		},
		Chat: ChatConfig{
			Provider:     "backend",
			SystemPrompt: defaultSystemPrompt,
		},
		Session: SessionConfig{
			Store:           "memory",
			TTL:             Duration{30 * time.Minute},
			CleanupInterval: Duration{time.Minute},
			CookieName:      "pearlyx_sid",
		},
		UI: UIConfig{
			MessageTTL: Duration{5 * time.Second},
		},
		Upload: UploadConfig{
			MaxBytes:      25 << 20,
			RecordingName: "recorded-audio.wav",
			RecordingType: "audio/wav",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the TOML file at path on top of Default. A missing file is not
// an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when present.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		c.Server.Mode = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("CHAT_PROVIDER"); v != "" {
		c.Chat.Provider = v
	}
	if v := os.Getenv("CHAT_MODEL"); v != "" {
		c.Chat.Model = v
	}
	if v := os.Getenv("CHAT_API_KEY"); v != "" {
		c.Chat.APIKey = v
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" && c.Chat.APIKey == "" {
		c.Chat.APIKey = v
	}
	if v := os.Getenv("CHAT_BASE_URL"); v != "" {
		c.Chat.BaseURL = v
	}
	if v := os.Getenv("SESSION_STORE"); v != "" {
		c.Session.Store = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Session.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
