package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Security    SecurityConfig    `yaml:"security"`
	Logging     LoggingConfig     `yaml:"logging"`
	Fanout      FanoutConfig      `yaml:"fanout"`
	Activity    ActivityConfig    `yaml:"activity"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// ServerConfig holds listener and request limits.
type ServerConfig struct {
	Address        string    `yaml:"address"`
	Port           int       `yaml:"port"`
	DBPath         string    `yaml:"db_path"`
	ReadTimeout    Duration  `yaml:"read_timeout"`
	WriteTimeout   Duration  `yaml:"write_timeout"`
	IdleTimeout    Duration  `yaml:"idle_timeout"`
	MaxRequestBody SizeBytes `yaml:"max_request_body"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// FanoutConfig tunes live query delivery.
type FanoutConfig struct {
	// SessionBuffer is the number of frames queued per connection before the
	// connection is considered too slow and dropped.
	SessionBuffer              int       `yaml:"session_buffer"`
	MaxSubscriptionsPerSession int       `yaml:"max_subscriptions_per_session"`
	MaxFrameBytes              SizeBytes `yaml:"max_frame_bytes"`
	FramesPerSecond            float64   `yaml:"frames_per_second"`
	PingInterval               Duration  `yaml:"ping_interval"`
	PongTimeout                Duration  `yaml:"pong_timeout"`
}

// ActivityConfig controls activity rows written as side effects.
type ActivityConfig struct {
	AutoLog *bool `yaml:"auto_log"`
}

// AutoLogEnabled reports the effective auto_log value (default true).
func (a ActivityConfig) AutoLogEnabled() bool {
	if a.AutoLog == nil {
		return true
	}
	return *a.AutoLog
}

// MaintenanceConfig holds the periodic store maintenance schedule.
type MaintenanceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// TelemetryConfig controls slow-operation reporting.
type TelemetryConfig struct {
	SlowThreshold Duration `yaml:"slow_threshold"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := parseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	v, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}
