package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"gopkg.in/yaml.v3"
)

const (
	defaultAddress        = "0.0.0.0"
	defaultPort           = 8080
	defaultDBPath         = "./.database"
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	defaultIdleTimeout    = 30 * time.Second
	defaultMaxRequestBody = 5 * 1024 * 1024

	defaultRateRPS   = 1000
	defaultRateBurst = 1000

	// fanout defaults
	defaultSessionBuffer      = 256
	defaultMaxSubscriptions   = 64
	defaultMaxFrameBytes      = 256 * 1024
	defaultFramesPerSecond    = 40
	defaultPingInterval       = 20 * time.Second
	defaultPongTimeout        = 60 * time.Second
	maxSessionBuffer          = 1 << 16
	defaultMaintenanceCron    = "*/15 * * * *"
	defaultTelemetrySlowMs    = 200
	defaultLogLevel           = "info"
	minPongOverPingMultiplier = 2
)

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = defaultAddress
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", addr, port)
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// ValidateConfig applies defaults and validates values in the config. It
// mutates the receiver to fill in missing defaults and returns an error if
// any configuration value is invalid.
func (c *Config) ValidateConfig() error {
	// server
	if c.Server.DBPath == "" {
		c.Server.DBPath = defaultDBPath
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout.Duration() <= 0 {
		c.Server.ReadTimeout = Duration(defaultReadTimeout)
	}
	if c.Server.WriteTimeout.Duration() <= 0 {
		c.Server.WriteTimeout = Duration(defaultWriteTimeout)
	}
	if c.Server.IdleTimeout.Duration() <= 0 {
		c.Server.IdleTimeout = Duration(defaultIdleTimeout)
	}
	if c.Server.MaxRequestBody.Int64() <= 0 {
		c.Server.MaxRequestBody = SizeBytes(defaultMaxRequestBody)
	}

	// security: rate limiting
	if c.Security.RateLimit.RPS <= 0 {
		c.Security.RateLimit.RPS = defaultRateRPS
	}
	if c.Security.RateLimit.Burst <= 0 {
		c.Security.RateLimit.Burst = defaultRateBurst
	}

	// logging
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}

	// fanout
	f := &c.Fanout
	if f.SessionBuffer <= 0 {
		f.SessionBuffer = defaultSessionBuffer
	}
	if f.SessionBuffer > maxSessionBuffer {
		return fmt.Errorf("fanout.session_buffer too large: %d (max %d)", f.SessionBuffer, maxSessionBuffer)
	}
	if f.MaxSubscriptionsPerSession <= 0 {
		f.MaxSubscriptionsPerSession = defaultMaxSubscriptions
	}
	if f.MaxFrameBytes.Int64() <= 0 {
		f.MaxFrameBytes = SizeBytes(defaultMaxFrameBytes)
	}
	if f.FramesPerSecond <= 0 {
		f.FramesPerSecond = defaultFramesPerSecond
	}
	if f.PingInterval.Duration() <= 0 {
		f.PingInterval = Duration(defaultPingInterval)
	}
	if f.PongTimeout.Duration() <= 0 {
		f.PongTimeout = Duration(defaultPongTimeout)
	}
	if f.PongTimeout.Duration() < minPongOverPingMultiplier*f.PingInterval.Duration() {
		return fmt.Errorf("fanout.pong_timeout (%s) must be at least twice fanout.ping_interval (%s)",
			f.PongTimeout.Duration(), f.PingInterval.Duration())
	}

	// maintenance cron (validated even when disabled so a bad value is caught early)
	if c.Maintenance.Cron == "" {
		c.Maintenance.Cron = defaultMaintenanceCron
	}
	if !gronx.IsValid(c.Maintenance.Cron) {
		return fmt.Errorf("invalid maintenance cron expression: %s", c.Maintenance.Cron)
	}

	// telemetry
	if c.Telemetry.SlowThreshold.Duration() <= 0 {
		c.Telemetry.SlowThreshold = Duration(time.Duration(defaultTelemetrySlowMs) * time.Millisecond)
	}

	return nil
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("SKILLSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
