package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
)

// holds parsed command-line flag values and which were set
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// holds the results of applying environment overrides
type EnvResult struct {
	EnvUsed bool
}

// holds the result of LoadEffectiveConfig
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "config", "env" or a "+"-joined mix
}

// ParseConfigFlags parses the process flags. Only three values are accepted on
// the command line; everything else goes through the file or env.
func ParseConfigFlags() Flags {
	return ParseConfigFlagSet(flag.CommandLine, os.Args[1:])
}

// ParseConfigFlagSet parses args into fs. Split out so tests can use a fresh set.
func ParseConfigFlagSet(fs *flag.FlagSet, args []string) Flags {
	addrPtr := fs.String("addr", ":8080", "HTTP listen address")
	dbPtr := fs.String("db", defaultDBPath, "Pebble DB path")
	cfgPtr := fs.String("config", "./config.yaml", "Path to config file")
	_ = fs.Parse(args)

	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// ParseConfigFile loads the config file named by flags or env. A missing file
// is not an error; found reports whether one was read.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(cfgPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs loads SKILLSYNC_* environment variables into a new Config.
func ParseConfigEnvs() (*Config, EnvResult) {
	return parseConfigEnvs(os.Getenv)
}

func parseConfigEnvs(getenv func(string) string) (*Config, EnvResult) {
	envs := map[string]string{
		"SERVER_ADDRESS":     getenv("SKILLSYNC_SERVER_ADDRESS"),
		"SERVER_PORT":        getenv("SKILLSYNC_SERVER_PORT"),
		"DB_PATH":            getenv("SKILLSYNC_DB_PATH"),
		"MAX_REQUEST_BODY":   getenv("SKILLSYNC_MAX_REQUEST_BODY"),
		"CORS_ORIGINS":       getenv("SKILLSYNC_CORS_ORIGINS"),
		"RATE_RPS":           getenv("SKILLSYNC_RATE_RPS"),
		"RATE_BURST":         getenv("SKILLSYNC_RATE_BURST"),
		"IP_WHITELIST":       getenv("SKILLSYNC_IP_WHITELIST"),
		"API_BACKEND_KEYS":   getenv("SKILLSYNC_API_BACKEND_KEYS"),
		"API_FRONTEND_KEYS":  getenv("SKILLSYNC_API_FRONTEND_KEYS"),
		"API_ADMIN_KEYS":     getenv("SKILLSYNC_API_ADMIN_KEYS"),
		"LOG_LEVEL":          getenv("SKILLSYNC_LOG_LEVEL"),
		"FANOUT_BUFFER":      getenv("SKILLSYNC_FANOUT_SESSION_BUFFER"),
		"FANOUT_MAX_SUBS":    getenv("SKILLSYNC_FANOUT_MAX_SUBSCRIPTIONS"),
		"FANOUT_MAX_FRAME":   getenv("SKILLSYNC_FANOUT_MAX_FRAME_BYTES"),
		"FANOUT_PING":        getenv("SKILLSYNC_FANOUT_PING_INTERVAL"),
		"ACTIVITY_AUTO_LOG":  getenv("SKILLSYNC_ACTIVITY_AUTO_LOG"),
		"MAINTENANCE_ON":     getenv("SKILLSYNC_MAINTENANCE_ENABLED"),
		"MAINTENANCE_CRON":   getenv("SKILLSYNC_MAINTENANCE_CRON"),
		"TELEMETRY_SLOW_DUR": getenv("SKILLSYNC_TELEMETRY_SLOW_THRESHOLD"),
	}

	envUsed := false
	for _, v := range envs {
		if v != "" {
			envUsed = true
			break
		}
	}
	envCfg := &Config{}

	// parse helpers
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}
	parseBool := func(v string) bool {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		default:
			return false
		}
	}
	parseInt := func(v string) int {
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return i
	}

	envCfg.Server.Address = envs["SERVER_ADDRESS"]
	if v := envs["SERVER_PORT"]; v != "" {
		envCfg.Server.Port = parseInt(v)
	}
	envCfg.Server.DBPath = envs["DB_PATH"]
	if v := envs["MAX_REQUEST_BODY"]; v != "" {
		if sz, err := parseSize(v); err == nil {
			envCfg.Server.MaxRequestBody = sz
		}
	}

	envCfg.Security.CORS.AllowedOrigins = parseList(envs["CORS_ORIGINS"])
	if v := envs["RATE_RPS"]; v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := envs["RATE_BURST"]; v != "" {
		envCfg.Security.RateLimit.Burst = parseInt(v)
	}
	envCfg.Security.IPWhitelist = parseList(envs["IP_WHITELIST"])
	envCfg.Security.APIKeys.Backend = parseList(envs["API_BACKEND_KEYS"])
	envCfg.Security.APIKeys.Frontend = parseList(envs["API_FRONTEND_KEYS"])
	envCfg.Security.APIKeys.Admin = parseList(envs["API_ADMIN_KEYS"])

	envCfg.Logging.Level = envs["LOG_LEVEL"]

	if v := envs["FANOUT_BUFFER"]; v != "" {
		envCfg.Fanout.SessionBuffer = parseInt(v)
	}
	if v := envs["FANOUT_MAX_SUBS"]; v != "" {
		envCfg.Fanout.MaxSubscriptionsPerSession = parseInt(v)
	}
	if v := envs["FANOUT_MAX_FRAME"]; v != "" {
		if sz, err := parseSize(v); err == nil {
			envCfg.Fanout.MaxFrameBytes = sz
		}
	}
	if v := envs["FANOUT_PING"]; v != "" {
		if d, err := parseDuration(v); err == nil {
			envCfg.Fanout.PingInterval = d
		}
	}

	if v := envs["ACTIVITY_AUTO_LOG"]; v != "" {
		b := parseBool(v)
		envCfg.Activity.AutoLog = &b
	}

	if v := envs["MAINTENANCE_ON"]; v != "" {
		envCfg.Maintenance.Enabled = parseBool(v)
	}
	envCfg.Maintenance.Cron = envs["MAINTENANCE_CRON"]

	if v := envs["TELEMETRY_SLOW_DUR"]; v != "" {
		if d, err := parseDuration(v); err == nil {
			envCfg.Telemetry.SlowThreshold = d
		}
	}

	return envCfg, EnvResult{EnvUsed: envUsed}
}

// LoadEffectiveConfig merges file, env and flags (later wins) and applies
// defaults. Flags only override addr and db when explicitly set.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var sources []string

	cfg := &Config{}
	if fileExists && fileCfg != nil {
		*cfg = *fileCfg
		sources = append(sources, "config")
	}
	if envRes.EnvUsed && envCfg != nil {
		overlay(cfg, envCfg)
		sources = append(sources, "env")
	}

	if flags.Set["addr"] {
		host, portStr, err := net.SplitHostPort(flags.Addr)
		if err != nil {
			return EffectiveConfigResult{}, fmt.Errorf("invalid -addr %q: %w", flags.Addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return EffectiveConfigResult{}, fmt.Errorf("invalid -addr port %q: %w", portStr, err)
		}
		cfg.Server.Address = host
		cfg.Server.Port = port
		sources = append(sources, "flags")
	}
	if flags.Set["db"] {
		cfg.Server.DBPath = flags.DB
		if !flags.Set["addr"] {
			sources = append(sources, "flags")
		}
	} else if cfg.Server.DBPath == "" && flags.DB != "" {
		cfg.Server.DBPath = flags.DB
	}

	if err := cfg.ValidateConfig(); err != nil {
		return EffectiveConfigResult{}, err
	}

	src := strings.Join(sources, "+")
	if src == "" {
		src = "defaults"
	}
	return EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: cfg.Server.DBPath, Source: src}, nil
}

// overlay copies every non-zero field of src onto dst.
func overlay(dst, src *Config) {
	if src.Server.Address != "" {
		dst.Server.Address = src.Server.Address
	}
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	if src.Server.DBPath != "" {
		dst.Server.DBPath = src.Server.DBPath
	}
	if src.Server.MaxRequestBody != 0 {
		dst.Server.MaxRequestBody = src.Server.MaxRequestBody
	}
	if len(src.Security.CORS.AllowedOrigins) > 0 {
		dst.Security.CORS.AllowedOrigins = src.Security.CORS.AllowedOrigins
	}
	if src.Security.RateLimit.RPS != 0 {
		dst.Security.RateLimit.RPS = src.Security.RateLimit.RPS
	}
	if src.Security.RateLimit.Burst != 0 {
		dst.Security.RateLimit.Burst = src.Security.RateLimit.Burst
	}
	if len(src.Security.IPWhitelist) > 0 {
		dst.Security.IPWhitelist = src.Security.IPWhitelist
	}
	if len(src.Security.APIKeys.Backend) > 0 {
		dst.Security.APIKeys.Backend = src.Security.APIKeys.Backend
	}
	if len(src.Security.APIKeys.Frontend) > 0 {
		dst.Security.APIKeys.Frontend = src.Security.APIKeys.Frontend
	}
	if len(src.Security.APIKeys.Admin) > 0 {
		dst.Security.APIKeys.Admin = src.Security.APIKeys.Admin
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Fanout.SessionBuffer != 0 {
		dst.Fanout.SessionBuffer = src.Fanout.SessionBuffer
	}
	if src.Fanout.MaxSubscriptionsPerSession != 0 {
		dst.Fanout.MaxSubscriptionsPerSession = src.Fanout.MaxSubscriptionsPerSession
	}
	if src.Fanout.MaxFrameBytes != 0 {
		dst.Fanout.MaxFrameBytes = src.Fanout.MaxFrameBytes
	}
	if src.Fanout.PingInterval != 0 {
		dst.Fanout.PingInterval = src.Fanout.PingInterval
	}
	if src.Activity.AutoLog != nil {
		dst.Activity.AutoLog = src.Activity.AutoLog
	}
	if src.Maintenance.Enabled {
		dst.Maintenance.Enabled = true
	}
	if src.Maintenance.Cron != "" {
		dst.Maintenance.Cron = src.Maintenance.Cron
	}
	if src.Telemetry.SlowThreshold != 0 {
		dst.Telemetry.SlowThreshold = src.Telemetry.SlowThreshold
	}
}
