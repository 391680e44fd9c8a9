package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAndResolve(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	content := []byte(`server:
  address: 127.0.0.1
  port: 9090
  max_request_body: 2MB
  read_timeout: 3s
logging:
  level: debug
fanout:
  ping_interval: 5
activity:
  auto_log: false
`)
	require.NoError(t, os.WriteFile(p, content, 0o600))

	c, err := LoadConfigFile(p)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, int64(2_000_000), c.Server.MaxRequestBody.Int64())
	assert.Equal(t, 3*time.Second, c.Server.ReadTimeout.Duration())
	assert.Equal(t, 5*time.Second, c.Fanout.PingInterval.Duration())
	assert.False(t, c.Activity.AutoLogEnabled())

	t.Setenv("SKILLSYNC_CONFIG", p)
	assert.Equal(t, p, ResolveConfigPath("/nope", false))
	assert.Equal(t, "/explicit", ResolveConfigPath("/explicit", true))
}

func TestLoadConfigFileMalformed(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(p, []byte("server: [::"), 0o600))
	_, err := LoadConfigFile(p)
	assert.Error(t, err)
}

func TestValidateConfigDefaults(t *testing.T) {
	var c Config
	require.NoError(t, c.ValidateConfig())

	assert.Equal(t, defaultDBPath, c.Server.DBPath)
	assert.Equal(t, "0.0.0.0:8080", c.Addr())
	assert.Equal(t, defaultSessionBuffer, c.Fanout.SessionBuffer)
	assert.Equal(t, defaultMaintenanceCron, c.Maintenance.Cron)
	assert.Equal(t, "info", c.Logging.Level)
	assert.True(t, c.Activity.AutoLogEnabled())
}

func TestValidateConfigRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"port":   func(c *Config) { c.Server.Port = 70000 },
		"cron":   func(c *Config) { c.Maintenance.Cron = "every tuesday" },
		"buffer": func(c *Config) { c.Fanout.SessionBuffer = maxSessionBuffer + 1 },
		"pong": func(c *Config) {
			c.Fanout.PingInterval = Duration(time.Minute)
			c.Fanout.PongTimeout = Duration(time.Second)
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			var c Config
			mutate(&c)
			assert.Error(t, c.ValidateConfig())
		})
	}
}

func TestParseConfigEnvs(t *testing.T) {
	env := map[string]string{
		"SKILLSYNC_SERVER_PORT":          "7070",
		"SKILLSYNC_API_BACKEND_KEYS":     "sk_a, sk_b ,",
		"SKILLSYNC_ACTIVITY_AUTO_LOG":    "no",
		"SKILLSYNC_FANOUT_PING_INTERVAL": "2s",
	}
	cfg, res := parseConfigEnvs(func(k string) string { return env[k] })
	assert.True(t, res.EnvUsed)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"sk_a", "sk_b"}, cfg.Security.APIKeys.Backend)
	require.NotNil(t, cfg.Activity.AutoLog)
	assert.False(t, *cfg.Activity.AutoLog)
	assert.Equal(t, 2*time.Second, cfg.Fanout.PingInterval.Duration())

	_, res = parseConfigEnvs(func(string) string { return "" })
	assert.False(t, res.EnvUsed)
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := ParseConfigFlagSet(fs, []string{"-addr", "127.0.0.1:9999"})

	file := &Config{}
	file.Server.Port = 1111
	file.Server.DBPath = "/from/file"
	file.Logging.Level = "debug"

	env := &Config{}
	env.Server.DBPath = "/from/env"

	eff, err := LoadEffectiveConfig(flags, file, true, env, EnvResult{EnvUsed: true})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", eff.Addr)
	assert.Equal(t, "/from/env", eff.DBPath)
	assert.Equal(t, "debug", eff.Config.Logging.Level)
	assert.Equal(t, "config+env+flags", eff.Source)
}

func TestLoadEffectiveConfigBadAddr(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags := ParseConfigFlagSet(fs, []string{"-addr", "nonsense"})
	_, err := LoadEffectiveConfig(flags, nil, false, nil, EnvResult{})
	assert.Error(t, err)
}
