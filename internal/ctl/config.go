package ctl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"golang.org/x/term"
)

const configFileName = ".skillsyncctl.yaml"

// Config holds connection settings shared by the networked commands.
type Config struct {
	Addr      string `yaml:"addr" json:"addr"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	UserID    string `yaml:"user_id" json:"user_id"`
	Signature string `yaml:"signature,omitempty" json:"signature,omitempty"`
}

// DefaultConfigPath is $HOME/.skillsyncctl.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return configFileName
	}
	return filepath.Join(home, configFileName)
}

// LoadConfig reads path. A missing file at the default location yields an
// empty config; a missing explicit path is an error.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnv lets SKILLSYNC_ADDR, SKILLSYNC_API_KEY and SKILLSYNC_USER_ID
// override the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SKILLSYNC_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SKILLSYNC_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("SKILLSYNC_USER_ID"); v != "" {
		c.UserID = v
	}
}

// fillMissing prompts for the API key when stdin is a terminal.
func (c *Config) fillMissing(in io.Reader, out io.Writer) error {
	if c.APIKey != "" {
		return nil
	}
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return errors.New("api key is required (set api_key in the config file or SKILLSYNC_API_KEY)")
	}
	fmt.Fprint(out, "API key: ")
	key, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		// some terminals refuse raw mode; fall back to a plain read
		line, rerr := bufio.NewReader(f).ReadString('\n')
		if rerr != nil && line == "" {
			return fmt.Errorf("failed to read api key: %w", err)
		}
		key = []byte(line)
	}
	c.APIKey = strings.TrimSpace(string(key))
	if c.APIKey == "" {
		return errors.New("api key cannot be empty")
	}
	return nil
}

// httpBase returns Addr with an http scheme.
func (c *Config) httpBase() string {
	addr := strings.TrimRight(c.Addr, "/")
	switch {
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return addr
	case strings.HasPrefix(addr, "ws://"):
		return "http://" + strings.TrimPrefix(addr, "ws://")
	case strings.HasPrefix(addr, "wss://"):
		return "https://" + strings.TrimPrefix(addr, "wss://")
	}
	return "http://" + addr
}

// wsBase returns Addr with a websocket scheme.
func (c *Config) wsBase() string {
	base := c.httpBase()
	if strings.HasPrefix(base, "https://") {
		return "wss://" + strings.TrimPrefix(base, "https://")
	}
	return "ws://" + strings.TrimPrefix(base, "http://")
}
