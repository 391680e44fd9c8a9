// Package ctl implements skillsyncctl, the operator CLI.
package ctl

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultAddr = "http://localhost:8080"

// NewRootCmd builds the command tree.
func NewRootCmd(version, commit string) *cobra.Command {
	root := &cobra.Command{
		Use:   "skillsyncctl",
		Short: "Operator tool for the skillsync backend",
		Long: `skillsyncctl inspects skillsync databases, follows live project chats
and runs load tests against a running server.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringP("config", "c", "", "config file path (default is $HOME/"+configFileName+")")
	root.PersistentFlags().String("addr", "", "server address (default "+defaultAddr+")")

	root.AddCommand(newInspectCmd(), newWatchCmd(), newBenchCmd())
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(version, commit string) {
	if err := NewRootCmd(version, commit).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves settings from file, environment and flags, in that order.
func loadConfig(cmd *cobra.Command) (*Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:     cmd.ErrOrStderr(),
		NoColor: !term.IsTerminal(int(os.Stderr.Fd())),
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
