package main

import (
	"context"
	"runtime"
	"time"

	"github.com/SHAIKYASIR/skillsync/internal/app"
	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/state"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/state/shutdown"

	"github.com/joho/godotenv"
)

// set build metadata
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	// load .env file if present
	_ = godotenv.Load(".env")

	flags := config.ParseConfigFlags()

	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		shutdown.Abort("failed to load config file", err, flags.DB)
	}

	envCfg, envRes := config.ParseConfigEnvs()

	// merges and validates
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		shutdown.Abort("invalid configuration", err, flags.DB)
	}

	// initialize logger after config is fully loaded
	logger.Init(eff.Config.Logging.Level)
	defer logger.Sync()

	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "db_path", eff.DBPath)
	logger.Info("system_logical_cores", "logical_cores", runtime.NumCPU())

	if err := state.Init(eff.DBPath); err != nil {
		shutdown.Abort("failed to ensure state directories under "+eff.DBPath, err, eff.DBPath)
	}

	a, err := app.New(eff, version, commit, buildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err, eff.DBPath)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("app run failed", err, eff.DBPath)
	}

	// bounded so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()
	_ = a.Shutdown(shutdownCtx)
}
