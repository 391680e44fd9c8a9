package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/state"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store/db"
	"github.com/SHAIKYASIR/skillsync/pkg/telemetry"

	"github.com/valyala/fasthttp"
)

// Components are the running pieces torn down by ShutdownApp. Nil fields
// are skipped.
type Components struct {
	HTTP        *fasthttp.Server
	Gateway     interface{ Close() }
	Maintenance context.CancelFunc
	Hub         *fanout.Hub
	DB          *db.DB
	SideEffects *state.FailedSideEffectWriter
}

// ShutdownApp stops components in dependency order: no new requests, then
// no background jobs, then live connections, then storage.
func ShutdownApp(ctx context.Context, c Components) error {
	logger.Info("shutdown_requested")
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if c.HTTP != nil {
		logger.Info("shutdown_stopping_http")
		if err := c.HTTP.ShutdownWithContext(ctx); err != nil {
			logger.Error("shutdown_http_failed", "error", err)
			keep(err)
		}
	}
	if c.Gateway != nil {
		c.Gateway.Close()
	}

	if c.Maintenance != nil {
		logger.Info("shutdown_stopping_maintenance")
		c.Maintenance()
	}

	// websocket connections are hijacked, so the HTTP server no longer owns them
	if c.Hub != nil {
		logger.Info("shutdown_closing_sessions", "sessions", c.Hub.Stats().Sessions)
		c.Hub.Close()
	}

	if c.DB != nil {
		logger.Info("shutdown_syncing_store")
		if err := c.DB.Flush(); err != nil {
			logger.Error("shutdown_store_flush_failed", "error", err)
			keep(err)
		}
		logger.Info("shutdown_closing_store")
		if err := c.DB.Close(); err != nil {
			logger.Error("shutdown_store_close_failed", "error", err)
			keep(err)
		}
	}

	if c.SideEffects != nil {
		if err := c.SideEffects.Close(); err != nil {
			logger.Error("shutdown_side_effect_log_close_failed", "error", err)
			keep(err)
		}
	}

	logger.Info("shutdown_closing_telemetry")
	telemetry.Close()

	logger.Info("shutdown_complete")
	return firstErr
}

// SetupSignalHandler returns a context cancelled on SIGINT or SIGTERM. A
// SIGPIPE dumps goroutine stacks before cancelling.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigc)
	}()

	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigpipe)
	}()

	return ctx, cancel
}

// Abort reports a fatal startup error and exits. Once the state directories
// exist a crash dump is written there.
func Abort(msg string, err error, dbPath string) {
	logger.Error("fatal", "msg", msg, "error", err, "db_path", dbPath)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	if state.PathsVar.Crash != "" {
		state.Crash(msg, err)
	}
	os.Exit(1)
}
