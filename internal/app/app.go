// Package app wires the store, the mutation and query layers, live query
// fanout and the HTTP surface into one runnable server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/SHAIKYASIR/skillsync/internal/maintenance"
	"github.com/SHAIKYASIR/skillsync/pkg/api"
	"github.com/SHAIKYASIR/skillsync/pkg/api/auth"
	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/ingest"
	"github.com/SHAIKYASIR/skillsync/pkg/models"
	"github.com/SHAIKYASIR/skillsync/pkg/query"
	"github.com/SHAIKYASIR/skillsync/pkg/state"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/store/db"
	"github.com/SHAIKYASIR/skillsync/pkg/telemetry"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"
)

const (
	telemetryBufferSize    = 64 * 1024
	telemetryQueueCapacity = 4096
	telemetryFlushInterval = time.Second
	telemetryMaxFileSize   = 16 * 1024 * 1024
)

// App groups server state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	db          *db.DB
	store       *store.Store
	hub         *fanout.Hub
	sideEffects *state.FailedSideEffectWriter
	server      *api.Server
	gateway     *auth.Gateway
	maint       *maintenance.Runner

	srvFast     *fasthttp.Server
	maintCancel context.CancelFunc
	state       string
}

// New opens the store and builds every component that does not need a
// running context. state.Init must have run for eff.DBPath.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	cfg := eff.Config
	if cfg == nil {
		return nil, fmt.Errorf("no effective config")
	}
	if state.PathsVar.Store == "" {
		return nil, fmt.Errorf("state paths not initialized")
	}

	config.SetRuntime(config.RuntimeFrom(cfg))

	telemetry.SetSlowThreshold(cfg.Telemetry.SlowThreshold.Duration())
	if err := telemetry.Init(state.PathsVar.Tel, telemetryBufferSize, telemetryQueueCapacity, telemetryFlushInterval, telemetryMaxFileSize); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	d, err := db.Open(state.PathsVar.Store, db.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}
	st, err := store.New(d, models.Tables())
	if err != nil {
		_ = d.Close()
		return nil, err
	}

	q := query.New(st)
	hub := fanout.NewHub(q, fanout.Options{
		SessionBuffer:              cfg.Fanout.SessionBuffer,
		MaxSubscriptionsPerSession: cfg.Fanout.MaxSubscriptionsPerSession,
	})
	sideEffects := state.NewFailedSideEffectWriter(state.PathsVar.SideEffects)
	m := ingest.New(st, hub, ingest.Options{
		AutoLog:     cfg.Activity.AutoLogEnabled(),
		SideEffects: sideEffects,
	})
	mutations := ingest.NewDispatcher()
	ingest.RegisterDefaultHandlers(mutations, m)

	a := &App{
		eff:         eff,
		version:     version,
		commit:      commit,
		buildDate:   buildDate,
		db:          d,
		store:       st,
		hub:         hub,
		sideEffects: sideEffects,
		gateway:     auth.NewGateway(auth.SecConfigFrom(cfg)),
		state:       "initialized",
	}
	a.server = &api.Server{
		Store:     st,
		Query:     q,
		Ingest:    m,
		Mutations: mutations,
		Hub:       hub,
		Version:   version,
		Sync: api.SyncOptions{
			MaxFrameBytes:   cfg.Fanout.MaxFrameBytes.Int64(),
			FramesPerSecond: cfg.Fanout.FramesPerSecond,
			PingInterval:    cfg.Fanout.PingInterval.Duration(),
			PongTimeout:     cfg.Fanout.PongTimeout.Duration(),
		},
	}
	if cfg.Maintenance.Enabled {
		a.maint = maintenance.New(cfg.Maintenance.Cron, st, q)
		a.server.RunMaintenance = func(ctx context.Context) (any, error) {
			return a.maint.RunOnce(ctx)
		}
	}

	logger.LogConfigSummary("config_summary", []string{
		fmt.Sprintf("addr: %s", eff.Addr),
		fmt.Sprintf("db_path: %s", eff.DBPath),
		fmt.Sprintf("max_request_body: %s", humanize.IBytes(uint64(cfg.Server.MaxRequestBody.Int64()))),
		fmt.Sprintf("max_frame: %s", humanize.IBytes(uint64(cfg.Fanout.MaxFrameBytes.Int64()))),
		fmt.Sprintf("session_buffer: %s frames", humanize.Comma(int64(cfg.Fanout.SessionBuffer))),
		fmt.Sprintf("auto_log: %t", cfg.Activity.AutoLogEnabled()),
		fmt.Sprintf("maintenance: %t", cfg.Maintenance.Enabled),
	})
	return a, nil
}

// Run starts maintenance and the HTTP server and blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	if a.maint != nil {
		a.maintCancel = a.maint.Start(ctx)
	} else {
		logger.Info("maintenance_disabled")
	}

	errCh := a.startHTTP(ctx)
	a.state = "running"
	logger.Info("server_started", "addr", a.eff.Addr, "version", a.version)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
