// Package maintenance runs periodic store upkeep on a cron schedule.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/query"
	"github.com/SHAIKYASIR/skillsync/pkg/state"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store"

	"github.com/adhocore/gronx"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
)

// ErrAlreadyRunning is returned by RunOnce while another run is in flight.
var ErrAlreadyRunning = errors.New("maintenance run already in progress")

// Report summarizes one run.
type Report struct {
	StartedAt            time.Time     `json:"started_at"`
	Took                 time.Duration `json:"took_ns"`
	StoreBytes           uint64        `json:"store_bytes"`
	VolumeUsedBytes      uint64        `json:"volume_used_bytes"`
	VolumeTotalBytes     uint64        `json:"volume_total_bytes"`
	ExpiredSubscriptions int           `json:"expired_subscriptions"`
}

type Runner struct {
	cron  string
	store *store.Store
	query *query.Service
	now   func() time.Time

	mu      sync.Mutex
	running bool
}

func New(cron string, st *store.Store, q *query.Service) *Runner {
	return &Runner{cron: cron, store: st, query: q, now: time.Now}
}

// Start runs the schedule until ctx is cancelled or the returned cancel is
// called.
func (r *Runner) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	logger.Info("maintenance_enabled", "cron", r.cron)
	go r.scheduleLoop(ctx)
	return cancel
}

func (r *Runner) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(r.cron, r.now(), false)
		if err != nil {
			logger.Error("maintenance_nexttick_failed", "cron", r.cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				logger.Error("maintenance_run_failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce flushes the store, refreshes disk gauges and reports users whose
// subscription has ended. Subscriptions are only reported; billing owns them.
func (r *Runner) RunOnce(ctx context.Context) (Report, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return Report{}, ErrAlreadyRunning
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	rep := Report{StartedAt: r.now()}
	d := r.store.DB()
	if err := d.Flush(); err != nil {
		return rep, errors.Wrap(err, "flush store")
	}
	rep.StoreBytes = r.store.RefreshDiskGauge()

	used, total, err := state.DiskUsage(d.Path())
	if err != nil {
		logger.Debug("maintenance_disk_usage_unavailable", "error", err)
	} else {
		rep.VolumeUsedBytes, rep.VolumeTotalBytes = used, total
	}

	expired, err := r.query.ExpiredSubscriptions(ctx, rep.StartedAt.UnixMilli())
	if err != nil {
		return rep, errors.Wrap(err, "count expired subscriptions")
	}
	rep.ExpiredSubscriptions = expired
	rep.Took = time.Since(rep.StartedAt)

	logger.Info("maintenance_run_complete",
		"store", humanize.Bytes(rep.StoreBytes),
		"volume_used", humanize.Bytes(rep.VolumeUsedBytes),
		"volume_total", humanize.Bytes(rep.VolumeTotalBytes),
		"expired_subscriptions", rep.ExpiredSubscriptions,
		"took", rep.Took,
	)
	return rep, nil
}
