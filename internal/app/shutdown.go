package app

import (
	"context"

	"github.com/SHAIKYASIR/skillsync/pkg/state/shutdown"
)

func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	err := shutdown.ShutdownApp(ctx, shutdown.Components{
		HTTP:        a.srvFast,
		Gateway:     a.gateway,
		Maintenance: a.maintCancel,
		Hub:         a.hub,
		DB:          a.db,
		SideEffects: a.sideEffects,
	})
	if err == nil {
		a.state = "stopped"
	}
	return err
}
