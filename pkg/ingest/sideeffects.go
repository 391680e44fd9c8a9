package ingest

import (
	"context"
	"strconv"

	"github.com/SHAIKYASIR/skillsync/pkg/models"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"

	"github.com/prometheus/client_golang/prometheus"
)

var sideEffectFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "skillsync_activity_side_effect_failures_total",
	Help: "Activity appends that failed after their triggering mutation committed.",
}, []string{"trigger"})

func init() {
	prometheus.MustRegister(sideEffectFailures)
}

// sideEffect appends an activity after trigger has committed. The append is
// independent of the trigger: a failure is recorded and never returned.
func (m *Service) sideEffect(ctx context.Context, trigger, projectID, userID, activityType, text string) {
	if !m.opts.AutoLog {
		return
	}
	// the trigger is already acknowledged in the store; finish even if the
	// request goes away
	ctx = context.WithoutCancel(ctx)
	if _, err := m.appendActivity(ctx, projectID, userID, activityType, text); err != nil {
		sideEffectFailures.WithLabelValues(trigger).Inc()
		logger.Error("activity_side_effect_failed", "trigger", trigger, "project", projectID, "error", err)
		fields := map[string]any{
			"projectId":    projectID,
			"userId":       userID,
			"activityType": activityType,
			"text":         text,
		}
		if werr := m.opts.SideEffects.Write(trigger, models.Activities, fields, err); werr != nil {
			logger.Error("side_effect_record_failed", "trigger", trigger, "error", werr)
		}
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
