package query

import (
	"context"

	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/models"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/telemetry"
)

// Service answers the read operations. Every call reads one store snapshot.
type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service {
	return &Service{store: s}
}

// ListProjects returns every project in creation order.
func (q *Service) ListProjects(ctx context.Context) ([]models.Project, error) {
	tr := telemetry.Track("query.listProjects")
	defer tr.Finish()

	rows, err := q.store.Query(ctx, store.Query{Table: models.Projects, Order: store.Asc})
	if err != nil {
		return nil, err
	}
	return models.FromRows[models.Project](rows)
}

// ListMessages returns the most recent messages of a project, oldest first,
// so a chat view can render the slice top to bottom.
func (q *Service) ListMessages(ctx context.Context, projectID string) ([]models.Message, error) {
	tr := telemetry.Track("query.listMessages")
	defer tr.Finish()

	if projectID == "" {
		return nil, store.Validationf("projectId is required")
	}
	rows, err := q.store.Query(ctx, store.Query{
		Table: models.Messages,
		Index: models.ByProject,
		Eq:    projectID,
		Order: store.Desc,
		Limit: models.MessageListLimit,
	})
	if err != nil {
		return nil, err
	}
	tr.Mark("scan")
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return models.FromRows[models.Message](rows)
}

// ListActivities returns the most recent activities of a project, newest first.
func (q *Service) ListActivities(ctx context.Context, projectID string) ([]models.Activity, error) {
	tr := telemetry.Track("query.listActivities")
	defer tr.Finish()

	if projectID == "" {
		return nil, store.Validationf("projectId is required")
	}
	rows, err := q.store.Query(ctx, store.Query{
		Table: models.Activities,
		Index: models.ByProject,
		Eq:    projectID,
		Order: store.Desc,
		Limit: models.ActivityListLimit,
	})
	if err != nil {
		return nil, err
	}
	return models.FromRows[models.Activity](rows)
}

func (q *Service) GetProject(ctx context.Context, id string) (models.Project, error) {
	tr := telemetry.Track("query.getProject")
	defer tr.Finish()

	row, err := q.store.Get(ctx, models.Projects, id)
	if err != nil {
		return models.Project{}, err
	}
	return models.FromRow[models.Project](row)
}

// ListProjectsByOwner returns the owner's projects in creation order.
func (q *Service) ListProjectsByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	tr := telemetry.Track("query.listProjectsByOwner")
	defer tr.Finish()

	if ownerID == "" {
		return nil, store.Validationf("ownerId is required")
	}
	rows, err := q.store.Query(ctx, store.Query{
		Table: models.Projects,
		Index: models.ByOwner,
		Eq:    ownerID,
		Order: store.Asc,
	})
	if err != nil {
		return nil, err
	}
	return models.FromRows[models.Project](rows)
}

// CurrentUser returns the user row of the caller in ctx.
func (q *Service) CurrentUser(ctx context.Context) (models.User, error) {
	tr := telemetry.Track("query.currentUser")
	defer tr.Finish()

	token := identity.Token(ctx)
	if token == "" {
		return models.User{}, store.Unauthenticatedf("caller has no identity token")
	}
	return q.userBy(ctx, models.ByToken, token)
}

// UserBySubscription finds the user holding a billing subscription.
func (q *Service) UserBySubscription(ctx context.Context, subscriptionID string) (models.User, error) {
	tr := telemetry.Track("query.userBySubscription")
	defer tr.Finish()

	if subscriptionID == "" {
		return models.User{}, store.Validationf("subscriptionId is required")
	}
	return q.userBy(ctx, models.BySubscriptionID, subscriptionID)
}

func (q *Service) userBy(ctx context.Context, index, value string) (models.User, error) {
	row, err := q.store.Lookup(ctx, models.Users, index, value)
	if err != nil {
		return models.User{}, err
	}
	return models.FromRow[models.User](row)
}

// ExpiredSubscriptions counts users whose subscription ended before nowMS.
func (q *Service) ExpiredSubscriptions(ctx context.Context, nowMS int64) (int, error) {
	rows, err := q.store.Query(ctx, store.Query{
		Table: models.Users,
		Filter: func(r store.Row) bool {
			ends, ok := r["subscriptionEndsOn"].(float64)
			return ok && int64(ends) < nowMS
		},
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
