// Package ingest implements the mutations. Each one validates its input,
// commits through the store and publishes the change to live queries before
// returning, so the caller's own subscriptions already reflect the write when
// the reply is sent.
package ingest

import (
	"context"
	"strings"

	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/models"
	"github.com/SHAIKYASIR/skillsync/pkg/state"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/telemetry"
)

// Publisher receives every committed change. *fanout.Hub satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ch fanout.Change)
}

type Options struct {
	// AutoLog appends an activity row after project and message writes.
	AutoLog bool
	// SideEffects records activity appends that failed after their trigger
	// committed. May be nil.
	SideEffects *state.FailedSideEffectWriter
}

type Service struct {
	store *store.Store
	pub   Publisher
	opts  Options
}

func New(s *store.Store, pub Publisher, opts Options) *Service {
	return &Service{store: s, pub: pub, opts: opts}
}

// StoreUser creates the caller's user row or updates its email.
func (m *Service) StoreUser(ctx context.Context, email string) (string, error) {
	tr := telemetry.Track("ingest.storeUser")
	defer tr.Finish()

	token := identity.Token(ctx)
	if token == "" {
		return "", store.Unauthenticatedf("storeUser requires an identity token")
	}
	if strings.TrimSpace(email) == "" {
		return "", store.Validationf("email is required")
	}
	id, created, err := m.store.Upsert(ctx, models.Users, models.ByToken, token,
		map[string]any{"tokenIdentifier": token, "email": email},
		map[string]any{"email": email},
	)
	if err != nil {
		return "", err
	}
	tr.Mark("commit")
	if created {
		logger.Info("user_created", "id", id)
	}
	if err := m.publishUser(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateSubscription records the billing subscription of the user holding
// tokenIdentifier. A previous subscription id is replaced.
func (m *Service) UpdateSubscription(ctx context.Context, tokenIdentifier, subscriptionID string, endsOn int64) (string, error) {
	tr := telemetry.Track("ingest.updateSubscription")
	defer tr.Finish()

	if tokenIdentifier == "" {
		return "", store.Validationf("tokenIdentifier is required")
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return "", store.Validationf("subscriptionId is required")
	}
	row, err := m.store.Lookup(ctx, models.Users, models.ByToken, tokenIdentifier)
	if err != nil {
		return "", err
	}
	id := row.ID()
	if err := m.store.Patch(ctx, models.Users, id, map[string]any{
		"subscriptionId":     subscriptionID,
		"subscriptionEndsOn": endsOn,
	}); err != nil {
		return "", err
	}
	// the previous subscription id's watchers need the change too
	if prev := row.String("subscriptionId"); prev != "" && prev != subscriptionID {
		m.pub.Publish(ctx, fanout.Change{Table: models.Users, ID: id, Fields: map[string]string{
			"id": id, "tokenIdentifier": tokenIdentifier, "subscriptionId": prev,
		}})
	}
	if err := m.publishUser(ctx, id); err != nil {
		return "", err
	}
	logger.Info("subscription_updated", "user", id, "subscription", subscriptionID, "ends_on", endsOn)
	return id, nil
}

func (m *Service) publishUser(ctx context.Context, id string) error {
	row, err := m.store.Get(ctx, models.Users, id)
	if err != nil {
		return err
	}
	m.pub.Publish(ctx, fanout.Change{Table: models.Users, ID: id, Fields: map[string]string{
		"id":              id,
		"tokenIdentifier": row.String("tokenIdentifier"),
		"subscriptionId":  row.String("subscriptionId"),
	}})
	return nil
}

// CreateProject inserts a project with completionStatus 0.
func (m *Service) CreateProject(ctx context.Context, name, content, ownerID string) (string, error) {
	tr := telemetry.Track("ingest.createProject")
	defer tr.Finish()

	if strings.TrimSpace(name) == "" {
		return "", store.Validationf("name is required")
	}
	if strings.TrimSpace(ownerID) == "" {
		return "", store.Validationf("ownerId is required")
	}
	id, err := m.store.Insert(ctx, models.Projects, map[string]any{
		"name":             name,
		"content":          content,
		"ownerId":          ownerID,
		"completionStatus": 0,
	})
	if err != nil {
		return "", err
	}
	tr.Mark("commit")
	m.publishProject(ctx, id, ownerID)
	m.sideEffect(ctx, "createProject", id, ownerID, models.ActivityProjectCreated, "created project "+name)
	return id, nil
}

// UpdateProjectContent replaces the whiteboard content. Concurrent writers
// resolve last-writer-wins.
func (m *Service) UpdateProjectContent(ctx context.Context, id, content string) error {
	tr := telemetry.Track("ingest.updateProjectContent")
	defer tr.Finish()

	ownerID, err := m.patchProject(ctx, id, map[string]any{"content": content})
	if err != nil {
		return err
	}
	tr.Mark("commit")
	m.publishProject(ctx, id, ownerID)
	m.sideEffect(ctx, "updateProjectContent", id, m.actor(ctx), models.ActivityContentUpdated, "updated the project content")
	return nil
}

// UpdateProjectStatus sets completionStatus. The value is stored as given.
func (m *Service) UpdateProjectStatus(ctx context.Context, id string, completionStatus float64) error {
	tr := telemetry.Track("ingest.updateProjectStatus")
	defer tr.Finish()

	ownerID, err := m.patchProject(ctx, id, map[string]any{"completionStatus": completionStatus})
	if err != nil {
		return err
	}
	tr.Mark("commit")
	m.publishProject(ctx, id, ownerID)
	m.sideEffect(ctx, "updateProjectStatus", id, m.actor(ctx), models.ActivityStatusUpdated,
		"set completion to "+formatNumber(completionStatus))
	return nil
}

// patchProject patches an existing project and returns its owner.
func (m *Service) patchProject(ctx context.Context, id string, partial map[string]any) (string, error) {
	if id == "" {
		return "", store.Validationf("id is required")
	}
	if err := m.store.Patch(ctx, models.Projects, id, partial); err != nil {
		return "", err
	}
	row, err := m.store.Get(ctx, models.Projects, id)
	if err != nil {
		return "", err
	}
	return row.String("ownerId"), nil
}

func (m *Service) publishProject(ctx context.Context, id, ownerID string) {
	m.pub.Publish(ctx, fanout.Change{Table: models.Projects, ID: id, Fields: map[string]string{
		"id":      id,
		"ownerId": ownerID,
	}})
}

// SendMessage appends a chat message. Content is stored as given but must not
// be blank.
func (m *Service) SendMessage(ctx context.Context, projectID, content, senderID string) (string, error) {
	tr := telemetry.Track("ingest.sendMessage")
	defer tr.Finish()

	if strings.TrimSpace(content) == "" {
		return "", store.Validationf("message content is empty")
	}
	if strings.TrimSpace(senderID) == "" {
		return "", store.Validationf("senderId is required")
	}
	if err := m.requireProject(ctx, projectID); err != nil {
		return "", err
	}
	id, err := m.store.Insert(ctx, models.Messages, map[string]any{
		"projectId": projectID,
		"senderId":  senderID,
		"content":   content,
	})
	if err != nil {
		return "", err
	}
	tr.Mark("commit")
	m.pub.Publish(ctx, fanout.Change{Table: models.Messages, ID: id, Fields: map[string]string{
		"id":        id,
		"projectId": projectID,
	}})
	m.sideEffect(ctx, "sendMessage", projectID, senderID, models.ActivityMessageSent, "sent a message")
	return id, nil
}

// LogActivity appends an activity entry with a client supplied type and text.
func (m *Service) LogActivity(ctx context.Context, projectID, userID, activityType, text string) (string, error) {
	tr := telemetry.Track("ingest.logActivity")
	defer tr.Finish()

	if strings.TrimSpace(userID) == "" {
		return "", store.Validationf("userId is required")
	}
	if !validActivityType(activityType) {
		return "", store.Validationf("activityType must be 1-%d characters of [a-z0-9_]", maxActivityTypeLen)
	}
	if err := m.requireProject(ctx, projectID); err != nil {
		return "", err
	}
	return m.appendActivity(ctx, projectID, userID, activityType, text)
}

func (m *Service) appendActivity(ctx context.Context, projectID, userID, activityType, text string) (string, error) {
	id, err := m.store.Insert(ctx, models.Activities, map[string]any{
		"projectId":    projectID,
		"userId":       userID,
		"activityType": activityType,
		"text":         text,
	})
	if err != nil {
		return "", err
	}
	m.pub.Publish(ctx, fanout.Change{Table: models.Activities, ID: id, Fields: map[string]string{
		"id":        id,
		"projectId": projectID,
	}})
	return id, nil
}

func (m *Service) requireProject(ctx context.Context, projectID string) error {
	if projectID == "" {
		return store.Validationf("projectId is required")
	}
	_, err := m.store.Get(ctx, models.Projects, projectID)
	return err
}

// actor names the caller in activity rows: their user id when the token is
// known, otherwise "anonymous".
func (m *Service) actor(ctx context.Context) string {
	token := identity.Token(ctx)
	if token == "" {
		return anonymous
	}
	row, err := m.store.Lookup(ctx, models.Users, models.ByToken, token)
	if err != nil {
		return anonymous
	}
	return row.ID()
}

const anonymous = "anonymous"

const maxActivityTypeLen = 64

func validActivityType(t string) bool {
	if t == "" || len(t) > maxActivityTypeLen {
		return false
	}
	for _, r := range t {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
