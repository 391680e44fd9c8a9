package query

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/models"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
)

// definition binds a subscribable query name to its argument decoding,
// dependencies and runner.
type definition struct {
	bind func(ctx context.Context, q *Service, args json.RawMessage) (fanout.Spec, error)
}

var definitions = map[string]definition{
	"listProjects": {bind: func(_ context.Context, q *Service, args json.RawMessage) (fanout.Spec, error) {
		if err := decodeArgs(args, &struct{}{}); err != nil {
			return fanout.Spec{}, err
		}
		return fanout.Spec{
			Key:  fanout.Key("listProjects", nil),
			Deps: []fanout.Dependency{{Table: models.Projects}},
			Run:  func(ctx context.Context) (any, error) { return q.ListProjects(ctx) },
		}, nil
	}},
	"listMessages": {bind: func(_ context.Context, q *Service, args json.RawMessage) (fanout.Spec, error) {
		var a projectArgs
		if err := a.decode(args); err != nil {
			return fanout.Spec{}, err
		}
		return fanout.Spec{
			Key:  fanout.Key("listMessages", map[string]string{"projectId": a.ProjectID}),
			Deps: []fanout.Dependency{{Table: models.Messages, Field: "projectId", Value: a.ProjectID}},
			Run:  func(ctx context.Context) (any, error) { return q.ListMessages(ctx, a.ProjectID) },
		}, nil
	}},
	"listActivities": {bind: func(_ context.Context, q *Service, args json.RawMessage) (fanout.Spec, error) {
		var a projectArgs
		if err := a.decode(args); err != nil {
			return fanout.Spec{}, err
		}
		return fanout.Spec{
			Key:  fanout.Key("listActivities", map[string]string{"projectId": a.ProjectID}),
			Deps: []fanout.Dependency{{Table: models.Activities, Field: "projectId", Value: a.ProjectID}},
			Run:  func(ctx context.Context) (any, error) { return q.ListActivities(ctx, a.ProjectID) },
		}, nil
	}},
	"getProject": {bind: func(_ context.Context, q *Service, args json.RawMessage) (fanout.Spec, error) {
		var a struct {
			ID string `json:"id"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return fanout.Spec{}, err
		}
		if a.ID == "" {
			return fanout.Spec{}, store.Validationf("id is required")
		}
		return fanout.Spec{
			Key:  fanout.Key("getProject", map[string]string{"id": a.ID}),
			Deps: []fanout.Dependency{{Table: models.Projects, Field: "id", Value: a.ID}},
			Run:  func(ctx context.Context) (any, error) { return q.GetProject(ctx, a.ID) },
		}, nil
	}},
	"listProjectsByOwner": {bind: func(_ context.Context, q *Service, args json.RawMessage) (fanout.Spec, error) {
		var a struct {
			OwnerID string `json:"ownerId"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return fanout.Spec{}, err
		}
		if a.OwnerID == "" {
			return fanout.Spec{}, store.Validationf("ownerId is required")
		}
		return fanout.Spec{
			Key:  fanout.Key("listProjectsByOwner", map[string]string{"ownerId": a.OwnerID}),
			Deps: []fanout.Dependency{{Table: models.Projects, Field: "ownerId", Value: a.OwnerID}},
			Run:  func(ctx context.Context) (any, error) { return q.ListProjectsByOwner(ctx, a.OwnerID) },
		}, nil
	}},
	"currentUser": {bind: func(ctx context.Context, q *Service, args json.RawMessage) (fanout.Spec, error) {
		if err := decodeArgs(args, &struct{}{}); err != nil {
			return fanout.Spec{}, err
		}
		token := identity.Token(ctx)
		if token == "" {
			return fanout.Spec{}, store.Unauthenticatedf("caller has no identity token")
		}
		// keyed by token so every connection of one user shares the query
		return fanout.Spec{
			Key:  fanout.Key("currentUser", map[string]string{"token": token}),
			Deps: []fanout.Dependency{{Table: models.Users, Field: "tokenIdentifier", Value: token}},
			Run: func(ctx context.Context) (any, error) {
				u, err := q.userBy(ctx, models.ByToken, token)
				if store.IsNotFound(err) {
					// a live view of "me" before the first storeUser is empty, not an error
					return nil, nil
				}
				if err != nil {
					return nil, err
				}
				return u, nil
			},
		}, nil
	}},
}

// Names lists the subscribable query names.
func Names() []string {
	out := make([]string, 0, len(definitions))
	for n := range definitions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is a subscribable query.
func Has(name string) bool {
	_, ok := definitions[name]
	return ok
}

// Resolve implements fanout.Resolver.
func (q *Service) Resolve(ctx context.Context, name string, args json.RawMessage) (fanout.Spec, error) {
	def, ok := definitions[name]
	if !ok {
		return fanout.Spec{}, ErrUnknownQuery(name)
	}
	return def.bind(ctx, q, args)
}

// Run resolves and runs a query once, without subscribing.
func (q *Service) Run(ctx context.Context, name string, args json.RawMessage) (any, error) {
	spec, err := q.Resolve(ctx, name, args)
	if err != nil {
		return nil, err
	}
	return spec.Run(ctx)
}

// ErrUnknownQuery is a validation error naming the query.
func ErrUnknownQuery(name string) error {
	return store.Validationf("unknown query %q", name)
}

type projectArgs struct {
	ProjectID string `json:"projectId"`
}

func (a *projectArgs) decode(raw json.RawMessage) error {
	if err := decodeArgs(raw, a); err != nil {
		return err
	}
	if a.ProjectID == "" {
		return store.Validationf("projectId is required")
	}
	return nil
}

// decodeArgs rejects unknown fields; empty or null args decode to zero values.
func decodeArgs(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return store.Validationf("invalid arguments: %v", err)
	}
	return nil
}
