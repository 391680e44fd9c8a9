package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"

	"github.com/SHAIKYASIR/skillsync/pkg/store"
)

// Handler runs one named mutation from raw JSON arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Dispatcher routes mutation names received over the sync protocol.
type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) RegisterHandler(name string, h Handler) {
	d.handlers[name] = h
}

// Names lists the registered mutation names.
func (d *Dispatcher) Names() []string {
	out := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is a registered mutation.
func (d *Dispatcher) Has(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

// Dispatch runs the mutation called name.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	h, ok := d.handlers[name]
	if !ok {
		return nil, store.Validationf("unknown mutation %q", name)
	}
	return h(ctx, args)
}

// RegisterDefaultHandlers wires every client-facing mutation of m. The
// billing callback is HTTP only and not registered here.
func RegisterDefaultHandlers(d *Dispatcher, m *Service) {
	d.RegisterHandler("storeUser", func(ctx context.Context, args json.RawMessage) (any, error) {
		var a struct {
			Email string `json:"email"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return m.StoreUser(ctx, a.Email)
	})
	d.RegisterHandler("createProject", func(ctx context.Context, args json.RawMessage) (any, error) {
		var a struct {
			Name    string `json:"name"`
			Content string `json:"content"`
			OwnerID string `json:"ownerId"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return m.CreateProject(ctx, a.Name, a.Content, a.OwnerID)
	})
	d.RegisterHandler("updateProjectContent", func(ctx context.Context, args json.RawMessage) (any, error) {
		var a struct {
			ID      string  `json:"id"`
			Content *string `json:"content"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.Content == nil {
			return nil, store.Validationf("content is required")
		}
		return nil, m.UpdateProjectContent(ctx, a.ID, *a.Content)
	})
	d.RegisterHandler("updateProjectStatus", func(ctx context.Context, args json.RawMessage) (any, error) {
		var a struct {
			ID               string   `json:"id"`
			CompletionStatus *float64 `json:"completionStatus"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		if a.CompletionStatus == nil {
			return nil, store.Validationf("completionStatus is required")
		}
		return nil, m.UpdateProjectStatus(ctx, a.ID, *a.CompletionStatus)
	})
	d.RegisterHandler("sendMessage", func(ctx context.Context, args json.RawMessage) (any, error) {
		var a struct {
			ProjectID string `json:"projectId"`
			Content   string `json:"content"`
			SenderID  string `json:"senderId"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return m.SendMessage(ctx, a.ProjectID, a.Content, a.SenderID)
	})
	d.RegisterHandler("logActivity", func(ctx context.Context, args json.RawMessage) (any, error) {
		var a struct {
			ProjectID    string `json:"projectId"`
			UserID       string `json:"userId"`
			ActivityType string `json:"activityType"`
			Text         string `json:"text"`
		}
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		return m.LogActivity(ctx, a.ProjectID, a.UserID, a.ActivityType, a.Text)
	})
}

func decodeArgs(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return store.Validationf("arguments are required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return store.Validationf("invalid arguments: %v", err)
	}
	return nil
}
