package fanout

import (
	"context"
	"encoding/json"
	"net/url"
)

// Dependency names the rows a live query reads. Field "" means the whole
// table; otherwise rows of Table whose Field equals Value.
type Dependency struct {
	Table string
	Field string
	Value string
}

// Change describes one committed write. Fields holds the values of the
// written row that queries may depend on (always including "id").
type Change struct {
	Table  string
	ID     string
	Fields map[string]string
}

// deps lists every dependency the change can satisfy.
func (c Change) deps() []Dependency {
	out := make([]Dependency, 0, len(c.Fields)+2)
	out = append(out, Dependency{Table: c.Table})
	out = append(out, Dependency{Table: c.Table, Field: "id", Value: c.ID})
	for f, v := range c.Fields {
		if f == "id" {
			continue
		}
		out = append(out, Dependency{Table: c.Table, Field: f, Value: v})
	}
	return out
}

// Spec is a resolved, runnable query bound to concrete arguments.
type Spec struct {
	// Key identifies the query and its canonical arguments. Two subscriptions
	// with equal keys share one live query.
	Key  string
	Deps []Dependency
	Run  func(ctx context.Context) (any, error)
}

// Resolver turns a query name and raw JSON arguments into a Spec. The
// caller in ctx may be part of the key (queries about "me").
type Resolver interface {
	Resolve(ctx context.Context, name string, args json.RawMessage) (Spec, error)
}

// Key builds a canonical live query key: name, then sorted escaped args.
func Key(name string, args map[string]string) string {
	if len(args) == 0 {
		return name
	}
	v := url.Values{}
	for k, a := range args {
		v.Set(k, a)
	}
	return name + "?" + v.Encode()
}

// Frame is the unit written to a session. Replies to requests and pushed
// updates share one queue so a connection sees them in commit order.
type Frame struct {
	Type           string          `json:"type"`
	RequestID      string          `json:"request_id,omitempty"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Version        uint64          `json:"version,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
	Error          *FrameError     `json:"error,omitempty"`
}

type FrameError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Frame types.
const (
	TypeResult = "result"
	TypeError  = "error"
	TypeUpdate = "update"
)
