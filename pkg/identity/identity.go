// Package identity carries the request-scoped caller through context.Context.
// The core never verifies a caller; the HTTP gateway resolves it once per
// request or connection and everything below reads it from ctx.
package identity

import "context"

type Role int

const (
	RoleUnauth Role = iota
	RoleFrontend
	RoleBackend
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

// Caller is the opaque identity attached to a request. Token is the identity
// provider's token identifier and may be empty for anonymous callers.
// SessionID names the live-sync connection the request arrived on, if any.
type Caller struct {
	Token     string
	SessionID string
	Role      Role
}

type ctxKey struct{}

// With returns a copy of ctx carrying c.
func With(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// From returns the caller in ctx and whether one was set.
func From(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

// Token returns the caller's token identifier or "".
func Token(ctx context.Context) string {
	c, _ := From(ctx)
	return c.Token
}

// SessionID returns the originating session id or "".
func SessionID(ctx context.Context) string {
	c, _ := From(ctx)
	return c.SessionID
}
