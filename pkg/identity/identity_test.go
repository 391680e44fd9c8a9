package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallerRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ok := From(ctx)
	assert.False(t, ok)
	assert.Equal(t, "", Token(ctx))

	ctx = With(ctx, Caller{Token: "idp|42", SessionID: "s1", Role: RoleFrontend})
	c, ok := From(ctx)
	assert.True(t, ok)
	assert.Equal(t, "idp|42", c.Token)
	assert.Equal(t, "s1", SessionID(ctx))
	assert.Equal(t, "frontend", c.Role.String())
}

func TestCallerIsolatedPerContext(t *testing.T) {
	base := context.Background()
	a := With(base, Caller{Token: "a"})
	b := With(base, Caller{Token: "b"})
	assert.Equal(t, "a", Token(a))
	assert.Equal(t, "b", Token(b))
}
