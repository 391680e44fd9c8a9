package auth

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func testSecConfig() SecConfig {
	return SecConfig{
		RPS:            100,
		Burst:          100,
		AllowedOrigins: []string{"https://app.example"},
		BackendKeys:    map[string]struct{}{"bk": {}},
		FrontendKeys:   map[string]struct{}{"fk": {}},
		AdminKeys:      map[string]struct{}{"ak": {}},
	}
}

func newCtx(method, uri string, headers map[string]string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 4000}, nil)
	return ctx
}

// run passes ctx through the gateway and returns the caller seen by the
// handler, or ok=false when the gateway rejected the request.
func run(t *testing.T, g *Gateway, ctx *fasthttp.RequestCtx) (identity.Caller, bool) {
	t.Helper()
	var seen identity.Caller
	reached := false
	g.Wrap(func(ctx *fasthttp.RequestCtx) {
		reached = true
		seen = CallerFrom(ctx)
	})(ctx)
	return seen, reached
}

func TestGatewayRoles(t *testing.T) {
	config.SetRuntime(&config.RuntimeConfig{SigningKeys: map[string]struct{}{"bk": {}}})
	g := NewGateway(testSecConfig())
	defer g.Close()

	cases := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		status  int
		role    identity.Role
	}{
		{"health is public", "GET", "/healthz", nil, 0, identity.RoleUnauth},
		{"missing key", "GET", "/v1/projects", nil, fasthttp.StatusUnauthorized, 0},
		{"unknown key", "GET", "/v1/projects", map[string]string{"X-API-Key": "zz"}, fasthttp.StatusUnauthorized, 0},
		{"frontend anonymous", "GET", "/v1/projects", map[string]string{"Authorization": "Bearer fk"}, 0, identity.RoleFrontend},
		{"frontend cannot sign", "POST", "/v1/_sign", map[string]string{"X-API-Key": "fk"}, fasthttp.StatusForbidden, 0},
		{"frontend cannot bill", "PUT", "/v1/users/subscription", map[string]string{"X-API-Key": "fk"}, fasthttp.StatusForbidden, 0},
		{"backend no admin", "GET", "/admin/stats", map[string]string{"X-API-Key": "bk"}, fasthttp.StatusForbidden, 0},
		{"admin only admin", "GET", "/v1/projects", map[string]string{"X-API-Key": "ak"}, fasthttp.StatusForbidden, 0},
		{"admin ok", "GET", "/admin/stats", map[string]string{"X-API-Key": "ak"}, 0, identity.RoleAdmin},
		{"backend ok", "POST", "/v1/projects", map[string]string{"X-API-Key": "bk"}, 0, identity.RoleBackend},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := newCtx(tc.method, tc.path, tc.headers)
			c, ok := run(t, g, ctx)
			if tc.status != 0 {
				assert.False(t, ok)
				assert.Equal(t, tc.status, ctx.Response.StatusCode())
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.role, c.Role)
		})
	}
}

func TestGatewaySignedFrontendCaller(t *testing.T) {
	config.SetRuntime(&config.RuntimeConfig{SigningKeys: map[string]struct{}{"bk": {}}})
	g := NewGateway(testSecConfig())
	defer g.Close()

	sig := CreateHMACSignature("idp|7", "bk")
	c, ok := run(t, g, newCtx("GET", "/v1/users/me", map[string]string{
		"X-API-Key": "fk", "X-User-ID": "idp|7", "X-User-Signature": sig,
	}))
	require.True(t, ok)
	assert.Equal(t, "idp|7", c.Token)

	ctx := newCtx("GET", "/v1/users/me", map[string]string{
		"X-API-Key": "fk", "X-User-ID": "idp|7", "X-User-Signature": "bogus",
	})
	_, ok = run(t, g, ctx)
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())

	ctx = newCtx("GET", "/v1/users/me", map[string]string{"X-API-Key": "fk", "X-User-ID": "idp|7"})
	_, ok = run(t, g, ctx)
	assert.False(t, ok)
	assert.Contains(t, string(ctx.Response.Body()), "missing signature")
}

func TestGatewayBackendTrustsUserHeader(t *testing.T) {
	g := NewGateway(testSecConfig())
	defer g.Close()
	c, ok := run(t, g, newCtx("POST", "/v1/users", map[string]string{"X-API-Key": "bk", "X-User-ID": "idp|9"}))
	require.True(t, ok)
	assert.Equal(t, "idp|9", c.Token)
	assert.Equal(t, "idp|9", identity.Token(Context(newCtxWith(c))))
}

func newCtxWith(c identity.Caller) *fasthttp.RequestCtx {
	ctx := newCtx("GET", "/", nil)
	SetCaller(ctx, c)
	return ctx
}

func TestGatewaySyncQueryCredentials(t *testing.T) {
	config.SetRuntime(&config.RuntimeConfig{SigningKeys: map[string]struct{}{"bk": {}}})
	g := NewGateway(testSecConfig())
	defer g.Close()

	sig := CreateHMACSignature("idp|3", "bk")
	c, ok := run(t, g, newCtx("GET", "/v1/sync?api_key=fk&user_id=idp%7C3&signature="+sig, nil))
	require.True(t, ok)
	assert.Equal(t, identity.RoleFrontend, c.Role)
	assert.Equal(t, "idp|3", c.Token)

	// query credentials are ignored elsewhere
	ctx := newCtx("GET", "/v1/projects?api_key=fk", nil)
	_, ok = run(t, g, ctx)
	assert.False(t, ok)
}

func TestGatewayCORSAndOptions(t *testing.T) {
	g := NewGateway(testSecConfig())
	defer g.Close()
	ctx := newCtx("OPTIONS", "/v1/projects", map[string]string{"Origin": "https://app.example"})
	_, ok := run(t, g, ctx)
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "https://app.example", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))

	ctx = newCtx("OPTIONS", "/v1/projects", map[string]string{"Origin": "https://evil.example"})
	run(t, g, ctx)
	assert.Empty(t, ctx.Response.Header.Peek("Access-Control-Allow-Origin"))
}

func TestGatewayIPWhitelistAndRateLimit(t *testing.T) {
	cfg := testSecConfig()
	cfg.IPWhitelist = []string{"10.0.0.2"}
	g := NewGateway(cfg)
	ctx := newCtx("GET", "/healthz", nil)
	_, ok := run(t, g, ctx)
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	g.Close()

	cfg = testSecConfig()
	cfg.RPS = 0.001
	cfg.Burst = 1
	g = NewGateway(cfg)
	defer g.Close()
	_, ok = run(t, g, newCtx("GET", "/v1/projects", map[string]string{"X-API-Key": "fk"}))
	assert.True(t, ok)
	ctx = newCtx("GET", "/v1/projects", map[string]string{"X-API-Key": "fk"})
	_, ok = run(t, g, ctx)
	assert.False(t, ok)
	assert.Equal(t, fasthttp.StatusTooManyRequests, ctx.Response.StatusCode())
}

func TestSign(t *testing.T) {
	config.SetRuntime(&config.RuntimeConfig{SigningKeys: map[string]struct{}{"bk": {}}})

	ctx := newCtx("POST", "/v1/_sign", nil)
	ctx.Request.SetBodyString(`{"userId":"idp|1"}`)
	SetCaller(ctx, identity.Caller{Role: identity.RoleBackend})
	Sign(ctx)
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var out map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	assert.Equal(t, "idp|1", out["userId"])
	assert.True(t, VerifyHMACSignature("idp|1", out["signature"]))

	ctx = newCtx("POST", "/v1/_sign", nil)
	ctx.Request.SetBodyString(`{"userId":""}`)
	SetCaller(ctx, identity.Caller{Role: identity.RoleBackend})
	Sign(ctx)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = newCtx("POST", "/v1/_sign", nil)
	SetCaller(ctx, identity.Caller{Role: identity.RoleFrontend})
	Sign(ctx)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}
