package router

import (
	"encoding/json"
	"testing"

	"github.com/SHAIKYASIR/skillsync/pkg/store"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func request(method, uri string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	return ctx
}

func TestRouterParams(t *testing.T) {
	r := New()
	var got string
	r.GET("/v1/projects/{id}/messages", func(ctx *fasthttp.RequestCtx) {
		got = PathParam(ctx, "id")
	})

	r.Handler(request("GET", "/v1/projects/p1/messages"))
	assert.Equal(t, "p1", got)

	ctx := request("GET", "/v1/projects//messages")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}

func TestRouterMethodNotAllowed(t *testing.T) {
	r := New()
	noop := func(*fasthttp.RequestCtx) {}
	r.GET("/v1/projects", noop)
	r.POST("/v1/projects", noop)

	ctx := request("DELETE", "/v1/projects")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Equal(t, "GET, POST", string(ctx.Response.Header.Peek("Allow")))
}

func TestRouterNotFoundHandler(t *testing.T) {
	r := New()
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
	ctx := request("GET", "/nope")
	r.Handler(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"not found"}`, string(ctx.Response.Body()))
}

func TestWriteErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{store.Validationf("bad"), fasthttp.StatusBadRequest, "validation"},
		{store.NotFoundf("gone"), fasthttp.StatusNotFound, "not_found"},
		{store.Unauthenticatedf("who"), fasthttp.StatusUnauthorized, "unauthenticated"},
		{store.Storage(errors.New("disk"), "write"), fasthttp.StatusServiceUnavailable, "storage"},
		{errors.New("plain"), fasthttp.StatusServiceUnavailable, "storage"},
	}
	for _, tc := range cases {
		ctx := request("GET", "/")
		WriteError(ctx, tc.err)
		assert.Equal(t, tc.status, ctx.Response.StatusCode())
		var body map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
		assert.Equal(t, tc.code, body["code"])
	}
}
