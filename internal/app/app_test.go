package app

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func TestAppServesAndShutsDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db")
	require.NoError(t, state.Init(dbPath))

	cfg := &config.Config{}
	cfg.Server.DBPath = dbPath
	cfg.Security.APIKeys.Backend = []string{"bk"}
	cfg.Maintenance.Enabled = true
	require.NoError(t, cfg.ValidateConfig())
	eff := config.EffectiveConfigResult{Config: cfg, Addr: cfg.Addr(), DBPath: dbPath, Source: "test"}

	a, err := New(eff, "v-test", "none", "unknown")
	require.NoError(t, err)

	ln := fasthttputil.NewInmemoryListener()
	a.srvFast = &fasthttp.Server{Handler: a.handler()}
	go func() { _ = a.srvFast.Serve(ln) }()
	a.maintCancel = a.maint.Start(context.Background())

	c := &fasthttp.HostClient{Addr: "app.test", Dial: func(string) (net.Conn, error) { return ln.Dial() }}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://app.test/v1/projects")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.Set("Authorization", "Bearer bk")
	req.SetBodyString(`{"name":"P","content":"","ownerId":"u1"}`)
	require.NoError(t, c.DoTimeout(req, resp, 5*time.Second))
	assert.Equal(t, fasthttp.StatusCreated, resp.StatusCode(), string(resp.Body()))

	req.Reset()
	resp.Reset()
	req.SetRequestURI("http://app.test/readyz")
	require.NoError(t, c.DoTimeout(req, resp, 5*time.Second))
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "v-test")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	assert.Equal(t, "stopped", a.state)
	assert.False(t, a.db.Ready())
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(config.EffectiveConfigResult{}, "", "", "")
	assert.Error(t, err)
}
