package api

import (
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/api/auth"
	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/ingest"
	"github.com/SHAIKYASIR/skillsync/pkg/models"
	"github.com/SHAIKYASIR/skillsync/pkg/query"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/store/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const (
	backendKey  = "bk-test"
	frontendKey = "fk-test"
	adminKey    = "ak-test"
)

type testEnv struct {
	ln     *fasthttputil.InmemoryListener
	client *fasthttp.HostClient
	hub    *fanout.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "store"), db.Options{NoSync: true})
	require.NoError(t, err)
	st, err := store.New(d, models.Tables())
	require.NoError(t, err)

	q := query.New(st)
	hub := fanout.NewHub(q, fanout.Options{SessionBuffer: 64})
	m := ingest.New(st, hub, ingest.Options{AutoLog: true})
	disp := ingest.NewDispatcher()
	ingest.RegisterDefaultHandlers(disp, m)

	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: map[string]struct{}{backendKey: {}},
		SigningKeys: map[string]struct{}{backendKey: {}},
	})
	gw := auth.NewGateway(auth.SecConfig{
		RPS:          1000,
		Burst:        1000,
		BackendKeys:  map[string]struct{}{backendKey: {}},
		FrontendKeys: map[string]struct{}{frontendKey: {}},
		AdminKeys:    map[string]struct{}{adminKey: {}},
	})
	srv := &Server{Store: st, Query: q, Ingest: m, Mutations: disp, Hub: hub, Version: "test"}

	ln := fasthttputil.NewInmemoryListener()
	hs := &fasthttp.Server{Handler: srv.Handler(gw)}
	go func() { _ = hs.Serve(ln) }()

	t.Cleanup(func() {
		hub.Close()
		_ = hs.Shutdown()
		gw.Close()
		_ = d.Close()
	})
	return &testEnv{
		ln:  ln,
		hub: hub,
		client: &fasthttp.HostClient{
			Addr: "skillsync.test",
			Dial: func(string) (net.Conn, error) { return ln.Dial() },
		},
	}
}

type header map[string]string

func backendAs(user string) header {
	return header{"X-API-Key": backendKey, "X-User-ID": user}
}

func (e *testEnv) do(t *testing.T, method, path string, h header, body string) (int, []byte) {
	t.Helper()
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI("http://skillsync.test" + path)
	for k, v := range h {
		req.Header.Set(k, v)
	}
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	require.NoError(t, e.client.DoTimeout(req, resp, 5*time.Second))
	return resp.StatusCode(), append([]byte(nil), resp.Body()...)
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestHTTPDemoFlow(t *testing.T) {
	e := newTestEnv(t)
	alice := backendAs("idp|alice")

	code, body := e.do(t, "POST", "/v1/users", alice, `{"email":"alice@example.com"}`)
	require.Equal(t, fasthttp.StatusOK, code, string(body))
	userID := decode[map[string]string](t, body)["id"]
	require.NotEmpty(t, userID)

	code, body = e.do(t, "GET", "/v1/users/me", alice, "")
	require.Equal(t, fasthttp.StatusOK, code)
	assert.Equal(t, "alice@example.com", decode[models.User](t, body).Email)

	code, body = e.do(t, "POST", "/v1/projects", alice, `{"name":"Whiteboard","content":"","ownerId":"`+userID+`"}`)
	require.Equal(t, fasthttp.StatusCreated, code, string(body))
	pid := decode[map[string]string](t, body)["id"]

	code, body = e.do(t, "POST", "/v1/projects/"+pid+"/messages", alice, `{"content":"hi","senderId":"`+userID+`"}`)
	require.Equal(t, fasthttp.StatusCreated, code, string(body))

	code, body = e.do(t, "PUT", "/v1/projects/"+pid+"/content", alice, `{"content":"# plan"}`)
	require.Equal(t, fasthttp.StatusOK, code, string(body))
	assert.Equal(t, "ok", decode[map[string]string](t, body)["status"])

	code, body = e.do(t, "PUT", "/v1/projects/"+pid+"/status", alice, `{"completionStatus":40}`)
	require.Equal(t, fasthttp.StatusOK, code, string(body))

	code, body = e.do(t, "GET", "/v1/projects/"+pid, alice, "")
	require.Equal(t, fasthttp.StatusOK, code)
	p := decode[models.Project](t, body)
	assert.Equal(t, "# plan", p.Content)
	assert.Equal(t, float64(40), p.CompletionStatus)

	code, body = e.do(t, "GET", "/v1/projects/"+pid+"/messages", alice, "")
	require.Equal(t, fasthttp.StatusOK, code)
	msgs := decode[[]models.Message](t, body)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	code, body = e.do(t, "GET", "/v1/projects/"+pid+"/activities", alice, "")
	require.Equal(t, fasthttp.StatusOK, code)
	acts := decode[[]models.Activity](t, body)
	require.Len(t, acts, 4)
	assert.Equal(t, models.ActivityStatusUpdated, acts[0].ActivityType)
	assert.Equal(t, models.ActivityProjectCreated, acts[3].ActivityType)

	code, body = e.do(t, "GET", "/v1/users/"+userID+"/projects", alice, "")
	require.Equal(t, fasthttp.StatusOK, code)
	assert.Len(t, decode[[]models.Project](t, body), 1)

	code, body = e.do(t, "GET", "/v1/projects", header{"X-API-Key": frontendKey}, "")
	require.Equal(t, fasthttp.StatusOK, code)
	assert.Len(t, decode[[]models.Project](t, body), 1)
}

func TestHTTPErrorMapping(t *testing.T) {
	e := newTestEnv(t)
	alice := backendAs("idp|alice")

	_, body := e.do(t, "POST", "/v1/projects", alice, `{"name":"P","content":"","ownerId":"u1"}`)
	pid := decode[map[string]string](t, body)["id"]

	cases := []struct {
		name   string
		method string
		path   string
		h      header
		body   string
		status int
		code   string
	}{
		{"blank message", "POST", "/v1/projects/" + pid + "/messages", alice, `{"content":"  ","senderId":"u1"}`, 400, "validation"},
		{"missing project", "GET", "/v1/projects/nope", alice, "", 404, "not_found"},
		{"message to missing project", "POST", "/v1/projects/nope/messages", alice, `{"content":"x","senderId":"u1"}`, 404, "not_found"},
		{"anonymous storeUser", "POST", "/v1/users", header{"X-API-Key": frontendKey}, `{"email":"a@b.c"}`, 401, "unauthenticated"},
		{"unknown field", "POST", "/v1/projects", alice, `{"name":"P","ownerId":"u1","color":"red"}`, 400, "validation"},
		{"empty body", "PUT", "/v1/projects/" + pid + "/content", alice, "", 400, "validation"},
		{"missing content", "PUT", "/v1/projects/" + pid + "/content", alice, `{}`, 400, "validation"},
		{"no current user", "GET", "/v1/users/me", alice, "", 404, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := e.do(t, tc.method, tc.path, tc.h, tc.body)
			assert.Equal(t, tc.status, status, string(body))
			assert.Equal(t, tc.code, decode[map[string]string](t, body)["code"])
		})
	}

	status, _ := e.do(t, "PUT", "/v1/users/subscription", header{"X-API-Key": frontendKey}, `{}`)
	assert.Equal(t, fasthttp.StatusForbidden, status)
	status, _ = e.do(t, "DELETE", "/v1/projects", alice, "")
	assert.Equal(t, fasthttp.StatusMethodNotAllowed, status)
}

func TestHTTPSubscriptionCallback(t *testing.T) {
	e := newTestEnv(t)
	_, body := e.do(t, "POST", "/v1/users", backendAs("idp|bob"), `{"email":"bob@example.com"}`)
	uid := decode[map[string]string](t, body)["id"]

	status, body := e.do(t, "PUT", "/v1/users/subscription", header{"X-API-Key": backendKey},
		`{"tokenIdentifier":"idp|bob","subscriptionId":"sub_1","endsOn":1893456000000}`)
	require.Equal(t, fasthttp.StatusOK, status, string(body))
	assert.Equal(t, uid, decode[map[string]string](t, body)["id"])

	_, body = e.do(t, "GET", "/v1/users/me", backendAs("idp|bob"), "")
	u := decode[models.User](t, body)
	assert.Equal(t, "sub_1", u.SubscriptionID)
	require.NotNil(t, u.SubscriptionEndsOn)
	assert.Equal(t, int64(1893456000000), *u.SubscriptionEndsOn)

	status, _ = e.do(t, "PUT", "/v1/users/subscription", header{"X-API-Key": backendKey},
		`{"tokenIdentifier":"idp|nobody","subscriptionId":"sub_2","endsOn":1}`)
	assert.Equal(t, fasthttp.StatusNotFound, status)

	status, body = e.do(t, "PUT", "/v1/users/subscription", header{"X-API-Key": backendKey},
		`{"tokenIdentifier":"idp|bob","subscriptionId":"sub_big","endsOn":9007199254740993}`)
	assert.Equal(t, fasthttp.StatusBadRequest, status, string(body))
	_, body = e.do(t, "GET", "/v1/users/me", backendAs("idp|bob"), "")
	assert.Equal(t, "sub_1", decode[models.User](t, body).SubscriptionID)
}

func TestHTTPUserBySubscription(t *testing.T) {
	e := newTestEnv(t)
	_, body := e.do(t, "POST", "/v1/users", backendAs("idp|carol"), `{"email":"carol@example.com"}`)
	uid := decode[map[string]string](t, body)["id"]
	status, body := e.do(t, "PUT", "/v1/users/subscription", header{"X-API-Key": backendKey},
		`{"tokenIdentifier":"idp|carol","subscriptionId":"sub_c","endsOn":1893456000000}`)
	require.Equal(t, fasthttp.StatusOK, status, string(body))

	status, body = e.do(t, "GET", "/v1/users/by-subscription/sub_c", header{"X-API-Key": backendKey}, "")
	require.Equal(t, fasthttp.StatusOK, status, string(body))
	u := decode[models.User](t, body)
	assert.Equal(t, uid, u.ID)
	assert.Equal(t, "carol@example.com", u.Email)

	status, body = e.do(t, "GET", "/v1/users/by-subscription/sub_unknown", header{"X-API-Key": backendKey}, "")
	assert.Equal(t, fasthttp.StatusNotFound, status)
	assert.Equal(t, "not_found", decode[map[string]string](t, body)["code"])

	status, _ = e.do(t, "GET", "/v1/users/by-subscription/sub_c", header{"X-API-Key": frontendKey}, "")
	assert.Equal(t, fasthttp.StatusForbidden, status)
}

func TestHTTPAdminRoutes(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, "POST", "/v1/projects", backendAs("u"), `{"name":"P","content":"","ownerId":"u1"}`)

	status, body := e.do(t, "GET", "/admin/stats", header{"X-API-Key": adminKey}, "")
	require.Equal(t, fasthttp.StatusOK, status, string(body))
	var stats struct {
		Store   store.Stats  `json:"store"`
		Fanout  fanout.Stats `json:"fanout"`
		Queries []string     `json:"queries"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Store.Rows[models.Projects])
	assert.Contains(t, stats.Queries, "listMessages")

	status, _ = e.do(t, "GET", "/healthz", nil, "")
	assert.Equal(t, fasthttp.StatusOK, status)
	status, body = e.do(t, "GET", "/readyz", nil, "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), `"version":"test"`)

	status, body = e.do(t, "GET", "/admin/debug/prometheus", header{"X-API-Key": adminKey}, "")
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Contains(t, string(body), "skillsync_")
}

func TestHTTPAdminMaintenanceDisabled(t *testing.T) {
	e := newTestEnv(t)
	status, body := e.do(t, "POST", "/admin/jobs/maintenance", header{"X-API-Key": adminKey}, "")
	assert.Equal(t, fasthttp.StatusServiceUnavailable, status)
	assert.Contains(t, string(body), "disabled")
}
