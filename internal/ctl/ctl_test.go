package ctl

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/api"
	"github.com/SHAIKYASIR/skillsync/pkg/api/auth"
	"github.com/SHAIKYASIR/skillsync/pkg/client"
	"github.com/SHAIKYASIR/skillsync/pkg/config"
	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/ingest"
	"github.com/SHAIKYASIR/skillsync/pkg/models"
	"github.com/SHAIKYASIR/skillsync/pkg/query"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/store/db"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

const testKey = "bk-ctl"

func startServer(t *testing.T) *fasthttputil.InmemoryListener {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "store"), db.Options{NoSync: true})
	require.NoError(t, err)
	st, err := store.New(d, models.Tables())
	require.NoError(t, err)

	q := query.New(st)
	hub := fanout.NewHub(q, fanout.Options{SessionBuffer: 256})
	m := ingest.New(st, hub, ingest.Options{})
	disp := ingest.NewDispatcher()
	ingest.RegisterDefaultHandlers(disp, m)

	config.SetRuntime(&config.RuntimeConfig{
		BackendKeys: map[string]struct{}{testKey: {}},
		SigningKeys: map[string]struct{}{testKey: {}},
	})
	gw := auth.NewGateway(auth.SecConfig{
		RPS:         10000,
		Burst:       10000,
		BackendKeys: map[string]struct{}{testKey: {}},
	})
	srv := &api.Server{Store: st, Query: q, Ingest: m, Mutations: disp, Hub: hub}

	ln := fasthttputil.NewInmemoryListener()
	hs := &fasthttp.Server{Handler: srv.Handler(gw)}
	go func() { _ = hs.Serve(ln) }()
	t.Cleanup(func() {
		hub.Close()
		_ = hs.Shutdown()
		gw.Close()
		_ = d.Close()
	})
	return ln
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "ctl.yaml")
	require.NoError(t, SaveConfig(&Config{Addr: "localhost:9000", APIKey: "k", UserID: "u"}, path))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.Addr)
	assert.Equal(t, "k", cfg.APIKey)

	t.Setenv("SKILLSYNC_API_KEY", "from-env")
	cfg.applyEnv()
	assert.Equal(t, "from-env", cfg.APIKey)
	assert.Equal(t, "u", cfg.UserID)

	require.NoError(t, os.WriteFile(path, []byte("addr: [unterminated"), 0o600))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestFillMissingWithoutTerminal(t *testing.T) {
	cfg := &Config{}
	err := cfg.fillMissing(strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorContains(t, err, "api key is required")

	cfg.APIKey = "set"
	assert.NoError(t, cfg.fillMissing(strings.NewReader(""), &bytes.Buffer{}))
}

func TestAddrSchemes(t *testing.T) {
	cases := []struct {
		addr, http, ws string
	}{
		{"localhost:8080", "http://localhost:8080", "ws://localhost:8080"},
		{"http://h:1/", "http://h:1", "ws://h:1"},
		{"https://h", "https://h", "wss://h"},
		{"ws://h:2", "http://h:2", "ws://h:2"},
		{"wss://h", "https://h", "wss://h"},
	}
	for _, tc := range cases {
		c := &Config{Addr: tc.addr}
		assert.Equal(t, tc.http, c.httpBase(), tc.addr)
		assert.Equal(t, tc.ws, c.wsBase(), tc.addr)
	}
}

func TestInspectDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	d, err := db.Open(path, db.Options{NoSync: true})
	require.NoError(t, err)
	st, err := store.New(d, models.Tables())
	require.NoError(t, err)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err = st.Insert(ctx, models.Projects, map[string]any{"name": "p", "content": "", "ownerId": "u1", "completionStatus": 0})
		require.NoError(t, err)
	}
	require.NoError(t, d.Close())

	var out bytes.Buffer
	require.NoError(t, inspectDatabase(ctx, &out, path))
	text := out.String()
	assert.Contains(t, text, "Database: "+path)
	assert.Regexp(t, `projects\s+3`, text)
	assert.Regexp(t, `total\s+3`, text)
	assert.Contains(t, text, "Index entries:")

	var fromDataDir bytes.Buffer
	require.NoError(t, inspectDatabase(ctx, &fromDataDir, filepath.Dir(path)))
	assert.Contains(t, fromDataDir.String(), "Database: "+path)
	assert.Regexp(t, `projects\s+3`, fromDataDir.String())

	assert.Error(t, inspectDatabase(ctx, &out, filepath.Join(t.TempDir(), "nothing")))
}

func TestRunBench(t *testing.T) {
	ln := startServer(t)
	hc := &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(context.Context, string, string) (net.Conn, error) { return ln.Dial() },
		},
	}
	rep, err := RunBench(context.Background(), BenchConfig{
		Base:        "http://skillsync.test",
		APIKey:      testKey,
		UserID:      "bench",
		Rate:        20,
		Duration:    500 * time.Millisecond,
		PayloadSize: 16,
	}, hc)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.ProjectID)
	assert.Greater(t, rep.Requests, uint64(0))
	assert.Equal(t, 1.0, rep.Success, rep.Errors)
	assert.Equal(t, int(rep.Requests), rep.StatusCodes["201"])

	var out bytes.Buffer
	printBenchReport(&out, rep)
	assert.Contains(t, out.String(), "201=")

	_, err = RunBench(context.Background(), BenchConfig{Base: "http://skillsync.test", Rate: 0, Duration: time.Second}, hc)
	assert.Error(t, err)
}

func TestWatchMessages(t *testing.T) {
	ln := startServer(t)
	dialer := &websocket.Dialer{
		NetDial:          func(string, string) (net.Conn, error) { return ln.Dial() },
		HandshakeTimeout: 5 * time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer, err := client.Dial(ctx, "ws://skillsync.test", client.Options{APIKey: testKey, UserID: "w", Dialer: dialer})
	require.NoError(t, err)
	defer writer.Close()
	watcher, err := client.Dial(ctx, "ws://skillsync.test", client.Options{APIKey: testKey, UserID: "r", Dialer: dialer})
	require.NoError(t, err)
	defer watcher.Close()

	var pid string
	require.NoError(t, writer.Mutation(ctx, "createProject", map[string]string{"name": "P", "content": "", "ownerId": "w"}, &pid))
	require.NoError(t, writer.Mutation(ctx, "sendMessage", map[string]string{"projectId": pid, "content": "first", "senderId": "w"}, nil))

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- watchMessages(ctx, watcher, pid, out, zerolog.Nop()) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "w: first") }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, writer.Mutation(ctx, "sendMessage", map[string]string{"projectId": pid, "content": "second", "senderId": "w"}, nil))
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "w: second") }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, strings.Count(out.String(), "first"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
