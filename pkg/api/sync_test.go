package api

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/api/auth"
	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/models"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *testEnv) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{
		NetDial:          func(string, string) (net.Conn, error) { return e.ln.Dial() },
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := d.Dial("ws://skillsync.test"+auth.SyncPath+"?"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, c *websocket.Conn, f ClientFrame) {
	t.Helper()
	require.NoError(t, c.WriteJSON(f))
}

func next(t *testing.T, c *websocket.Conn) fanout.Frame {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f fanout.Frame
	require.NoError(t, c.ReadJSON(&f))
	return f
}

func args(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func messagesOf(t *testing.T, f fanout.Frame) []models.Message {
	t.Helper()
	var out []models.Message
	require.NoError(t, json.Unmarshal(f.Value, &out))
	return out
}

func createProject(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	send(t, c, ClientFrame{Type: FrameMutation, RequestID: "p", Name: "createProject",
		Args: args(map[string]string{"name": "P", "content": "", "ownerId": "u1"})})
	f := next(t, c)
	require.Equal(t, fanout.TypeResult, f.Type, f.Error)
	var id string
	require.NoError(t, json.Unmarshal(f.Value, &id))
	return id
}

func TestSyncReadYourWrites(t *testing.T) {
	e := newTestEnv(t)
	c := e.dial(t, "api_key="+backendKey+"&user_id=idp%7Calice")
	pid := createProject(t, c)

	send(t, c, ClientFrame{Type: FrameSubscribe, RequestID: "1", SubscriptionID: "msgs", Name: "listMessages",
		Args: args(map[string]string{"projectId": pid})})
	f := next(t, c)
	require.Equal(t, fanout.TypeResult, f.Type)
	assert.Equal(t, "1", f.RequestID)
	assert.Equal(t, "msgs", f.SubscriptionID)
	assert.Empty(t, messagesOf(t, f))

	send(t, c, ClientFrame{Type: FrameMutation, RequestID: "2", Name: "sendMessage",
		Args: args(map[string]string{"projectId": pid, "content": "hello", "senderId": "u1"})})

	// the pushed update precedes the mutation's own result
	f = next(t, c)
	require.Equal(t, fanout.TypeUpdate, f.Type)
	assert.Equal(t, "msgs", f.SubscriptionID)
	msgs := messagesOf(t, f)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Content)

	f = next(t, c)
	require.Equal(t, fanout.TypeResult, f.Type)
	assert.Equal(t, "2", f.RequestID)
}

func TestSyncOtherClientReceivesUpdate(t *testing.T) {
	e := newTestEnv(t)
	writer := e.dial(t, "api_key="+backendKey+"&user_id=idp%7Cw")
	watcher := e.dial(t, "api_key="+frontendKey)
	pid := createProject(t, writer)

	send(t, watcher, ClientFrame{Type: FrameSubscribe, RequestID: "s", SubscriptionID: "feed", Name: "listActivities",
		Args: args(map[string]string{"projectId": pid})})
	f := next(t, watcher)
	require.Equal(t, fanout.TypeResult, f.Type)

	send(t, writer, ClientFrame{Type: FrameMutation, RequestID: "m", Name: "sendMessage",
		Args: args(map[string]string{"projectId": pid, "content": "yo", "senderId": "u1"})})
	require.Equal(t, fanout.TypeResult, next(t, writer).Type)

	f = next(t, watcher)
	require.Equal(t, fanout.TypeUpdate, f.Type)
	var acts []models.Activity
	require.NoError(t, json.Unmarshal(f.Value, &acts))
	require.Len(t, acts, 2)
	assert.Equal(t, models.ActivityMessageSent, acts[0].ActivityType)
}

func TestSyncQueryAndUnsubscribe(t *testing.T) {
	e := newTestEnv(t)
	c := e.dial(t, "api_key="+backendKey+"&user_id=u")
	createProject(t, c)

	send(t, c, ClientFrame{Type: FrameQuery, RequestID: "q", Name: "listProjects"})
	f := next(t, c)
	require.Equal(t, fanout.TypeResult, f.Type)
	var ps []models.Project
	require.NoError(t, json.Unmarshal(f.Value, &ps))
	assert.Len(t, ps, 1)

	send(t, c, ClientFrame{Type: FrameSubscribe, RequestID: "s", SubscriptionID: "all", Name: "listProjects"})
	require.Equal(t, fanout.TypeResult, next(t, c).Type)
	require.Equal(t, 1, e.hub.Stats().Subscriptions)

	send(t, c, ClientFrame{Type: FrameUnsubscribe, RequestID: "u", SubscriptionID: "all"})
	f = next(t, c)
	assert.Equal(t, fanout.TypeResult, f.Type)
	assert.Equal(t, "u", f.RequestID)
	assert.Equal(t, 0, e.hub.Stats().Subscriptions)

	send(t, c, ClientFrame{Type: FrameUnsubscribe, RequestID: "u2", SubscriptionID: "all"})
	f = next(t, c)
	require.Equal(t, fanout.TypeError, f.Type)
	assert.Equal(t, "not_found", f.Error.Code)
}

func TestSyncErrors(t *testing.T) {
	e := newTestEnv(t)
	c := e.dial(t, "api_key="+frontendKey)

	cases := []struct {
		name  string
		frame ClientFrame
		code  string
	}{
		{"unknown query", ClientFrame{Type: FrameQuery, RequestID: "1", Name: "listEverything"}, CodeUnknownOperation},
		{"unknown mutation", ClientFrame{Type: FrameMutation, RequestID: "2", Name: "dropTable"}, CodeUnknownOperation},
		{"billing not exposed", ClientFrame{Type: FrameMutation, RequestID: "3", Name: "updateSubscription"}, CodeUnknownOperation},
		{"unknown type", ClientFrame{Type: "publish", RequestID: "4"}, CodeBadRequest},
		{"validation", ClientFrame{Type: FrameQuery, RequestID: "5", Name: "listMessages"}, "validation"},
		{"anonymous storeUser", ClientFrame{Type: FrameMutation, RequestID: "6", Name: "storeUser",
			Args: args(map[string]string{"email": "a@b.c"})}, "unauthenticated"},
		{"missing project", ClientFrame{Type: FrameMutation, RequestID: "7", Name: "sendMessage",
			Args: args(map[string]string{"projectId": "nope", "content": "x", "senderId": "u"})}, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			send(t, c, tc.frame)
			f := next(t, c)
			require.Equal(t, fanout.TypeError, f.Type)
			assert.Equal(t, tc.frame.RequestID, f.RequestID)
			assert.Equal(t, tc.code, f.Error.Code)
		})
	}

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := next(t, c)
	assert.Equal(t, CodeBadRequest, f.Error.Code)
}

func TestSyncDisconnectDropsSubscriptions(t *testing.T) {
	e := newTestEnv(t)
	c := e.dial(t, "api_key="+frontendKey)
	send(t, c, ClientFrame{Type: FrameSubscribe, RequestID: "s", SubscriptionID: "a", Name: "listProjects"})
	require.Equal(t, fanout.TypeResult, next(t, c).Type)
	require.Equal(t, 1, e.hub.Stats().Sessions)

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool {
		st := e.hub.Stats()
		return st.Sessions == 0 && st.LiveQueries == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSyncRejectsMissingKey(t *testing.T) {
	e := newTestEnv(t)
	d := websocket.Dialer{NetDial: func(string, string) (net.Conn, error) { return e.ln.Dial() }}
	_, resp, err := d.Dial("ws://skillsync.test"+auth.SyncPath, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}
