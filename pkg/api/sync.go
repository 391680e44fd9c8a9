package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SHAIKYASIR/skillsync/pkg/api/auth"
	"github.com/SHAIKYASIR/skillsync/pkg/fanout"
	"github.com/SHAIKYASIR/skillsync/pkg/identity"
	"github.com/SHAIKYASIR/skillsync/pkg/query"
	"github.com/SHAIKYASIR/skillsync/pkg/state/logger"
	"github.com/SHAIKYASIR/skillsync/pkg/store"
	"github.com/SHAIKYASIR/skillsync/pkg/telemetry"

	"github.com/fasthttp/websocket"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// Client frame types.
const (
	FrameMutation    = "mutation"
	FrameQuery       = "query"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// Error codes that are not store error kinds.
const (
	CodeBadRequest       = "bad_request"
	CodeUnknownOperation = "unknown_operation"
)

const (
	maxDecodeErrorsPerConn = 5
	writeWait              = 10 * time.Second
)

// ClientFrame is a request sent by a live-sync client.
type ClientFrame struct {
	Type           string          `json:"type"`
	RequestID      string          `json:"request_id,omitempty"`
	Name           string          `json:"name,omitempty"`
	Args           json.RawMessage `json:"args,omitempty"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
}

var upgrader = websocket.FastHTTPUpgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// credentials arrive as explicit keys and signatures, never cookies
	CheckOrigin: func(*fasthttp.RequestCtx) bool { return true },
}

// SyncHandler upgrades the request to a live-sync connection. The caller
// resolved by the gateway is bound to the connection for its lifetime.
func (s *Server) SyncHandler(ctx *fasthttp.RequestCtx) {
	caller := auth.CallerFrom(ctx)
	remote := ctx.RemoteAddr().String()
	err := upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		s.serveSync(conn, caller, remote)
	})
	if err != nil {
		logger.Warn("sync_upgrade_failed", "remote", remote, "error", err)
	}
}

func (s *Server) serveSync(conn *websocket.Conn, caller identity.Caller, remote string) {
	opts := s.syncDefaults()
	sess := s.Hub.NewSession("")
	caller.SessionID = sess.ID()

	ctx, cancel := context.WithCancel(identity.With(context.Background(), caller))
	defer cancel()

	logger.Info("sync_connected", "session", sess.ID(), "role", caller.Role.String(), "remote", remote)

	conn.SetReadLimit(opts.MaxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))
	})

	writerDone := make(chan struct{})
	go writeLoop(conn, sess, opts.PingInterval, writerDone)

	burst := int(opts.FramesPerSecond)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(opts.FramesPerSecond), burst)
	decodeErrors := 0

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("sync_read_failed", "session", sess.ID(), "error", err)
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(opts.PongTimeout))

		// over-rate clients are slowed down, not dropped
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			decodeErrors++
			sess.Send(errorFrame("", CodeBadRequest, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				logger.Warn("sync_too_many_bad_frames", "session", sess.ID(), "remote", remote)
				break
			}
			continue
		}
		decodeErrors = 0
		s.handleFrame(ctx, sess, f)
	}

	sess.Close()
	<-writerDone
	_ = conn.Close()
	logger.Info("sync_disconnected", "session", sess.ID(), "slow", sess.Slow())
}

// writeLoop is the only writer of conn besides control frames.
func writeLoop(conn *websocket.Conn, sess *fanout.Session, pingEvery time.Duration, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case f := <-sess.Out():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(f); err != nil {
				logger.Debug("sync_write_failed", "session", sess.ID(), "error", err)
				sess.Close()
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				sess.Close()
				_ = conn.Close()
				return
			}
		case <-sess.Done():
			code := websocket.CloseNormalClosure
			if sess.Slow() {
				code = websocket.CloseTryAgainLater
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}
	}
}

// handleFrame runs one client request. Requests of a connection run in
// arrival order, and a mutation's pushed updates are queued before its
// result.
func (s *Server) handleFrame(ctx context.Context, sess *fanout.Session, f ClientFrame) {
	tr := telemetry.Track("sync." + f.Type)
	defer tr.Finish()

	switch f.Type {
	case FrameSubscribe:
		if !query.Has(f.Name) {
			sess.Send(errorFrame(f.RequestID, CodeUnknownOperation, "unknown query "+f.Name))
			return
		}
		if err := s.Hub.Subscribe(ctx, sess, f.RequestID, f.SubscriptionID, f.Name, f.Args); err != nil {
			sess.Send(storeErrorFrame(f.RequestID, err))
		}
	case FrameUnsubscribe:
		if err := s.Hub.Unsubscribe(sess, f.SubscriptionID); err != nil {
			sess.Send(storeErrorFrame(f.RequestID, err))
			return
		}
		sess.Send(resultFrame(f.RequestID, nil))
	case FrameQuery:
		if !query.Has(f.Name) {
			sess.Send(errorFrame(f.RequestID, CodeUnknownOperation, "unknown query "+f.Name))
			return
		}
		v, err := s.Query.Run(ctx, f.Name, f.Args)
		if err != nil {
			sess.Send(storeErrorFrame(f.RequestID, err))
			return
		}
		sess.Send(resultFrame(f.RequestID, v))
	case FrameMutation:
		if !s.Mutations.Has(f.Name) {
			sess.Send(errorFrame(f.RequestID, CodeUnknownOperation, "unknown mutation "+f.Name))
			return
		}
		v, err := s.Mutations.Dispatch(ctx, f.Name, f.Args)
		if err != nil {
			sess.Send(storeErrorFrame(f.RequestID, err))
			return
		}
		sess.Send(resultFrame(f.RequestID, v))
	default:
		sess.Send(errorFrame(f.RequestID, CodeBadRequest, "unsupported frame type"))
	}
}

func resultFrame(requestID string, v any) fanout.Frame {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorFrame(requestID, "storage", "encode result: "+err.Error())
	}
	return fanout.Frame{Type: fanout.TypeResult, RequestID: requestID, Value: raw}
}

func errorFrame(requestID, code, msg string) fanout.Frame {
	return fanout.Frame{Type: fanout.TypeError, RequestID: requestID, Error: &fanout.FrameError{Code: code, Message: msg}}
}

func storeErrorFrame(requestID string, err error) fanout.Frame {
	code := store.Kind(err)
	if code == "" {
		code = "storage"
		logger.Error("sync_request_failed", "request_id", requestID, "error", err)
	}
	return errorFrame(requestID, code, err.Error())
}
