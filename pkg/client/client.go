// Package client is a Go client for the skillsync live-sync protocol.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout    = 30 * time.Second
	updateBufferSize  = 64
	closeWriteTimeout = time.Second
)

var (
	ErrClosed  = errors.New("client: connection closed")
	ErrTimeout = errors.New("client: request timed out")
)

// Error is an error frame returned by the server.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// IsCode reports whether err is a server error with the given code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

type request struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id"`
	Name           string `json:"name,omitempty"`
	Args           any    `json:"args,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type frame struct {
	Type           string          `json:"type"`
	RequestID      string          `json:"request_id"`
	SubscriptionID string          `json:"subscription_id"`
	Version        uint64          `json:"version"`
	Value          json.RawMessage `json:"value"`
	Error          *Error          `json:"error"`
}

// Update is a pushed result of a subscription.
type Update struct {
	SubscriptionID string
	Version        uint64
	Value          json.RawMessage
}

// Decode unmarshals the update's value into dest.
func (u Update) Decode(dest any) error {
	return json.Unmarshal(u.Value, dest)
}

// Options configure Dial. APIKey is required; UserID and Signature name the
// end user for frontend keys.
type Options struct {
	APIKey    string
	UserID    string
	Signature string
	// Timeout bounds each request. Zero uses DefaultTimeout; negative
	// disables it in favour of the caller's context.
	Timeout time.Duration
	Dialer  *websocket.Dialer
	Logger  *zerolog.Logger
}

type Client struct {
	conn     *websocket.Conn
	connLock sync.Mutex
	timeout  time.Duration
	log      zerolog.Logger

	nextID atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan frame
	subs    map[string]chan Update

	closeChan chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Dial connects to the server at baseURL (ws:// or wss://).
func Dial(ctx context.Context, baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse url: %w", err)
	}
	u.Path = "/v1/sync"
	q := url.Values{}
	q.Set("api_key", opts.APIKey)
	if opts.UserID != "" {
		q.Set("user_id", opts.UserID)
	}
	if opts.Signature != "" {
		q.Set("signature", opts.Signature)
	}
	u.RawQuery = q.Encode()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("client: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("client: dial: %w", err)
	}

	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		conn:      conn,
		timeout:   timeout,
		log:       log.With().Str("component", "skillsync_client").Logger(),
		pending:   make(map[string]chan frame),
		subs:      make(map[string]chan Update),
		closeChan: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.connLock.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWriteTimeout))
	c.connLock.Unlock()
	if err != nil {
		c.log.Debug().Err(err).Msg("close frame not sent")
	}
	c.shutdown(ErrClosed)
	return c.conn.Close()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.closeChan }

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	select {
	case <-c.closeChan:
		return c.closeErr
	default:
		return nil
	}
}

// Mutation runs a named mutation and decodes its result into dest, which
// may be nil.
func (c *Client) Mutation(ctx context.Context, name string, args any, dest any) error {
	f, err := c.roundTrip(ctx, request{Type: "mutation", Name: name, Args: args})
	if err != nil {
		return err
	}
	return decodeValue(f.Value, dest)
}

// Query runs a named query once.
func (c *Client) Query(ctx context.Context, name string, args any, dest any) error {
	f, err := c.roundTrip(ctx, request{Type: "query", Name: name, Args: args})
	if err != nil {
		return err
	}
	return decodeValue(f.Value, dest)
}

// Subscription is a live query. Updates carries full results; when the
// consumer falls behind, older pending updates are discarded in favour of
// newer ones.
type Subscription struct {
	ID      string
	Version uint64
	Updates <-chan Update
	c       *Client
}

// Subscribe starts a live query under id and decodes the initial result into
// dest.
func (c *Client) Subscribe(ctx context.Context, id, name string, args any, dest any) (*Subscription, error) {
	ch := make(chan Update, updateBufferSize)
	c.mu.Lock()
	if _, dup := c.subs[id]; dup {
		c.mu.Unlock()
		return nil, fmt.Errorf("client: subscription %q already exists", id)
	}
	c.subs[id] = ch
	c.mu.Unlock()

	f, err := c.roundTrip(ctx, request{Type: "subscribe", Name: name, Args: args, SubscriptionID: id})
	if err != nil {
		c.dropSub(id)
		return nil, err
	}
	if err := decodeValue(f.Value, dest); err != nil {
		c.dropSub(id)
		if _, uerr := c.roundTrip(ctx, request{Type: "unsubscribe", SubscriptionID: id}); uerr != nil {
			c.log.Debug().Err(uerr).Str("subscription", id).Msg("unsubscribe after decode failure")
		}
		return nil, err
	}
	return &Subscription{ID: id, Version: f.Version, Updates: ch, c: c}, nil
}

// Unsubscribe stops the live query. Its Updates channel is closed.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	_, err := s.c.roundTrip(ctx, request{Type: "unsubscribe", SubscriptionID: s.ID})
	s.c.dropSub(s.ID)
	return err
}

func (c *Client) dropSub(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.subs[id]; ok {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Client) roundTrip(ctx context.Context, req request) (frame, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	select {
	case <-c.closeChan:
		return frame{}, c.closeErr
	default:
	}

	req.RequestID = strconv.FormatUint(c.nextID.Add(1), 10)
	resp := make(chan frame, 1)
	c.mu.Lock()
	c.pending[req.RequestID] = resp
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, req.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(req); err != nil {
		return frame{}, err
	}

	select {
	case f := <-resp:
		if f.Error != nil {
			return f, f.Error
		}
		return f, nil
	case <-c.closeChan:
		return frame{}, c.closeErr
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return frame{}, ErrTimeout
		}
		return frame{}, ctx.Err()
	}
}

func (c *Client) write(v any) error {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				c.log.Warn().Err(err).Msg("undecodable frame")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("connection lost")
			}
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch f.Type {
	case "update":
		ch, ok := c.subs[f.SubscriptionID]
		if !ok {
			c.log.Debug().Str("subscription", f.SubscriptionID).Msg("update for unknown subscription")
			return
		}
		u := Update{SubscriptionID: f.SubscriptionID, Version: f.Version, Value: f.Value}
		select {
		case ch <- u:
		default:
			// full: make room by dropping the oldest result
			select {
			case <-ch:
			default:
			}
			ch <- u
			c.log.Debug().Str("subscription", f.SubscriptionID).Uint64("version", f.Version).Msg("dropped stale update")
		}
	case "result", "error":
		if ch, ok := c.pending[f.RequestID]; ok {
			ch <- f
			return
		}
		if f.Error != nil {
			c.log.Warn().Str("code", f.Error.Code).Str("message", f.Error.Message).Msg("unsolicited error frame")
		}
	default:
		c.log.Debug().Str("type", f.Type).Msg("unknown frame type")
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.closeErr = err
		close(c.closeChan)
		c.mu.Lock()
		for id, ch := range c.subs {
			delete(c.subs, id)
			close(ch)
		}
		c.mu.Unlock()
	})
}

func decodeValue(raw json.RawMessage, dest any) error {
	if dest == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("client: decode result: %w", err)
	}
	return nil
}
