/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var ErrSendBufferFull = errors.New("link send buffer full")

type options struct {
	dispatch Dispatch
	logger   *slog.Logger
	dialer   *websocket.Dialer
	backoff  backoff.BackOff
	buffer   int
}

type Option func(*options)

// WithDispatch sets where handlers run. Defaults to Inline, which runs them
// on the link's reader goroutine.
func WithDispatch(d Dispatch) Option {
	return func(o *options) { o.dispatch = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithDialer(d *websocket.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithBackoff sets the retry policy for the initial dial.
func WithBackoff(b backoff.BackOff) Option {
	return func(o *options) { o.backoff = b }
}

func WithSendBuffer(n int) Option {
	return func(o *options) { o.buffer = n }
}

func buildOptions(opts []Option) options {
	o := options{
		dispatch: Inline,
		dialer:   websocket.DefaultDialer,
		buffer:   sendBuffer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.MaxElapsedTime = 30 * time.Second
		o.backoff = b
	}
	return o
}

// WebSocket is a Link over one websocket connection.
type WebSocket struct {
	id       string
	url      string
	conn     *websocket.Conn
	dispatch Dispatch
	logger   *slog.Logger
	handlers handlers

	send chan Envelope
	done chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// Dial connects to a model server, retrying with backoff until ctx ends or
// the policy gives up.
func Dial(ctx context.Context, url string, opts ...Option) (*WebSocket, error) {
	o := buildOptions(opts)

	var conn *websocket.Conn
	attempt := 0
	operation := func() error {
		attempt++
		c, _, err := o.dialer.DialContext(ctx, url, nil)
		if err != nil {
			o.logger.Info("dial failed", "url", url, "attempt", attempt, "err", err)
			return err
		}
		conn = c
		return nil
	}
	if err := backoff.Retry(operation, backoff.WithContext(o.backoff, ctx)); err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return newWebSocket(conn, url, o), nil
}

// FromConn wraps an established connection.
func FromConn(conn *websocket.Conn, opts ...Option) *WebSocket {
	o := buildOptions(opts)
	return newWebSocket(conn, conn.RemoteAddr().String(), o)
}

func newWebSocket(conn *websocket.Conn, url string, o options) *WebSocket {
	ws := &WebSocket{
		id:       uuid.NewString(),
		url:      url,
		conn:     conn,
		dispatch: o.dispatch,
		logger:   o.logger.With("link", url),
		send:     make(chan Envelope, o.buffer),
		done:     make(chan struct{}),
	}

	go ws.writePump()
	go ws.readPump()

	return ws
}

func (ws *WebSocket) ID() string { return ws.id }

func (ws *WebSocket) URL() string { return ws.url }

func (ws *WebSocket) On(event string, h Handler) { ws.handlers.on(event, h) }

func (ws *WebSocket) Emit(event string, payload any) error {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-ws.done:
		return ErrClosed
	default:
	}

	select {
	case ws.send <- env:
		return nil
	case <-ws.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Done is closed once the connection is gone.
func (ws *WebSocket) Done() <-chan struct{} { return ws.done }

// Err reports why the connection ended, or nil after a clean Close.
func (ws *WebSocket) Err() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.err
}

func (ws *WebSocket) Close() error {
	ws.shutdown(nil)
	return nil
}

func (ws *WebSocket) shutdown(cause error) {
	ws.closeOnce.Do(func() {
		ws.mu.Lock()
		ws.err = cause
		ws.mu.Unlock()

		close(ws.done)
		_ = ws.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = ws.conn.Close()
	})
}

func (ws *WebSocket) readPump() {
	for {
		var env Envelope
		if err := ws.conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.shutdown(nil)
			} else {
				select {
				case <-ws.done:
				default:
					ws.logger.Warn("read failed", "err", err)
				}
				ws.shutdown(err)
			}
			return
		}
		if env.Event == "" {
			ws.logger.Warn("dropping envelope without event name")
			continue
		}
		ws.handlers.fire(ws.dispatch, env)
	}
}

func (ws *WebSocket) writePump() {
	for {
		select {
		case env := <-ws.send:
			_ = ws.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.conn.WriteJSON(env); err != nil {
				ws.logger.Warn("write failed", "event", env.Event, "err", err)
				ws.shutdown(err)
				return
			}
		case <-ws.done:
			return
		}
	}
}
