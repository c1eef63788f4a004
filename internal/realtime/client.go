package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/glizzus/talkback/internal/config"
	"github.com/glizzus/talkback/internal/generator"
)

const (
	readLimit    = 32 << 20
	writeTimeout = 10 * time.Second
	closeTimeout = time.Second
)

// Option configures Dial.
type Option func(*dialOptions)

type dialOptions struct {
	dialer   *websocket.Dialer
	ids      generator.Generator[string]
	observer func([]byte)
}

// WithDialer replaces the default WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(o *dialOptions) {
		o.dialer = d
	}
}

// WithIDGenerator sets the generator used to stamp client event ids.
func WithIDGenerator(ids generator.Generator[string]) Option {
	return func(o *dialOptions) {
		o.ids = ids
	}
}

// WithObserver registers fn to receive every raw server frame before it is
// decoded. fn runs on the read goroutine and must not block for long.
func WithObserver(fn func([]byte)) Option {
	return func(o *dialOptions) {
		o.observer = fn
	}
}

// Session is an open realtime socket.
type Session struct {
	conn     *websocket.Conn
	ids      generator.Generator[string]
	observer func([]byte)

	events chan ServerEvent
	done   chan struct{}

	writeMu   sync.Mutex
	errMu     sync.RWMutex
	err       error
	closeOnce sync.Once
}

// Dial opens a realtime session described by cfg.
func Dial(ctx context.Context, cfg *config.RealtimeConfig, opts ...Option) (*Session, error) {
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}

	o := dialOptions{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.ConnectTimeout,
		},
		ids: generator.EventIDs(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	if cfg.Beta != "" {
		header.Set("OpenAI-Beta", cfg.Beta)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := o.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		connErr := &ConnectionError{URL: endpoint, Err: err}
		if resp != nil {
			connErr.StatusCode = resp.StatusCode
		}
		return nil, connErr
	}
	conn.SetReadLimit(readLimit)

	s := &Session{
		conn:     conn,
		ids:      o.ids,
		observer: o.observer,
		events:   make(chan ServerEvent),
		done:     make(chan struct{}),
	}
	go s.readLoop()

	slog.Debug("connected to realtime api", "url", endpoint)
	return s, nil
}

func (s *Session) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Closed locally.
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.setError(fmt.Errorf("failed to read from realtime socket: %w", err))
				}
			}
			return
		}

		if s.observer != nil {
			s.observer(data)
		}

		ev, err := DecodeServerEvent(data)
		if err != nil {
			slog.Warn("skipping undecodable realtime frame", "error", err, "size", len(data))
			continue
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// Events returns the ordered stream of server events. The channel is closed
// when the socket closes; Err reports why.
func (s *Session) Events() <-chan ServerEvent {
	return s.events
}

// Err returns the error that ended the read loop, or nil after a clean close.
func (s *Session) Err() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return s.err
}

func (s *Session) setError(err error) {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.errMu.Unlock()
}

// Send stamps ev with an event id when it has none and writes it as a single
// text frame.
func (s *Session) Send(ctx context.Context, ev ClientEvent) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	h := ev.header()
	if h.EventID == "" && s.ids != nil {
		id, err := s.ids.Next()
		if err != nil {
			return fmt.Errorf("failed to generate event id: %w", err)
		}
		h.EventID = id
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", h.Type, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s event: %w", h.Type, err)
	}

	slog.Debug("sent realtime event", "type", h.Type, "eventID", h.EventID)
	return nil
}

// Close sends a normal closure frame and closes the socket. It is safe to
// call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)

		s.writeMu.Lock()
		werr := s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeTimeout),
		)
		s.writeMu.Unlock()
		if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			slog.Debug("failed to send close frame", "error", werr)
		}

		err = s.conn.Close()
	})
	return err
}
