package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/five82/klaxon/internal/alarm"
)

// ErrStreamClosed is returned when the server ends a notification stream.
var ErrStreamClosed = errors.New("notification stream closed")

// Stream delivers server push notifications in arrival order.
type Stream interface {
	// Run sends notifications to out until ctx is cancelled (nil error) or
	// the connection drops (non-nil error). It may be called again to
	// reconnect.
	Run(ctx context.Context, out chan<- alarm.Notification) error
}

// decodeFrame turns a raw frame into a notification.
func decodeFrame(data []byte) (alarm.Notification, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return alarm.Notification{}, fmt.Errorf("decode frame: %w", err)
	}
	return f.Notification()
}

func send(ctx context.Context, out chan<- alarm.Notification, n alarm.Notification) bool {
	select {
	case out <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

// WebSocketStream reads notifications from GET /api/notifications.
type WebSocketStream struct {
	URL    string
	Dialer *websocket.Dialer
	Logger zerolog.Logger
}

// NewWebSocketStream derives the notification endpoint from the REST base URL.
func NewWebSocketStream(base *url.URL, logger zerolog.Logger) *WebSocketStream {
	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/notifications"
	return &WebSocketStream{URL: u.String(), Dialer: websocket.DefaultDialer, Logger: logger}
}

// Run implements Stream.
func (s *WebSocketStream) Run(ctx context.Context, out chan<- alarm.Notification) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	headers := http.Header{}
	headers.Set("User-Agent", defaultUserAgent)
	conn, resp, err := dialer.DialContext(ctx, s.URL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %s)", s.URL, err, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", s.URL, err)
	}
	defer func() { _ = conn.Close() }()
	s.Logger.Info().Str("url", s.URL).Msg("notification stream connected")

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return ErrStreamClosed
			}
			return fmt.Errorf("read notification: %w", err)
		}
		n, err := decodeFrame(data)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("dropping malformed notification")
			continue
		}
		if !send(ctx, out, n) {
			return nil
		}
	}
}

// NATSStream subscribes to <prefix>.alarms on a NATS server.
type NATSStream struct {
	URL     string
	Subject string
	Logger  zerolog.Logger
}

// NewNATSStream builds a stream for the given server URL and subject prefix.
func NewNATSStream(natsURL, prefix string, logger zerolog.Logger) *NATSStream {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "klaxon"
	}
	if natsURL == "" {
		natsURL = nats.DefaultURL
	}
	return &NATSStream{URL: natsURL, Subject: prefix + ".alarms", Logger: logger}
}

// Run implements Stream.
func (s *NATSStream) Run(ctx context.Context, out chan<- alarm.Notification) error {
	closed := make(chan struct{})
	nc, err := nats.Connect(s.URL,
		nats.Name("klaxon"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.Logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connect %s: %w", s.URL, err)
	}
	defer nc.Close()

	msgs := make(chan *nats.Msg, 256)
	sub, err := nc.ChanSubscribe(s.Subject, msgs)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.Subject, err)
	}
	s.Logger.Info().Str("subject", s.Subject).Msg("notification stream connected")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			if ctx.Err() != nil {
				return nil
			}
			return ErrStreamClosed
		case msg := <-msgs:
			n, err := decodeFrame(msg.Data)
			if err != nil {
				s.Logger.Warn().Err(err).Msg("dropping malformed notification")
				continue
			}
			if !send(ctx, out, n) {
				return nil
			}
		}
	}
}
