package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/log"
)

// DefaultPath is the event stream path on the backend.
const DefaultPath = "/ws"

// DialerConfig is the configuration of the websocket dialer.
type DialerConfig struct {
	Path             string
	HandshakeTimeout time.Duration
	Logger           log.Logger
}

func (c *DialerConfig) defaults() error {
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "websocket.Dialer"})
	return nil
}

// Dialer connects to the backend event stream using websockets.
type Dialer struct {
	dialer *websocket.Dialer
	path   string
	logger log.Logger
}

// NewDialer returns a new websocket dialer.
func NewDialer(cfg DialerConfig) (*Dialer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Dialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		path:   cfg.Path,
		logger: cfg.Logger,
	}, nil
}

// Dial connects to the event stream of the backend endpoint.
func (d *Dialer) Dial(ctx context.Context, endpoint string) (events.Conn, error) {
	u, err := StreamURL(endpoint, d.path)
	if err != nil {
		return nil, err
	}

	c, resp, err := d.dialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", u, err)
	}

	d.logger.Debugf("Websocket connected to %s", u)
	return &conn{c: c}, nil
}

// StreamURL returns the websocket URL of the event stream of an HTTP endpoint.
func StreamURL(endpoint, path string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q without host", endpoint)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = ""
	u.Fragment = ""

	return u.String(), nil
}

type conn struct {
	c    *websocket.Conn
	once sync.Once
	err  error
}

func (c *conn) ReadMessage() ([]byte, error) {
	_, data, err := c.c.ReadMessage()
	return data, err
}

func (c *conn) Close() error {
	c.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.err = c.c.Close()
	})
	return c.err
}
