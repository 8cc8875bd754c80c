package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
)

// ClientConfig is the configuration of the event channel client.
type ClientConfig struct {
	Dialer     Dialer
	Endpoint   string
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Logger     log.Logger
}

func (c *ClientConfig) defaults() error {
	if c.Dialer == nil {
		return fmt.Errorf("dialer is required")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = defaultMinBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = c.MinBackoff
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "events.Client"})
	return nil
}

// Client maintains a single connection to the backend event stream.
//
// It reconnects forever with exponential backoff until the Run context ends.
// Changing the endpoint closes the current connection before the new one is
// dialed, so there is never more than one live connection.
type Client struct {
	dialer     Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     log.Logger

	mu              sync.Mutex
	endpoint        string
	conn            Conn
	state           State
	progressHandler []ProgressHandler
	stateHandlers   []StateHandler

	endpointChanged chan struct{}
}

// NewClient returns a new event channel client, it doesn't connect until Run is called.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Client{
		dialer:          cfg.Dialer,
		minBackoff:      cfg.MinBackoff,
		maxBackoff:      cfg.MaxBackoff,
		logger:          cfg.Logger,
		endpoint:        cfg.Endpoint,
		state:           State{Endpoint: cfg.Endpoint},
		endpointChanged: make(chan struct{}, 1),
	}, nil
}

// OnProgress registers a handler for the task updates.
func (c *Client) OnProgress(h ProgressHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progressHandler = append(c.progressHandler, h)
}

// OnState registers a handler for the connection state changes.
func (c *Client) OnState(h StateHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, h)
}

// SessionID returns the ID assigned by the backend to the live connection, empty if there is none.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.SessionID
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Endpoint returns the endpoint the client connects to.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// SetEndpoint changes the backend endpoint, the current connection is torn down
// and the next one will use the new endpoint without waiting the backoff.
func (c *Client) SetEndpoint(endpoint string) {
	c.mu.Lock()
	if endpoint == "" || endpoint == c.endpoint {
		c.mu.Unlock()
		return
	}
	c.endpoint = endpoint
	conn := c.conn
	c.mu.Unlock()

	c.logger.Infof("Event channel endpoint changed to %s", endpoint)

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Warningf("could not close event channel connection: %s", err)
		}
	}

	select {
	case c.endpointChanged <- struct{}{}:
	default:
	}
}

// Run connects and keeps the connection alive until the context is done.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.minBackoff

	for {
		if ctx.Err() != nil {
			return nil
		}

		endpoint := c.Endpoint()
		conn, err := c.dialer.Dial(ctx, endpoint)
		if err != nil {
			c.logger.Warningf("could not connect to %s event channel, retrying in %s: %s", endpoint, backoff, err)
			if !c.wait(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, c.maxBackoff)
			continue
		}

		received, err := c.serve(ctx, endpoint, conn)
		if ctx.Err() != nil {
			return nil
		}

		if c.Endpoint() != endpoint {
			select {
			case <-c.endpointChanged:
			default:
			}
			backoff = c.minBackoff
			continue
		}

		if received {
			backoff = c.minBackoff
		}
		c.logger.Warningf("event channel disconnected, reconnecting in %s: %s", backoff, err)
		if !c.wait(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, c.maxBackoff)
	}
}

// serve reads from the connection until it breaks. It returns true if any frame was received.
func (c *Client) serve(ctx context.Context, endpoint string, conn Conn) (received bool, err error) {
	c.mu.Lock()
	if c.endpoint != endpoint {
		// Endpoint changed while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		return false, fmt.Errorf("endpoint changed")
	}
	c.conn = conn
	c.mu.Unlock()

	c.setState(State{Connected: true, Endpoint: endpoint})
	c.logger.Infof("Connected to %s event channel", endpoint)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(State{Connected: false, Endpoint: c.Endpoint()})
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return received, err
		}
		received = true
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warningf("invalid event frame ignored: %s", err)
		return
	}

	switch frame.Event {
	case EventConnect:
		st := c.State()
		st.SessionID = frame.SessionID
		c.setState(st)
		c.logger.Debugf("Event channel session %s", frame.SessionID)

	case EventProgress:
		taskID, u, dropped, err := DecodeProgress(frame.Data)
		if err != nil {
			c.logger.Warningf("progress event ignored: %s", err)
			return
		}
		for _, d := range dropped {
			var perr PartialEventError
			if errors.As(d, &perr) {
				c.logger.Warningf("%s", perr)
			}
		}
		c.dispatch(taskID, u)

	case EventError:
		taskID, u, err := DecodeError(frame.Data)
		if err != nil {
			c.logger.Warningf("error event ignored: %s", err)
			return
		}
		c.dispatch(taskID, u)

	case EventComplete:
		// The finished progress event carries the filename, nothing to do.
	default:
		c.logger.Debugf("Unknown event %q ignored", frame.Event)
	}
}

func (c *Client) dispatch(taskID string, u model.TaskUpdate) {
	c.mu.Lock()
	handlers := append([]ProgressHandler(nil), c.progressHandler...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(taskID, u)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	handlers := append([]StateHandler(nil), c.stateHandlers...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(s)
	}
}

// wait returns false if the context ended. Endpoint changes interrupt the wait.
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-c.endpointChanged:
		return true
	case <-t.C:
		return true
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}
