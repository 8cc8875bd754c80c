package session

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuberip/tuberip/internal/app/browse"
	"github.com/tuberip/tuberip/internal/app/completion"
	"github.com/tuberip/tuberip/internal/app/reconcile"
	"github.com/tuberip/tuberip/internal/app/selection"
	"github.com/tuberip/tuberip/internal/app/single"
	"github.com/tuberip/tuberip/internal/artifact"
	"github.com/tuberip/tuberip/internal/backend"
	backendhttp "github.com/tuberip/tuberip/internal/backend/http"
	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/events/websocket"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/registry"
)

// Config is the configuration of a client session.
type Config struct {
	// Endpoint is the initial backend address.
	Endpoint string
	// Sink stores the retrieved files.
	Sink artifact.Sink
	// Dialer connects to the event stream, websockets by default.
	Dialer         events.Dialer
	HTTPClient     *http.Client
	RequestTimeout time.Duration
	MinBackoff     time.Duration
	MaxBackoff     time.Duration
	// OnRetrieved is called after every retrieval attempt.
	OnRetrieved completion.RetrievedHandler
	Logger      log.Logger
}

func (c *Config) defaults() error {
	if err := ValidateEndpoint(c.Endpoint); err != nil {
		return err
	}
	if c.Sink == nil {
		return fmt.Errorf("sink is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	if c.Dialer == nil {
		d, err := websocket.NewDialer(websocket.DialerConfig{Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create websocket dialer: %w", err)
		}
		c.Dialer = d
	}
	if c.OnRetrieved == nil {
		c.OnRetrieved = func(string, string, error) {}
	}
	return nil
}

// ValidateEndpoint checks a backend address is an absolute HTTP(S) URL.
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("endpoint is required: %w", model.ErrNotValid)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, model.ErrNotValid)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint %q must be an http or https address: %w", endpoint, model.ErrNotValid)
	}
	return nil
}

// Retrieval is the result of the retrieval of a finished task.
type Retrieval struct {
	TaskID   string
	Location string
	Err      error
}

// Session wires the client components to one backend: the HTTP backend, the event
// channel, the task registry and the dispatchers.
type Session struct {
	endpoint atomic.Pointer[string]
	logger   log.Logger

	backend    *backendhttp.Client
	events     *events.Client
	registry   *registry.Registry
	completion *completion.Service
	reconciler *reconcile.Service
	browse     *browse.Controller
	selection  *selection.Service
	single     *single.Service

	mu          sync.Mutex
	retrievals  map[string]Retrieval
	changed     chan struct{}
	onRetrieved completion.RetrievedHandler
}

// New returns a new session, it doesn't connect until Run is called.
func New(cfg Config) (*Session, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		logger:      cfg.Logger.WithValues(log.Kv{"svc": "session.Session"}),
		retrievals:  map[string]Retrieval{},
		changed:     make(chan struct{}),
		onRetrieved: cfg.OnRetrieved,
	}
	s.endpoint.Store(&cfg.Endpoint)

	var err error
	s.backend, err = backendhttp.NewClient(backendhttp.ClientConfig{
		Endpoint:       s.Endpoint,
		HTTPClient:     cfg.HTTPClient,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create backend client: %w", err)
	}

	s.events, err = events.NewClient(events.ClientConfig{
		Dialer:     cfg.Dialer,
		Endpoint:   cfg.Endpoint,
		MinBackoff: cfg.MinBackoff,
		MaxBackoff: cfg.MaxBackoff,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create event client: %w", err)
	}

	s.registry, err = registry.New(registry.Config{Logger: cfg.Logger})
	if err != nil {
		return nil, fmt.Errorf("could not create registry: %w", err)
	}

	s.completion, err = completion.NewService(completion.ServiceConfig{
		Registry:    s.registry,
		Retriever:   s.backend,
		Sink:        cfg.Sink,
		OnRetrieved: s.handleRetrieved,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create completion dispatcher: %w", err)
	}

	s.reconciler, err = reconcile.NewService(reconcile.ServiceConfig{
		Registry: s.registry,
		Backend:  s.backend,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create reconciler: %w", err)
	}

	s.browse, err = browse.NewController(browse.ControllerConfig{
		Resolver: s.backend,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create browse controller: %w", err)
	}

	s.selection, err = selection.NewService(selection.ServiceConfig{
		Pages:     s.browse,
		Backend:   s.backend,
		Registry:  s.registry,
		SessionID: s.SessionID,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create selection: %w", err)
	}

	s.single, err = single.NewService(single.ServiceConfig{
		Backend:   s.backend,
		Registry:  s.registry,
		SessionID: s.SessionID,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create single dispatcher: %w", err)
	}

	s.events.OnProgress(func(taskID string, u model.TaskUpdate) {
		if _, err := s.registry.Merge(taskID, u); err != nil {
			s.logger.Warningf("Could not merge task %q update: %s", taskID, err)
		}
	})
	s.registry.Subscribe(func(model.Task) { s.signal() })

	return s, nil
}

// Run connects to the event channel and retrieves the finished tasks until the
// context ends, then waits for the running retrievals.
func (s *Session) Run(ctx context.Context) error {
	s.events.OnState(s.reconciler.StateHandler(ctx))
	s.events.OnState(func(events.State) { s.signal() })
	s.completion.Start(ctx)

	err := s.events.Run(ctx)
	s.reconciler.Wait()
	s.completion.Wait()
	return err
}

// Endpoint returns the active backend address.
func (s *Session) Endpoint() string {
	return *s.endpoint.Load()
}

// SetEndpoint switches the backend. Next requests use the new address and the event
// channel reconnects to it.
func (s *Session) SetEndpoint(endpoint string) error {
	if err := ValidateEndpoint(endpoint); err != nil {
		return err
	}
	s.endpoint.Store(&endpoint)
	s.events.SetEndpoint(endpoint)
	s.logger.Infof("Backend endpoint set to %s", endpoint)
	return nil
}

// SessionID returns the event channel session ID, empty while disconnected.
func (s *Session) SessionID() string { return s.events.SessionID() }

// State returns the event channel state.
func (s *Session) State() events.State { return s.events.State() }

// Backend returns the backend of the session.
func (s *Session) Backend() backend.Backend { return s.backend }

// Registry returns the task registry.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Browse returns the browse controller.
func (s *Session) Browse() *browse.Controller { return s.browse }

// Selection returns the selection service.
func (s *Session) Selection() *selection.Service { return s.selection }

// Single returns the single item dispatcher.
func (s *Session) Single() *single.Service { return s.single }

// Reconcile queries the backend for the state of the active tasks.
func (s *Session) Reconcile(ctx context.Context) (int, error) {
	return s.reconciler.Reconcile(ctx)
}

// Retrievals returns the retrieval results so far.
func (s *Session) Retrievals() []Retrieval {
	tasks := s.registry.ListAll()

	s.mu.Lock()
	defer s.mu.Unlock()

	rs := make([]Retrieval, 0, len(s.retrievals))
	for _, t := range tasks {
		if r, ok := s.retrievals[t.ID]; ok {
			rs = append(rs, r)
		}
	}
	return rs
}

// WaitConnected blocks until the event channel has a session ID.
func (s *Session) WaitConnected(ctx context.Context) error {
	return s.waitFor(ctx, func() bool { return s.SessionID() != "" })
}

// WaitTasks blocks until every task failed or had its file retrieved.
func (s *Session) WaitTasks(ctx context.Context, taskIDs []string) error {
	return s.waitFor(ctx, func() bool {
		for _, id := range taskIDs {
			if !s.settled(id) {
				return false
			}
		}
		return true
	})
}

func (s *Session) settled(taskID string) bool {
	t, err := s.registry.Get(taskID)
	if err != nil {
		return false
	}
	if t.Status == model.TaskStatusError {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.retrievals[taskID]
	return ok
}

func (s *Session) waitFor(ctx context.Context, done func() bool) error {
	for {
		s.mu.Lock()
		changed := s.changed
		s.mu.Unlock()

		if done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

func (s *Session) handleRetrieved(taskID, location string, err error) {
	s.mu.Lock()
	s.retrievals[taskID] = Retrieval{TaskID: taskID, Location: location, Err: err}
	s.mu.Unlock()

	s.onRetrieved(taskID, location, err)
	s.signal()
}

// signal wakes up the waiters.
func (s *Session) signal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.changed)
	s.changed = make(chan struct{})
}
