package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/events"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

// TaskRegistry is the part of the task registry the reconciler needs.
type TaskRegistry interface {
	ActiveIDs() []string
	MergeIfActive(id string, u model.TaskUpdate) (model.Task, bool, error)
}

// StatusQuerier returns the authoritative state of tasks.
type StatusQuerier interface {
	TaskStatus(ctx context.Context, taskIDs []string) (map[string]model.TaskUpdate, error)
}

// ServiceConfig is the configuration of the reconciler.
type ServiceConfig struct {
	Registry TaskRegistry
	Backend  StatusQuerier
	Logger   log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Reconcile"})
	return nil
}

// Service catches up with the task updates lost while the event channel was down.
type Service struct {
	registry TaskRegistry
	backend  StatusQuerier
	logger   log.Logger

	mu        sync.Mutex
	connected bool
	wg        sync.WaitGroup
}

// NewService returns a new reconciler.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		registry: cfg.Registry,
		backend:  cfg.Backend,
		logger:   cfg.Logger,
	}, nil
}

// Reconcile queries the state of the non terminal tasks and merges it. It returns the
// number of merged tasks.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	ids := s.registry.ActiveIDs()
	if len(ids) == 0 {
		return 0, nil
	}

	updates, err := s.backend.TaskStatus(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("could not get task status: %w", err)
	}

	merged := 0
	for _, id := range ids {
		u, ok := updates[id]
		if !ok || u.Empty() {
			continue
		}
		// Live events may have finished the task while the query was in flight.
		_, ok, err := s.registry.MergeIfActive(id, u)
		if err != nil {
			s.logger.Warningf("Could not merge task %s: %s", id, err)
			continue
		}
		if !ok {
			s.logger.Debugf("Task %s settled during reconciliation, status ignored", id)
			continue
		}
		merged++
	}

	s.logger.Debugf("Reconciled %d of %d active tasks", merged, len(ids))
	return merged, nil
}

// StateHandler returns an event channel state handler that reconciles on every new
// connection. Reconciliations run in the background with the context.
func (s *Service) StateHandler(ctx context.Context) events.StateHandler {
	return func(st events.State) {
		s.mu.Lock()
		rising := st.Connected && !s.connected
		s.connected = st.Connected
		s.mu.Unlock()

		if !rising {
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, err := s.Reconcile(ctx)
			switch {
			case err == nil:
			case errors.Is(err, backend.ErrNotSupported):
				s.logger.Debugf("Backend has no task status endpoint, skipping reconciliation")
			case ctx.Err() != nil:
			default:
				s.logger.Warningf("Reconciliation failed: %s", err)
			}
		}()
	}
}

// Wait blocks until the background reconciliations end.
func (s *Service) Wait() {
	s.wg.Wait()
}
