package completion

import (
	"context"
	"fmt"
	"sync"

	"github.com/tuberip/tuberip/internal/artifact"
	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/registry"
)

// TaskRegistry is the part of the task registry the dispatcher needs.
type TaskRegistry interface {
	Subscribe(o registry.Observer)
	ListAll() []model.Task
	ClaimRetrieval(id string) (filename string, ok bool)
}

// ArtifactRetriever opens the produced files.
type ArtifactRetriever interface {
	RetrieveArtifact(ctx context.Context, filename string) (*backend.Artifact, error)
}

// RetrievedHandler is called after every retrieval attempt.
type RetrievedHandler func(taskID, location string, err error)

// RetrievalError is a failed retrieval, it's not retried.
type RetrievalError struct {
	TaskID   string
	Filename string
	Err      error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("could not retrieve %q of task %s: %s", e.Filename, e.TaskID, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// ServiceConfig is the configuration of the completion dispatcher.
type ServiceConfig struct {
	Registry    TaskRegistry
	Retriever   ArtifactRetriever
	Sink        artifact.Sink
	OnRetrieved RetrievedHandler
	Logger      log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.Retriever == nil {
		return fmt.Errorf("retriever is required")
	}
	if c.Sink == nil {
		return fmt.Errorf("sink is required")
	}
	if c.OnRetrieved == nil {
		c.OnRetrieved = func(string, string, error) {}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Completion"})
	return nil
}

// Service retrieves the produced file of every finished task exactly once.
type Service struct {
	registry    TaskRegistry
	retriever   ArtifactRetriever
	sink        artifact.Sink
	onRetrieved RetrievedHandler
	logger      log.Logger

	once sync.Once
	ctx  context.Context
	wg   sync.WaitGroup
}

// NewService returns a new completion dispatcher.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		registry:    cfg.Registry,
		retriever:   cfg.Retriever,
		sink:        cfg.Sink,
		onRetrieved: cfg.OnRetrieved,
		logger:      cfg.Logger,
	}, nil
}

// Start subscribes to the registry and handles the tasks that are already finished.
// Retrievals use the context, calling it more than once has no effect.
func (s *Service) Start(ctx context.Context) {
	s.once.Do(func() {
		s.ctx = ctx
		s.registry.Subscribe(s.handle)
		for _, t := range s.registry.ListAll() {
			s.handle(t)
		}
	})
}

// Wait blocks until the running retrievals end.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) handle(t model.Task) {
	if !t.Retrievable() {
		return
	}

	filename, ok := s.registry.ClaimRetrieval(t.ID)
	if !ok {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		location, err := s.retrieve(t.ID, filename)
		if err != nil {
			s.logger.Errorf("%s", err)
		}
		s.onRetrieved(t.ID, location, err)
	}()
}

func (s *Service) retrieve(taskID, filename string) (string, error) {
	logger := s.logger.WithValues(log.Kv{"task": taskID})
	logger.Infof("Retrieving %s", filename)

	a, err := s.retriever.RetrieveArtifact(s.ctx, filename)
	if err != nil {
		return "", &RetrievalError{TaskID: taskID, Filename: filename, Err: err}
	}

	location, err := s.sink.Store(s.ctx, a)
	if err != nil {
		return "", &RetrievalError{TaskID: taskID, Filename: filename, Err: err}
	}

	return location, nil
}
