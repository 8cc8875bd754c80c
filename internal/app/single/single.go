package single

import (
	"context"
	"fmt"
	"strings"

	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
)

// Submitter submits single item downloads.
type Submitter interface {
	SubmitSingle(ctx context.Context, req backend.SubmitSingleRequest) (string, error)
}

// TaskSeeder seeds placeholder tasks.
type TaskSeeder interface {
	SeedPlaceholder(id string, initial model.Task) (bool, error)
}

// ServiceConfig is the configuration of the single item dispatcher.
type ServiceConfig struct {
	Backend   Submitter
	Registry  TaskSeeder
	SessionID func() string
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Backend == nil {
		return fmt.Errorf("backend is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("registry is required")
	}
	if c.SessionID == nil {
		c.SessionID = func() string { return "" }
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Single"})
	return nil
}

// Service dispatches single item downloads.
type Service struct {
	backend   Submitter
	registry  TaskSeeder
	sessionID func() string
	logger    log.Logger
}

// NewService returns a new single item dispatcher.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		backend:   cfg.Backend,
		registry:  cfg.Registry,
		sessionID: cfg.SessionID,
		logger:    cfg.Logger,
	}, nil
}

// Request is a single item download request.
type Request struct {
	URL      string
	FormatID string
	// Title and Thumbnail are only used for the placeholder task.
	Title     string
	Thumbnail string
}

func (r Request) validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("url is required: %w", model.ErrNotValid)
	}
	if strings.TrimSpace(r.FormatID) == "" {
		return fmt.Errorf("format id is required: %w", model.ErrNotValid)
	}
	return nil
}

// Dispatch submits the download and seeds its placeholder task.
func (s *Service) Dispatch(ctx context.Context, req Request) (string, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	taskID, err := s.backend.SubmitSingle(ctx, backend.SubmitSingleRequest{
		URL:       req.URL,
		FormatID:  req.FormatID,
		SessionID: s.sessionID(),
	})
	if err != nil {
		return "", fmt.Errorf("could not submit download: %w", err)
	}

	_, err = s.registry.SeedPlaceholder(taskID, model.Task{
		Status:    model.TaskStatusStarting,
		Progress:  0,
		Title:     req.Title,
		Thumbnail: req.Thumbnail,
	})
	if err != nil {
		return "", fmt.Errorf("could not seed task %q: %w", taskID, err)
	}

	s.logger.Infof("Download of %s (format %s) dispatched as task %s", req.URL, req.FormatID, taskID)
	return taskID, nil
}
