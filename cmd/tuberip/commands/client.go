package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/oklog/run"

	"github.com/tuberip/tuberip/internal/artifact"
	"github.com/tuberip/tuberip/internal/config"
	"github.com/tuberip/tuberip/internal/events/websocket"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/printer"
	"github.com/tuberip/tuberip/internal/session"
	"github.com/tuberip/tuberip/internal/storage"
	"github.com/tuberip/tuberip/internal/storage/sqlite"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var formats = []string{formatTable, formatJSON, formatYAML}

func newPrinter(format string, w io.Writer) printer.Printer {
	switch format {
	case formatJSON:
		return printer.NewJSONPrinter(w)
	case formatYAML:
		return printer.NewYAMLPrinter(w)
	default:
		return printer.NewTablePrinter(w)
	}
}

// clientEnv is what a command running a client session gets.
type clientEnv struct {
	Config  config.Config
	Repo    storage.Repository
	Session *session.Session
}

func (r *RootCommand) openRepository(ctx context.Context) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: r.DBPath,
		Logger: r.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}
	return repo, nil
}

// endpointSource returns the backend address and where it comes from:
// the flag, then the stored setting, then the config.
func (r *RootCommand) endpointSource(ctx context.Context, cfg config.Config, settings storage.SettingsRepository) (endpoint, source string, err error) {
	if r.Endpoint != "" {
		return r.Endpoint, "flag", nil
	}

	stored, err := settings.GetSetting(ctx, storage.SettingEndpoint)
	switch {
	case err == nil:
		return stored, "stored", nil
	case !errors.Is(err, model.ErrNotFound):
		return "", "", fmt.Errorf("could not get stored endpoint: %w", err)
	}

	return cfg.Endpoint, "config", nil
}

func (r *RootCommand) newSink(ctx context.Context, cfg config.Config) (artifact.Sink, error) {
	switch cfg.Output.Sink {
	case config.SinkS3:
		uploader, err := artifact.NewS3Uploader(ctx, artifact.S3ClientConfig{
			Region:   cfg.S3.Region,
			Profile:  cfg.S3.Profile,
			Endpoint: cfg.S3.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create s3 uploader: %w", err)
		}
		return artifact.NewS3Sink(artifact.S3SinkConfig{
			Bucket:    cfg.S3.Bucket,
			KeyPrefix: cfg.S3.KeyPrefix,
			Uploader:  uploader,
			Logger:    r.Logger,
		})
	default:
		return artifact.NewLocalSink(artifact.LocalSinkConfig{
			Dir:          cfg.Output.Dir,
			StatusWriter: r.Stderr,
			Logger:       r.Logger,
		})
	}
}

// runSession runs a client session and calls f with it. The session stops when f returns.
func (r *RootCommand) runSession(ctx context.Context, f func(ctx context.Context, env clientEnv) error) error {
	logger := r.Logger

	cfg, err := config.Load(r.ConfigPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	repo, err := r.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	endpoint, source, err := r.endpointSource(ctx, cfg, repo)
	if err != nil {
		return err
	}
	logger.Debugf("Using %s backend endpoint %s", source, endpoint)

	sink, err := r.newSink(ctx, cfg)
	if err != nil {
		return fmt.Errorf("could not create artifact sink: %w", err)
	}

	dialer, err := websocket.NewDialer(websocket.DialerConfig{
		Path:   cfg.Events.Path,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create event dialer: %w", err)
	}

	var sess *session.Session
	history := newHistoryRecorder(repo, logger)
	sess, err = session.New(session.Config{
		Endpoint:       endpoint,
		Sink:           sink,
		Dialer:         dialer,
		RequestTimeout: cfg.Backend.RequestTimeout,
		MinBackoff:     cfg.Events.MinBackoff,
		MaxBackoff:     cfg.Events.MaxBackoff,
		OnRetrieved: func(taskID, location string, retrievalErr error) {
			task, err := sess.Registry().Get(taskID)
			if err != nil {
				task = model.NewTask(taskID)
			}
			history.record(ctx, task, location, retrievalErr)
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create session: %w", err)
	}

	var g run.Group

	// Client session.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return sess.Run(ctx)
			},
			func(_ error) {
				cancel()
			},
		)
	}

	// Command.
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return f(ctx, clientEnv{Config: cfg, Repo: repo, Session: sess})
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// waitAndPrint waits until the tasks end and prints them.
func waitAndPrint(ctx context.Context, env clientEnv, taskIDs []string, p printer.Printer) error {
	if err := env.Session.WaitTasks(ctx, taskIDs); err != nil {
		return fmt.Errorf("could not wait for the tasks: %w", err)
	}

	tasks := make([]model.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := env.Session.Registry().Get(id)
		if err != nil {
			return err
		}
		tasks = append(tasks, t)
	}

	if err := p.PrintTasks(tasks, model.ComputeTaskStats(tasks)); err != nil {
		return fmt.Errorf("could not print tasks: %w", err)
	}

	failed := 0
	for _, t := range tasks {
		if t.Status == model.TaskStatusError {
			failed++
		}
	}
	for _, rt := range env.Session.Retrievals() {
		if rt.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(tasks))
	}
	return nil
}
