package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tuberip/tuberip/internal/backend"
	"github.com/tuberip/tuberip/internal/log"
)

// LocalSinkConfig is the configuration of the local directory sink.
type LocalSinkConfig struct {
	Dir string
	// StatusWriter receives a progress line per file, optional.
	StatusWriter io.Writer
	Logger       log.Logger
}

func (c *LocalSinkConfig) defaults() error {
	if c.Dir == "" {
		return fmt.Errorf("directory is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "artifact.LocalSink"})
	return nil
}

// LocalSink stores the files on a local directory. Existing files are never
// overwritten, a numeric suffix is added instead.
type LocalSink struct {
	dir          string
	statusWriter io.Writer
	logger       log.Logger
}

// NewLocalSink returns a new local directory sink.
func NewLocalSink(cfg LocalSinkConfig) (*LocalSink, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &LocalSink{
		dir:          cfg.Dir,
		statusWriter: cfg.StatusWriter,
		logger:       cfg.Logger,
	}, nil
}

// Store writes the artifact on the directory.
func (s *LocalSink) Store(ctx context.Context, a *backend.Artifact) (string, error) {
	defer a.Body.Close()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", fmt.Errorf("could not create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tuberip-*.part")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	var dst io.Writer = tmp
	var pw *ProgressWriter
	if s.statusWriter != nil {
		pw = NewProgressWriter(tmp, s.statusWriter, safeName(a.Filename), a.Size)
		dst = pw
	}

	_, err = io.Copy(dst, ctxReader{ctx: ctx, r: a.Body})
	if pw != nil {
		pw.Finish()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("could not write %s: %w", a.Filename, err)
	}

	path, err := s.link(tmpPath, safeName(a.Filename))
	if err != nil {
		return "", err
	}

	s.logger.Infof("Stored %s", path)
	return path, nil
}

// link hard links the file to the first free name on the directory. Link fails
// when the name exists so concurrent stores never claim the same path.
func (s *LocalSink) link(src, name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", base, i, ext)
		}
		path := filepath.Join(s.dir, candidate)
		err := os.Link(src, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("could not move file to %s: %w", path, err)
		}
	}

	return "", fmt.Errorf("too many files named %s", name)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
