package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	settings  map[string]string
	downloads []model.DownloadRecord
	mu        sync.RWMutex
	logger    log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		settings: map[string]string{},
		logger:   cfg.Logger,
	}, nil
}

// GetSetting returns a setting value.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.settings[key]
	if !ok {
		return "", fmt.Errorf("setting %s: %w", key, model.ErrNotFound)
	}
	return v, nil
}

// SetSetting creates or replaces a setting.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = value
	r.logger.Debugf("Setting %s stored", key)
	return nil
}

// DeleteSetting removes a setting.
func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.settings[key]; !ok {
		return fmt.Errorf("setting %s: %w", key, model.ErrNotFound)
	}
	delete(r.settings, key)
	return nil
}

// RecordDownload stores a download history entry, the ID is generated if missing.
func (r *Repository) RecordDownload(ctx context.Context, d model.DownloadRecord) error {
	if d.TaskID == "" {
		return fmt.Errorf("task id is required: %w", model.ErrNotValid)
	}
	if d.ID == "" {
		d.ID = ulid.Make().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.downloads {
		if existing.ID == d.ID {
			return fmt.Errorf("download %s already exists: %w", d.ID, model.ErrAlreadyExists)
		}
	}
	r.downloads = append(r.downloads, d)
	r.logger.Debugf("Download of task %s recorded", d.TaskID)
	return nil
}

// ListDownloads returns the download history, newest first.
func (r *Repository) ListDownloads(ctx context.Context, limit int) ([]model.DownloadRecord, error) {
	r.mu.RLock()
	records := append([]model.DownloadRecord{}, r.downloads...)
	r.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID > records[j].ID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
