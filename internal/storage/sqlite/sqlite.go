package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/storage"
	"github.com/tuberip/tuberip/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository opens the database, creating it if missing, and applies the migrations.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	migrator, err := migrations.NewMigrator(migrations.MigratorConfig{DB: db, Logger: cfg.Logger})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

// GetSetting returns a setting value.
func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("setting %s: %w", key, model.ErrNotFound)
		}
		return "", fmt.Errorf("could not query setting: %w", err)
	}
	return value, nil
}

// SetSetting creates or replaces a setting.
func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("setting key is required: %w", model.ErrNotValid)
	}

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, key, value, time.Now().UTC().Unix()); err != nil {
		return fmt.Errorf("could not store setting: %w", err)
	}

	r.logger.Debugf("Setting %s stored", key)
	return nil
}

// DeleteSetting removes a setting.
func (r *Repository) DeleteSetting(ctx context.Context, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("could not delete setting: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("setting %s: %w", key, model.ErrNotFound)
	}

	r.logger.Debugf("Setting %s deleted", key)
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

	query := `
		INSERT INTO downloads (id, task_id, title, filename, location, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.TaskID, d.Title, d.Filename, d.Location, d.Error, d.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: downloads.") {
			return fmt.Errorf("download %s already exists: %w", d.ID, model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert download: %w", err)
	}

	r.logger.Debugf("Download of task %s recorded", d.TaskID)
	return nil
}

// ListDownloads returns the download history, newest first.
func (r *Repository) ListDownloads(ctx context.Context, limit int) ([]model.DownloadRecord, error) {
	query := `
		SELECT id, task_id, title, filename, location, error, created_at
		FROM downloads
		ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query downloads: %w", err)
	}
	defer rows.Close()

	records := []model.DownloadRecord{}
	for rows.Next() {
		var (
			d         model.DownloadRecord
			createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.TaskID, &d.Title, &d.Filename, &d.Location, &d.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("could not scan download: %w", err)
		}
		d.CreatedAt = time.Unix(0, createdAt).UTC()
		records = append(records, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("could not iterate downloads: %w", err)
	}

	return records, nil
}
