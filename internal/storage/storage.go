package storage

import (
	"context"

	"github.com/tuberip/tuberip/internal/model"
)

// SettingEndpoint is the key of the stored backend address.
const SettingEndpoint = "endpoint"

// SettingsRepository stores the client settings as key values.
type SettingsRepository interface {
	// GetSetting returns model.ErrNotFound when the key is not set.
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// HistoryRepository stores the retrieved downloads.
type HistoryRepository interface {
	RecordDownload(ctx context.Context, d model.DownloadRecord) error
	// ListDownloads returns the newest records first, limit <= 0 returns all.
	ListDownloads(ctx context.Context, limit int) ([]model.DownloadRecord, error)
}

// Repository is the client persistence.
type Repository interface {
	SettingsRepository
	HistoryRepository
}

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name Repository
