package io

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/tuberip/tuberip/internal/model"
)

// BatchYAMLRepository loads batch selection files.
type BatchYAMLRepository struct {
	fs fs.FS
}

// NewBatchYAMLRepository creates a new YAML batch file repository.
func NewBatchYAMLRepository(filesystem fs.FS) *BatchYAMLRepository {
	return &BatchYAMLRepository{fs: filesystem}
}

// GetBatch loads a batch selection file and returns a validated domain model.
func (r *BatchYAMLRepository) GetBatch(ctx context.Context, path string) (model.BatchFile, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.BatchFile{}, fmt.Errorf("reading batch file: %w", err)
	}

	if ctx.Err() != nil {
		return model.BatchFile{}, ctx.Err()
	}

	var b BatchFile
	if err := yaml.Unmarshal(data, &b); err != nil {
		return model.BatchFile{}, fmt.Errorf("parsing YAML: %w", err)
	}

	m, err := b.toModel()
	if err != nil {
		return model.BatchFile{}, fmt.Errorf("invalid batch file: %w", err)
	}
	if err := m.Validate(); err != nil {
		return model.BatchFile{}, fmt.Errorf("invalid batch file: %w", err)
	}

	return m, nil
}

// BatchFile is the YAML structure of a batch selection file.
//
//	source: https://www.youtube.com/@someone
//	tab: shorts
//	pages: [1, 2]
//	select: [abc, def]
//	quality: 720
type BatchFile struct {
	Source  string   `yaml:"source"`
	Tab     string   `yaml:"tab"`
	Pages   []int    `yaml:"pages"`
	Select  []string `yaml:"select"`
	All     bool     `yaml:"all"`
	Quality string   `yaml:"quality"`
}

func (b BatchFile) toModel() (model.BatchFile, error) {
	quality, err := model.ParseQualityCap(b.Quality)
	if err != nil {
		return model.BatchFile{}, err
	}

	tab := model.Tab(b.Tab)
	if tab == "" {
		tab = model.TabVideos
	}

	pages := b.Pages
	if len(pages) == 0 {
		pages = []int{1}
	}

	return model.BatchFile{
		Source:  b.Source,
		Tab:     tab,
		Pages:   pages,
		Select:  b.Select,
		All:     b.All,
		Quality: quality,
	}, nil
}
