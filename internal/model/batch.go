package model

import (
	"fmt"
	"time"
)

// BatchFile is a saved batch selection: the items to download from some pages of a source.
type BatchFile struct {
	Source string
	Tab    Tab
	Pages  []int
	// Select are the item IDs to download, ignored when All is set.
	Select  []string
	All     bool
	Quality QualityCap
}

// Validate checks the batch file is usable.
func (b BatchFile) Validate() error {
	if b.Source == "" {
		return fmt.Errorf("source is required: %w", ErrNotValid)
	}
	if !b.Tab.Valid() {
		return fmt.Errorf("unknown tab %q: %w", b.Tab, ErrNotValid)
	}
	if len(b.Pages) == 0 {
		return fmt.Errorf("at least one page is required: %w", ErrNotValid)
	}
	for _, p := range b.Pages {
		if p < 1 {
			return fmt.Errorf("page %d must be 1 or greater: %w", p, ErrNotValid)
		}
	}
	if b.All && len(b.Select) > 0 {
		return fmt.Errorf("all and select can't be used together: %w", ErrNotValid)
	}
	if !b.All && len(b.Select) == 0 {
		return fmt.Errorf("select or all is required: %w", ErrNotValid)
	}
	return nil
}

// DownloadRecord is the history entry of a retrieved task.
type DownloadRecord struct {
	ID        string
	TaskID    string
	Title     string
	Filename  string
	Location  string
	Error     string
	CreatedAt time.Time
}

// Failed returns true when the retrieval failed.
func (d DownloadRecord) Failed() bool { return d.Error != "" }
