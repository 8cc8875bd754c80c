package printer

import (
	"time"

	"github.com/tuberip/tuberip/internal/model"
)

// viewOutput is the structured output of a browse view.
type viewOutput struct {
	Session    uint64            `json:"session" yaml:"session"`
	State      string            `json:"state" yaml:"state"`
	Single     *singleOutput     `json:"single,omitempty" yaml:"single,omitempty"`
	Collection *collectionOutput `json:"collection,omitempty" yaml:"collection,omitempty"`
}

type collectionOutput struct {
	SourceURL string       `json:"source_url" yaml:"source_url"`
	Kind      string       `json:"kind" yaml:"kind"`
	Title     string       `json:"title" yaml:"title"`
	Tab       string       `json:"tab" yaml:"tab"`
	Page      int          `json:"page" yaml:"page"`
	HasMore   bool         `json:"has_more" yaml:"has_more"`
	IsLoading bool         `json:"is_loading" yaml:"is_loading"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
	Items     []itemOutput `json:"items" yaml:"items"`
}

type itemOutput struct {
	ID              string  `json:"id" yaml:"id"`
	URL             string  `json:"url" yaml:"url"`
	Title           string  `json:"title" yaml:"title"`
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`
	IsShort         bool    `json:"is_short" yaml:"is_short"`
}

type singleOutput struct {
	Title           string         `json:"title" yaml:"title"`
	OriginalURL     string         `json:"original_url" yaml:"original_url"`
	Thumbnail       string         `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	DurationSeconds float64        `json:"duration_seconds" yaml:"duration_seconds"`
	Formats         []formatOutput `json:"formats" yaml:"formats"`
}

type formatOutput struct {
	FormatID       string `json:"format_id" yaml:"format_id"`
	Resolution     string `json:"resolution" yaml:"resolution"`
	Ext            string `json:"ext" yaml:"ext"`
	FilesizeApprox int64  `json:"filesize_approx" yaml:"filesize_approx"`
}

type tasksOutput struct {
	Stats statsOutput  `json:"stats" yaml:"stats"`
	Tasks []taskOutput `json:"tasks" yaml:"tasks"`
}

type statsOutput struct {
	Total     int     `json:"total" yaml:"total"`
	Active    int     `json:"active" yaml:"active"`
	Completed int     `json:"completed" yaml:"completed"`
	Failed    int     `json:"failed" yaml:"failed"`
	SpeedKiBs float64 `json:"speed_kibs" yaml:"speed_kibs"`
}

type taskOutput struct {
	ID              string  `json:"id" yaml:"id"`
	Status          string  `json:"status" yaml:"status"`
	Progress        float64 `json:"progress" yaml:"progress"`
	Title           string  `json:"title" yaml:"title"`
	Speed           string  `json:"speed,omitempty" yaml:"speed,omitempty"`
	ETA             string  `json:"eta,omitempty" yaml:"eta,omitempty"`
	DownloadedBytes int64   `json:"downloaded_bytes" yaml:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes" yaml:"total_bytes"`
	Filename        string  `json:"filename,omitempty" yaml:"filename,omitempty"`
	Message         string  `json:"message,omitempty" yaml:"message,omitempty"`
	Error           string  `json:"error,omitempty" yaml:"error,omitempty"`
	Retrieved       bool    `json:"retrieved" yaml:"retrieved"`
}

type probeOutput struct {
	URL           string `json:"url" yaml:"url"`
	MaxHeight     int    `json:"max_height" yaml:"max_height"`
	MaxResolution string `json:"max_resolution" yaml:"max_resolution"`
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
}

type downloadOutput struct {
	ID        string    `json:"id" yaml:"id"`
	TaskID    string    `json:"task_id" yaml:"task_id"`
	Title     string    `json:"title" yaml:"title"`
	Filename  string    `json:"filename" yaml:"filename"`
	Location  string    `json:"location,omitempty" yaml:"location,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type messageOutput struct {
	Message string `json:"message" yaml:"message"`
}

func toViewOutput(v model.View) viewOutput {
	out := viewOutput{Session: v.Session, State: string(v.State)}

	if v.Single != nil {
		s := &singleOutput{
			Title:           v.Single.Title,
			OriginalURL:     v.Single.OriginalURL,
			Thumbnail:       v.Single.Thumbnail,
			DurationSeconds: v.Single.DurationSeconds,
			Formats:         make([]formatOutput, 0, len(v.Single.Formats)),
		}
		for _, f := range v.Single.Formats {
			s.Formats = append(s.Formats, formatOutput(f))
		}
		out.Single = s
		return out
	}

	p := v.Page
	c := &collectionOutput{
		SourceURL: p.SourceURL,
		Kind:      string(p.Kind),
		Title:     p.Title,
		Tab:       string(p.Tab),
		Page:      p.Page,
		HasMore:   p.HasMore,
		IsLoading: p.IsLoading,
		Error:     p.Err,
		Items:     make([]itemOutput, 0, len(p.Items)),
	}
	for _, it := range p.Items {
		c.Items = append(c.Items, itemOutput{
			ID:              it.ID,
			URL:             it.URL,
			Title:           it.Title,
			DurationSeconds: it.DurationSeconds,
			IsShort:         it.IsShort,
		})
	}
	out.Collection = c
	return out
}

func toTasksOutput(tasks []model.Task, stats model.TaskStats) tasksOutput {
	out := tasksOutput{
		Stats: statsOutput(stats),
		Tasks: make([]taskOutput, 0, len(tasks)),
	}
	for _, t := range tasks {
		out.Tasks = append(out.Tasks, taskOutput{
			ID:              t.ID,
			Status:          string(t.Status),
			Progress:        t.Progress,
			Title:           t.Title,
			Speed:           t.Speed,
			ETA:             t.ETA,
			DownloadedBytes: t.DownloadedBytes,
			TotalBytes:      t.TotalBytes,
			Filename:        t.Filename,
			Message:         t.Message,
			Error:           t.Error,
			Retrieved:       t.Retrieved,
		})
	}
	return out
}

func toProbesOutput(probes []model.FormatProbe) []probeOutput {
	out := make([]probeOutput, 0, len(probes))
	for _, p := range probes {
		out = append(out, probeOutput(p))
	}
	return out
}

func toDownloadsOutput(records []model.DownloadRecord) []downloadOutput {
	out := make([]downloadOutput, 0, len(records))
	for _, d := range records {
		out = append(out, downloadOutput{
			ID:        d.ID,
			TaskID:    d.TaskID,
			Title:     d.Title,
			Filename:  d.Filename,
			Location:  d.Location,
			Error:     d.Error,
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out
}
