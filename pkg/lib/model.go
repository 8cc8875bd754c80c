package lib

import (
	"time"

	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/session"
)

// Tab is the content section of a channel.
type Tab string

const (
	// TabVideos is the regular videos of a channel, playlists only have this tab.
	TabVideos Tab = "videos"
	// TabShorts is the short videos of a channel.
	TabShorts Tab = "shorts"
)

// TaskStatus represents the lifecycle state of a download task.
//
//	queued -> starting -> downloading -> optimizing -> finished
//
// A task can end on error at any point.
type TaskStatus string

const (
	TaskStatusQueued      TaskStatus = "queued"
	TaskStatusStarting    TaskStatus = "starting"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusOptimizing  TaskStatus = "optimizing"
	TaskStatusFinished    TaskStatus = "finished"
	TaskStatusError       TaskStatus = "error"
)

// Task is the state of a backend download job as known by the client.
type Task struct {
	ID       string
	Status   TaskStatus
	Progress float64
	Speed    string
	ETA      string
	Title    string
	Filename string
	Error    string
	// Retrieved is set once the produced file has been requested to the backend.
	Retrieved bool
	// Location is where the produced file was stored, empty until retrieved.
	Location string
	// RetrievalError is set when the produced file could not be stored.
	RetrievalError string
}

// Item is an entry of a playlist or channel page.
type Item struct {
	ID              string
	URL             string
	Title           string
	DurationSeconds float64
	IsShort         bool
}

// Page is a page of a playlist or channel.
type Page struct {
	SourceURL string
	// Kind is `playlist` or `channel`.
	Kind    string
	Title   string
	Tab     Tab
	Number  int
	Items   []Item
	HasMore bool
}

// Format is a downloadable format of a single item.
type Format struct {
	FormatID       string
	Resolution     string
	Ext            string
	FilesizeApprox int64
}

// SingleItem is a resolved video.
type SingleItem struct {
	URL             string
	Title           string
	Thumbnail       string
	DurationSeconds float64
	Formats         []Format
}

// Resolved is the result of resolving a URL, only one of the fields is set.
type Resolved struct {
	Page   *Page
	Single *SingleItem
}

// FormatProbe is the maximum available resolution of a URL.
type FormatProbe struct {
	URL           string
	MaxHeight     int
	MaxResolution string
	Error         string
}

// Download is a download history entry.
type Download struct {
	ID        string
	TaskID    string
	Title     string
	Filename  string
	Location  string
	Error     string
	CreatedAt time.Time
}

func fromInternalPage(p model.CollectionPage) *Page {
	items := make([]Item, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, Item{
			ID:              it.ID,
			URL:             it.URL,
			Title:           it.Title,
			DurationSeconds: it.DurationSeconds,
			IsShort:         it.IsShort,
		})
	}

	return &Page{
		SourceURL: p.SourceURL,
		Kind:      string(p.Kind),
		Title:     p.Title,
		Tab:       Tab(p.Tab),
		Number:    p.Page,
		Items:     items,
		HasMore:   p.HasMore,
	}
}

func fromInternalSingle(s model.SingleItem) *SingleItem {
	formats := make([]Format, 0, len(s.Formats))
	for _, f := range s.Formats {
		formats = append(formats, Format(f))
	}

	return &SingleItem{
		URL:             s.OriginalURL,
		Title:           s.Title,
		Thumbnail:       s.Thumbnail,
		DurationSeconds: s.DurationSeconds,
		Formats:         formats,
	}
}

func fromInternalView(v model.View) *Resolved {
	if v.Single != nil {
		return &Resolved{Single: fromInternalSingle(*v.Single)}
	}
	return &Resolved{Page: fromInternalPage(v.Page)}
}

func fromInternalTasks(tasks []model.Task, retrievals []session.Retrieval) []Task {
	byTask := make(map[string]session.Retrieval, len(retrievals))
	for _, r := range retrievals {
		byTask[r.TaskID] = r
	}

	result := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		task := Task{
			ID:        t.ID,
			Status:    TaskStatus(t.Status),
			Progress:  t.Progress,
			Speed:     t.Speed,
			ETA:       t.ETA,
			Title:     t.Title,
			Filename:  t.Filename,
			Error:     t.Error,
			Retrieved: t.Retrieved,
		}
		if r, ok := byTask[t.ID]; ok {
			task.Location = r.Location
			if r.Err != nil {
				task.RetrievalError = r.Err.Error()
			}
		}
		result = append(result, task)
	}
	return result
}

func fromInternalProbes(ps []model.FormatProbe) []FormatProbe {
	result := make([]FormatProbe, 0, len(ps))
	for _, p := range ps {
		result = append(result, FormatProbe(p))
	}
	return result
}

func fromInternalDownloads(ds []model.DownloadRecord) []Download {
	result := make([]Download, 0, len(ds))
	for _, d := range ds {
		result = append(result, Download(d))
	}
	return result
}
