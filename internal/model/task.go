package model

// TaskStatus represents the lifecycle state of a download task.
type TaskStatus string

const (
	TaskStatusQueued      TaskStatus = "queued"
	TaskStatusStarting    TaskStatus = "starting"
	TaskStatusDownloading TaskStatus = "downloading"
	TaskStatusOptimizing  TaskStatus = "optimizing"
	TaskStatusFinished    TaskStatus = "finished"
	TaskStatusError       TaskStatus = "error"
)

// Valid returns true if the status is one of the known task statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusStarting, TaskStatusDownloading,
		TaskStatusOptimizing, TaskStatusFinished, TaskStatusError:
		return true
	}
	return false
}

// Terminal returns true when the backend will not send more progress for the task.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusFinished || s == TaskStatusError
}

// Task is the client side view of a backend download job.
type Task struct {
	ID              string
	Status          TaskStatus
	Progress        float64
	Speed           string
	ETA             string
	DownloadedBytes int64
	TotalBytes      int64
	Title           string
	Thumbnail       string
	Filename        string
	Message         string
	Error           string
	// Retrieved is set once the produced file has been requested, it never reverts.
	Retrieved bool
}

// NewTask returns a task with the default values used for unseen task IDs.
func NewTask(id string) Task {
	return Task{
		ID:     id,
		Status: TaskStatusQueued,
	}
}

// Retrievable returns true when the task has a produced file that was not requested yet.
func (t Task) Retrievable() bool {
	return t.Status == TaskStatusFinished && !t.Retrieved && t.Filename != ""
}

// TaskUpdate is a partial task update, nil fields are left untouched when merged.
type TaskUpdate struct {
	Status          *TaskStatus
	Progress        *float64
	Speed           *string
	ETA             *string
	DownloadedBytes *int64
	TotalBytes      *int64
	Title           *string
	Thumbnail       *string
	Filename        *string
	Message         *string
	Error           *string
}

// Empty returns true if the update doesn't carry any field.
func (u TaskUpdate) Empty() bool {
	return u == TaskUpdate{}
}

// Apply returns a copy of the task with the fields present on the update overwritten.
func (t Task) Apply(u TaskUpdate) Task {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.Speed != nil {
		t.Speed = *u.Speed
	}
	if u.ETA != nil {
		t.ETA = *u.ETA
	}
	if u.DownloadedBytes != nil {
		t.DownloadedBytes = *u.DownloadedBytes
	}
	if u.TotalBytes != nil {
		t.TotalBytes = *u.TotalBytes
	}
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Thumbnail != nil {
		t.Thumbnail = *u.Thumbnail
	}
	if u.Filename != nil {
		t.Filename = *u.Filename
	}
	if u.Message != nil {
		t.Message = *u.Message
	}
	if u.Error != nil {
		t.Error = *u.Error
	}
	return t
}
