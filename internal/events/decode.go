package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tuberip/tuberip/internal/model"
)

// Frame event names.
const (
	EventConnect  = "connect"
	EventProgress = "progress"
	EventError    = "error"
	EventComplete = "complete"
)

// Frame is a message of the event stream.
type Frame struct {
	Event     string          `json:"event"`
	SessionID string          `json:"sid,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame decodes a raw event stream message.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("could not decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("frame without event: %w", model.ErrNotValid)
	}
	return f, nil
}

// DecodeProgress decodes a progress event payload field by field.
//
// Fields with an invalid type or value are dropped and returned as
// PartialEventError, the rest of the update is kept. JSON null is the same
// as a missing field. A payload without task ID is not valid.
func DecodeProgress(data []byte) (taskID string, u model.TaskUpdate, dropped []error, err error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", model.TaskUpdate{}, nil, fmt.Errorf("could not decode progress payload: %w", err)
	}

	taskID, err = decodeTaskID(fields)
	if err != nil {
		return "", model.TaskUpdate{}, nil, err
	}

	drop := func(field string, err error) {
		dropped = append(dropped, PartialEventError{TaskID: taskID, Field: field, Err: err})
	}

	if raw, ok := field(fields, "status"); ok {
		var s string
		switch err := json.Unmarshal(raw, &s); {
		case err != nil:
			drop("status", err)
		case !model.TaskStatus(s).Valid():
			drop("status", fmt.Errorf("unknown status %q: %w", s, model.ErrNotValid))
		default:
			st := model.TaskStatus(s)
			u.Status = &st
		}
	}

	if raw, ok := field(fields, "progress"); ok {
		p, err := decodeProgressValue(raw)
		if err != nil {
			drop("progress", err)
		} else {
			u.Progress = &p
		}
	}

	for _, sf := range []struct {
		names []string
		dst   **string
	}{
		{names: []string{"speed"}, dst: &u.Speed},
		{names: []string{"eta"}, dst: &u.ETA},
		{names: []string{"title"}, dst: &u.Title},
		{names: []string{"thumbnail"}, dst: &u.Thumbnail},
		{names: []string{"filename"}, dst: &u.Filename},
		{names: []string{"message"}, dst: &u.Message},
		{names: []string{"error"}, dst: &u.Error},
	} {
		raw, ok := field(fields, sf.names...)
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			drop(sf.names[0], err)
			continue
		}
		*sf.dst = &s
	}

	for _, nf := range []struct {
		names []string
		dst   **int64
	}{
		{names: []string{"downloaded_bytes", "downloadedBytes"}, dst: &u.DownloadedBytes},
		{names: []string{"total_bytes", "totalBytes"}, dst: &u.TotalBytes},
	} {
		raw, ok := field(fields, nf.names...)
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err != nil {
			drop(nf.names[0], err)
			continue
		}
		n := int64(f)
		*nf.dst = &n
	}

	return taskID, u, dropped, nil
}

// DecodeError decodes an error event payload into a task update.
func DecodeError(data []byte) (taskID string, u model.TaskUpdate, err error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", model.TaskUpdate{}, fmt.Errorf("could not decode error payload: %w", err)
	}

	taskID, err = decodeTaskID(fields)
	if err != nil {
		return "", model.TaskUpdate{}, err
	}

	status := model.TaskStatusError
	u.Status = &status

	msg := "unknown error"
	if raw, ok := field(fields, "error"); ok {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			msg = s
		}
	}
	u.Error = &msg

	return taskID, u, nil
}

func decodeTaskID(fields map[string]json.RawMessage) (string, error) {
	raw, ok := field(fields, "taskId", "task_id")
	if !ok {
		return "", fmt.Errorf("missing task id: %w", model.ErrNotValid)
	}

	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", fmt.Errorf("invalid task id: %w", model.ErrNotValid)
	}
	if id == "" {
		return "", fmt.Errorf("empty task id: %w", model.ErrNotValid)
	}

	return id, nil
}

var jsonNull = []byte("null")

// field returns the first present and not null field of the names.
func field(fields map[string]json.RawMessage, names ...string) (json.RawMessage, bool) {
	for _, n := range names {
		raw, ok := fields[n]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			continue
		}
		return raw, true
	}
	return nil, false
}

func decodeProgressValue(raw json.RawMessage) (float64, error) {
	f, err := parseProgressValue(raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || f < 0 || f > 100 {
		return 0, fmt.Errorf("progress %v out of 0-100 range: %w", f, model.ErrNotValid)
	}
	return f, nil
}

func parseProgressValue(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("progress is not a number: %w", model.ErrNotValid)
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%")), 64)
	if err != nil {
		return 0, fmt.Errorf("progress %q is not a number: %w", s, model.ErrNotValid)
	}

	return f, nil
}
