package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// QualityCap is the maximum quality requested for a batch of downloads.
//
// The client never interprets it, it's forwarded to the backend as:
// `null` for the best available, a number for a maximum height or `"audio"`.
type QualityCap struct {
	height int
	audio  bool
}

var (
	// QualityCapMax requests the best available quality.
	QualityCapMax = QualityCap{}
	// QualityCapAudio requests audio only.
	QualityCapAudio = QualityCap{audio: true}
)

// QualityCapHeight returns a quality cap limited to a maximum video height.
func QualityCapHeight(height int) QualityCap {
	return QualityCap{height: height}
}

// ParseQualityCap parses `max`, `audio` or a height (`720`, `720p`).
func ParseQualityCap(s string) (QualityCap, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "max", "best":
		return QualityCapMax, nil
	case "audio":
		return QualityCapAudio, nil
	}

	h, err := strconv.Atoi(strings.TrimSuffix(s, "p"))
	if err != nil || h <= 0 {
		return QualityCap{}, fmt.Errorf("invalid quality cap %q: %w", s, ErrNotValid)
	}

	return QualityCapHeight(h), nil
}

// IsMax returns true if there is no limit.
func (q QualityCap) IsMax() bool { return !q.audio && q.height == 0 }

// IsAudio returns true if the cap requests audio only.
func (q QualityCap) IsAudio() bool { return q.audio }

// Height returns the maximum height, if any.
func (q QualityCap) Height() (int, bool) { return q.height, q.height > 0 }

func (q QualityCap) String() string {
	switch {
	case q.audio:
		return "audio"
	case q.height > 0:
		return fmt.Sprintf("%dp", q.height)
	default:
		return "max"
	}
}

func (q QualityCap) MarshalJSON() ([]byte, error) {
	switch {
	case q.audio:
		return []byte(`"audio"`), nil
	case q.height > 0:
		return []byte(strconv.Itoa(q.height)), nil
	default:
		return []byte("null"), nil
	}
}

func (q *QualityCap) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*q = QualityCapMax
	case float64:
		if v <= 0 || v != float64(int(v)) {
			return fmt.Errorf("invalid quality cap height %v: %w", v, ErrNotValid)
		}
		*q = QualityCapHeight(int(v))
	case string:
		c, err := ParseQualityCap(v)
		if err != nil {
			return err
		}
		*q = c
	default:
		return fmt.Errorf("invalid quality cap %s: %w", string(data), ErrNotValid)
	}

	return nil
}
