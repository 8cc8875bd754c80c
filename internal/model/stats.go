package model

import (
	"regexp"
	"strconv"
	"strings"
)

// TaskStats is an aggregated view of all the known tasks.
type TaskStats struct {
	Total     int
	Active    int
	Completed int
	Failed    int
	// SpeedKiBs is the sum of the download speed of the downloading tasks in KiB/s.
	SpeedKiBs float64
}

// ComputeTaskStats aggregates the tasks.
func ComputeTaskStats(tasks []Task) TaskStats {
	stats := TaskStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusQueued, TaskStatusStarting, TaskStatusDownloading, TaskStatusOptimizing:
			stats.Active++
		case TaskStatusFinished:
			stats.Completed++
		case TaskStatusError:
			stats.Failed++
		}

		if t.Status == TaskStatusDownloading {
			if kib, ok := ParseSpeedKiBs(t.Speed); ok {
				stats.SpeedKiBs += kib
			}
		}
	}

	return stats
}

var speedRegexp = regexp.MustCompile(`([\d.]+)\s*([a-zA-Z]+)`)

// ParseSpeedKiBs parses backend speed strings like `2.5MiB/s` or ` 700 KiB/s` into KiB/s.
func ParseSpeedKiBs(speed string) (float64, bool) {
	m := speedRegexp.FindStringSubmatch(speed)
	if m == nil {
		return 0, false
	}

	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}

	unit := strings.ToUpper(m[2])
	switch {
	case strings.Contains(unit, "G"):
		v *= 1024 * 1024
	case strings.Contains(unit, "M"):
		v *= 1024
	case strings.Contains(unit, "K"):
	default:
		v /= 1024
	}

	return v, true
}
