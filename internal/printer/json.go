package printer

import (
	"encoding/json"
	"io"

	"github.com/tuberip/tuberip/internal/model"
)

// JSONPrinter prints the client information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintView prints a browse view in JSON format.
func (j *JSONPrinter) PrintView(v model.View) error { return j.encode(toViewOutput(v)) }

// PrintTasks prints the tasks and their stats in JSON format.
func (j *JSONPrinter) PrintTasks(tasks []model.Task, stats model.TaskStats) error {
	return j.encode(toTasksOutput(tasks, stats))
}

// PrintProbes prints the format probes in JSON format.
func (j *JSONPrinter) PrintProbes(probes []model.FormatProbe) error {
	return j.encode(toProbesOutput(probes))
}

// PrintDownloads prints the download history in JSON format.
func (j *JSONPrinter) PrintDownloads(records []model.DownloadRecord) error {
	return j.encode(toDownloadsOutput(records))
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	return j.encode(messageOutput{Message: msg})
}
