package printer

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tuberip/tuberip/internal/model"
)

// YAMLPrinter prints the client information in YAML format.
type YAMLPrinter struct {
	writer io.Writer
}

// NewYAMLPrinter creates a new YAML printer.
func NewYAMLPrinter(w io.Writer) *YAMLPrinter {
	return &YAMLPrinter{writer: w}
}

func (y *YAMLPrinter) encode(v any) error {
	enc := yaml.NewEncoder(y.writer)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// PrintView prints a browse view in YAML format.
func (y *YAMLPrinter) PrintView(v model.View) error { return y.encode(toViewOutput(v)) }

// PrintTasks prints the tasks and their stats in YAML format.
func (y *YAMLPrinter) PrintTasks(tasks []model.Task, stats model.TaskStats) error {
	return y.encode(toTasksOutput(tasks, stats))
}

// PrintProbes prints the format probes in YAML format.
func (y *YAMLPrinter) PrintProbes(probes []model.FormatProbe) error {
	return y.encode(toProbesOutput(probes))
}

// PrintDownloads prints the download history in YAML format.
func (y *YAMLPrinter) PrintDownloads(records []model.DownloadRecord) error {
	return y.encode(toDownloadsOutput(records))
}

// PrintMessage prints a simple message in YAML format.
func (y *YAMLPrinter) PrintMessage(msg string) error {
	return y.encode(messageOutput{Message: msg})
}
