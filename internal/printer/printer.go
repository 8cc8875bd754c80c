package printer

import "github.com/tuberip/tuberip/internal/model"

// Printer knows how to print the client information in different formats.
type Printer interface {
	PrintView(v model.View) error
	PrintTasks(tasks []model.Task, stats model.TaskStats) error
	PrintProbes(probes []model.FormatProbe) error
	PrintDownloads(records []model.DownloadRecord) error
	PrintMessage(msg string) error
}

var (
	_ Printer = &TablePrinter{}
	_ Printer = &JSONPrinter{}
	_ Printer = &YAMLPrinter{}
)
