package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/tuberip/tuberip/internal/model"
)

// TablePrinter prints the client information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintView prints a single item with its formats or a collection page with its items.
func (t *TablePrinter) PrintView(v model.View) error {
	if v.Single != nil {
		return t.printSingle(*v.Single)
	}

	p := v.Page
	fmt.Fprintf(t.writer, "Source:     %s\n", p.SourceURL)
	if p.Title != "" {
		fmt.Fprintf(t.writer, "Title:      %s (%s)\n", p.Title, p.Kind)
	}
	more := ""
	if p.HasMore {
		more = ", more available"
	}
	fmt.Fprintf(t.writer, "Page:       %d [%s]%s\n", p.Page, p.Tab, more)
	if p.IsLoading {
		fmt.Fprintln(t.writer, "Loading...")
	}
	if p.Err != "" {
		fmt.Fprintf(t.writer, "Error:      %s\n", p.Err)
	}

	if len(p.Items) == 0 {
		return nil
	}
	fmt.Fprintln(t.writer)

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tDURATION\tTITLE")
	for _, it := range p.Items {
		title := it.Title
		if it.IsShort {
			title += " [short]"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, FormatDuration(it.DurationSeconds), title)
	}

	return nil
}

func (t *TablePrinter) printSingle(s model.SingleItem) error {
	fmt.Fprintf(t.writer, "Title:      %s\n", s.Title)
	fmt.Fprintf(t.writer, "URL:        %s\n", s.OriginalURL)
	fmt.Fprintf(t.writer, "Duration:   %s\n", FormatDuration(s.DurationSeconds))

	if len(s.Formats) == 0 {
		return nil
	}
	fmt.Fprintln(t.writer)

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "FORMAT\tRESOLUTION\tEXT\tSIZE")
	for _, f := range s.Formats {
		size := "-"
		if f.FilesizeApprox > 0 {
			size = "~" + FormatBytes(f.FilesizeApprox)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.FormatID, f.Resolution, f.Ext, size)
	}

	return nil
}

// PrintTasks prints the tasks and a stats summary.
func (t *TablePrinter) PrintTasks(tasks []model.Task, stats model.TaskStats) error {
	if len(tasks) > 0 {
		tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tSPEED\tETA\tTITLE\tDETAIL")
		for _, task := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%s\t%s\t%s\t%s\n",
				task.ID, task.Status, task.Progress, dash(task.Speed), dash(task.ETA), task.Title, taskDetail(task))
		}
		tw.Flush()
	}

	fmt.Fprintf(t.writer, "Total: %d  Active: %d  Completed: %d  Failed: %d  Speed: %.1f KiB/s\n",
		stats.Total, stats.Active, stats.Completed, stats.Failed, stats.SpeedKiBs)
	return nil
}

func taskDetail(t model.Task) string {
	switch {
	case t.Error != "":
		return t.Error
	case t.Retrieved:
		return "retrieved " + t.Filename
	case t.Filename != "":
		return t.Filename
	case t.TotalBytes > 0:
		return FormatBytes(t.DownloadedBytes) + "/" + FormatBytes(t.TotalBytes)
	default:
		return t.Message
	}
}

// PrintProbes prints the maximum resolution of every URL.
func (t *TablePrinter) PrintProbes(probes []model.FormatProbe) error {
	if len(probes) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "URL\tMAX HEIGHT\tMAX RESOLUTION\tERROR")
	for _, p := range probes {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", p.URL, p.MaxHeight, p.MaxResolution, dash(p.Error))
	}

	return nil
}

// PrintDownloads prints the download history.
func (t *TablePrinter) PrintDownloads(records []model.DownloadRecord) error {
	if len(records) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "TASK\tFILE\tLOCATION\tWHEN")
	for _, d := range records {
		location := d.Location
		if d.Failed() {
			location = "failed: " + d.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.TaskID, d.Filename, location, TimeAgo(d.CreatedAt))
	}

	return nil
}

// PrintMessage prints a simple message.
func (t *TablePrinter) PrintMessage(msg string) error {
	_, err := fmt.Fprintln(t.writer, strings.TrimRight(msg, "\n"))
	return err
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
