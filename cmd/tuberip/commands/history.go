package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/tuberip/tuberip/internal/log"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/storage"
)

// HistoryCommand lists the retrieved downloads.
type HistoryCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	limit  int
	format string
}

// NewHistoryCommand returns the history command.
func NewHistoryCommand(rootCmd *RootCommand, app *kingpin.Application) *HistoryCommand {
	c := &HistoryCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("history", "List the retrieved downloads, newest first.")
	c.Cmd.Flag("limit", "Maximum number of entries, 0 lists all.").Short('n').Default("20").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(formatTable).EnumVar(&c.format, formats...)

	return c
}

func (c HistoryCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	records, err := repo.ListDownloads(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("could not list downloads: %w", err)
	}

	if err := newPrinter(c.format, c.rootCmd.Stdout).PrintDownloads(records); err != nil {
		return fmt.Errorf("could not print downloads: %w", err)
	}

	return nil
}

// historyRecorder stores every retrieval attempt on the download history.
type historyRecorder struct {
	repo   storage.HistoryRepository
	logger log.Logger
}

func newHistoryRecorder(repo storage.HistoryRepository, logger log.Logger) historyRecorder {
	return historyRecorder{repo: repo, logger: logger}
}

func (h historyRecorder) record(ctx context.Context, task model.Task, location string, retrievalErr error) {
	d := model.DownloadRecord{
		TaskID:   task.ID,
		Title:    task.Title,
		Filename: task.Filename,
		Location: location,
	}
	if retrievalErr != nil {
		d.Error = retrievalErr.Error()
	}

	if err := h.repo.RecordDownload(context.WithoutCancel(ctx), d); err != nil {
		h.logger.Warningf("Could not record download of task %s: %s", task.ID, err)
	}
}
