package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"

	"github.com/tuberip/tuberip/internal/model"
	storageio "github.com/tuberip/tuberip/internal/storage/io"
)

// BatchCommand downloads the items described on a batch selection file.
type BatchCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	file   string
	wait   bool
	format string
}

// NewBatchCommand returns the batch command.
func NewBatchCommand(rootCmd *RootCommand, app *kingpin.Application) *BatchCommand {
	c := &BatchCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("batch", "Download the items selected on a YAML batch file.")
	c.Cmd.Arg("file", "Batch selection file.").Required().StringVar(&c.file)
	c.Cmd.Flag("wait", "Wait until the downloads are retrieved.").Default("true").BoolVar(&c.wait)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(formatTable).EnumVar(&c.format, formats...)

	return c
}

func (c BatchCommand) Name() string { return c.Cmd.FullCommand() }

func (c BatchCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	abs, err := filepath.Abs(c.file)
	if err != nil {
		return fmt.Errorf("invalid batch file path: %w", err)
	}
	loader := storageio.NewBatchYAMLRepository(os.DirFS(filepath.Dir(abs)))
	batch, err := loader.GetBatch(ctx, filepath.Base(abs))
	if err != nil {
		return fmt.Errorf("could not load batch file: %w", err)
	}

	return c.rootCmd.runSession(ctx, func(ctx context.Context, env clientEnv) error {
		var err error
		p := newPrinter(c.format, c.rootCmd.Stdout)
		sel := env.Session.Selection()

		if err := env.Session.WaitConnected(ctx); err != nil {
			return fmt.Errorf("could not connect to the event channel: %w", err)
		}

		pending := map[string]bool{}
		for _, id := range batch.Select {
			pending[id] = true
		}

		var taskIDs []string
		for i, page := range batch.Pages {
			// The first page starts the browse session, the rest keep the selection scope.
			if i == 0 {
				err = fetchPage(ctx, env, batch.Source, page, batch.Tab)
			} else {
				err = env.Session.Browse().FetchPage(ctx, batch.Source, page, batch.Tab)
			}
			if err != nil {
				return err
			}

			if batch.All {
				sel.SelectAll()
			} else {
				for _, it := range env.Session.Browse().Page().Items {
					if pending[it.ID] {
						if _, err := sel.Toggle(it.ID); err != nil {
							return err
						}
						delete(pending, it.ID)
					}
				}
			}

			ids, err := sel.DispatchBatch(ctx, batch.Quality)
			if errors.Is(err, model.ErrEmptySelection) {
				logger.Infof("Nothing selected on page %d", page)
				continue
			}
			if err != nil {
				return err
			}
			logger.Infof("%d downloads of page %d dispatched", len(ids), page)
			taskIDs = append(taskIDs, ids...)
		}

		for id := range pending {
			logger.Warningf("Item %s was not found on the batch pages", id)
		}
		if len(taskIDs) == 0 {
			return fmt.Errorf("nothing to download: %w", model.ErrEmptySelection)
		}

		if !c.wait {
			return p.PrintMessage(fmt.Sprintf("Dispatched %d downloads", len(taskIDs)))
		}
		return waitAndPrint(ctx, env, taskIDs, p)
	})
}
