package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/tuberip/tuberip/internal/app/single"
	"github.com/tuberip/tuberip/internal/model"
)

// DownloadCommand downloads a single item on one of its formats.
type DownloadCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url      string
	formatID string
	wait     bool
	format   string
}

// NewDownloadCommand returns the download command.
func NewDownloadCommand(rootCmd *RootCommand, app *kingpin.Application) *DownloadCommand {
	c := &DownloadCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("download", "Download a single video, use resolve to list its formats.")
	c.Cmd.Arg("url", "Video URL.").Required().StringVar(&c.url)
	c.Cmd.Flag("format-id", "Format ID to download.").Short('f').Required().StringVar(&c.formatID)
	c.Cmd.Flag("wait", "Wait until the download is retrieved.").Default("true").BoolVar(&c.wait)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(formatTable).EnumVar(&c.format, formats...)

	return c
}

func (c DownloadCommand) Name() string { return c.Cmd.FullCommand() }

func (c DownloadCommand) Run(ctx context.Context) error {
	return c.rootCmd.runSession(ctx, func(ctx context.Context, env clientEnv) error {
		p := newPrinter(c.format, c.rootCmd.Stdout)

		b := env.Session.Browse()
		if err := b.SubmitURL(c.url); err != nil {
			return err
		}
		if _, err := b.AutoLoad(ctx); err != nil {
			return fmt.Errorf("could not resolve %s: %w", c.url, err)
		}
		item := b.View().Single
		if item == nil {
			return fmt.Errorf("%s is not a single item, use the browse command: %w", c.url, model.ErrNotValid)
		}

		if err := env.Session.WaitConnected(ctx); err != nil {
			return fmt.Errorf("could not connect to the event channel: %w", err)
		}
		taskID, err := env.Session.Single().Dispatch(ctx, single.Request{
			URL:       c.url,
			FormatID:  c.formatID,
			Title:     item.Title,
			Thumbnail: item.Thumbnail,
		})
		if err != nil {
			return err
		}

		if !c.wait {
			return p.PrintMessage(fmt.Sprintf("Dispatched task %s", taskID))
		}
		return waitAndPrint(ctx, env, []string{taskID}, p)
	})
}
