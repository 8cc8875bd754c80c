package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/tuberip/tuberip/internal/model"
)

// ProbeCommand prints the maximum available resolution of the items of a page.
type ProbeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url    string
	page   int
	tab    string
	format string
}

// NewProbeCommand returns the probe command.
func NewProbeCommand(rootCmd *RootCommand, app *kingpin.Application) *ProbeCommand {
	c := &ProbeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("probe", "Show the maximum resolution of the items of a playlist or channel page.")
	c.Cmd.Arg("url", "Playlist or channel URL.").Required().StringVar(&c.url)
	c.Cmd.Flag("page", "Page number.").Default("1").IntVar(&c.page)
	c.Cmd.Flag("tab", "Channel tab (videos, shorts).").Default(string(model.TabVideos)).EnumVar(&c.tab, string(model.TabVideos), string(model.TabShorts))
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(formatTable).EnumVar(&c.format, formats...)

	return c
}

func (c ProbeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ProbeCommand) Run(ctx context.Context) error {
	return c.rootCmd.runSession(ctx, func(ctx context.Context, env clientEnv) error {
		if err := fetchPage(ctx, env, c.url, c.page, model.Tab(c.tab)); err != nil {
			return err
		}

		sel := env.Session.Selection()
		if sel.SelectAll() == 0 {
			return fmt.Errorf("page %d of %s has no items: %w", c.page, c.url, model.ErrEmptySelection)
		}

		probes, err := sel.ProbeSelected(ctx)
		if err != nil {
			return fmt.Errorf("could not probe formats: %w", err)
		}

		if err := newPrinter(c.format, c.rootCmd.Stdout).PrintProbes(probes); err != nil {
			return fmt.Errorf("could not print probes: %w", err)
		}
		return nil
	})
}
