package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

// ResolveCommand resolves a URL and prints its first page or its formats.
type ResolveCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url    string
	format string
}

// NewResolveCommand returns the resolve command.
func NewResolveCommand(rootCmd *RootCommand, app *kingpin.Application) *ResolveCommand {
	c := &ResolveCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("resolve", "Resolve a video, playlist or channel URL.")
	c.Cmd.Arg("url", "Media URL.").Required().StringVar(&c.url)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(formatTable).EnumVar(&c.format, formats...)

	return c
}

func (c ResolveCommand) Name() string { return c.Cmd.FullCommand() }

func (c ResolveCommand) Run(ctx context.Context) error {
	return c.rootCmd.runSession(ctx, func(ctx context.Context, env clientEnv) error {
		b := env.Session.Browse()
		if err := b.SubmitURL(c.url); err != nil {
			return err
		}
		if _, err := b.AutoLoad(ctx); err != nil {
			return fmt.Errorf("could not resolve %s: %w", c.url, err)
		}

		if err := newPrinter(c.format, c.rootCmd.Stdout).PrintView(b.View()); err != nil {
			return fmt.Errorf("could not print view: %w", err)
		}
		return nil
	})
}
