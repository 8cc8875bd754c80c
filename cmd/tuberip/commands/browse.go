package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/tuberip/tuberip/internal/model"
)

// BrowseCommand fetches a page of a playlist or channel and optionally downloads
// the selected items.
type BrowseCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	url     string
	page    int
	tab     string
	selects []string
	all     bool
	quality string
	wait    bool
	format  string
}

// NewBrowseCommand returns the browse command.
func NewBrowseCommand(rootCmd *RootCommand, app *kingpin.Application) *BrowseCommand {
	c := &BrowseCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("browse", "Browse a playlist or channel page, optionally downloading the selected items.")
	c.Cmd.Arg("url", "Playlist or channel URL.").Required().StringVar(&c.url)
	c.Cmd.Flag("page", "Page number.").Default("1").IntVar(&c.page)
	c.Cmd.Flag("tab", "Channel tab (videos, shorts).").Default(string(model.TabVideos)).EnumVar(&c.tab, string(model.TabVideos), string(model.TabShorts))
	c.Cmd.Flag("select", "Item ID to download, can be repeated.").Short('s').StringsVar(&c.selects)
	c.Cmd.Flag("all", "Download every item of the page.").BoolVar(&c.all)
	c.Cmd.Flag("quality", "Maximum quality of the downloads (max, audio, 1080, 720...).").Default("max").StringVar(&c.quality)
	c.Cmd.Flag("wait", "Wait until the downloads are retrieved.").Default("true").BoolVar(&c.wait)
	c.Cmd.Flag("format", "Output format (table, json, yaml).").Default(formatTable).EnumVar(&c.format, formats...)

	return c
}

func (c BrowseCommand) Name() string { return c.Cmd.FullCommand() }

func (c BrowseCommand) Run(ctx context.Context) error {
	if c.all && len(c.selects) > 0 {
		return fmt.Errorf("--all and --select can't be used together")
	}
	quality, err := model.ParseQualityCap(c.quality)
	if err != nil {
		return err
	}

	return c.rootCmd.runSession(ctx, func(ctx context.Context, env clientEnv) error {
		p := newPrinter(c.format, c.rootCmd.Stdout)

		if err := fetchPage(ctx, env, c.url, c.page, model.Tab(c.tab)); err != nil {
			return err
		}
		if err := p.PrintView(env.Session.Browse().View()); err != nil {
			return fmt.Errorf("could not print view: %w", err)
		}

		if !c.all && len(c.selects) == 0 {
			return nil
		}

		sel := env.Session.Selection()
		if c.all {
			sel.SelectAll()
		}
		for _, id := range c.selects {
			if _, err := sel.Toggle(id); err != nil {
				return err
			}
		}

		if err := env.Session.WaitConnected(ctx); err != nil {
			return fmt.Errorf("could not connect to the event channel: %w", err)
		}
		taskIDs, err := sel.DispatchBatch(ctx, quality)
		if err != nil {
			return err
		}
		c.rootCmd.Logger.Infof("%d downloads dispatched", len(taskIDs))

		if !c.wait {
			return p.PrintMessage(fmt.Sprintf("Dispatched %d downloads", len(taskIDs)))
		}
		return waitAndPrint(ctx, env, taskIDs, p)
	})
}

// fetchPage starts a browse session on the URL and loads the requested page.
func fetchPage(ctx context.Context, env clientEnv, url string, page int, tab model.Tab) error {
	b := env.Session.Browse()
	if err := b.SubmitURL(url); err != nil {
		return err
	}

	var err error
	if page == 1 && tab == model.TabVideos {
		_, err = b.AutoLoad(ctx)
	} else {
		err = b.FetchPage(ctx, url, page, tab)
	}
	if err != nil {
		return fmt.Errorf("could not fetch %s page %d: %w", url, page, err)
	}

	if b.View().IsSingle() {
		return fmt.Errorf("%s is a single item, use the download command: %w", url, model.ErrNotValid)
	}
	return nil
}
