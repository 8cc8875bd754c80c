package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"

	"github.com/tuberip/tuberip/internal/backend/fake"
)

// FakeBackendCommand runs a local fake backend with generated catalogs and simulated jobs.
type FakeBackendCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	addr        string
	pageSize    int
	itemsPerTab int
	stepDelay   time.Duration
}

// NewFakeBackendCommand returns the fake backend command.
func NewFakeBackendCommand(rootCmd *RootCommand, app *kingpin.Application) *FakeBackendCommand {
	c := &FakeBackendCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("fake-backend", "Run a fake backend to try the client without downloading anything.")
	c.Cmd.Flag("addr", "Listen address.").Default("127.0.0.1:5000").StringVar(&c.addr)
	c.Cmd.Flag("page-size", "Items per collection page.").Default("50").IntVar(&c.pageSize)
	c.Cmd.Flag("items", "Items of every generated collection tab.").Default("120").IntVar(&c.itemsPerTab)
	c.Cmd.Flag("step-delay", "Time between the progress events of a job.").Default("200ms").DurationVar(&c.stepDelay)

	return c
}

func (c FakeBackendCommand) Name() string { return c.Cmd.FullCommand() }

func (c FakeBackendCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	fb, err := fake.NewServer(fake.ServerConfig{
		PageSize:    c.pageSize,
		ItemsPerTab: c.itemsPerTab,
		StepDelay:   c.stepDelay,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("could not create fake backend: %w", err)
	}
	defer fb.Close()

	srv := &http.Server{
		Addr:              c.addr,
		Handler:           fb.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var g run.Group

	g.Add(
		func() error {
			logger.Infof("Fake backend listening on %s", c.addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		},
		func(_ error) {
			fb.Hub().CloseAll()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warningf("Could not shut down http server: %s", err)
			}
		},
	)

	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				<-ctx.Done()
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}
