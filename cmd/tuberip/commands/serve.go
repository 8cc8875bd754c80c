package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gin-gonic/gin"
	"github.com/oklog/run"

	"github.com/tuberip/tuberip/internal/api"
)

// ServeCommand runs a long lived client session behind the display API.
type ServeCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	addr string
}

// NewServeCommand returns the serve command.
func NewServeCommand(rootCmd *RootCommand, app *kingpin.Application) *ServeCommand {
	c := &ServeCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("serve", "Run a client session and expose it on an HTTP API.")
	c.Cmd.Flag("addr", "Listen address, overrides the configured one.").StringVar(&c.addr)

	return c
}

func (c ServeCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServeCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	return c.rootCmd.runSession(ctx, func(ctx context.Context, env clientEnv) error {
		addr := env.Config.Serve.Addr
		if c.addr != "" {
			addr = c.addr
		}

		h, err := api.NewHandler(api.HandlerConfig{
			Browse:    env.Session.Browse(),
			Selection: env.Session.Selection(),
			Single:    env.Session.Single(),
			Tasks:     env.Session.Registry(),
			Endpoints: env.Session,
			Settings:  env.Repo,
			History:   env.Repo,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("could not create api handler: %w", err)
		}

		if !c.rootCmd.Debug {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		var g run.Group

		// HTTP server.
		g.Add(
			func() error {
				logger.Infof("Display API listening on %s", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server failed: %w", err)
				}
				return nil
			},
			func(_ error) {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warningf("Could not shut down http server: %s", err)
				}
			},
		)

		// Until the session ends.
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
	})
}
