package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"github.com/sirupsen/logrus"

	"github.com/tuberip/tuberip/cmd/tuberip/commands"
	"github.com/tuberip/tuberip/internal/log"
	loglogrus "github.com/tuberip/tuberip/internal/log/logrus"
)

const (
	// Version is the application version (set via ldflags).
	Version = "dev"
)

// Run runs the main application.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) (err error) {
	app := kingpin.New("tuberip", "Media download client for a tuberip backend.")
	app.DefaultEnvars()
	rootCmd := commands.NewRootCommand(app)

	// Setup commands (registers flags).
	resolveCmd := commands.NewResolveCommand(rootCmd, app)
	browseCmd := commands.NewBrowseCommand(rootCmd, app)
	downloadCmd := commands.NewDownloadCommand(rootCmd, app)
	batchCmd := commands.NewBatchCommand(rootCmd, app)
	probeCmd := commands.NewProbeCommand(rootCmd, app)
	historyCmd := commands.NewHistoryCommand(rootCmd, app)
	serveCmd := commands.NewServeCommand(rootCmd, app)
	fakeBackendCmd := commands.NewFakeBackendCommand(rootCmd, app)

	// Endpoint subcommands share a parent command.
	endpointCmd := commands.NewEndpointCommand(app)
	endpointGetCmd := commands.NewEndpointGetCommand(rootCmd, endpointCmd)
	endpointSetCmd := commands.NewEndpointSetCommand(rootCmd, endpointCmd)
	endpointUnsetCmd := commands.NewEndpointUnsetCommand(rootCmd, endpointCmd)

	cmds := map[string]commands.Command{
		resolveCmd.Name():       resolveCmd,
		browseCmd.Name():        browseCmd,
		downloadCmd.Name():      downloadCmd,
		batchCmd.Name():         batchCmd,
		probeCmd.Name():         probeCmd,
		historyCmd.Name():       historyCmd,
		serveCmd.Name():         serveCmd,
		fakeBackendCmd.Name():   fakeBackendCmd,
		endpointGetCmd.Name():   endpointGetCmd,
		endpointSetCmd.Name():   endpointSetCmd,
		endpointUnsetCmd.Name(): endpointUnsetCmd,
	}

	// Parse command.
	cmdName, err := app.Parse(args[1:])
	if err != nil {
		return fmt.Errorf("invalid command configuration: %w", err)
	}

	// Set standard input/output.
	rootCmd.Stdin = stdin
	rootCmd.Stdout = stdout
	rootCmd.Stderr = stderr

	// Commands that only print stored data don't log unless --debug is set.
	quietCommands := map[string]bool{
		"history":      true,
		"endpoint get": true,
	}
	if quietCommands[cmdName] && !rootCmd.Debug {
		rootCmd.NoLog = true
	}

	// Set logger.
	rootCmd.Logger = getLogger(*rootCmd)

	var g run.Group

	// OS signals.
	{
		signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer signalCancel()

		g.Add(
			func() error {
				<-signalCtx.Done()
				rootCmd.Logger.Debugf("Termination signal received")
				return nil
			},
			func(_ error) {
				signalCancel()
			},
		)
	}

	// Execute command.
	{
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g.Add(
			func() error {
				err := cmds[cmdName].Run(ctx)
				if err != nil {
					return fmt.Errorf("%q command failed: %w", cmdName, err)
				}
				return nil
			},
			func(_ error) {
				cancel()
			},
		)
	}

	return g.Run()
}

// getLogger returns the application logger.
func getLogger(config commands.RootCommand) log.Logger {
	if config.NoLog {
		return log.Noop
	}

	logrusLog := logrus.New()
	logrusLog.Out = config.Stderr // Stdout is kept for the printers.
	logrusLogEntry := logrus.NewEntry(logrusLog)

	if config.Debug {
		logrusLogEntry.Logger.SetLevel(logrus.DebugLevel)
	}

	switch config.LoggerType {
	case commands.LoggerTypeDefault:
		logrusLogEntry.Logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:   !config.NoColor,
			DisableColors: config.NoColor,
		})
	case commands.LoggerTypeJSON:
		logrusLogEntry.Logger.SetFormatter(&logrus.JSONFormatter{})
	}

	logger := loglogrus.NewLogrus(logrusLogEntry).WithValues(log.Kv{
		"version": Version,
	})

	logger.Debugf("Debug level is enabled")

	return logger
}

func main() {
	ctx := context.Background()
	err := Run(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
