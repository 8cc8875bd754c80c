package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/tuberip/tuberip/internal/config"
	"github.com/tuberip/tuberip/internal/model"
	"github.com/tuberip/tuberip/internal/session"
	"github.com/tuberip/tuberip/internal/storage"
)

// NewEndpointCommand returns the endpoint parent command.
func NewEndpointCommand(app *kingpin.Application) *kingpin.CmdClause {
	return app.Command("endpoint", "Manage the stored backend address.")
}

// EndpointGetCommand prints the backend address in use.
type EndpointGetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewEndpointGetCommand returns the endpoint get command.
func NewEndpointGetCommand(rootCmd *RootCommand, endpointCmd *kingpin.CmdClause) *EndpointGetCommand {
	c := &EndpointGetCommand{rootCmd: rootCmd}
	c.Cmd = endpointCmd.Command("get", "Show the backend address in use and where it comes from.")
	return c
}

func (c EndpointGetCommand) Name() string { return c.Cmd.FullCommand() }

func (c EndpointGetCommand) Run(ctx context.Context) error {
	cfg, err := config.Load(c.rootCmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	repo, err := c.rootCmd.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	endpoint, source, err := c.rootCmd.endpointSource(ctx, cfg, repo)
	if err != nil {
		return err
	}

	return newPrinter(formatTable, c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("%s (%s)", endpoint, source))
}

// EndpointSetCommand stores the backend address.
type EndpointSetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	address string
}

// NewEndpointSetCommand returns the endpoint set command.
func NewEndpointSetCommand(rootCmd *RootCommand, endpointCmd *kingpin.CmdClause) *EndpointSetCommand {
	c := &EndpointSetCommand{rootCmd: rootCmd}
	c.Cmd = endpointCmd.Command("set", "Store the backend address used by the next sessions.")
	c.Cmd.Arg("address", "Backend address (http://host:port).").Required().StringVar(&c.address)
	return c
}

func (c EndpointSetCommand) Name() string { return c.Cmd.FullCommand() }

func (c EndpointSetCommand) Run(ctx context.Context) error {
	if err := session.ValidateEndpoint(c.address); err != nil {
		return err
	}

	repo, err := c.rootCmd.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.SetSetting(ctx, storage.SettingEndpoint, c.address); err != nil {
		return fmt.Errorf("could not store endpoint: %w", err)
	}

	return newPrinter(formatTable, c.rootCmd.Stdout).PrintMessage(fmt.Sprintf("Backend endpoint set to %s", c.address))
}

// EndpointUnsetCommand removes the stored backend address.
type EndpointUnsetCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand
}

// NewEndpointUnsetCommand returns the endpoint unset command.
func NewEndpointUnsetCommand(rootCmd *RootCommand, endpointCmd *kingpin.CmdClause) *EndpointUnsetCommand {
	c := &EndpointUnsetCommand{rootCmd: rootCmd}
	c.Cmd = endpointCmd.Command("unset", "Remove the stored backend address, the configured one is used.")
	return c
}

func (c EndpointUnsetCommand) Name() string { return c.Cmd.FullCommand() }

func (c EndpointUnsetCommand) Run(ctx context.Context) error {
	repo, err := c.rootCmd.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	err = repo.DeleteSetting(ctx, storage.SettingEndpoint)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("could not remove stored endpoint: %w", err)
	}

	return newPrinter(formatTable, c.rootCmd.Stdout).PrintMessage("Stored backend endpoint removed")
}
