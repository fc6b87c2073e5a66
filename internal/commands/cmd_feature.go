package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/colonyops/hive-review/internal/hive"
	"github.com/colonyops/hive-review/pkg/iojson"
	"github.com/urfave/cli/v3"
)

// FeatureCmd implements the hive-review feature command group.
type FeatureCmd struct {
	flags *Flags
	app   *hive.App

	// list flags
	jsonOutput bool
}

// NewFeatureCmd creates a new feature command.
func NewFeatureCmd(flags *Flags, app *hive.App) *FeatureCmd {
	return &FeatureCmd{flags: flags, app: app}
}

// Register adds the feature command to the application.
func (cmd *FeatureCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "feature",
		Usage: "Manage features",
		Description: `Feature commands create features and move them through their lifecycle.

A feature starts in planning, becomes approved when its plan is approved,
and is then started (executing) and completed.

Examples:
  hive-review feature create login-flow
  hive-review feature list
  hive-review feature start login-flow`,
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a feature in planning",
				UsageText: "hive-review feature create <name>",
				Action:    cmd.runCreate,
			},
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List features",
				UsageText: "hive-review feature list [--json]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "json",
						Usage:       "output as JSON lines",
						Destination: &cmd.jsonOutput,
					},
				},
				Action: cmd.runList,
			},
			{
				Name:          "show",
				Usage:         "Show a feature as JSON",
				UsageText:     "hive-review feature show <name>",
				ShellComplete: FeatureNameCompleter(cmd.app, true),
				Action:        cmd.runShow,
			},
			{
				Name:          "start",
				Usage:         "Move an approved feature to executing",
				UsageText:     "hive-review feature start <name>",
				ShellComplete: FeatureNameCompleter(cmd.app, false),
				Action:        cmd.runStart,
			},
			{
				Name:          "complete",
				Usage:         "Move an executing feature to completed",
				UsageText:     "hive-review feature complete <name>",
				ShellComplete: FeatureNameCompleter(cmd.app, false),
				Action:        cmd.runComplete,
			},
		},
	})

	return app
}

func (cmd *FeatureCmd) runCreate(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "name")
	if err != nil {
		return err
	}

	f, err := cmd.app.Features.Create(ctx, name)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, f)
}

func (cmd *FeatureCmd) runList(ctx context.Context, c *cli.Command) error {
	features, err := cmd.app.Features.List(ctx)
	if err != nil {
		return fmt.Errorf("list features: %w", err)
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, f := range features {
			if err := iojson.WriteLine(out, f); err != nil {
				return err
			}
		}
		return nil
	}

	if len(features) == 0 {
		_, _ = fmt.Fprintln(c.Root().ErrWriter, "No features found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tSTATUS\tUPDATED")
	for _, f := range features {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, f.Status, f.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (cmd *FeatureCmd) runShow(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "name")
	if err != nil {
		return err
	}

	f, err := cmd.app.Features.Get(ctx, name)
	if err != nil {
		return err
	}
	return iojson.Write(c.Root().Writer, c.Root().ErrWriter, f)
}

func (cmd *FeatureCmd) runStart(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "name")
	if err != nil {
		return err
	}

	f, err := cmd.app.Features.Start(ctx, name)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, f)
}

func (cmd *FeatureCmd) runComplete(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "name")
	if err != nil {
		return err
	}

	f, err := cmd.app.Features.Complete(ctx, name)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, f)
}

// requireArg returns the positional argument at i, or a usage error naming it.
func requireArg(c *cli.Command, i int, name string) (string, error) {
	if c.NArg() <= i {
		return "", fmt.Errorf("missing required argument <%s>; usage: %s", name, c.UsageText)
	}
	return c.Args().Get(i), nil
}
