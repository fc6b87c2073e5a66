package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/colonyops/hive-review/pkg/iojson"
	"github.com/hay-kot/criterio"
	"github.com/urfave/cli/v3"
)

type ConfigValidateCmd struct {
	flags  *Flags
	format string
}

// NewConfigValidateCmd creates a new config validate command.
func NewConfigValidateCmd(flags *Flags) *ConfigValidateCmd {
	return &ConfigValidateCmd{flags: flags}
}

// Register adds the config validate command to the application.
func (cmd *ConfigValidateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "config",
		Usage: "Configuration management commands",
		Commands: []*cli.Command{
			{
				Name:        "validate",
				Usage:       "Validate configuration file",
				UsageText:   "hive-review config validate [options]",
				Description: "Validates the configuration file, checking the workspace, the git executable, and watch globs.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "format",
						Usage:       "output format (text, json)",
						Value:       "text",
						Destination: &cmd.format,
					},
				},
				Action: cmd.run,
			},
		},
	})

	return app
}

type validationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type validationReport struct {
	Valid  bool              `json:"valid"`
	Errors []validationIssue `json:"errors,omitempty"`
}

func buildReport(err error) validationReport {
	if err == nil {
		return validationReport{Valid: true}
	}

	var fieldErrs criterio.FieldErrors
	if !errors.As(err, &fieldErrs) {
		return validationReport{Errors: []validationIssue{{Field: "config", Message: err.Error()}}}
	}

	report := validationReport{}
	for _, fe := range fieldErrs {
		report.Errors = append(report.Errors, validationIssue{Field: fe.Field, Message: fe.Err.Error()})
	}
	return report
}

func (cmd *ConfigValidateCmd) run(ctx context.Context, c *cli.Command) error {
	report := buildReport(cmd.flags.Config.ValidateDeep(cmd.flags.ConfigPath))

	if cmd.format == "json" {
		if err := iojson.Write(c.Root().Writer, c.Root().ErrWriter, report); err != nil {
			return err
		}
	} else {
		writeReport(c.Root().Writer, report)
	}

	if !report.Valid {
		return fmt.Errorf("%d error(s) found", len(report.Errors))
	}
	return nil
}

func writeReport(w io.Writer, report validationReport) {
	for _, issue := range report.Errors {
		_, _ = fmt.Fprintf(w, "✗ %s: %s\n", issue.Field, issue.Message)
	}
	if report.Valid {
		_, _ = fmt.Fprintln(w, "✓ Configuration is valid")
	}
}
