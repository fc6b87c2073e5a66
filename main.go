package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/colonyops/hive-review/internal/commands"
	"github.com/colonyops/hive-review/internal/core/config"
	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/git"
	"github.com/colonyops/hive-review/internal/core/logging"
	"github.com/colonyops/hive-review/internal/core/review"
	"github.com/colonyops/hive-review/internal/data/db"
	"github.com/colonyops/hive-review/internal/data/stores"
	"github.com/colonyops/hive-review/internal/hive"
	"github.com/colonyops/hive-review/internal/store/jsonfile"
	"github.com/colonyops/hive-review/pkg/executil"
	"github.com/colonyops/hive-review/pkg/logutils"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	// When installed via `go install module@version`, init() populates
	// these from runtime/debug.BuildInfo instead.
	version = "dev"
	commit  = "HEAD"
	date    = "now"
)

func build() string {
	v, c, d := version, commit, date

	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			if mv := info.Main.Version; mv != "" && mv != "(devel)" {
				v = mv
			}
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					c = s.Value
				case "vcs.time":
					d = s.Value
				}
			}
		}
	}

	short := c
	if len(c) > 7 {
		short = c[:7]
	}

	return fmt.Sprintf("%s (%s) %s", v, short, d)
}

func main() {
	ctx := context.Background()

	var (
		logCloser func()
		hiveApp   = &hive.App{}
		database  *db.DB
	)

	flags := &commands.Flags{}

	app := &cli.Command{
		Name:      "hive-review",
		Usage:     "Review implementation plans and code with humans and agents",
		UsageText: "hive-review [global options] command [command options]",
		Description: `hive-review tracks features through planning, approval and execution.

Plans are markdown documents with line-anchored comment threads; a plan can
only be approved once every thread is resolved. Code review sessions collect
threads against workspace files, detect when the anchored lines change, and
finish with a verdict.

Data lives under <workspace>/.hive.`,
		Version:               build(),
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("HIVE_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <workspace>/.hive/review.log)",
				Sources:     cli.EnvVars("HIVE_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("HIVE_CONFIG"),
				Value:       commands.DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "workspace",
				Aliases:     []string{"w"},
				Usage:       "workspace root containing the .hive directory",
				Sources:     cli.EnvVars("HIVE_WORKSPACE"),
				Value:       commands.DefaultWorkspace(),
				Destination: &flags.Workspace,
			},
			&cli.BoolFlag{
				Name:        "json-errors",
				Usage:       "report failures as JSON on stderr",
				Sources:     cli.EnvVars("HIVE_JSON_ERRORS"),
				Destination: &flags.JSONErrors,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			workspace, err := filepath.Abs(flags.Workspace)
			if err != nil {
				return ctx, fmt.Errorf("resolve workspace: %w", err)
			}

			cfg, err := config.Load(flags.ConfigPath, workspace)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			flags.Config = cfg

			logFile := flags.LogFile
			if logFile == "" {
				logFile = filepath.Join(cfg.HiveDir(), "review.log")
			}

			logger, closer, err := logutils.New(flags.LogLevel, logFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			files := jsonfile.New(cfg.HiveDir())

			var reviews review.Store = files
			if cfg.Storage.Backend == config.BackendSQLite {
				opts := db.DefaultOpenOptions()
				opts.Logger = logging.Component(log.Logger, "db")

				database, err = db.Open(cfg.HiveDir(), opts)
				if err != nil {
					return ctx, fmt.Errorf("open database: %w", err)
				}
				reviews = stores.NewReviewStore(database)
			}

			bus := eventbus.New()
			if cfg.Events.Debug {
				eventbus.RegisterDebugLogger(bus, logging.Component(log.Logger, "eventbus"))
			}

			gitExec := git.NewExecutor(cfg.GitPath, &executil.RealExecutor{})

			// Commands already hold a pointer to hiveApp.
			*hiveApp = *hive.NewApp(cfg, hive.Stores{
				Features: files,
				Plans:    files,
				Reviews:  reviews,
			}, gitExec, bus, log.Logger)

			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if database != nil {
				if err := database.Close(); err != nil {
					log.Error().Err(err).Msg("failed to close database")
					return err
				}
			}

			if logCloser != nil {
				logCloser()
			}
			return nil
		},
	}

	app = commands.NewFeatureCmd(flags, hiveApp).Register(app)
	app = commands.NewPlanCmd(flags, hiveApp).Register(app)
	app = commands.NewReviewCmd(flags, hiveApp).Register(app)
	app = commands.NewConfigValidateCmd(flags).Register(app)

	exitCode := 0
	if err := app.Run(ctx, os.Args); err != nil {
		commands.WriteError(os.Stderr, err, flags.JSONErrors)
		exitCode = 1
	}

	os.Exit(exitCode)
}
