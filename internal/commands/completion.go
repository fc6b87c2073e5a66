package commands

import (
	"context"
	"fmt"

	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/hive"
	"github.com/urfave/cli/v3"
)

// FeatureNameCompleter returns a ShellCompleteFunc that suggests feature
// names as the first positional argument. Completed features are skipped
// unless includeDone is set.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func FeatureNameCompleter(app *hive.App, includeDone bool) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
			// Only the first argument is a feature name.
			return
		}

		features, err := app.Features.List(ctx)
		if err != nil {
			return
		}

		w := cmd.Root().Writer
		for _, f := range features {
			if f.Status == feature.StatusCompleted && !includeDone {
				continue
			}
			_, _ = fmt.Fprintln(w, f.Name)
		}
	}
}
