package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/colonyops/hive-review/internal/core/review"
	"github.com/colonyops/hive-review/internal/hive"
	"github.com/colonyops/hive-review/internal/store/jsonfile"
	"github.com/colonyops/hive-review/pkg/iojson"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

// ReviewCmd implements the hive-review review command group.
type ReviewCmd struct {
	flags *Flags
	app   *hive.App

	threadInput     iojson.FileReader[review.ThreadInput]
	annotationInput iojson.FileReader[review.AnnotationInput]

	// list/status flags
	jsonOutput bool

	// start flags
	startScope string

	// submit flags
	submitVerdict string
	submitSummary string

	// annotation flags
	editBody string
}

// NewReviewCmd creates a new review command.
func NewReviewCmd(flags *Flags, app *hive.App) *ReviewCmd {
	return &ReviewCmd{flags: flags, app: app}
}

// Register adds the review command to the application.
func (cmd *ReviewCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "review",
		Usage: "Run review sessions over a feature",
		Description: `Review commands open sessions, anchor threads to files, and submit verdicts.

A feature has at most one session in progress. Submitted sessions are
read-only, except that suggestions in them can still be marked applied.

Thread and annotation inputs are JSON documents read from --input or stdin.

Examples:
  hive-review review start --scope code login-flow
  echo '{"entityId":"main.go","uri":"main.go","range":{...},"annotation":{...}}' | hive-review review thread add <session-id>
  hive-review review submit --verdict request_changes <session-id>
  hive-review review status login-flow`,
		Commands: []*cli.Command{
			{
				Name:          "list",
				Aliases:       []string{"ls"},
				Usage:         "List a feature's sessions, newest first",
				UsageText:     "hive-review review list [--json] <feature>",
				ShellComplete: FeatureNameCompleter(cmd.app, true),
				Flags:         []cli.Flag{cmd.jsonFlag()},
				Action:        cmd.runList,
			},
			{
				Name:          "start",
				Usage:         "Start a review session",
				UsageText:     "hive-review review start [--scope <scope>] <feature>",
				ShellComplete: FeatureNameCompleter(cmd.app, false),
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "scope",
						Aliases:     []string{"s"},
						Usage:       "what is reviewed (feature, plan, task, context, code)",
						Value:       string(review.ScopeFeature),
						Destination: &cmd.startScope,
					},
				},
				Action: cmd.runStart,
			},
			{
				Name:      "show",
				Usage:     "Show a session as JSON",
				UsageText: "hive-review review show <session-id>",
				Action:    cmd.runShow,
			},
			{
				Name:      "submit",
				Usage:     "Submit a session with a verdict",
				UsageText: "hive-review review submit --verdict <verdict> [--summary <text>] <session-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "verdict",
						Aliases:     []string{"v"},
						Usage:       "approve, request_changes, or comment",
						Required:    true,
						Destination: &cmd.submitVerdict,
					},
					&cli.StringFlag{
						Name:        "summary",
						Usage:       "overall review summary",
						Destination: &cmd.submitSummary,
					},
				},
				Action: cmd.runSubmit,
			},
			{
				Name:          "status",
				Usage:         "Summarise a feature's review state",
				UsageText:     "hive-review review status [--json] <feature>",
				ShellComplete: FeatureNameCompleter(cmd.app, true),
				Flags:         []cli.Flag{cmd.jsonFlag()},
				Action:        cmd.runStatus,
			},
			{
				Name:      "sync",
				Usage:     "Mark threads whose anchored lines changed as outdated",
				UsageText: "hive-review review sync <session-id>",
				Action:    cmd.runSync,
			},
			{
				Name:      "watch",
				Usage:     "Watch the workspace and keep the active session's threads in sync",
				UsageText: "hive-review review watch <feature>",
				Description: `Watches workspace files matching watch.include and re-checks the
anchors of the feature's in-progress session on every change. Each sync
that outdates threads is printed as a JSON line. Stop with Ctrl-C.`,
				Action: cmd.runWatch,
			},
			cmd.threadCmd(),
			cmd.annotationCmd(),
		},
	})

	return app
}

func (cmd *ReviewCmd) jsonFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:        "json",
		Usage:       "output as JSON",
		Destination: &cmd.jsonOutput,
	}
}

func (cmd *ReviewCmd) threadCmd() *cli.Command {
	byID := func(name, usage string, action cli.ActionFunc) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			UsageText: "hive-review review thread " + name + " <thread-id>",
			Action:    action,
		}
	}

	return &cli.Command{
		Name:  "thread",
		Usage: "Manage review threads",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a thread to a session",
				UsageText: "hive-review review thread add [--input <file>] <session-id>",
				Flags:     []cli.Flag{cmd.threadInput.Flag()},
				Action:    cmd.runThreadAdd,
			},
			{
				Name:      "reply",
				Usage:     "Append an annotation to a thread",
				UsageText: "hive-review review thread reply [--input <file>] <thread-id>",
				Flags:     []cli.Flag{cmd.annotationInput.Flag()},
				Action:    cmd.runThreadReply,
			},
			byID("resolve", "Resolve a thread", cmd.runThreadResolve),
			byID("unresolve", "Reopen a resolved thread", cmd.runThreadUnresolve),
			byID("outdate", "Mark an open thread outdated", cmd.runThreadOutdate),
			byID("delete", "Delete a thread", cmd.runThreadDelete),
		},
	}
}

func (cmd *ReviewCmd) annotationCmd() *cli.Command {
	return &cli.Command{
		Name:  "annotation",
		Usage: "Manage annotations inside a thread",
		Commands: []*cli.Command{
			{
				Name:      "edit",
				Usage:     "Replace an annotation's body",
				UsageText: "hive-review review annotation edit --body <text> <thread-id> <annotation-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "body",
						Aliases:     []string{"b"},
						Usage:       "new annotation text",
						Required:    true,
						Destination: &cmd.editBody,
					},
				},
				Action: cmd.runAnnotationEdit,
			},
			{
				Name:      "apply",
				Usage:     "Mark a suggestion as applied",
				UsageText: "hive-review review annotation apply <thread-id> <annotation-id>",
				Action:    cmd.runAnnotationApply,
			},
		},
	}
}

func (cmd *ReviewCmd) runList(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	sessions, err := cmd.app.Reviews.ListSessions(ctx, name)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, s := range sessions {
			if err := iojson.WriteLine(out, s); err != nil {
				return err
			}
		}
		return nil
	}

	if len(sessions) == 0 {
		_, _ = fmt.Fprintf(c.Root().ErrWriter, "No review sessions for %s\n", name)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSCOPE\tSTATUS\tTHREADS\tUPDATED")
	for _, s := range sessions {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Scope, s.Status, s.ThreadCount, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func (cmd *ReviewCmd) runStart(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	sess, err := cmd.app.Reviews.StartSession(ctx, name, review.Scope(cmd.startScope))
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, sess)
}

func (cmd *ReviewCmd) runShow(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, 0, "session-id")
	if err != nil {
		return err
	}

	sess, err := cmd.app.Reviews.GetSession(ctx, id)
	if err != nil {
		return err
	}
	return iojson.Write(c.Root().Writer, c.Root().ErrWriter, sess)
}

func (cmd *ReviewCmd) runSubmit(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, 0, "session-id")
	if err != nil {
		return err
	}

	sess, err := cmd.app.Reviews.SubmitSession(ctx, id, review.Verdict(cmd.submitVerdict), cmd.submitSummary)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, sess.Summarize())
}

func (cmd *ReviewCmd) runStatus(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	st, err := cmd.app.Reviews.Status(ctx, name)
	if err != nil {
		return err
	}

	if cmd.jsonOutput {
		return iojson.Write(c.Root().Writer, c.Root().ErrWriter, st)
	}

	_, err = fmt.Fprintln(c.Root().Writer, renderStatus(name, st))
	return err
}

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true)
	statusLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")).Width(12)
	statusOpenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68"))
	statusDoneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a"))
	statusBlockStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
)

// renderStatus formats a review status for the terminal.
func renderStatus(featureName string, st review.Status) string {
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, statusLabelStyle.Render(label), value)
	}

	active := "none"
	if st.ActiveSessionID != nil {
		active = *st.ActiveSessionID
	}

	threads := fmt.Sprintf("%d unresolved / %d total", st.UnresolvedThreads, st.TotalThreads)
	if st.UnresolvedThreads > 0 {
		threads = statusOpenStyle.Render(threads)
	} else if st.TotalThreads > 0 {
		threads = statusDoneStyle.Render(threads)
	}

	verdict := "-"
	if st.LatestVerdict != nil {
		verdict = string(*st.LatestVerdict)
		switch *st.LatestVerdict {
		case review.VerdictApprove:
			verdict = statusDoneStyle.Render(verdict)
		case review.VerdictRequestChanges:
			verdict = statusBlockStyle.Render(verdict)
		}
	}

	latest := "-"
	if st.LatestStatus != nil {
		latest = string(*st.LatestStatus)
	}

	lines := []string{
		statusTitleStyle.Render("Review status: " + featureName),
		row("active", active),
		row("threads", threads),
		row("verdict", verdict),
		row("status", latest),
	}
	return strings.Join(lines, "\n")
}

func (cmd *ReviewCmd) runSync(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, 0, "session-id")
	if err != nil {
		return err
	}

	outdated, err := cmd.app.Reviews.SyncOutdated(ctx, id)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, syncResult{Outdated: nonNil(outdated)})
}

type syncResult struct {
	Path     string   `json:"path,omitempty"`
	Outdated []string `json:"outdated"`
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func (cmd *ReviewCmd) runWatch(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	if _, err := cmd.app.Features.Get(ctx, name); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	cfg := cmd.app.Config
	fw, err := jsonfile.NewFileWatcher(cfg.Workspace, cfg.Watch.Include, cfg.Watch.Debounce, log.Logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	_, _ = fmt.Fprintf(c.Root().ErrWriter, "Watching %s for %s (Ctrl-C to stop)\n", cfg.Workspace, name)

	return watchLoop(ctx, fw.Watch(ctx), c.Root().Writer, func(ctx context.Context) ([]string, error) {
		return cmd.app.Reviews.SyncActive(ctx, name)
	})
}

// watchLoop runs sync for every change until changes closes. Sync errors are
// logged and do not stop the loop.
func watchLoop(ctx context.Context, changes <-chan jsonfile.FileChange, out io.Writer, sync func(context.Context) ([]string, error)) error {
	for change := range changes {
		outdated, err := sync(ctx)
		if err != nil {
			log.Warn().Err(err).Str("path", change.Path).Msg("sync after change failed")
			continue
		}
		if len(outdated) == 0 {
			continue
		}
		if err := iojson.WriteLine(out, syncResult{Path: change.Path, Outdated: outdated}); err != nil {
			return err
		}
	}
	return nil
}

func (cmd *ReviewCmd) runThreadAdd(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, 0, "session-id")
	if err != nil {
		return err
	}

	in, err := cmd.threadInput.Read()
	if err != nil {
		return err
	}

	thread, err := cmd.app.Reviews.AddThread(ctx, id, in)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, thread)
}

func (cmd *ReviewCmd) runThreadReply(ctx context.Context, c *cli.Command) error {
	id, err := requireArg(c, 0, "thread-id")
	if err != nil {
		return err
	}

	in, err := cmd.annotationInput.Read()
	if err != nil {
		return err
	}

	a, err := cmd.app.Reviews.ReplyToThread(ctx, id, in)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, a)
}

func (cmd *ReviewCmd) threadAction(verb string, fn func(context.Context, string) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		id, err := requireArg(c, 0, "thread-id")
		if err != nil {
			return err
		}
		if err := fn(ctx, id); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(c.Root().Writer, verb)
		return nil
	}
}

func (cmd *ReviewCmd) runThreadResolve(ctx context.Context, c *cli.Command) error {
	return cmd.threadAction("resolved", cmd.app.Reviews.ResolveThread)(ctx, c)
}

func (cmd *ReviewCmd) runThreadUnresolve(ctx context.Context, c *cli.Command) error {
	return cmd.threadAction("unresolved", cmd.app.Reviews.UnresolveThread)(ctx, c)
}

func (cmd *ReviewCmd) runThreadOutdate(ctx context.Context, c *cli.Command) error {
	return cmd.threadAction("outdated", cmd.app.Reviews.MarkThreadOutdated)(ctx, c)
}

func (cmd *ReviewCmd) runThreadDelete(ctx context.Context, c *cli.Command) error {
	return cmd.threadAction("deleted", cmd.app.Reviews.DeleteThread)(ctx, c)
}

func threadAndAnnotation(c *cli.Command) (string, string, error) {
	threadID, err := requireArg(c, 0, "thread-id")
	if err != nil {
		return "", "", err
	}
	annotationID, err := requireArg(c, 1, "annotation-id")
	if err != nil {
		return "", "", err
	}
	return threadID, annotationID, nil
}

func (cmd *ReviewCmd) runAnnotationEdit(ctx context.Context, c *cli.Command) error {
	threadID, annotationID, err := threadAndAnnotation(c)
	if err != nil {
		return err
	}

	a, err := cmd.app.Reviews.EditAnnotation(ctx, threadID, annotationID, cmd.editBody)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, a)
}

func (cmd *ReviewCmd) runAnnotationApply(ctx context.Context, c *cli.Command) error {
	threadID, annotationID, err := threadAndAnnotation(c)
	if err != nil {
		return err
	}

	a, err := cmd.app.Reviews.MarkSuggestionApplied(ctx, threadID, annotationID)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, a)
}
