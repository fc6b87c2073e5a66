package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/colonyops/hive-review/internal/core/anchor"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
	"github.com/colonyops/hive-review/internal/core/plan"
	"github.com/colonyops/hive-review/internal/hive"
	"github.com/colonyops/hive-review/pkg/iojson"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

const defaultRenderWidth = 80

// PlanCmd implements the hive-review plan command group.
type PlanCmd struct {
	flags *Flags
	app   *hive.App

	// stdin is read by "plan write" when no --file is given.
	stdin io.Reader

	// write flags
	writeFile string

	// show flags
	showRender bool
	showJSON   bool

	// comment flags
	commentLine   int
	commentStart  int
	commentEnd    int
	commentBody   string
	commentAuthor string
}

// NewPlanCmd creates a new plan command.
func NewPlanCmd(flags *Flags, app *hive.App) *PlanCmd {
	return &PlanCmd{flags: flags, app: app, stdin: os.Stdin}
}

// Register adds the plan command to the application.
func (cmd *PlanCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "plan",
		Usage: "Write, comment on, and approve feature plans",
		Description: `Plan commands manage a feature's plan.md and its inline comments.

Writing a plan clears every comment and revokes any approval. A plan can
only be approved once every comment on it is resolved.

Examples:
  hive-review plan write -f plan.md login-flow
  hive-review plan comment add --line 5 --body "Needs detail" login-flow
  hive-review plan comment resolve login-flow c_abc123
  hive-review plan approve login-flow`,
		Commands: []*cli.Command{
			cmd.writeCmd(),
			cmd.showCmd(),
			{
				Name:          "info",
				Usage:         "Show plan status and comment counts as JSON",
				UsageText:     "hive-review plan info <feature>",
				ShellComplete: FeatureNameCompleter(cmd.app, true),
				Action:        cmd.runInfo,
			},
			{
				Name:          "approve",
				Usage:         "Approve a plan with no unresolved comments",
				UsageText:     "hive-review plan approve <feature>",
				ShellComplete: FeatureNameCompleter(cmd.app, false),
				Action:        cmd.runApprove,
			},
			cmd.commentCmd(),
		},
	})

	return app
}

func (cmd *PlanCmd) writeCmd() *cli.Command {
	return &cli.Command{
		Name:          "write",
		Usage:         "Replace a feature's plan",
		UsageText:     "hive-review plan write [--file <path>] <feature>",
		ShellComplete: FeatureNameCompleter(cmd.app, false),
		Description: `Replaces plan.md with the given content, read from --file or stdin.

All comments are cleared and an approved feature returns to planning.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "read plan from file (reads from stdin if not provided)",
				Destination: &cmd.writeFile,
			},
		},
		Action: cmd.runWrite,
	}
}

func (cmd *PlanCmd) showCmd() *cli.Command {
	return &cli.Command{
		Name:          "show",
		Usage:         "Print a feature's plan",
		UsageText:     "hive-review plan show [--render | --json] <feature>",
		ShellComplete: FeatureNameCompleter(cmd.app, true),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "render",
				Aliases:     []string{"r"},
				Usage:       "render markdown for the terminal",
				Destination: &cmd.showRender,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output the plan and its comments as JSON",
				Destination: &cmd.showJSON,
			},
		},
		Action: cmd.runShow,
	}
}

func (cmd *PlanCmd) commentCmd() *cli.Command {
	featureAndID := "hive-review plan comment %s <feature> <comment-id>"

	return &cli.Command{
		Name:  "comment",
		Usage: "Manage plan comments",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Add a comment anchored to a line or range",
				UsageText: "hive-review plan comment add (--line N | --start N --end M) --body <text> <feature>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "line", Aliases: []string{"l"}, Usage: "line to anchor the comment to", Destination: &cmd.commentLine},
					&cli.IntFlag{Name: "start", Usage: "first line of the anchored range", Destination: &cmd.commentStart},
					&cli.IntFlag{Name: "end", Usage: "last line of the anchored range", Destination: &cmd.commentEnd},
					cmd.bodyFlag(),
					cmd.authorFlag(),
				},
				Action: cmd.runCommentAdd,
			},
			{
				Name:          "list",
				Aliases:       []string{"ls"},
				Usage:         "List comments as JSON lines",
				UsageText:     "hive-review plan comment list <feature>",
				ShellComplete: FeatureNameCompleter(cmd.app, true),
				Action:        cmd.runCommentList,
			},
			{
				Name:      "reply",
				Usage:     "Reply to a comment",
				UsageText: "hive-review plan comment reply --body <text> <feature> <comment-id>",
				Flags:     []cli.Flag{cmd.bodyFlag(), cmd.authorFlag()},
				Action:    cmd.runCommentReply,
			},
			{
				Name:      "resolve",
				Usage:     "Resolve a comment",
				UsageText: fmt.Sprintf(featureAndID, "resolve"),
				Action:    cmd.runCommentResolve,
			},
			{
				Name:      "unresolve",
				Usage:     "Reopen a resolved comment",
				UsageText: fmt.Sprintf(featureAndID, "unresolve"),
				Action:    cmd.runCommentUnresolve,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a comment and its replies",
				UsageText: fmt.Sprintf(featureAndID, "delete"),
				Action:    cmd.runCommentDelete,
			},
		},
	}
}

func (cmd *PlanCmd) bodyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "body",
		Aliases:     []string{"b"},
		Usage:       "comment text",
		Required:    true,
		Destination: &cmd.commentBody,
	}
}

func (cmd *PlanCmd) authorFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "author",
		Usage:       "comment author (human, agent)",
		Sources:     cli.EnvVars("HIVE_AUTHOR"),
		Value:       string(plan.AuthorHuman),
		Destination: &cmd.commentAuthor,
	}
}

func (cmd *PlanCmd) runWrite(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	var content []byte
	if cmd.writeFile != "" {
		content, err = os.ReadFile(cmd.writeFile)
	} else {
		content, err = io.ReadAll(cmd.stdin)
	}
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}

	if err := cmd.app.Plans.Write(ctx, name, string(content)); err != nil {
		return err
	}

	_, _ = fmt.Fprintln(c.Root().Writer, "written")
	return nil
}

func (cmd *PlanCmd) runShow(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	view, err := cmd.app.Plans.Read(ctx, name)
	if err != nil {
		return err
	}
	if view == nil {
		return plan.NoPlan(name)
	}

	out := c.Root().Writer

	switch {
	case cmd.showJSON:
		return iojson.Write(out, c.Root().ErrWriter, view)
	case cmd.showRender:
		rendered, err := renderMarkdown(view.Content, terminalWidth(out))
		if err != nil {
			return fmt.Errorf("render plan: %w", err)
		}
		_, err = fmt.Fprint(out, rendered)
		return err
	default:
		_, err = fmt.Fprint(out, view.Content)
		return err
	}
}

// terminalWidth returns the width of w when it is a terminal, or a default.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultRenderWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultRenderWidth
	}
	return width
}

func renderMarkdown(content string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(width-2, 20)),
	)
	if err != nil {
		return "", err
	}
	return r.Render(content)
}

func (cmd *PlanCmd) runInfo(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	info, err := cmd.app.Plans.GetInfo(ctx, name)
	if err != nil {
		return err
	}
	return iojson.Write(c.Root().Writer, c.Root().ErrWriter, info)
}

// approvePrecheck reports a missing plan, then unresolved comments in the
// caller-facing wording, before the approval is attempted.
func approvePrecheck(name string, info plan.Info) error {
	if !info.HasPlan {
		return plan.NoPlan(name)
	}
	if n := info.CommentCount; n > 0 {
		return hiveerr.GateBlocked(n, "Error: Cannot approve - %d unresolved comment(s). Address them first.", n)
	}
	return nil
}

func (cmd *PlanCmd) runApprove(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	info, err := cmd.app.Plans.GetInfo(ctx, name)
	if err != nil {
		return err
	}
	if err := approvePrecheck(name, info); err != nil {
		return err
	}

	f, err := cmd.app.Plans.Approve(ctx, name)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, f)
}

func (cmd *PlanCmd) runCommentAdd(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	in := plan.CommentInput{Body: cmd.commentBody, Author: plan.Author(cmd.commentAuthor)}
	switch {
	case c.IsSet("start"):
		end := cmd.commentEnd
		if !c.IsSet("end") {
			end = cmd.commentStart
		}
		r := anchor.Lines(cmd.commentStart, end)
		in.Range = &r
	case c.IsSet("line"):
		line := cmd.commentLine
		in.Line = &line
	default:
		return errors.New("either --line or --start is required")
	}

	thread, err := cmd.app.Plans.AddComment(ctx, name, in)
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, thread)
}

func (cmd *PlanCmd) runCommentList(ctx context.Context, c *cli.Command) error {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return err
	}

	threads, err := cmd.app.Plans.GetComments(ctx, name)
	if err != nil {
		return err
	}
	for _, t := range threads {
		if err := iojson.WriteLine(c.Root().Writer, t); err != nil {
			return err
		}
	}
	return nil
}

func featureAndComment(c *cli.Command) (string, string, error) {
	name, err := requireArg(c, 0, "feature")
	if err != nil {
		return "", "", err
	}
	id, err := requireArg(c, 1, "comment-id")
	if err != nil {
		return "", "", err
	}
	return name, id, nil
}

func (cmd *PlanCmd) runCommentReply(ctx context.Context, c *cli.Command) error {
	name, id, err := featureAndComment(c)
	if err != nil {
		return err
	}

	reply, err := cmd.app.Plans.AddReply(ctx, name, id, plan.ReplyInput{
		Body:   cmd.commentBody,
		Author: plan.Author(cmd.commentAuthor),
	})
	if err != nil {
		return err
	}
	return iojson.WriteLine(c.Root().Writer, reply)
}

func (cmd *PlanCmd) runCommentResolve(ctx context.Context, c *cli.Command) error {
	name, id, err := featureAndComment(c)
	if err != nil {
		return err
	}
	if err := cmd.app.Plans.ResolveComment(ctx, name, id); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Root().Writer, "resolved")
	return nil
}

func (cmd *PlanCmd) runCommentUnresolve(ctx context.Context, c *cli.Command) error {
	name, id, err := featureAndComment(c)
	if err != nil {
		return err
	}
	if err := cmd.app.Plans.UnresolveComment(ctx, name, id); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Root().Writer, "unresolved")
	return nil
}

func (cmd *PlanCmd) runCommentDelete(ctx context.Context, c *cli.Command) error {
	name, id, err := featureAndComment(c)
	if err != nil {
		return err
	}
	if err := cmd.app.Plans.DeleteComment(ctx, name, id); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Root().Writer, "deleted")
	return nil
}
