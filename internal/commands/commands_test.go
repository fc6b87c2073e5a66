package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/colonyops/hive-review/internal/core/config"
	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
	"github.com/colonyops/hive-review/internal/core/plan"
	"github.com/colonyops/hive-review/internal/core/review"
	"github.com/colonyops/hive-review/internal/hive"
	"github.com/colonyops/hive-review/internal/store/jsonfile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

type testCLI struct {
	app    *hive.App
	flags  *Flags
	plan   *PlanCmd
	review *ReviewCmd
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.Review.CaptureGit = false

	store := jsonfile.New(cfg.HiveDir())
	app := hive.NewApp(&cfg, hive.Stores{Features: store, Plans: store, Reviews: store}, nil, eventbus.New(), zerolog.Nop())

	flags := &Flags{Config: &cfg}
	return &testCLI{
		app:    app,
		flags:  flags,
		plan:   NewPlanCmd(flags, app),
		review: NewReviewCmd(flags, app),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
}

// run executes args against a fresh root command and returns stdout.
func (tc *testCLI) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	tc.out.Reset()
	tc.errOut.Reset()

	root := &cli.Command{Name: "hive-review", Writer: tc.out, ErrWriter: tc.errOut}
	root = NewFeatureCmd(tc.flags, tc.app).Register(root)
	root = tc.plan.Register(root)
	root = tc.review.Register(root)
	root = NewConfigValidateCmd(tc.flags).Register(root)

	err := root.Run(context.Background(), append([]string{"hive-review"}, args...))
	return tc.out.String(), err
}

func (tc *testCLI) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := tc.run(t, args...)
	require.NoError(t, err, "hive-review %s", strings.Join(args, " "))
	return out
}

func decodeLine[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &v))
	return v
}

func TestApprovePrecheck(t *testing.T) {
	err := approvePrecheck("f", plan.Info{HasPlan: true, CommentCount: 2, TotalComments: 3})
	require.EqualError(t, err, "Error: Cannot approve - 2 unresolved comment(s). Address them first.")

	var gate *hiveerr.GateBlockedError
	require.ErrorAs(t, err, &gate)
	assert.Equal(t, 2, gate.Count)

	// a missing plan is reported before any comment count
	err = approvePrecheck("f", plan.Info{CommentCount: 2})
	require.ErrorIs(t, err, plan.ErrNoPlan)
	assert.EqualError(t, err, "No plan.md found for feature 'f'")

	assert.NoError(t, approvePrecheck("f", plan.Info{HasPlan: true, TotalComments: 3}))
}

func TestPlanApprove_JSONErrorKind(t *testing.T) {
	tc := newTestCLI(t)

	tc.mustRun(t, "feature", "create", "f")
	tc.plan.stdin = strings.NewReader("# Plan\n")
	tc.mustRun(t, "plan", "write", "f")
	tc.mustRun(t, "plan", "comment", "add", "--line", "1", "--body", "open", "f")

	_, err := tc.run(t, "plan", "approve", "f")
	require.Error(t, err)

	var buf bytes.Buffer
	WriteError(&buf, err, true)
	assert.Contains(t, buf.String(), `"kind": "gate_blocked"`)
	assert.Contains(t, buf.String(), `"unresolved": 1`)
}

func TestPlanFlow(t *testing.T) {
	tc := newTestCLI(t)

	created := decodeLine[feature.Feature](t, tc.mustRun(t, "feature", "create", "review-test"))
	assert.Equal(t, feature.StatusPlanning, created.Status)

	tc.plan.stdin = strings.NewReader("# Plan\n\nline 3\nline 4\nline 5\n")
	assert.Equal(t, "written\n", tc.mustRun(t, "plan", "write", "review-test"))

	assert.Equal(t, "# Plan\n\nline 3\nline 4\nline 5\n", tc.mustRun(t, "plan", "show", "review-test"))

	c1 := decodeLine[plan.Thread](t, tc.mustRun(t, "plan", "comment", "add", "--line", "5", "--body", "Can we add more detail?", "review-test"))
	assert.Equal(t, 5, c1.Range.Start.Line)

	c2 := decodeLine[plan.Thread](t, tc.mustRun(t, "plan", "comment", "add", "--start", "2", "--end", "4", "--body", "Range", "--author", "agent", "review-test"))
	assert.Equal(t, 2, c2.Range.Start.Line)
	assert.Equal(t, 4, c2.Range.End.Line)
	assert.Equal(t, plan.AuthorAgent, c2.Author)

	_, err := tc.run(t, "plan", "approve", "review-test")
	require.EqualError(t, err, "Error: Cannot approve - 2 unresolved comment(s). Address them first.")

	info := decodeLine[plan.Info](t, tc.mustRun(t, "plan", "info", "review-test"))
	assert.Equal(t, 2, info.CommentCount)

	tc.mustRun(t, "plan", "comment", "reply", "--body", "Done", "review-test", c1.ID)
	tc.mustRun(t, "plan", "comment", "resolve", "review-test", c1.ID)
	tc.mustRun(t, "plan", "comment", "delete", "review-test", c2.ID)

	lines := strings.Split(strings.TrimSpace(tc.mustRun(t, "plan", "comment", "list", "review-test")), "\n")
	require.Len(t, lines, 1)
	listed := decodeLine[plan.Thread](t, lines[0])
	assert.True(t, listed.Resolved)
	assert.Len(t, listed.Replies, 1)

	approved := decodeLine[feature.Feature](t, tc.mustRun(t, "plan", "approve", "review-test"))
	assert.Equal(t, feature.StatusApproved, approved.Status)

	shown := decodeLine[feature.Feature](t, tc.mustRun(t, "feature", "show", "review-test"))
	assert.Equal(t, feature.StatusApproved, shown.Status)
}

func TestPlanShow_Render(t *testing.T) {
	tc := newTestCLI(t)
	tc.mustRun(t, "feature", "create", "f")
	tc.plan.stdin = strings.NewReader("# Heading\n\nSome **bold** text.\n")
	tc.mustRun(t, "plan", "write", "f")

	out := tc.mustRun(t, "plan", "show", "--render", "f")
	assert.Contains(t, out, "Heading")
	assert.Contains(t, out, "bold")

	view := decodeLine[plan.View](t, tc.mustRun(t, "plan", "show", "--json", "f"))
	assert.Equal(t, feature.StatusPlanning, view.Status)
}

func TestPlanShow_NoPlan(t *testing.T) {
	tc := newTestCLI(t)
	tc.mustRun(t, "feature", "create", "f")

	_, err := tc.run(t, "plan", "show", "f")
	require.ErrorIs(t, err, plan.ErrNoPlan)
}

func TestReviewFlow(t *testing.T) {
	tc := newTestCLI(t)
	tc.mustRun(t, "feature", "create", "f")

	sess := decodeLine[review.Session](t, tc.mustRun(t, "review", "start", "--scope", "plan", "f"))
	assert.Equal(t, review.ScopePlan, sess.Scope)

	_, err := tc.run(t, "review", "start", "f")
	require.Error(t, err)
	assert.Contains(t, err.Error(), sess.ID)

	tc.review.threadInput.Stdin = strings.NewReader(`{
		"entityId": "plan",
		"range": {"start": {"line": 1, "character": 0}, "end": {"line": 2, "character": 0}},
		"annotation": {"type": "suggestion", "body": "reword", "replacement": "better", "author": {"type": "llm", "name": "agent"}}
	}`)
	thread := decodeLine[review.Thread](t, tc.mustRun(t, "review", "thread", "add", sess.ID))
	require.Len(t, thread.Annotations, 1)
	suggestionID := thread.Annotations[0].ID

	tc.review.annotationInput.Stdin = strings.NewReader(`{"body": "ok", "author": {"type": "human", "name": "ana"}}`)
	reply := decodeLine[review.Annotation](t, tc.mustRun(t, "review", "thread", "reply", thread.ID))
	assert.Equal(t, review.AnnotationComment, reply.Type)

	edited := decodeLine[review.Annotation](t, tc.mustRun(t, "review", "annotation", "edit", "--body", "ok, fixed", thread.ID, reply.ID))
	assert.Equal(t, "ok, fixed", edited.Body)

	assert.Equal(t, "resolved\n", tc.mustRun(t, "review", "thread", "resolve", thread.ID))

	st := decodeLine[review.Status](t, tc.mustRun(t, "review", "status", "--json", "f"))
	require.NotNil(t, st.ActiveSessionID)
	assert.Equal(t, sess.ID, *st.ActiveSessionID)
	assert.Equal(t, 1, st.TotalThreads)
	assert.Equal(t, 0, st.UnresolvedThreads)

	summary := decodeLine[review.SessionSummary](t, tc.mustRun(t, "review", "submit", "--verdict", "request_changes", "--summary", "see thread", sess.ID))
	assert.Equal(t, review.StatusChangesRequested, summary.Status)

	applied := decodeLine[review.Annotation](t, tc.mustRun(t, "review", "annotation", "apply", thread.ID, suggestionID))
	require.NotNil(t, applied.Suggestion)
	assert.NotNil(t, applied.Suggestion.AppliedAt)

	text := tc.mustRun(t, "review", "status", "f")
	assert.Contains(t, text, "Review status: f")
	assert.Contains(t, text, "request_changes")
	assert.Contains(t, text, "changes_requested")

	list := tc.mustRun(t, "review", "list", "f")
	assert.Contains(t, list, sess.ID)
	assert.Contains(t, list, "changes_requested")
}

func TestFeatureList(t *testing.T) {
	tc := newTestCLI(t)

	out := tc.mustRun(t, "feature", "list")
	assert.Empty(t, out)
	assert.Contains(t, tc.errOut.String(), "No features found")

	tc.mustRun(t, "feature", "create", "b")
	tc.mustRun(t, "feature", "create", "a")

	out = tc.mustRun(t, "feature", "list", "--json")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "a", decodeLine[feature.Feature](t, lines[0]).Name)

	_, err := tc.run(t, "feature", "create")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "<name>")
}

func TestConfigValidate(t *testing.T) {
	tc := newTestCLI(t)

	out := tc.mustRun(t, "config", "validate", "--format", "json")
	report := decodeLine[validationReport](t, out)
	assert.True(t, report.Valid)

	tc.flags.Config.Watch.Include = []string{"src/[unclosed"}
	out, err := tc.run(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "watch.include[0]")
}

func TestWatchLoop(t *testing.T) {
	changes := make(chan jsonfile.FileChange, 3)
	changes <- jsonfile.FileChange{Path: "a.go"}
	changes <- jsonfile.FileChange{Path: "b.go"}
	changes <- jsonfile.FileChange{Path: "c.go"}
	close(changes)

	results := [][]string{nil, {"t_1", "t_2"}, nil}
	calls := 0
	sync := func(context.Context) ([]string, error) {
		r := results[calls]
		calls++
		if calls == 3 {
			return nil, assert.AnError
		}
		return r, nil
	}

	var out bytes.Buffer
	require.NoError(t, watchLoop(context.Background(), changes, &out, sync))

	assert.Equal(t, 3, calls)
	assert.Equal(t, `{"path":"b.go","outdated":["t_1","t_2"]}`+"\n", out.String())
}

func TestFeatureNameCompleter(t *testing.T) {
	tc := newTestCLI(t)
	ctx := context.Background()

	for _, name := range []string{"beta", "alpha"} {
		_, err := tc.app.Features.Create(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, tc.app.Plans.Write(ctx, "beta", "# Beta\n"))
	_, err := tc.app.Plans.Approve(ctx, "beta")
	require.NoError(t, err)
	_, err = tc.app.Features.Start(ctx, "beta")
	require.NoError(t, err)
	_, err = tc.app.Features.Complete(ctx, "beta")
	require.NoError(t, err)

	complete := func(includeDone bool) string {
		var buf bytes.Buffer
		FeatureNameCompleter(tc.app, includeDone)(ctx, &cli.Command{Name: "show", Writer: &buf})
		return buf.String()
	}

	assert.Equal(t, "alpha\n", complete(false))
	assert.Equal(t, "alpha\nbeta\n", complete(true))
}
