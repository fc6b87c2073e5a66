package hive

import (
	"context"
	"errors"
	"testing"

	"github.com/colonyops/hive-review/internal/core/anchor"
	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/git"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
	"github.com/colonyops/hive-review/internal/core/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reviewer = review.Author{Type: review.AuthorHuman, Name: "ana"}

func comment(body string) review.AnnotationInput {
	return review.AnnotationInput{Type: review.AnnotationComment, Body: body, Author: reviewer}
}

func startSession(t *testing.T, env *testEnv, featureName string, scope review.Scope) review.Session {
	t.Helper()
	ctx := context.Background()
	if _, err := env.app.Features.Get(ctx, featureName); errors.Is(err, feature.ErrNotFound) {
		_, err := env.app.Features.Create(ctx, featureName)
		require.NoError(t, err)
	}
	sess, err := env.app.Reviews.StartSession(ctx, featureName, scope)
	require.NoError(t, err)
	return sess
}

func addThread(t *testing.T, env *testEnv, sessionID string, uri *string, r anchor.Range) review.Thread {
	t.Helper()
	th, err := env.app.Reviews.AddThread(context.Background(), sessionID, review.ThreadInput{
		EntityID:   "entity",
		URI:        uri,
		Range:      r,
		Annotation: comment("please look"),
	})
	require.NoError(t, err)
	return th
}

func TestReviewService_StartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("starts in progress", func(t *testing.T) {
		env := newTestEnv(t, nil)
		sess := startSession(t, env, "f", review.ScopePlan)

		assert.Equal(t, review.StatusInProgress, sess.Status)
		assert.Nil(t, sess.Verdict)
		assert.Empty(t, sess.Threads)
		assert.Nil(t, sess.GitMeta)

		got, err := env.app.Reviews.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, got.ID)

		env.bus.AssertPublished(t, eventbus.EventReviewSessionStarted)
	})

	t.Run("rejects second in-progress session of any scope", func(t *testing.T) {
		env := newTestEnv(t, nil)
		first := startSession(t, env, "f", review.ScopePlan)

		_, err := env.app.Reviews.StartSession(ctx, "f", review.ScopeCode)
		var inProgress *review.SessionInProgressError
		require.ErrorAs(t, err, &inProgress)
		assert.Equal(t, first.ID, inProgress.SessionID)
		assert.Contains(t, err.Error(), first.ID)
		require.ErrorIs(t, err, hiveerr.ErrValidation)
	})

	t.Run("allows a new session after submit", func(t *testing.T) {
		env := newTestEnv(t, nil)
		first := startSession(t, env, "f", review.ScopePlan)

		_, err := env.app.Reviews.SubmitSession(ctx, first.ID, review.VerdictComment, "")
		require.NoError(t, err)

		second, err := env.app.Reviews.StartSession(ctx, "f", review.ScopePlan)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("validates input", func(t *testing.T) {
		env := newTestEnv(t, nil)

		_, err := env.app.Reviews.StartSession(ctx, "missing", review.ScopePlan)
		require.ErrorIs(t, err, feature.ErrNotFound)

		_, err = env.app.Features.Create(ctx, "f")
		require.NoError(t, err)
		_, err = env.app.Reviews.StartSession(ctx, "f", review.Scope("everything"))
		require.ErrorIs(t, err, hiveerr.ErrValidation)
	})
}

func TestReviewService_StartSession_GitCapture(t *testing.T) {
	ctx := context.Background()

	t.Run("code scope captures diff", func(t *testing.T) {
		g := &fakeGit{
			branch: "feat/review",
			remote: "git@github.com:colonyops/hive.git",
			add:    10,
			del:    3,
			diff:   "diff --git a/x b/x\n",
		}
		env := newTestEnv(t, g)

		sess := startSession(t, env, "f", review.ScopeCode)
		require.NotNil(t, sess.GitMeta)
		assert.Equal(t, "colonyops/hive", sess.GitMeta.Repo)
		assert.Equal(t, "feat/review", sess.GitMeta.Ref)
		assert.Equal(t, 10, sess.GitMeta.Additions)
		assert.Equal(t, 3, sess.GitMeta.Deletions)

		require.Contains(t, sess.Diffs, DiffKeyWorking)
		d := sess.Diffs[DiffKeyWorking]
		assert.Equal(t, "uncommitted", d.Mode)
		assert.Equal(t, g.diff, d.Patch)
		assert.Equal(t, "uncommitted changes", d.Summary)
		assert.Equal(t, []git.DiffOptions{{Mode: git.DiffUncommitted, BaseBranch: "main"}}, g.diffOpts)

		stored, err := env.app.Reviews.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.Diffs, stored.Diffs)
	})

	t.Run("non-code scope skips diff", func(t *testing.T) {
		g := &fakeGit{branch: "main"}
		env := newTestEnv(t, g)

		sess := startSession(t, env, "f", review.ScopePlan)
		require.NotNil(t, sess.GitMeta)
		assert.Empty(t, sess.GitMeta.Repo)
		assert.Empty(t, sess.Diffs)
		assert.Empty(t, g.diffOpts)
	})

	t.Run("git failure is not fatal", func(t *testing.T) {
		env := newTestEnv(t, &fakeGit{branchErr: errors.New("not a git repository")})

		sess := startSession(t, env, "f", review.ScopeCode)
		assert.Nil(t, sess.GitMeta)
		assert.Empty(t, sess.Diffs)
	})
}

func TestReviewService_ListSessions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	s1 := startSession(t, env, "f", review.ScopePlan)
	_, err := env.app.Reviews.SubmitSession(ctx, s1.ID, review.VerdictApprove, "")
	require.NoError(t, err)

	s2 := startSession(t, env, "f", review.ScopeCode)
	addThread(t, env, s2.ID, nil, anchor.Line(0))

	list, err := env.app.Reviews.ListSessions(ctx, "f")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, s2.ID, list[0].ID)
	assert.Equal(t, 1, list[0].ThreadCount)
	assert.Equal(t, s1.ID, list[1].ID)
	assert.Equal(t, review.StatusApproved, list[1].Status)

	empty, err := env.app.Reviews.ListSessions(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReviewService_Threads(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	svc := env.app.Reviews

	sess := startSession(t, env, "f", review.ScopePlan)
	th := addThread(t, env, sess.ID, nil, anchor.Lines(1, 2))

	assert.Equal(t, review.ThreadOpen, th.Status)
	require.Len(t, th.Annotations, 1)
	assert.Equal(t, review.AnnotationComment, th.Annotations[0].Type)

	t.Run("reply keeps status", func(t *testing.T) {
		a, err := svc.ReplyToThread(ctx, th.ID, review.AnnotationInput{
			Body:   "agreed",
			Author: review.Author{Type: review.AuthorLLM, Name: "agent", AgentID: "a-1"},
		})
		require.NoError(t, err)
		assert.Equal(t, review.AnnotationComment, a.Type)

		got, err := svc.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got.Threads, 1)
		assert.Equal(t, review.ThreadOpen, got.Threads[0].Status)
		assert.Len(t, got.Threads[0].Annotations, 2)
	})

	t.Run("resolve and unresolve", func(t *testing.T) {
		env.bus.Reset()

		require.NoError(t, svc.ResolveThread(ctx, th.ID))
		require.NoError(t, svc.ResolveThread(ctx, th.ID))
		require.NoError(t, svc.UnresolveThread(ctx, th.ID))
		require.NoError(t, svc.UnresolveThread(ctx, th.ID))

		assert.Equal(t, []eventbus.Event{
			eventbus.EventReviewThreadResolved,
			eventbus.EventReviewThreadUnresolved,
		}, env.bus.Names())
	})

	t.Run("outdated threads stay outdated", func(t *testing.T) {
		other := addThread(t, env, sess.ID, nil, anchor.Line(4))
		require.NoError(t, svc.MarkThreadOutdated(ctx, other.ID))
		require.NoError(t, svc.MarkThreadOutdated(ctx, other.ID))

		require.ErrorIs(t, svc.ResolveThread(ctx, other.ID), hiveerr.ErrValidation)
		require.ErrorIs(t, svc.UnresolveThread(ctx, other.ID), hiveerr.ErrValidation)
	})

	t.Run("edit annotation", func(t *testing.T) {
		got, err := svc.GetSession(ctx, sess.ID)
		require.NoError(t, err)
		annID := got.Threads[0].Annotations[0].ID

		a, err := svc.EditAnnotation(ctx, th.ID, annID, "please look again")
		require.NoError(t, err)
		assert.Equal(t, "please look again", a.Body)
		assert.True(t, a.UpdatedAt.After(a.CreatedAt))
		env.bus.AssertPublished(t, eventbus.EventReviewAnnotationEdited)

		_, err = svc.EditAnnotation(ctx, th.ID, "a_missing", "x")
		require.ErrorIs(t, err, review.ErrAnnotationNotFound)

		_, err = svc.EditAnnotation(ctx, th.ID, annID, " ")
		require.ErrorIs(t, err, hiveerr.ErrValidation)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svc.DeleteThread(ctx, th.ID))
		env.bus.AssertPublished(t, eventbus.EventReviewThreadDeleted)

		err := svc.ResolveThread(ctx, th.ID)
		require.ErrorIs(t, err, review.ErrThreadNotFound)
		assert.EqualError(t, err, "Thread '"+th.ID+"' not found")
	})
}

func TestReviewService_AddThread_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	sess := startSession(t, env, "f", review.ScopePlan)

	tests := []struct {
		name string
		in   review.ThreadInput
	}{
		{
			name: "missing entity",
			in:   review.ThreadInput{Annotation: comment("x")},
		},
		{
			name: "inverted range",
			in:   review.ThreadInput{EntityID: "e", Range: anchor.Lines(5, 2), Annotation: comment("x")},
		},
		{
			name: "suggestion without replacement",
			in: review.ThreadInput{EntityID: "e", Annotation: review.AnnotationInput{
				Type: review.AnnotationSuggestion, Body: "x", Author: reviewer,
			}},
		},
		{
			name: "unknown author type",
			in: review.ThreadInput{EntityID: "e", Annotation: review.AnnotationInput{
				Body: "x", Author: review.Author{Type: "robot", Name: "r"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.app.Reviews.AddThread(ctx, sess.ID, tt.in)
			require.ErrorIs(t, err, hiveerr.ErrValidation)
		})
	}

	_, err := env.app.Reviews.AddThread(ctx, "no-such-session", review.ThreadInput{EntityID: "e", Annotation: comment("x")})
	require.ErrorIs(t, err, review.ErrSessionNotFound)
}

func TestReviewService_Submit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		verdict review.Verdict
		want    review.SessionStatus
	}{
		{review.VerdictApprove, review.StatusApproved},
		{review.VerdictRequestChanges, review.StatusChangesRequested},
		{review.VerdictComment, review.StatusCommented},
	}

	for _, tt := range tests {
		t.Run(string(tt.verdict), func(t *testing.T) {
			env := newTestEnv(t, nil)
			sess := startSession(t, env, "f", review.ScopePlan)

			got, err := env.app.Reviews.SubmitSession(ctx, sess.ID, tt.verdict, "looks fine")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			require.NotNil(t, got.Verdict)
			assert.Equal(t, tt.verdict, *got.Verdict)
			assert.Equal(t, "looks fine", got.Summary)
			assert.True(t, got.UpdatedAt.After(sess.UpdatedAt))

			payload, ok := env.bus.Last(eventbus.EventReviewSessionSubmitted)
			require.True(t, ok)
			assert.Equal(t, tt.want, payload.(eventbus.ReviewSessionSubmittedPayload).Status)
		})
	}

	t.Run("invalid verdict", func(t *testing.T) {
		env := newTestEnv(t, nil)
		sess := startSession(t, env, "f", review.ScopePlan)

		_, err := env.app.Reviews.SubmitSession(ctx, sess.ID, review.Verdict("lgtm"), "")
		require.ErrorIs(t, err, hiveerr.ErrValidation)
	})
}

func TestReviewService_ClosedSessionIsReadOnly(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	svc := env.app.Reviews

	sess := startSession(t, env, "f", review.ScopePlan)
	th := addThread(t, env, sess.ID, nil, anchor.Line(1))
	_, err := svc.SubmitSession(ctx, sess.ID, review.VerdictRequestChanges, "")
	require.NoError(t, err)

	var closed *review.SessionClosedError

	_, err = svc.AddThread(ctx, sess.ID, review.ThreadInput{EntityID: "e", Annotation: comment("x")})
	require.ErrorAs(t, err, &closed)

	_, err = svc.ReplyToThread(ctx, th.ID, comment("late"))
	require.ErrorAs(t, err, &closed)

	require.ErrorAs(t, svc.ResolveThread(ctx, th.ID), &closed)
	require.ErrorAs(t, svc.DeleteThread(ctx, th.ID), &closed)

	_, err = svc.SubmitSession(ctx, sess.ID, review.VerdictApprove, "")
	require.ErrorAs(t, err, &closed)
	assert.Equal(t, review.StatusChangesRequested, closed.Status)

	_, err = svc.SyncOutdated(ctx, sess.ID)
	require.ErrorAs(t, err, &closed)
}

func TestReviewService_MarkSuggestionApplied(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	svc := env.app.Reviews

	sess := startSession(t, env, "f", review.ScopeCode)
	replacement := "return nil"
	th, err := svc.AddThread(ctx, sess.ID, review.ThreadInput{
		EntityID: "main.go",
		Range:    anchor.Line(10),
		Annotation: review.AnnotationInput{
			Type:        review.AnnotationSuggestion,
			Body:        "simplify",
			Author:      reviewer,
			Replacement: &replacement,
		},
	})
	require.NoError(t, err)
	suggestionID := th.Annotations[0].ID
	require.NotNil(t, th.Annotations[0].Suggestion)
	assert.Equal(t, replacement, th.Annotations[0].Suggestion.Replacement)

	plain, err := svc.ReplyToThread(ctx, th.ID, comment("also this"))
	require.NoError(t, err)

	_, err = svc.MarkSuggestionApplied(ctx, th.ID, plain.ID)
	require.ErrorIs(t, err, hiveerr.ErrValidation)

	// Suggestions are applied after the session closes.
	_, err = svc.SubmitSession(ctx, sess.ID, review.VerdictRequestChanges, "")
	require.NoError(t, err)
	env.bus.Reset()

	first, err := svc.MarkSuggestionApplied(ctx, th.ID, suggestionID)
	require.NoError(t, err)
	require.NotNil(t, first.Suggestion.AppliedAt)

	second, err := svc.MarkSuggestionApplied(ctx, th.ID, suggestionID)
	require.NoError(t, err)
	assert.Equal(t, first.Suggestion.AppliedAt, second.Suggestion.AppliedAt)

	assert.Equal(t, []eventbus.Event{eventbus.EventReviewSuggestionApplied}, env.bus.Names())
}

func TestReviewService_SyncOutdated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	svc := env.app.Reviews

	env.writeWorkspaceFile(t, "src/a.go", "line0\nline1\nline2\nline3\n")
	env.writeWorkspaceFile(t, "src/b.go", "b0\nb1\n")

	sess := startSession(t, env, "f", review.ScopeCode)

	aURI := "src/a.go"
	bURI := "src/b.go"
	changed := addThread(t, env, sess.ID, &aURI, anchor.Line(1))
	untouched := addThread(t, env, sess.ID, &aURI, anchor.Line(3))
	emptied := addThread(t, env, sess.ID, &bURI, anchor.Line(0))
	unanchored := addThread(t, env, sess.ID, nil, anchor.Line(0))
	assert.NotEmpty(t, changed.AnchorHash)
	assert.Empty(t, unanchored.AnchorHash)

	resolved := addThread(t, env, sess.ID, &aURI, anchor.Line(2))
	require.NoError(t, svc.ResolveThread(ctx, resolved.ID))

	outdated, err := svc.SyncOutdated(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, outdated, "nothing changed yet")

	env.writeWorkspaceFile(t, "src/a.go", "line0\nLINE1\nCHANGED2\nline3\n")
	env.writeWorkspaceFile(t, "src/b.go", "")
	env.bus.Reset()

	outdated, err = svc.SyncActive(ctx, "f")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{changed.ID, emptied.ID}, outdated)

	got, err := svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	statuses := map[string]review.ThreadStatus{}
	for _, th := range got.Threads {
		statuses[th.ID] = th.Status
	}
	assert.Equal(t, review.ThreadOutdated, statuses[changed.ID])
	assert.Equal(t, review.ThreadOutdated, statuses[emptied.ID])
	assert.Equal(t, review.ThreadOpen, statuses[untouched.ID])
	assert.Equal(t, review.ThreadOpen, statuses[unanchored.ID])
	assert.Equal(t, review.ThreadResolved, statuses[resolved.ID], "resolved threads are left alone")

	assert.Equal(t, []eventbus.Event{
		eventbus.EventReviewThreadOutdated,
		eventbus.EventReviewThreadOutdated,
	}, env.bus.Names())
}

func TestReviewService_Status(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)
	svc := env.app.Reviews

	st, err := svc.Status(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, review.Status{}, st)

	sess := startSession(t, env, "f", review.ScopePlan)
	t1 := addThread(t, env, sess.ID, nil, anchor.Line(1))
	addThread(t, env, sess.ID, nil, anchor.Line(2))
	addThread(t, env, sess.ID, nil, anchor.Line(3))
	require.NoError(t, svc.ResolveThread(ctx, t1.ID))

	st, err = svc.Status(ctx, "f")
	require.NoError(t, err)
	require.NotNil(t, st.ActiveSessionID)
	assert.Equal(t, sess.ID, *st.ActiveSessionID)
	assert.Equal(t, 2, st.UnresolvedThreads)
	assert.Equal(t, 3, st.TotalThreads)
	assert.Nil(t, st.LatestVerdict)

	_, err = svc.SubmitSession(ctx, sess.ID, review.VerdictRequestChanges, "")
	require.NoError(t, err)

	st, err = svc.Status(ctx, "f")
	require.NoError(t, err)
	assert.Nil(t, st.ActiveSessionID)
	require.NotNil(t, st.LatestStatus)
	assert.Equal(t, review.StatusChangesRequested, *st.LatestStatus)
}
