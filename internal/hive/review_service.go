package hive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/colonyops/hive-review/internal/core/config"
	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/git"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
	"github.com/colonyops/hive-review/internal/core/ident"
	"github.com/colonyops/hive-review/internal/core/logging"
	"github.com/colonyops/hive-review/internal/core/review"
	"github.com/rs/zerolog"
)

// DiffKeyWorking is the Diffs key holding the diff captured when a code
// review starts.
const DiffKeyWorking = "working"

// ReviewService manages review sessions and the threads inside them.
type ReviewService struct {
	store     review.Store
	features  feature.Store
	git       git.Git // nil disables capture
	diff      git.DiffOptions
	workspace string
	bus       *eventbus.EventBus
	log       zerolog.Logger
	ids       *ident.Generator
	now       func() time.Time

	mu sync.Mutex
}

// NewReviewService creates a new ReviewService. g may be nil, in which case
// sessions are started without git metadata.
func NewReviewService(
	store review.Store,
	features feature.Store,
	g git.Git,
	cfg *config.Config,
	bus *eventbus.EventBus,
	ids *ident.Generator,
	log zerolog.Logger,
) *ReviewService {
	// Load has already validated the mode.
	mode, _ := git.ParseDiffMode(cfg.Review.DiffMode)

	if !cfg.Review.CaptureGit {
		g = nil
	}

	return &ReviewService{
		store:     store,
		features:  features,
		git:       g,
		diff:      git.DiffOptions{Mode: mode, BaseBranch: cfg.Review.BaseBranch},
		workspace: cfg.Workspace,
		bus:       bus,
		log:       logging.Component(log, "review-service"),
		ids:       ids,
		now:       time.Now,
	}
}

func sessionCtx(ctx context.Context, sess review.Session) context.Context {
	return logging.WithReviewSession(logging.WithFeature(ctx, sess.FeatureName), sess.ID)
}

// ListSessions returns summaries of every session for a feature, newest first.
func (s *ReviewService) ListSessions(ctx context.Context, featureName string) ([]review.SessionSummary, error) {
	sessions, err := s.store.ListSessions(ctx, featureName)
	if err != nil {
		return nil, err
	}

	out := make([]review.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Summarize())
	}
	review.SortSummaries(out)

	return out, nil
}

// ActiveSession returns the feature's in-progress session, or nil.
func (s *ReviewService) ActiveSession(ctx context.Context, featureName string) (*review.Session, error) {
	sessions, err := s.store.ListSessions(ctx, featureName)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].IsInProgress() {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

// StartSession opens a new in-progress session. A feature has at most one
// in-progress session across all scopes.
func (s *ReviewService) StartSession(ctx context.Context, featureName string, scope review.Scope) (review.Session, error) {
	if !scope.IsValid() {
		return review.Session{}, hiveerr.Invalid("scope", "must be one of feature, plan, task, context, code; got %q", scope)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.features.ReadFeature(ctx, featureName); err != nil {
		return review.Session{}, err
	}

	active, err := s.ActiveSession(ctx, featureName)
	if err != nil {
		return review.Session{}, err
	}
	if active != nil {
		return review.Session{}, &review.SessionInProgressError{FeatureName: featureName, SessionID: active.ID}
	}

	now := s.now()
	sess := review.Session{
		ID:          ident.SessionID(),
		FeatureName: featureName,
		Scope:       scope,
		Status:      review.StatusInProgress,
		Threads:     []review.Thread{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ctx = sessionCtx(ctx, sess)

	if s.git != nil {
		s.captureGit(ctx, &sess)
	}

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return review.Session{}, fmt.Errorf("start session: %w", err)
	}

	s.log.Info().Ctx(ctx).Str("scope", string(scope)).Msg("review session started")
	s.bus.PublishReviewSessionStarted(eventbus.ReviewSessionStartedPayload{
		Feature:   featureName,
		SessionID: sess.ID,
		Scope:     scope,
	})

	return sess, nil
}

// captureGit records repository state on sess. Failures are logged and
// leave the session without the affected data.
func (s *ReviewService) captureGit(ctx context.Context, sess *review.Session) {
	ref, err := s.git.Branch(ctx, s.workspace)
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("skipping git capture")
		return
	}

	meta := &review.GitMeta{Ref: ref, CapturedAt: s.now()}

	if remote, err := s.git.RemoteURL(ctx, s.workspace); err == nil {
		if owner, repo := git.ExtractOwnerRepo(remote); owner != "" {
			meta.Repo = owner + "/" + repo
		}
	} else {
		s.log.Debug().Ctx(ctx).Err(err).Msg("no remote url")
	}

	if add, del, err := s.git.DiffStats(ctx, s.workspace); err == nil {
		meta.Additions, meta.Deletions = add, del
	} else {
		s.log.Warn().Ctx(ctx).Err(err).Msg("failed to read diff stats")
	}

	sess.GitMeta = meta

	if sess.Scope != review.ScopeCode {
		return
	}

	patch, err := s.git.GetDiff(ctx, s.workspace, s.diff)
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("failed to capture diff")
		return
	}

	d := review.Diff{
		Mode:    s.diff.Mode.String(),
		Patch:   patch,
		Summary: git.DescribeDiffMode(s.diff),
	}
	if s.diff.Mode == git.DiffBranch {
		d.Base = s.diff.BaseBranch
	}
	sess.Diffs = map[string]review.Diff{DiffKeyWorking: d}
}

// GetSession returns a session by id.
func (s *ReviewService) GetSession(ctx context.Context, id string) (review.Session, error) {
	return s.store.GetSession(ctx, id)
}

// AddThread opens a thread with its first annotation. File-anchored threads
// record a hash of the anchored lines so later edits can mark them outdated.
func (s *ReviewService) AddThread(ctx context.Context, sessionID string, in review.ThreadInput) (review.Thread, error) {
	if err := in.Validate(); err != nil {
		return review.Thread{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return review.Thread{}, err
	}
	if !sess.IsInProgress() {
		return review.Thread{}, &review.SessionClosedError{SessionID: sess.ID, Status: sess.Status}
	}
	ctx = sessionCtx(ctx, sess)

	now := s.now()
	t := review.Thread{
		ID:          s.ids.New(ident.PrefixThread),
		EntityID:    in.EntityID,
		URI:         in.URI,
		Range:       in.Range,
		Status:      review.ThreadOpen,
		Annotations: []review.Annotation{s.newAnnotation(in.Annotation, now)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if t.URI != nil {
		content, ok, err := s.readAnchored(*t.URI)
		switch {
		case err != nil:
			s.log.Warn().Ctx(ctx).Err(err).Str("uri", *t.URI).Msg("cannot hash thread anchor")
		case ok:
			t.AnchorHash = t.Range.Hash(content, true)
		}
	}

	sess.Threads = append(sess.Threads, t)
	sess.UpdatedAt = now
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return review.Thread{}, fmt.Errorf("add thread: %w", err)
	}

	s.log.Debug().Ctx(ctx).Str("thread_id", t.ID).Msg("thread created")
	s.bus.PublishReviewThreadCreated(eventbus.ReviewThreadCreatedPayload{
		Feature:   sess.FeatureName,
		SessionID: sess.ID,
		ThreadID:  t.ID,
	})

	return t, nil
}

func (s *ReviewService) newAnnotation(in review.AnnotationInput, now time.Time) review.Annotation {
	a := review.Annotation{
		ID:        s.ids.New(ident.PrefixAnnotation),
		Type:      in.Type,
		Body:      in.Body,
		Author:    in.Author,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if a.Type == "" {
		a.Type = review.AnnotationComment
	}
	if a.Type == review.AnnotationSuggestion {
		a.Suggestion = &review.Suggestion{Replacement: *in.Replacement}
	}
	return a
}

// readAnchored reads the file a thread URI points at. ok is false when the
// file does not exist.
func (s *ReviewService) readAnchored(uri string) (content string, ok bool, err error) {
	path := strings.TrimPrefix(uri, "file://")
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.workspace, filepath.FromSlash(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// mutateThread loads the session owning threadID and applies fn to it. The
// session is saved only when fn reports a change.
func (s *ReviewService) mutateThread(
	ctx context.Context,
	threadID string,
	allowClosed bool,
	fn func(sess *review.Session, i int) (bool, error),
) (review.Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.FindSessionByThread(ctx, threadID)
	if err != nil {
		return review.Session{}, false, err
	}
	if !allowClosed && !sess.IsInProgress() {
		return review.Session{}, false, &review.SessionClosedError{SessionID: sess.ID, Status: sess.Status}
	}

	i := sess.FindThread(threadID)
	if i == -1 {
		return review.Session{}, false, review.ThreadNotFound(threadID)
	}

	changed, err := fn(&sess, i)
	if err != nil || !changed {
		return sess, false, err
	}

	sess.UpdatedAt = s.now()
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return review.Session{}, false, fmt.Errorf("save session: %w", err)
	}

	return sess, true, nil
}

// ReplyToThread appends an annotation. The thread's status is unchanged.
func (s *ReviewService) ReplyToThread(ctx context.Context, threadID string, in review.AnnotationInput) (review.Annotation, error) {
	if err := in.Validate(); err != nil {
		return review.Annotation{}, err
	}

	var a review.Annotation
	sess, _, err := s.mutateThread(ctx, threadID, false, func(sess *review.Session, i int) (bool, error) {
		now := s.now()
		a = s.newAnnotation(in, now)
		t := &sess.Threads[i]
		t.Annotations = append(t.Annotations, a)
		t.UpdatedAt = now
		return true, nil
	})
	if err != nil {
		return review.Annotation{}, err
	}

	s.bus.PublishReviewThreadReplied(eventbus.ReviewThreadRepliedPayload{
		Feature:      sess.FeatureName,
		SessionID:    sess.ID,
		ThreadID:     threadID,
		AnnotationID: a.ID,
	})

	return a, nil
}

// ResolveThread moves an open thread to resolved. Resolving a resolved
// thread is a no-op. Outdated threads cannot be resolved.
func (s *ReviewService) ResolveThread(ctx context.Context, threadID string) error {
	sess, changed, err := s.setThreadStatus(ctx, threadID, review.ThreadOpen, review.ThreadResolved)
	if err != nil || !changed {
		return err
	}

	s.bus.PublishReviewThreadResolved(eventbus.ReviewThreadResolvedPayload{
		Feature:   sess.FeatureName,
		SessionID: sess.ID,
		ThreadID:  threadID,
	})
	return nil
}

// UnresolveThread reopens a resolved thread. Reopening an open thread is a
// no-op. Outdated threads stay outdated.
func (s *ReviewService) UnresolveThread(ctx context.Context, threadID string) error {
	sess, changed, err := s.setThreadStatus(ctx, threadID, review.ThreadResolved, review.ThreadOpen)
	if err != nil || !changed {
		return err
	}

	s.bus.PublishReviewThreadUnresolved(eventbus.ReviewThreadUnresolvedPayload{
		Feature:   sess.FeatureName,
		SessionID: sess.ID,
		ThreadID:  threadID,
	})
	return nil
}

// MarkThreadOutdated moves an open thread to outdated.
func (s *ReviewService) MarkThreadOutdated(ctx context.Context, threadID string) error {
	sess, changed, err := s.setThreadStatus(ctx, threadID, review.ThreadOpen, review.ThreadOutdated)
	if err != nil || !changed {
		return err
	}

	s.publishOutdated(sess, threadID)
	return nil
}

func (s *ReviewService) setThreadStatus(ctx context.Context, threadID string, from, to review.ThreadStatus) (review.Session, bool, error) {
	return s.mutateThread(ctx, threadID, false, func(sess *review.Session, i int) (bool, error) {
		t := &sess.Threads[i]
		switch t.Status {
		case to:
			return false, nil
		case from:
		default:
			return false, hiveerr.Invalid("status", "thread '%s' is %s; only %s threads can become %s", threadID, t.Status, from, to)
		}

		t.Status = to
		t.UpdatedAt = s.now()
		s.log.Debug().Ctx(sessionCtx(ctx, *sess)).
			Str("thread_id", threadID).
			Str("status", string(to)).
			Msg("thread status changed")
		return true, nil
	})
}

func (s *ReviewService) publishOutdated(sess review.Session, threadID string) {
	s.bus.PublishReviewThreadOutdated(eventbus.ReviewThreadOutdatedPayload{
		Feature:   sess.FeatureName,
		SessionID: sess.ID,
		ThreadID:  threadID,
	})
}

// DeleteThread removes a thread and its annotations.
func (s *ReviewService) DeleteThread(ctx context.Context, threadID string) error {
	sess, _, err := s.mutateThread(ctx, threadID, false, func(sess *review.Session, i int) (bool, error) {
		sess.Threads = append(sess.Threads[:i], sess.Threads[i+1:]...)
		return true, nil
	})
	if err != nil {
		return err
	}

	s.bus.PublishReviewThreadDeleted(eventbus.ReviewThreadDeletedPayload{
		Feature:   sess.FeatureName,
		SessionID: sess.ID,
		ThreadID:  threadID,
	})
	return nil
}

// EditAnnotation replaces an annotation's body.
func (s *ReviewService) EditAnnotation(ctx context.Context, threadID, annotationID, body string) (review.Annotation, error) {
	if strings.TrimSpace(body) == "" {
		return review.Annotation{}, hiveerr.Invalid("body", "is required")
	}

	var a review.Annotation
	sess, changed, err := s.mutateThread(ctx, threadID, false, func(sess *review.Session, i int) (bool, error) {
		t := &sess.Threads[i]
		j := t.FindAnnotation(annotationID)
		if j == -1 {
			return false, review.AnnotationNotFound(annotationID)
		}
		if t.Annotations[j].Body == body {
			a = t.Annotations[j]
			return false, nil
		}

		now := s.now()
		t.Annotations[j].Body = body
		t.Annotations[j].UpdatedAt = now
		t.UpdatedAt = now
		a = t.Annotations[j]
		return true, nil
	})
	if err != nil || !changed {
		return a, err
	}

	s.bus.PublishReviewAnnotationEdited(eventbus.ReviewAnnotationEditedPayload{
		Feature:      sess.FeatureName,
		SessionID:    sess.ID,
		ThreadID:     threadID,
		AnnotationID: annotationID,
	})
	return a, nil
}

// MarkSuggestionApplied stamps a suggestion as applied. It works on
// submitted sessions too, since suggestions are usually applied after a
// request for changes. Repeated calls keep the first stamp.
func (s *ReviewService) MarkSuggestionApplied(ctx context.Context, threadID, annotationID string) (review.Annotation, error) {
	var a review.Annotation
	sess, changed, err := s.mutateThread(ctx, threadID, true, func(sess *review.Session, i int) (bool, error) {
		t := &sess.Threads[i]
		j := t.FindAnnotation(annotationID)
		if j == -1 {
			return false, review.AnnotationNotFound(annotationID)
		}

		ann := &t.Annotations[j]
		if ann.Type != review.AnnotationSuggestion || ann.Suggestion == nil {
			return false, hiveerr.Invalid("annotation", "annotation '%s' is not a suggestion", annotationID)
		}
		if ann.Suggestion.AppliedAt != nil {
			a = *ann
			return false, nil
		}

		now := s.now()
		ann.Suggestion.AppliedAt = &now
		ann.UpdatedAt = now
		a = *ann
		return true, nil
	})
	if err != nil || !changed {
		return a, err
	}

	s.bus.PublishReviewSuggestionApplied(eventbus.ReviewSuggestionAppliedPayload{
		Feature:      sess.FeatureName,
		SessionID:    sess.ID,
		ThreadID:     threadID,
		AnnotationID: annotationID,
	})
	return a, nil
}

// SyncOutdated re-hashes the anchor of every open file-anchored thread and
// marks mismatches outdated. A thread whose file is gone is outdated too.
// Returns the ids of the threads that changed.
func (s *ReviewService) SyncOutdated(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsInProgress() {
		return nil, &review.SessionClosedError{SessionID: sess.ID, Status: sess.Status}
	}
	ctx = sessionCtx(ctx, sess)

	now := s.now()
	var outdated []string
	for i := range sess.Threads {
		t := &sess.Threads[i]
		if t.Status != review.ThreadOpen || t.URI == nil || t.AnchorHash == "" {
			continue
		}

		content, ok, err := s.readAnchored(*t.URI)
		if err != nil {
			s.log.Warn().Ctx(ctx).Err(err).Str("thread_id", t.ID).Msg("cannot read anchored file")
			continue
		}
		if ok && t.Range.Hash(content, true) == t.AnchorHash {
			continue
		}

		t.Status = review.ThreadOutdated
		t.UpdatedAt = now
		outdated = append(outdated, t.ID)
	}

	if len(outdated) == 0 {
		return nil, nil
	}

	sess.UpdatedAt = now
	if err := s.store.SaveSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("sync outdated threads: %w", err)
	}

	s.log.Info().Ctx(ctx).Strs("threads", outdated).Msg("threads outdated")
	for _, id := range outdated {
		s.publishOutdated(sess, id)
	}

	return outdated, nil
}

// SyncActive runs SyncOutdated on the feature's in-progress session, if any.
func (s *ReviewService) SyncActive(ctx context.Context, featureName string) ([]string, error) {
	active, err := s.ActiveSession(ctx, featureName)
	if err != nil || active == nil {
		return nil, err
	}
	return s.SyncOutdated(ctx, active.ID)
}

// SubmitSession closes a session with a verdict.
func (s *ReviewService) SubmitSession(ctx context.Context, sessionID string, verdict review.Verdict, summary string) (review.Session, error) {
	if !verdict.IsValid() {
		return review.Session{}, hiveerr.Invalid("verdict", "must be one of approve, request_changes, comment; got %q", verdict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return review.Session{}, err
	}
	if !sess.IsInProgress() {
		return review.Session{}, &review.SessionClosedError{SessionID: sess.ID, Status: sess.Status}
	}
	ctx = sessionCtx(ctx, sess)

	sess.Status = verdict.TerminalStatus()
	sess.Verdict = &verdict
	sess.Summary = summary
	sess.UpdatedAt = s.now()

	if err := s.store.SaveSession(ctx, sess); err != nil {
		return review.Session{}, fmt.Errorf("submit session: %w", err)
	}

	s.log.Info().Ctx(ctx).Str("verdict", string(verdict)).Msg("review session submitted")
	s.bus.PublishReviewSessionSubmitted(eventbus.ReviewSessionSubmittedPayload{
		Feature:   sess.FeatureName,
		SessionID: sess.ID,
		Verdict:   verdict,
		Status:    sess.Status,
	})

	return sess, nil
}

// Status summarises the feature's review state.
func (s *ReviewService) Status(ctx context.Context, featureName string) (review.Status, error) {
	summaries, err := s.ListSessions(ctx, featureName)
	if err != nil {
		return review.Status{}, err
	}

	active, err := s.ActiveSession(ctx, featureName)
	if err != nil {
		return review.Status{}, err
	}

	return review.BuildStatus(summaries, active), nil
}
