package hive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
	"github.com/colonyops/hive-review/internal/core/ident"
	"github.com/colonyops/hive-review/internal/core/logging"
	"github.com/colonyops/hive-review/internal/core/plan"
	"github.com/rs/zerolog"
)

// PlanService owns a feature's plan document, its comment threads, and the
// approval gate between them.
type PlanService struct {
	plans    plan.Store
	features feature.Store
	bus      *eventbus.EventBus
	log      zerolog.Logger
	ids      *ident.Generator
	now      func() time.Time

	// mu serialises read-modify-write cycles on comments.json and feature.json.
	mu sync.Mutex
}

// NewPlanService creates a new PlanService.
func NewPlanService(plans plan.Store, features feature.Store, bus *eventbus.EventBus, ids *ident.Generator, log zerolog.Logger) *PlanService {
	return &PlanService{
		plans:    plans,
		features: features,
		bus:      bus,
		log:      logging.Component(log, "plan-service"),
		ids:      ids,
		now:      time.Now,
	}
}

// Write replaces the plan content. All comments are cleared, and an
// approved feature falls back to planning. Approval and comments are
// dropped before the new content is written, so a failure part way leaves
// the feature unapproved.
func (s *PlanService) Write(ctx context.Context, featureName, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.requireFeature(ctx, featureName)
	if err != nil {
		return err
	}

	cleared := 0
	if threads, err := s.plans.ReadComments(ctx, featureName); err != nil {
		s.log.Warn().Ctx(logging.WithFeature(ctx, featureName)).Err(err).Msg("replacing unreadable comments")
	} else {
		cleared = len(threads)
	}

	revoked := f.IsApproved()
	if revoked {
		f.Status = feature.StatusPlanning
		f.ApprovedAt = nil
		f.UpdatedAt = s.now()
		if err := s.features.WriteFeature(ctx, f); err != nil {
			return fmt.Errorf("revoke approval: %w", err)
		}
	}

	if err := s.plans.WriteComments(ctx, featureName, []plan.Thread{}); err != nil {
		return err
	}
	if err := s.plans.WritePlan(ctx, featureName, content); err != nil {
		return err
	}

	s.log.Info().Ctx(logging.WithFeature(ctx, featureName)).
		Int("cleared_comments", cleared).
		Bool("approval_revoked", revoked).
		Msg("plan written")
	s.bus.PublishPlanWritten(eventbus.PlanWrittenPayload{
		Feature:         featureName,
		ClearedComments: cleared,
		ApprovalRevoked: revoked,
	})

	return nil
}

// Read returns the plan view, or nil when the feature has no plan.
func (s *PlanService) Read(ctx context.Context, featureName string) (*plan.View, error) {
	f, err := s.requireFeature(ctx, featureName)
	if err != nil {
		return nil, err
	}

	content, ok, err := s.plans.ReadPlan(ctx, featureName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	threads, err := s.plans.ReadComments(ctx, featureName)
	if err != nil {
		return nil, err
	}

	return &plan.View{Content: content, Status: f.Status, Comments: threads}, nil
}

// AddComment anchors a new thread to the plan. It never changes the
// feature's status.
func (s *PlanService) AddComment(ctx context.Context, featureName string, in plan.CommentInput) (plan.Thread, error) {
	r, err := in.Anchor()
	if err != nil {
		return plan.Thread{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireFeature(ctx, featureName); err != nil {
		return plan.Thread{}, err
	}
	if err := s.requirePlan(ctx, featureName); err != nil {
		return plan.Thread{}, err
	}

	threads, err := s.plans.ReadComments(ctx, featureName)
	if err != nil {
		return plan.Thread{}, err
	}

	author := in.Author
	if author == "" {
		author = plan.AuthorHuman
	}

	t := plan.Thread{
		ID:        s.ids.New(ident.PrefixComment),
		Range:     r,
		Body:      in.Body,
		Author:    author,
		Timestamp: s.now(),
	}
	threads = append(threads, t)

	if err := s.plans.WriteComments(ctx, featureName, threads); err != nil {
		return plan.Thread{}, err
	}

	s.log.Debug().Ctx(logging.WithFeature(ctx, featureName)).Str("comment_id", t.ID).Msg("comment added")
	s.bus.PublishPlanCommented(eventbus.PlanCommentedPayload{Feature: featureName, CommentID: t.ID})

	return t, nil
}

// ResolveComment marks a thread resolved.
func (s *PlanService) ResolveComment(ctx context.Context, featureName, commentID string) error {
	changed, err := s.setResolved(ctx, featureName, commentID, true)
	if err != nil || !changed {
		return err
	}

	s.bus.PublishPlanCommentResolved(eventbus.PlanCommentResolvedPayload{Feature: featureName, CommentID: commentID})
	return nil
}

// UnresolveComment reopens a resolved thread.
func (s *PlanService) UnresolveComment(ctx context.Context, featureName, commentID string) error {
	changed, err := s.setResolved(ctx, featureName, commentID, false)
	if err != nil || !changed {
		return err
	}

	s.bus.PublishPlanCommentUnresolved(eventbus.PlanCommentUnresolvedPayload{Feature: featureName, CommentID: commentID})
	return nil
}

func (s *PlanService) setResolved(ctx context.Context, featureName, commentID string, resolved bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireFeature(ctx, featureName); err != nil {
		return false, err
	}

	threads, err := s.plans.ReadComments(ctx, featureName)
	if err != nil {
		return false, err
	}

	i := plan.FindThread(threads, commentID)
	if i == -1 {
		return false, plan.CommentNotFound(commentID)
	}
	if threads[i].Resolved == resolved {
		return false, nil
	}

	threads[i].Resolved = resolved
	if err := s.plans.WriteComments(ctx, featureName, threads); err != nil {
		return false, err
	}

	s.log.Debug().Ctx(logging.WithFeature(ctx, featureName)).
		Str("comment_id", commentID).
		Bool("resolved", resolved).
		Msg("comment resolution changed")
	return true, nil
}

// DeleteComment removes a thread and its replies.
func (s *PlanService) DeleteComment(ctx context.Context, featureName, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireFeature(ctx, featureName); err != nil {
		return err
	}

	threads, err := s.plans.ReadComments(ctx, featureName)
	if err != nil {
		return err
	}

	i := plan.FindThread(threads, commentID)
	if i == -1 {
		return plan.CommentNotFound(commentID)
	}

	threads = append(threads[:i], threads[i+1:]...)
	if err := s.plans.WriteComments(ctx, featureName, threads); err != nil {
		return err
	}

	s.bus.PublishPlanCommentDeleted(eventbus.PlanCommentDeletedPayload{Feature: featureName, CommentID: commentID})
	return nil
}

// AddReply appends a reply to a thread. The thread's resolution is untouched.
func (s *PlanService) AddReply(ctx context.Context, featureName, commentID string, in plan.ReplyInput) (plan.Reply, error) {
	if err := in.Validate(); err != nil {
		return plan.Reply{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.requireFeature(ctx, featureName); err != nil {
		return plan.Reply{}, err
	}

	threads, err := s.plans.ReadComments(ctx, featureName)
	if err != nil {
		return plan.Reply{}, err
	}

	i := plan.FindThread(threads, commentID)
	if i == -1 {
		return plan.Reply{}, plan.CommentNotFound(commentID)
	}

	author := in.Author
	if author == "" {
		author = plan.AuthorHuman
	}

	r := plan.Reply{
		ID:        s.ids.New(ident.PrefixReply),
		Body:      in.Body,
		Author:    author,
		Timestamp: s.now(),
	}
	threads[i].Replies = append(threads[i].Replies, r)

	if err := s.plans.WriteComments(ctx, featureName, threads); err != nil {
		return plan.Reply{}, err
	}

	s.bus.PublishPlanCommentReplied(eventbus.PlanCommentRepliedPayload{
		Feature:   featureName,
		CommentID: commentID,
		ReplyID:   r.ID,
	})

	return r, nil
}

// Approve stamps the feature approved. A plan must exist and every comment
// must be resolved, checked in that order.
func (s *PlanService) Approve(ctx context.Context, featureName string) (feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.requireFeature(ctx, featureName)
	if err != nil {
		return feature.Feature{}, err
	}

	if err := s.requirePlan(ctx, featureName); err != nil {
		return feature.Feature{}, err
	}

	threads, err := s.plans.ReadComments(ctx, featureName)
	if err != nil {
		return feature.Feature{}, err
	}
	if n := plan.CountUnresolved(threads); n > 0 {
		return feature.Feature{}, plan.GateBlocked(n)
	}

	switch f.Status {
	case feature.StatusPlanning, feature.StatusApproved:
	default:
		return feature.Feature{}, hiveerr.Invalid("status", "feature '%s' is %s and cannot be re-approved", featureName, f.Status)
	}

	now := s.now()
	f.Status = feature.StatusApproved
	f.ApprovedAt = &now
	f.UpdatedAt = now
	if err := s.features.WriteFeature(ctx, f); err != nil {
		return feature.Feature{}, fmt.Errorf("approve plan: %w", err)
	}

	s.log.Info().Ctx(logging.WithFeature(ctx, featureName)).Msg("plan approved")
	s.bus.PublishPlanApproved(eventbus.PlanApprovedPayload{Feature: featureName, ApprovedAt: now})

	return f, nil
}

// GetComments returns every thread, resolved or not, in insertion order.
func (s *PlanService) GetComments(ctx context.Context, featureName string) ([]plan.Thread, error) {
	if _, err := s.requireFeature(ctx, featureName); err != nil {
		return nil, err
	}
	return s.plans.ReadComments(ctx, featureName)
}

// GetInfo summarises the plan. CommentCount uses the same predicate as the
// approval gate.
func (s *PlanService) GetInfo(ctx context.Context, featureName string) (plan.Info, error) {
	f, err := s.requireFeature(ctx, featureName)
	if err != nil {
		return plan.Info{}, err
	}

	_, hasPlan, err := s.plans.ReadPlan(ctx, featureName)
	if err != nil {
		return plan.Info{}, err
	}

	threads, err := s.plans.ReadComments(ctx, featureName)
	if err != nil {
		return plan.Info{}, err
	}

	return plan.Info{
		Name:          f.Name,
		Status:        f.Status,
		HasPlan:       hasPlan,
		CommentCount:  plan.CountUnresolved(threads),
		TotalComments: len(threads),
		ApprovedAt:    f.ApprovedAt,
	}, nil
}

// requireFeature rejects malformed names before looking the feature up, so
// no plan path is ever built from one.
func (s *PlanService) requireFeature(ctx context.Context, featureName string) (feature.Feature, error) {
	if err := feature.ValidateName(featureName); err != nil {
		return feature.Feature{}, err
	}
	return s.features.ReadFeature(ctx, featureName)
}

func (s *PlanService) requirePlan(ctx context.Context, featureName string) error {
	_, ok, err := s.plans.ReadPlan(ctx, featureName)
	if err != nil {
		return err
	}
	if !ok {
		return plan.NoPlan(featureName)
	}
	return nil
}
