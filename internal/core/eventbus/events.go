// Package eventbus provides a typed, synchronous publish/subscribe event bus
// for plan and review lifecycle events.
package eventbus

import (
	"time"

	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/review"
)

// Event names a lifecycle event. The set is closed: every Event has exactly
// one payload type and a typed Publish/Subscribe pair on EventBus.
type Event string

// Keep list sorted A-Z
const (
	EventFeatureCreated          Event = "feature.created"
	EventFeatureStatusChanged    Event = "feature.status-changed"
	EventPlanApproved            Event = "plan.approved"
	EventPlanCommentDeleted      Event = "plan.comment.deleted"
	EventPlanCommentReplied      Event = "plan.comment.replied"
	EventPlanCommentResolved     Event = "plan.comment.resolved"
	EventPlanCommentUnresolved   Event = "plan.comment.unresolved"
	EventPlanCommented           Event = "plan.commented"
	EventPlanWritten             Event = "plan.written"
	EventReviewAnnotationEdited  Event = "review.annotation.edited"
	EventReviewSessionStarted    Event = "review.session.started"
	EventReviewSessionSubmitted  Event = "review.session.submitted"
	EventReviewSuggestionApplied Event = "review.suggestion.applied"
	EventReviewThreadCreated     Event = "review.thread.created"
	EventReviewThreadDeleted     Event = "review.thread.deleted"
	EventReviewThreadOutdated    Event = "review.thread.outdated"
	EventReviewThreadReplied     Event = "review.thread.replied"
	EventReviewThreadResolved    Event = "review.thread.resolved"
	EventReviewThreadUnresolved  Event = "review.thread.unresolved"
)

// Events maps every event to a zero value of its payload type.
var Events = map[Event]any{
	EventFeatureCreated:          FeatureCreatedPayload{},
	EventFeatureStatusChanged:    FeatureStatusChangedPayload{},
	EventPlanApproved:            PlanApprovedPayload{},
	EventPlanCommentDeleted:      PlanCommentDeletedPayload{},
	EventPlanCommentReplied:      PlanCommentRepliedPayload{},
	EventPlanCommentResolved:     PlanCommentResolvedPayload{},
	EventPlanCommentUnresolved:   PlanCommentUnresolvedPayload{},
	EventPlanCommented:           PlanCommentedPayload{},
	EventPlanWritten:             PlanWrittenPayload{},
	EventReviewAnnotationEdited:  ReviewAnnotationEditedPayload{},
	EventReviewSessionStarted:    ReviewSessionStartedPayload{},
	EventReviewSessionSubmitted:  ReviewSessionSubmittedPayload{},
	EventReviewSuggestionApplied: ReviewSuggestionAppliedPayload{},
	EventReviewThreadCreated:     ReviewThreadCreatedPayload{},
	EventReviewThreadDeleted:     ReviewThreadDeletedPayload{},
	EventReviewThreadOutdated:    ReviewThreadOutdatedPayload{},
	EventReviewThreadReplied:     ReviewThreadRepliedPayload{},
	EventReviewThreadResolved:    ReviewThreadResolvedPayload{},
	EventReviewThreadUnresolved:  ReviewThreadUnresolvedPayload{},
}

// FeatureCreatedPayload is emitted when a feature is created.
type FeatureCreatedPayload struct {
	Feature feature.Feature
}

// FeatureStatusChangedPayload is emitted when a feature moves between
// lifecycle states outside of plan approval.
type FeatureStatusChangedPayload struct {
	Feature   string
	OldStatus feature.Status
	NewStatus feature.Status
}

// PlanWrittenPayload is emitted when a plan is replaced.
type PlanWrittenPayload struct {
	Feature         string
	ClearedComments int
	ApprovalRevoked bool
}

// PlanApprovedPayload is emitted when a plan passes the approval gate.
type PlanApprovedPayload struct {
	Feature    string
	ApprovedAt time.Time
}

// PlanCommentedPayload is emitted when a comment is added to a plan.
type PlanCommentedPayload struct {
	Feature   string
	CommentID string
}

// PlanCommentRepliedPayload is emitted when a reply is appended to a comment.
type PlanCommentRepliedPayload struct {
	Feature   string
	CommentID string
	ReplyID   string
}

// PlanCommentResolvedPayload is emitted when a comment is resolved.
type PlanCommentResolvedPayload struct {
	Feature   string
	CommentID string
}

// PlanCommentUnresolvedPayload is emitted when a resolved comment is reopened.
type PlanCommentUnresolvedPayload struct {
	Feature   string
	CommentID string
}

// PlanCommentDeletedPayload is emitted when a comment is deleted.
type PlanCommentDeletedPayload struct {
	Feature   string
	CommentID string
}

// ReviewSessionStartedPayload is emitted when a review session starts.
type ReviewSessionStartedPayload struct {
	Feature   string
	SessionID string
	Scope     review.Scope
}

// ReviewSessionSubmittedPayload is emitted when a review session is submitted.
type ReviewSessionSubmittedPayload struct {
	Feature   string
	SessionID string
	Verdict   review.Verdict
	Status    review.SessionStatus
}

// ReviewThreadCreatedPayload is emitted when a thread is added to a session.
type ReviewThreadCreatedPayload struct {
	Feature   string
	SessionID string
	ThreadID  string
}

// ReviewThreadRepliedPayload is emitted when an annotation is appended to a thread.
type ReviewThreadRepliedPayload struct {
	Feature      string
	SessionID    string
	ThreadID     string
	AnnotationID string
}

// ReviewThreadResolvedPayload is emitted when a thread is resolved.
type ReviewThreadResolvedPayload struct {
	Feature   string
	SessionID string
	ThreadID  string
}

// ReviewThreadUnresolvedPayload is emitted when a resolved thread is reopened.
type ReviewThreadUnresolvedPayload struct {
	Feature   string
	SessionID string
	ThreadID  string
}

// ReviewThreadOutdatedPayload is emitted when a thread's anchor no longer
// matches the file it points at.
type ReviewThreadOutdatedPayload struct {
	Feature   string
	SessionID string
	ThreadID  string
}

// ReviewThreadDeletedPayload is emitted when a thread is deleted.
type ReviewThreadDeletedPayload struct {
	Feature   string
	SessionID string
	ThreadID  string
}

// ReviewAnnotationEditedPayload is emitted when an annotation body changes.
type ReviewAnnotationEditedPayload struct {
	Feature      string
	SessionID    string
	ThreadID     string
	AnnotationID string
}

// ReviewSuggestionAppliedPayload is emitted the first time a suggestion is
// marked as applied.
type ReviewSuggestionAppliedPayload struct {
	Feature      string
	SessionID    string
	ThreadID     string
	AnnotationID string
}
