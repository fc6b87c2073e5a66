// Package review defines review sessions, their anchored threads and
// annotations, and the status summary computed over them.
package review

import (
	"slices"
	"strings"
	"time"

	"github.com/colonyops/hive-review/internal/core/anchor"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
)

// Scope is the part of a feature a session reviews.
type Scope string

const (
	ScopeFeature Scope = "feature"
	ScopePlan    Scope = "plan"
	ScopeTask    Scope = "task"
	ScopeContext Scope = "context"
	ScopeCode    Scope = "code"
)

// IsValid returns true if s is a known scope.
func (s Scope) IsValid() bool {
	switch s {
	case ScopeFeature, ScopePlan, ScopeTask, ScopeContext, ScopeCode:
		return true
	}
	return false
}

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusInProgress       SessionStatus = "in_progress"
	StatusApproved         SessionStatus = "approved"
	StatusChangesRequested SessionStatus = "changes_requested"
	StatusCommented        SessionStatus = "commented"
)

// Verdict is the outcome recorded when a session is submitted.
type Verdict string

const (
	VerdictApprove        Verdict = "approve"
	VerdictRequestChanges Verdict = "request_changes"
	VerdictComment        Verdict = "comment"
)

// IsValid returns true if v is a known verdict.
func (v Verdict) IsValid() bool {
	return v == VerdictApprove || v == VerdictRequestChanges || v == VerdictComment
}

// TerminalStatus returns the session status a submission with v produces.
func (v Verdict) TerminalStatus() SessionStatus {
	switch v {
	case VerdictApprove:
		return StatusApproved
	case VerdictRequestChanges:
		return StatusChangesRequested
	default:
		return StatusCommented
	}
}

// ThreadStatus is the resolution state of a thread.
type ThreadStatus string

const (
	ThreadOpen     ThreadStatus = "open"
	ThreadResolved ThreadStatus = "resolved"
	ThreadOutdated ThreadStatus = "outdated"
)

// AuthorType distinguishes people from language models.
type AuthorType string

const (
	AuthorHuman AuthorType = "human"
	AuthorLLM   AuthorType = "llm"
)

// Author identifies who wrote an annotation.
type Author struct {
	Type    AuthorType `json:"type"`
	Name    string     `json:"name"`
	AgentID string     `json:"agentId,omitempty"`
}

// AnnotationType distinguishes plain comments from suggested replacements.
type AnnotationType string

const (
	AnnotationComment    AnnotationType = "comment"
	AnnotationSuggestion AnnotationType = "suggestion"
)

// Suggestion is a proposed replacement for the thread's range.
type Suggestion struct {
	Replacement string     `json:"replacement"`
	AppliedAt   *time.Time `json:"appliedAt,omitempty"`
}

// Annotation is one entry in a thread's conversation.
type Annotation struct {
	ID         string         `json:"id"`
	Type       AnnotationType `json:"type"`
	Body       string         `json:"body"`
	Author     Author         `json:"author"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Suggestion *Suggestion    `json:"suggestion,omitempty"`
}

// Thread is a conversation anchored to a range of a file. A nil URI means
// the thread is not file-anchored (for example a feature-level comment).
type Thread struct {
	ID          string       `json:"id"`
	EntityID    string       `json:"entityId"`
	URI         *string      `json:"uri"`
	Range       anchor.Range `json:"range"`
	Status      ThreadStatus `json:"status"`
	Annotations []Annotation `json:"annotations"`
	AnchorHash  string       `json:"anchorHash,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// FindAnnotation returns the index of the annotation with the given id, or -1.
func (t Thread) FindAnnotation(id string) int {
	return slices.IndexFunc(t.Annotations, func(a Annotation) bool { return a.ID == id })
}

// Diff is a named diff payload captured for a session.
type Diff struct {
	Mode    string `json:"mode"`
	Base    string `json:"base,omitempty"`
	Patch   string `json:"patch"`
	Summary string `json:"summary,omitempty"`
}

// GitMeta is a snapshot of repository state taken when a session starts.
type GitMeta struct {
	Repo       string    `json:"repo,omitempty"`
	Ref        string    `json:"ref,omitempty"`
	Additions  int       `json:"additions"`
	Deletions  int       `json:"deletions"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Session is a review pass over a feature or one of its scopes.
type Session struct {
	ID          string          `json:"id"`
	FeatureName string          `json:"featureName"`
	Scope       Scope           `json:"scope"`
	Status      SessionStatus   `json:"status"`
	Verdict     *Verdict        `json:"verdict"`
	Summary     string          `json:"summary,omitempty"`
	Threads     []Thread        `json:"threads"`
	Diffs       map[string]Diff `json:"diffs,omitempty"`
	GitMeta     *GitMeta        `json:"gitMeta,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// IsInProgress returns true while the session accepts changes.
func (s Session) IsInProgress() bool {
	return s.Status == StatusInProgress
}

// FindThread returns the index of the thread with the given id, or -1.
func (s Session) FindThread(id string) int {
	return slices.IndexFunc(s.Threads, func(t Thread) bool { return t.ID == id })
}

// Summarize returns the list-view projection of the session.
func (s Session) Summarize() SessionSummary {
	return SessionSummary{
		ID:          s.ID,
		FeatureName: s.FeatureName,
		Scope:       s.Scope,
		Status:      s.Status,
		Verdict:     s.Verdict,
		ThreadCount: len(s.Threads),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// SessionSummary is the list-view projection of a session.
type SessionSummary struct {
	ID          string        `json:"id"`
	FeatureName string        `json:"featureName"`
	Scope       Scope         `json:"scope"`
	Status      SessionStatus `json:"status"`
	Verdict     *Verdict      `json:"verdict"`
	ThreadCount int           `json:"threadCount"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// SortSummaries orders summaries newest first by UpdatedAt, then CreatedAt,
// then ID, so the order is stable across reads.
func SortSummaries(list []SessionSummary) {
	slices.SortStableFunc(list, func(a, b SessionSummary) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// AnnotationInput describes a new annotation.
type AnnotationInput struct {
	Type        AnnotationType `json:"type"`
	Body        string         `json:"body"`
	Author      Author         `json:"author"`
	Replacement *string        `json:"replacement,omitempty"`
}

// Validate checks the annotation input.
func (in AnnotationInput) Validate() error {
	switch in.Type {
	case "", AnnotationComment:
	case AnnotationSuggestion:
		if in.Replacement == nil {
			return hiveerr.Invalid("replacement", "is required for suggestions")
		}
	default:
		return hiveerr.Invalid("type", "must be one of comment, suggestion; got %q", in.Type)
	}
	if strings.TrimSpace(in.Body) == "" && in.Type != AnnotationSuggestion {
		return hiveerr.Invalid("body", "is required")
	}
	return ValidateAuthor(in.Author)
}

// ValidateAuthor checks an annotation author.
func ValidateAuthor(a Author) error {
	switch a.Type {
	case AuthorHuman, AuthorLLM:
	default:
		return hiveerr.Invalid("author.type", "must be one of human, llm; got %q", a.Type)
	}
	if strings.TrimSpace(a.Name) == "" {
		return hiveerr.Invalid("author.name", "is required")
	}
	return nil
}

// ThreadInput describes a new thread with its first annotation.
type ThreadInput struct {
	EntityID   string          `json:"entityId"`
	URI        *string         `json:"uri"`
	Range      anchor.Range    `json:"range"`
	Annotation AnnotationInput `json:"annotation"`
}

// Validate checks the thread input.
func (in ThreadInput) Validate() error {
	if strings.TrimSpace(in.EntityID) == "" {
		return hiveerr.Invalid("entityId", "is required")
	}
	if in.URI != nil && strings.TrimSpace(*in.URI) == "" {
		return hiveerr.Invalid("uri", "must not be empty when set")
	}
	if err := in.Range.Validate(); err != nil {
		return err
	}
	return in.Annotation.Validate()
}
