// Package plan defines plan comment threads, the unresolved predicate that
// gates plan approval, and the persistence contract for plans and comments.
package plan

import (
	"context"
	"strings"
	"time"

	"github.com/colonyops/hive-review/internal/core/anchor"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
)

// Author identifies who wrote a comment or reply.
type Author string

const (
	AuthorHuman Author = "human"
	AuthorAgent Author = "agent"
)

// IsValid returns true if a is a known author.
func (a Author) IsValid() bool {
	return a == AuthorHuman || a == AuthorAgent
}

// Reply is one entry appended to a thread's conversation.
type Reply struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is a comment anchored to a range of the plan, with its replies.
type Thread struct {
	ID        string       `json:"id"`
	Range     anchor.Range `json:"range"`
	Body      string       `json:"body"`
	Author    Author       `json:"author"`
	Timestamp time.Time    `json:"timestamp"`
	Resolved  bool         `json:"resolved,omitempty"`
	Replies   []Reply      `json:"replies,omitempty"`
}

// IsUnresolved reports whether the thread counts against the approval gate.
func (t Thread) IsUnresolved() bool {
	return !t.Resolved
}

// Entry is a single displayed message in a thread: the opening comment or a reply.
type Entry struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Author    Author    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	IsReply   bool      `json:"isReply"`
}

// Entries returns the opening comment followed by the replies in order.
func (t Thread) Entries() []Entry {
	out := make([]Entry, 0, len(t.Replies)+1)
	out = append(out, Entry{ID: t.ID, Body: t.Body, Author: t.Author, Timestamp: t.Timestamp})
	for _, r := range t.Replies {
		out = append(out, Entry{ID: r.ID, Body: r.Body, Author: r.Author, Timestamp: r.Timestamp, IsReply: true})
	}
	return out
}

// CountUnresolved returns the number of threads that block approval. Every
// surface that reports comment counts must use this function.
func CountUnresolved(threads []Thread) int {
	n := 0
	for _, t := range threads {
		if t.IsUnresolved() {
			n++
		}
	}
	return n
}

// FindThread returns the index of the thread with the given id, or -1.
func FindThread(threads []Thread, id string) int {
	for i := range threads {
		if threads[i].ID == id {
			return i
		}
	}
	return -1
}

// View is the read model of a feature's plan.
type View struct {
	Content  string         `json:"content"`
	Status   feature.Status `json:"status"`
	Comments []Thread       `json:"comments"`
}

// Info summarises a feature's plan state. CommentCount counts unresolved
// comments only and always equals the approval gate's count.
type Info struct {
	Name          string         `json:"name"`
	Status        feature.Status `json:"status"`
	HasPlan       bool           `json:"hasPlan"`
	CommentCount  int            `json:"commentCount"`
	TotalComments int            `json:"totalComments"`
	ApprovedAt    *time.Time     `json:"approvedAt,omitempty"`
}

// CommentInput describes a new comment. Range takes precedence over Line.
type CommentInput struct {
	Line   *int          `json:"line,omitempty"`
	Range  *anchor.Range `json:"range,omitempty"`
	Body   string        `json:"body"`
	Author Author        `json:"author"`
}

// Anchor resolves the comment's range and validates the input.
func (in CommentInput) Anchor() (anchor.Range, error) {
	if strings.TrimSpace(in.Body) == "" {
		return anchor.Range{}, hiveerr.Invalid("body", "is required")
	}
	if in.Author != "" && !in.Author.IsValid() {
		return anchor.Range{}, hiveerr.Invalid("author", "must be one of human, agent; got %q", in.Author)
	}

	var r anchor.Range
	switch {
	case in.Range != nil:
		r = *in.Range
	case in.Line != nil:
		r = anchor.Line(*in.Line)
	default:
		return anchor.Range{}, hiveerr.Invalid("range", "line or range is required")
	}

	if err := r.Validate(); err != nil {
		return anchor.Range{}, err
	}
	return r, nil
}

// ReplyInput describes a new reply.
type ReplyInput struct {
	Body   string `json:"body"`
	Author Author `json:"author"`
}

// Validate checks the reply input.
func (in ReplyInput) Validate() error {
	if strings.TrimSpace(in.Body) == "" {
		return hiveerr.Invalid("body", "is required")
	}
	if in.Author != "" && !in.Author.IsValid() {
		return hiveerr.Invalid("author", "must be one of human, agent; got %q", in.Author)
	}
	return nil
}

// Sentinels for errors.Is matching.
var (
	ErrCommentNotFound error = &hiveerr.NotFoundError{Kind: "Comment"}
	ErrNoPlan          error = &hiveerr.NotFoundError{Kind: "Plan"}
)

// CommentNotFound returns the error for a missing comment id.
func CommentNotFound(id string) error {
	return hiveerr.NotFound("Comment", id)
}

// NoPlan returns the error for a feature without a plan.
func NoPlan(featureName string) error {
	return hiveerr.NotFoundf("Plan", featureName, "No plan.md found for feature '%s'", featureName)
}

// GateBlocked returns the error for an approval blocked by n unresolved comments.
func GateBlocked(n int) error {
	return hiveerr.GateBlocked(n, "Cannot approve plan: %d unresolved comment(s) remain", n)
}

// Store defines persistence operations for plans and their comments.
type Store interface {
	// ReadPlan returns the plan content. ok is false when no plan exists,
	// including when the plan path is not a regular file.
	ReadPlan(ctx context.Context, featureName string) (content string, ok bool, err error)

	// WritePlan replaces the plan content.
	WritePlan(ctx context.Context, featureName, content string) error

	// ReadComments returns the feature's comment threads in insertion order,
	// upgraded to the canonical shape. Returns an empty slice if none exist.
	ReadComments(ctx context.Context, featureName string) ([]Thread, error)

	// WriteComments replaces the feature's comment threads.
	WriteComments(ctx context.Context, featureName string, threads []Thread) error
}
