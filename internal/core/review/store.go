package review

import (
	"context"
	"fmt"

	"github.com/colonyops/hive-review/internal/core/hiveerr"
)

// Sentinel errors for review operations.
var (
	ErrSessionNotFound    error = &hiveerr.NotFoundError{Kind: "Session"}
	ErrThreadNotFound     error = &hiveerr.NotFoundError{Kind: "Thread"}
	ErrAnnotationNotFound error = &hiveerr.NotFoundError{Kind: "Annotation"}
)

// SessionNotFound returns the error for a missing session id.
func SessionNotFound(id string) error {
	return hiveerr.NotFound("Session", id)
}

// ThreadNotFound returns the error for a missing thread id.
func ThreadNotFound(id string) error {
	return hiveerr.NotFound("Thread", id)
}

// AnnotationNotFound returns the error for a missing annotation id.
func AnnotationNotFound(id string) error {
	return hiveerr.NotFound("Annotation", id)
}

// SessionInProgressError is returned when starting a session for a feature
// that already has one in progress.
type SessionInProgressError struct {
	FeatureName string
	SessionID   string
}

func (e *SessionInProgressError) Error() string {
	return fmt.Sprintf("Feature '%s' already has review session '%s' in progress", e.FeatureName, e.SessionID)
}

func (e *SessionInProgressError) Is(target error) bool { return target == hiveerr.ErrValidation }

// SessionClosedError is returned when mutating a submitted session.
type SessionClosedError struct {
	SessionID string
	Status    SessionStatus
}

func (e *SessionClosedError) Error() string {
	return fmt.Sprintf("Review session '%s' is %s and cannot be changed", e.SessionID, e.Status)
}

func (e *SessionClosedError) Is(target error) bool { return target == hiveerr.ErrValidation }

// Store defines persistence operations for review sessions.
type Store interface {
	// ListSessions returns every session for a feature, in no particular order.
	ListSessions(ctx context.Context, featureName string) ([]Session, error)

	// GetSession returns a session by id.
	// Returns an error matching ErrSessionNotFound if not found.
	GetSession(ctx context.Context, id string) (Session, error)

	// FindSessionByThread returns the session owning the thread.
	// Returns an error matching ErrThreadNotFound if no session owns it.
	FindSessionByThread(ctx context.Context, threadID string) (Session, error)

	// SaveSession creates or replaces a session.
	SaveSession(ctx context.Context, s Session) error
}
