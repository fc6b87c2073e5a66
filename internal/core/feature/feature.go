// Package feature defines the feature domain model: a named unit of work
// that owns one plan and one comment set.
package feature

import (
	"context"
	"regexp"
	"time"

	"github.com/colonyops/hive-review/internal/core/hiveerr"
)

// Status is the lifecycle state of a feature.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
)

// IsValid returns true if s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPlanning, StatusApproved, StatusExecuting, StatusCompleted:
		return true
	}
	return false
}

// Feature is a named unit of work.
type Feature struct {
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// IsApproved returns true while the feature holds a valid approval.
func (f Feature) IsApproved() bool {
	return f.Status == StatusApproved
}

// ErrNotFound matches any feature-not-found error via errors.Is.
var ErrNotFound error = &hiveerr.NotFoundError{Kind: "Feature"}

// ErrExists is returned when creating a feature whose name is taken.
var ErrExists = hiveerr.Invalid("name", "feature already exists")

// NotFound returns the not-found error for name.
func NotFound(name string) error {
	return hiveerr.NotFound("Feature", name)
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidateName checks that name can be used as a directory name under .hive.
func ValidateName(name string) error {
	if name == "" {
		return hiveerr.Invalid("name", "is required")
	}
	if !namePattern.MatchString(name) {
		return hiveerr.Invalid("name", "%q must start with a letter or digit and contain only letters, digits, '.', '_' or '-'", name)
	}
	return nil
}

// Store defines persistence operations for features.
type Store interface {
	// ReadFeature returns the feature with the given name.
	// Returns an error matching ErrNotFound if it does not exist.
	ReadFeature(ctx context.Context, name string) (Feature, error)

	// WriteFeature creates or replaces a feature.
	WriteFeature(ctx context.Context, f Feature) error

	// ListFeatures returns all features sorted by name.
	ListFeatures(ctx context.Context) ([]Feature, error)
}
