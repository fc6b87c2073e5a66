package logging

import "context"

type contextKey string

const (
	featureKey       contextKey = "feature"
	reviewSessionKey contextKey = "review_session"
)

// WithFeature adds a feature name to the context.
func WithFeature(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, featureKey, name)
}

// WithReviewSession adds a review session ID to the context.
func WithReviewSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, reviewSessionKey, sessionID)
}

// GetFeature retrieves the feature name from the context.
// Returns empty string if not present.
func GetFeature(ctx context.Context) string {
	if name, ok := ctx.Value(featureKey).(string); ok {
		return name
	}
	return ""
}

// GetReviewSession retrieves the review session ID from the context.
// Returns empty string if not present.
func GetReviewSession(ctx context.Context) string {
	if id, ok := ctx.Value(reviewSessionKey).(string); ok {
		return id
	}
	return ""
}
