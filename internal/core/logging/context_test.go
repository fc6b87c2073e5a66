package logging

import (
	"context"
	"testing"
)

func TestWithFeature(t *testing.T) {
	ctx := WithFeature(context.Background(), "review-test")

	if got := GetFeature(ctx); got != "review-test" {
		t.Errorf("GetFeature() = %q, want %q", got, "review-test")
	}
}

func TestWithReviewSession(t *testing.T) {
	ctx := WithReviewSession(context.Background(), "sess-1")

	if got := GetReviewSession(ctx); got != "sess-1" {
		t.Errorf("GetReviewSession() = %q, want %q", got, "sess-1")
	}
}

func TestGetters_NotPresent(t *testing.T) {
	ctx := context.Background()

	if got := GetFeature(ctx); got != "" {
		t.Errorf("GetFeature() = %q, want empty string", got)
	}

	if got := GetReviewSession(ctx); got != "" {
		t.Errorf("GetReviewSession() = %q, want empty string", got)
	}
}
