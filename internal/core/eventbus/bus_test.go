package eventbus_test

import (
	"bytes"
	"testing"

	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/eventbus/testbus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_RegistrationOrder(t *testing.T) {
	bus := eventbus.New()

	var calls []string
	bus.SubscribePlanCommented(func(p eventbus.PlanCommentedPayload) {
		calls = append(calls, "first:"+p.CommentID)
	})
	bus.SubscribePlanCommented(func(p eventbus.PlanCommentedPayload) {
		calls = append(calls, "second:"+p.CommentID)
	})
	bus.SubscribeAll(func(e eventbus.Event, _ any) {
		calls = append(calls, "all:"+string(e))
	})

	bus.PublishPlanCommented(eventbus.PlanCommentedPayload{Feature: "f", CommentID: "c1"})

	assert.Equal(t, []string{"first:c1", "second:c1", "all:plan.commented"}, calls)
}

func TestEventBus_PanicIsolation(t *testing.T) {
	bus := eventbus.New()

	var panics []any
	bus.OnPanic(func(_ eventbus.Event, _ any, recovered any) {
		panics = append(panics, recovered)
	})

	ran := false
	bus.SubscribeReviewThreadCreated(func(eventbus.ReviewThreadCreatedPayload) {
		panic("boom")
	})
	bus.SubscribeReviewThreadCreated(func(eventbus.ReviewThreadCreatedPayload) {
		ran = true
	})

	require.NotPanics(t, func() {
		bus.PublishReviewThreadCreated(eventbus.ReviewThreadCreatedPayload{ThreadID: "t1"})
	})

	assert.True(t, ran, "subscriber after a panicking one must still run")
	assert.Equal(t, []any{"boom"}, panics)
}

func TestEventBus_OnlyMatchingSubscribers(t *testing.T) {
	bus := eventbus.New()

	resolved := 0
	bus.SubscribePlanCommentResolved(func(eventbus.PlanCommentResolvedPayload) { resolved++ })

	bus.PublishPlanCommentUnresolved(eventbus.PlanCommentUnresolvedPayload{CommentID: "c"})
	assert.Equal(t, 0, resolved)

	bus.PublishPlanCommentResolved(eventbus.PlanCommentResolvedPayload{CommentID: "c"})
	assert.Equal(t, 1, resolved)
}

func TestEventBus_Hooks(t *testing.T) {
	bus := eventbus.New()

	var subscribed, published []eventbus.Event
	bus.OnSubscribe(func(e eventbus.Event) { subscribed = append(subscribed, e) })
	bus.OnPublish(func(e eventbus.Event, _ any) { published = append(published, e) })

	bus.SubscribePlanApproved(func(eventbus.PlanApprovedPayload) {})
	bus.PublishPlanApproved(eventbus.PlanApprovedPayload{Feature: "f"})
	bus.PublishPlanWritten(eventbus.PlanWrittenPayload{Feature: "f"})

	assert.Equal(t, []eventbus.Event{eventbus.EventPlanApproved}, subscribed)
	assert.Equal(t, []eventbus.Event{eventbus.EventPlanApproved, eventbus.EventPlanWritten}, published)
}

func TestEvents_Closed(t *testing.T) {
	for _, e := range []eventbus.Event{
		eventbus.EventPlanCommented,
		eventbus.EventPlanCommentResolved,
		eventbus.EventPlanCommentUnresolved,
		eventbus.EventPlanCommentDeleted,
		eventbus.EventReviewThreadCreated,
		eventbus.EventReviewThreadUnresolved,
		eventbus.EventReviewThreadDeleted,
		eventbus.EventReviewAnnotationEdited,
	} {
		assert.Contains(t, eventbus.Events, e)
	}
	assert.Equal(t, "plan.comment.resolved", string(eventbus.EventPlanCommentResolved))
}

func TestRegisterDebugLogger(t *testing.T) {
	tb := testbus.New(t)

	var buf bytes.Buffer
	eventbus.RegisterDebugLogger(tb.EventBus, zerolog.New(&buf).Level(zerolog.DebugLevel))

	tb.SubscribeReviewThreadDeleted(func(eventbus.ReviewThreadDeletedPayload) { panic("bad subscriber") })
	tb.PublishReviewThreadDeleted(eventbus.ReviewThreadDeletedPayload{ThreadID: "t"})

	tb.AssertPublished(t, eventbus.EventReviewThreadDeleted)
	assert.Contains(t, buf.String(), "event fired")
	assert.Contains(t, buf.String(), "subscriber panicked")
	assert.Contains(t, buf.String(), "review.thread.deleted")
}
