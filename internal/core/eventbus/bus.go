package eventbus

import "sync"

// EventBus dispatches events synchronously. Subscribers run in registration
// order on the publishing goroutine; a subscriber that panics is recovered
// and reported to OnPanic hooks, and the remaining subscribers still run.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[Event][]func(any)
	all      []func(Event, any)
	hooks    hooks
}

// New creates an empty bus.
func New() *EventBus {
	return &EventBus{handlers: make(map[Event][]func(any))}
}

func subscribe[P any](bus *EventBus, event Event, fn func(P)) {
	bus.mu.Lock()
	bus.handlers[event] = append(bus.handlers[event], func(payload any) {
		fn(payload.(P))
	})
	bus.mu.Unlock()
	bus.runOnSubscribe(event)
}

// SubscribeAll registers fn for every event. It runs after the event's
// typed subscribers.
func (bus *EventBus) SubscribeAll(fn func(Event, any)) {
	bus.mu.Lock()
	bus.all = append(bus.all, fn)
	bus.mu.Unlock()
}

// send delivers payload to every subscriber of event, then fires OnPublish hooks.
func (bus *EventBus) send(event Event, payload any) {
	bus.mu.RLock()
	handlers := make([]func(any), len(bus.handlers[event]))
	copy(handlers, bus.handlers[event])
	all := make([]func(Event, any), len(bus.all))
	copy(all, bus.all)
	bus.mu.RUnlock()

	for _, fn := range handlers {
		bus.safeCall(event, payload, func() { fn(payload) })
	}
	for _, fn := range all {
		bus.safeCall(event, payload, func() { fn(event, payload) })
	}

	bus.runOnPublish(event, payload)
}

func (bus *EventBus) safeCall(event Event, payload any, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			bus.runOnPanic(event, payload, r)
		}
	}()
	fn()
}

func (bus *EventBus) SubscribeFeatureCreated(fn func(FeatureCreatedPayload)) {
	subscribe(bus, EventFeatureCreated, fn)
}

func (bus *EventBus) PublishFeatureCreated(p FeatureCreatedPayload) {
	bus.send(EventFeatureCreated, p)
}

func (bus *EventBus) SubscribeFeatureStatusChanged(fn func(FeatureStatusChangedPayload)) {
	subscribe(bus, EventFeatureStatusChanged, fn)
}

func (bus *EventBus) PublishFeatureStatusChanged(p FeatureStatusChangedPayload) {
	bus.send(EventFeatureStatusChanged, p)
}

func (bus *EventBus) SubscribePlanWritten(fn func(PlanWrittenPayload)) {
	subscribe(bus, EventPlanWritten, fn)
}

func (bus *EventBus) PublishPlanWritten(p PlanWrittenPayload) {
	bus.send(EventPlanWritten, p)
}

func (bus *EventBus) SubscribePlanApproved(fn func(PlanApprovedPayload)) {
	subscribe(bus, EventPlanApproved, fn)
}

func (bus *EventBus) PublishPlanApproved(p PlanApprovedPayload) {
	bus.send(EventPlanApproved, p)
}

func (bus *EventBus) SubscribePlanCommented(fn func(PlanCommentedPayload)) {
	subscribe(bus, EventPlanCommented, fn)
}

func (bus *EventBus) PublishPlanCommented(p PlanCommentedPayload) {
	bus.send(EventPlanCommented, p)
}

func (bus *EventBus) SubscribePlanCommentReplied(fn func(PlanCommentRepliedPayload)) {
	subscribe(bus, EventPlanCommentReplied, fn)
}

func (bus *EventBus) PublishPlanCommentReplied(p PlanCommentRepliedPayload) {
	bus.send(EventPlanCommentReplied, p)
}

func (bus *EventBus) SubscribePlanCommentResolved(fn func(PlanCommentResolvedPayload)) {
	subscribe(bus, EventPlanCommentResolved, fn)
}

func (bus *EventBus) PublishPlanCommentResolved(p PlanCommentResolvedPayload) {
	bus.send(EventPlanCommentResolved, p)
}

func (bus *EventBus) SubscribePlanCommentUnresolved(fn func(PlanCommentUnresolvedPayload)) {
	subscribe(bus, EventPlanCommentUnresolved, fn)
}

func (bus *EventBus) PublishPlanCommentUnresolved(p PlanCommentUnresolvedPayload) {
	bus.send(EventPlanCommentUnresolved, p)
}

func (bus *EventBus) SubscribePlanCommentDeleted(fn func(PlanCommentDeletedPayload)) {
	subscribe(bus, EventPlanCommentDeleted, fn)
}

func (bus *EventBus) PublishPlanCommentDeleted(p PlanCommentDeletedPayload) {
	bus.send(EventPlanCommentDeleted, p)
}

func (bus *EventBus) SubscribeReviewSessionStarted(fn func(ReviewSessionStartedPayload)) {
	subscribe(bus, EventReviewSessionStarted, fn)
}

func (bus *EventBus) PublishReviewSessionStarted(p ReviewSessionStartedPayload) {
	bus.send(EventReviewSessionStarted, p)
}

func (bus *EventBus) SubscribeReviewSessionSubmitted(fn func(ReviewSessionSubmittedPayload)) {
	subscribe(bus, EventReviewSessionSubmitted, fn)
}

func (bus *EventBus) PublishReviewSessionSubmitted(p ReviewSessionSubmittedPayload) {
	bus.send(EventReviewSessionSubmitted, p)
}

func (bus *EventBus) SubscribeReviewThreadCreated(fn func(ReviewThreadCreatedPayload)) {
	subscribe(bus, EventReviewThreadCreated, fn)
}

func (bus *EventBus) PublishReviewThreadCreated(p ReviewThreadCreatedPayload) {
	bus.send(EventReviewThreadCreated, p)
}

func (bus *EventBus) SubscribeReviewThreadReplied(fn func(ReviewThreadRepliedPayload)) {
	subscribe(bus, EventReviewThreadReplied, fn)
}

func (bus *EventBus) PublishReviewThreadReplied(p ReviewThreadRepliedPayload) {
	bus.send(EventReviewThreadReplied, p)
}

func (bus *EventBus) SubscribeReviewThreadResolved(fn func(ReviewThreadResolvedPayload)) {
	subscribe(bus, EventReviewThreadResolved, fn)
}

func (bus *EventBus) PublishReviewThreadResolved(p ReviewThreadResolvedPayload) {
	bus.send(EventReviewThreadResolved, p)
}

func (bus *EventBus) SubscribeReviewThreadUnresolved(fn func(ReviewThreadUnresolvedPayload)) {
	subscribe(bus, EventReviewThreadUnresolved, fn)
}

func (bus *EventBus) PublishReviewThreadUnresolved(p ReviewThreadUnresolvedPayload) {
	bus.send(EventReviewThreadUnresolved, p)
}

func (bus *EventBus) SubscribeReviewThreadOutdated(fn func(ReviewThreadOutdatedPayload)) {
	subscribe(bus, EventReviewThreadOutdated, fn)
}

func (bus *EventBus) PublishReviewThreadOutdated(p ReviewThreadOutdatedPayload) {
	bus.send(EventReviewThreadOutdated, p)
}

func (bus *EventBus) SubscribeReviewThreadDeleted(fn func(ReviewThreadDeletedPayload)) {
	subscribe(bus, EventReviewThreadDeleted, fn)
}

func (bus *EventBus) PublishReviewThreadDeleted(p ReviewThreadDeletedPayload) {
	bus.send(EventReviewThreadDeleted, p)
}

func (bus *EventBus) SubscribeReviewAnnotationEdited(fn func(ReviewAnnotationEditedPayload)) {
	subscribe(bus, EventReviewAnnotationEdited, fn)
}

func (bus *EventBus) PublishReviewAnnotationEdited(p ReviewAnnotationEditedPayload) {
	bus.send(EventReviewAnnotationEdited, p)
}

func (bus *EventBus) SubscribeReviewSuggestionApplied(fn func(ReviewSuggestionAppliedPayload)) {
	subscribe(bus, EventReviewSuggestionApplied, fn)
}

func (bus *EventBus) PublishReviewSuggestionApplied(p ReviewSuggestionAppliedPayload) {
	bus.send(EventReviewSuggestionApplied, p)
}
