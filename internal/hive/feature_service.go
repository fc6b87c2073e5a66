package hive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/hiveerr"
	"github.com/colonyops/hive-review/internal/core/logging"
	"github.com/rs/zerolog"
)

// FeatureService manages feature records and the status edges that lie
// outside the plan approval flow.
type FeatureService struct {
	store feature.Store
	bus   *eventbus.EventBus
	log   zerolog.Logger
	now   func() time.Time

	mu sync.Mutex
}

// NewFeatureService creates a new FeatureService.
func NewFeatureService(store feature.Store, bus *eventbus.EventBus, log zerolog.Logger) *FeatureService {
	return &FeatureService{
		store: store,
		bus:   bus,
		log:   logging.Component(log, "feature-service"),
		now:   time.Now,
	}
}

// Create adds a feature in the planning state.
func (s *FeatureService) Create(ctx context.Context, name string) (feature.Feature, error) {
	if err := feature.ValidateName(name); err != nil {
		return feature.Feature{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.store.ReadFeature(ctx, name)
	switch {
	case err == nil:
		return feature.Feature{}, fmt.Errorf("create feature '%s': %w", name, feature.ErrExists)
	case !errors.Is(err, feature.ErrNotFound):
		return feature.Feature{}, fmt.Errorf("create feature: %w", err)
	}

	now := s.now()
	f := feature.Feature{
		Name:      name,
		Status:    feature.StatusPlanning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.WriteFeature(ctx, f); err != nil {
		return feature.Feature{}, fmt.Errorf("create feature: %w", err)
	}

	s.log.Info().Ctx(logging.WithFeature(ctx, name)).Msg("feature created")
	s.bus.PublishFeatureCreated(eventbus.FeatureCreatedPayload{Feature: f})

	return f, nil
}

// Get returns a feature by name.
func (s *FeatureService) Get(ctx context.Context, name string) (feature.Feature, error) {
	return s.store.ReadFeature(ctx, name)
}

// List returns all features sorted by name.
func (s *FeatureService) List(ctx context.Context) ([]feature.Feature, error) {
	return s.store.ListFeatures(ctx)
}

// Start moves an approved feature into execution.
func (s *FeatureService) Start(ctx context.Context, name string) (feature.Feature, error) {
	return s.transition(ctx, name, feature.StatusApproved, feature.StatusExecuting)
}

// Complete marks an executing feature as done.
func (s *FeatureService) Complete(ctx context.Context, name string) (feature.Feature, error) {
	return s.transition(ctx, name, feature.StatusExecuting, feature.StatusCompleted)
}

func (s *FeatureService) transition(ctx context.Context, name string, from, to feature.Status) (feature.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.store.ReadFeature(ctx, name)
	if err != nil {
		return feature.Feature{}, err
	}

	if f.Status != from {
		return feature.Feature{}, hiveerr.Invalid("status", "feature '%s' is %s; only %s features can become %s", name, f.Status, from, to)
	}

	f.Status = to
	f.UpdatedAt = s.now()
	if err := s.store.WriteFeature(ctx, f); err != nil {
		return feature.Feature{}, fmt.Errorf("update feature status: %w", err)
	}

	s.log.Info().Ctx(logging.WithFeature(ctx, name)).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("feature status changed")
	s.bus.PublishFeatureStatusChanged(eventbus.FeatureStatusChangedPayload{
		Feature:   name,
		OldStatus: from,
		NewStatus: to,
	})

	return f, nil
}
