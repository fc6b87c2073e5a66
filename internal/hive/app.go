package hive

import (
	"github.com/colonyops/hive-review/internal/core/config"
	"github.com/colonyops/hive-review/internal/core/eventbus"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/git"
	"github.com/colonyops/hive-review/internal/core/ident"
	"github.com/colonyops/hive-review/internal/core/plan"
	"github.com/colonyops/hive-review/internal/core/review"
	"github.com/rs/zerolog"
)

// App is the central entry point for all hive-review operations.
// Commands consume App instead of cherry-picking raw dependencies.
type App struct {
	Features *FeatureService
	Plans    *PlanService
	Reviews  *ReviewService

	Config *config.Config
	Bus    *eventbus.EventBus
}

// Stores bundles the persistence backends the services run on.
type Stores struct {
	Features feature.Store
	Plans    plan.Store
	Reviews  review.Store
}

// NewApp constructs an App from explicit dependencies. g may be nil when
// git is unavailable.
func NewApp(cfg *config.Config, stores Stores, g git.Git, bus *eventbus.EventBus, log zerolog.Logger) *App {
	ids := ident.ProcessGenerator()

	return &App{
		Features: NewFeatureService(stores.Features, bus, log),
		Plans:    NewPlanService(stores.Plans, stores.Features, bus, ids, log),
		Reviews:  NewReviewService(stores.Reviews, stores.Features, g, cfg, bus, ids, log),
		Config:   cfg,
		Bus:      bus,
	}
}
