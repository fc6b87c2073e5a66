package hive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/colonyops/hive-review/internal/core/config"
	"github.com/colonyops/hive-review/internal/core/eventbus/testbus"
	"github.com/colonyops/hive-review/internal/core/git"
	"github.com/colonyops/hive-review/internal/core/ident"
	"github.com/colonyops/hive-review/internal/store/jsonfile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// stepClock returns a clock that advances one second per call so that
// ordering by timestamp is deterministic.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type testEnv struct {
	cfg   *config.Config
	store *jsonfile.Store
	bus   *testbus.Bus
	app   *App
}

func newTestEnv(t *testing.T, g git.Git) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Workspace = t.TempDir()
	cfg.Review.CaptureGit = g != nil

	store := jsonfile.New(cfg.HiveDir())
	tb := testbus.New(t)
	ids, err := ident.NewGenerator(1)
	require.NoError(t, err)

	log := zerolog.Nop()
	clock := stepClock()

	app := &App{
		Features: NewFeatureService(store, tb.EventBus, log),
		Plans:    NewPlanService(store, store, tb.EventBus, ids, log),
		Reviews:  NewReviewService(store, store, g, &cfg, tb.EventBus, ids, log),
		Config:   &cfg,
		Bus:      tb.EventBus,
	}
	app.Features.now = clock
	app.Plans.now = clock
	app.Reviews.now = clock

	return &testEnv{cfg: &cfg, store: store, bus: tb, app: app}
}

// writeWorkspaceFile writes a file relative to the workspace root.
func (e *testEnv) writeWorkspaceFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(e.cfg.Workspace, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fakeGit implements git.Git for testing.
type fakeGit struct {
	branch    string
	branchErr error
	remote    string
	add, del  int
	diff      string
	diffOpts  []git.DiffOptions
}

func (f *fakeGit) RemoteURL(context.Context, string) (string, error) {
	if f.remote == "" {
		return "", errors.New("no remote")
	}
	return f.remote, nil
}

func (f *fakeGit) Branch(context.Context, string) (string, error) {
	return f.branch, f.branchErr
}

func (f *fakeGit) DiffStats(context.Context, string) (int, int, error) {
	return f.add, f.del, nil
}

func (f *fakeGit) GetDiff(_ context.Context, _ string, opts git.DiffOptions) (string, error) {
	f.diffOpts = append(f.diffOpts, opts)
	return f.diff, nil
}

var _ git.Git = (*fakeGit)(nil)
