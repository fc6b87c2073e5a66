// Package jsonfile persists features, plans, comments and review sessions
// as plain files under a workspace's .hive directory:
//
//	features/<name>/feature.json
//	features/<name>/plan.md
//	features/<name>/comments.json
//	features/<name>/reviews/<session-id>.json
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/colonyops/hive-review/internal/core/feature"
	"github.com/colonyops/hive-review/internal/core/plan"
	"github.com/colonyops/hive-review/internal/core/review"
)

const (
	featureFile  = "feature.json"
	planFile     = "plan.md"
	commentsFile = "comments.json"
	reviewsDir   = "reviews"
)

var (
	_ feature.Store = (*Store)(nil)
	_ plan.Store    = (*Store)(nil)
	_ review.Store  = (*Store)(nil)
)

// Store implements feature.Store, plan.Store and review.Store on top of
// the file tree rooted at a .hive directory.
type Store struct {
	root string
	mu   sync.RWMutex
}

// New creates a store rooted at hiveDir. Nothing is created until the
// first write.
func New(hiveDir string) *Store {
	return &Store{root: hiveDir}
}

// FeaturesDir returns the directory that holds one subdirectory per feature.
func (s *Store) FeaturesDir() string {
	return filepath.Join(s.root, "features")
}

func (s *Store) featureDir(name string) string {
	return filepath.Join(s.FeaturesDir(), name)
}

// PlanPath returns the path of a feature's plan file.
func (s *Store) PlanPath(featureName string) string {
	return filepath.Join(s.featureDir(featureName), planFile)
}

// ReadFeature implements feature.Store.
func (s *Store) ReadFeature(ctx context.Context, name string) (feature.Feature, error) {
	if feature.ValidateName(name) != nil {
		return feature.Feature{}, feature.NotFound(name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var f feature.Feature
	ok, err := readJSON(filepath.Join(s.featureDir(name), featureFile), &f)
	if err != nil {
		return feature.Feature{}, fmt.Errorf("read feature %s: %w", name, err)
	}
	if !ok {
		return feature.Feature{}, feature.NotFound(name)
	}
	return f, nil
}

// WriteFeature implements feature.Store.
func (s *Store) WriteFeature(ctx context.Context, f feature.Feature) error {
	if err := feature.ValidateName(f.Name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeJSON(filepath.Join(s.featureDir(f.Name), featureFile), f); err != nil {
		return fmt.Errorf("write feature %s: %w", f.Name, err)
	}
	return nil
}

// ListFeatures implements feature.Store. Directories without a
// feature.json are skipped.
func (s *Store) ListFeatures(ctx context.Context) ([]feature.Feature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.FeaturesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []feature.Feature{}, nil
		}
		return nil, fmt.Errorf("list features: %w", err)
	}

	features := make([]feature.Feature, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		var f feature.Feature
		ok, err := readJSON(filepath.Join(s.FeaturesDir(), entry.Name(), featureFile), &f)
		if err != nil {
			return nil, fmt.Errorf("read feature %s: %w", entry.Name(), err)
		}
		if ok {
			features = append(features, f)
		}
	}

	slices.SortFunc(features, func(a, b feature.Feature) int {
		return strings.Compare(a.Name, b.Name)
	})
	return features, nil
}

// ReadPlan implements plan.Store.
func (s *Store) ReadPlan(ctx context.Context, featureName string) (string, bool, error) {
	if err := feature.ValidateName(featureName); err != nil {
		return "", false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.PlanPath(featureName)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("stat plan: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, fmt.Errorf("read plan: %w", err)
	}
	return string(data), true, nil
}

// WritePlan implements plan.Store.
func (s *Store) WritePlan(ctx context.Context, featureName, content string) error {
	if err := feature.ValidateName(featureName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(s.PlanPath(featureName), []byte(content)); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}
	return nil
}

// ReadComments implements plan.Store. Legacy shapes are upgraded in
// memory; the file is rewritten in the canonical shape on the next write.
// A missing file, or a path that is not a regular file, reads as no comments.
func (s *Store) ReadComments(ctx context.Context, featureName string) ([]plan.Thread, error) {
	if err := feature.ValidateName(featureName); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok, err := readRegular(filepath.Join(s.featureDir(featureName), commentsFile))
	if err != nil {
		return nil, fmt.Errorf("read comments: %w", err)
	}
	if !ok {
		return []plan.Thread{}, nil
	}

	threads, err := plan.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("feature %s: %w", featureName, err)
	}
	return threads, nil
}

// WriteComments implements plan.Store.
func (s *Store) WriteComments(ctx context.Context, featureName string, threads []plan.Thread) error {
	if err := feature.ValidateName(featureName); err != nil {
		return err
	}

	data, err := plan.Encode(threads)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(filepath.Join(s.featureDir(featureName), commentsFile), data); err != nil {
		return fmt.Errorf("write comments: %w", err)
	}
	return nil
}

// ListSessions implements review.Store.
func (s *Store) ListSessions(ctx context.Context, featureName string) ([]review.Session, error) {
	if err := feature.ValidateName(featureName); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Join(s.featureDir(featureName), reviewsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []review.Session{}, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]review.Session, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		var sess review.Session
		ok, err := readJSON(filepath.Join(dir, entry.Name()), &sess)
		if err != nil {
			return nil, fmt.Errorf("read session %s: %w", entry.Name(), err)
		}
		if ok {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}

// GetSession implements review.Store.
func (s *Store) GetSession(ctx context.Context, id string) (review.Session, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return review.Session{}, review.SessionNotFound(id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.FeaturesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return review.Session{}, review.SessionNotFound(id)
		}
		return review.Session{}, fmt.Errorf("get session: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		var sess review.Session
		ok, err := readJSON(filepath.Join(s.FeaturesDir(), entry.Name(), reviewsDir, id+".json"), &sess)
		if err != nil {
			return review.Session{}, fmt.Errorf("read session %s: %w", id, err)
		}
		if ok {
			return sess, nil
		}
	}

	return review.Session{}, review.SessionNotFound(id)
}

// FindSessionByThread implements review.Store.
func (s *Store) FindSessionByThread(ctx context.Context, threadID string) (review.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fsys := os.DirFS(s.FeaturesDir())
	matches, err := doublestar.Glob(fsys, "*/"+reviewsDir+"/*.json")
	if err != nil {
		return review.Session{}, fmt.Errorf("glob sessions: %w", err)
	}

	for _, match := range matches {
		var sess review.Session
		ok, err := readJSON(filepath.Join(s.FeaturesDir(), filepath.FromSlash(match)), &sess)
		if err != nil {
			return review.Session{}, fmt.Errorf("read session %s: %w", match, err)
		}
		if ok && sess.FindThread(threadID) != -1 {
			return sess, nil
		}
	}

	return review.Session{}, review.ThreadNotFound(threadID)
}

// SaveSession implements review.Store.
func (s *Store) SaveSession(ctx context.Context, sess review.Session) error {
	if err := feature.ValidateName(sess.FeatureName); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.featureDir(sess.FeatureName), reviewsDir, sess.ID+".json")
	if err := writeJSON(path, sess); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

// readRegular returns the contents of path. ok is false when nothing is
// there or the path is not a regular file, such as a directory.
func readRegular(path string) (data []byte, ok bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}

	data, err = os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// readJSON decodes the file at path into v. ok is false if the file does
// not exist, is not a regular file, or is empty.
func readJSON(path string, v any) (ok bool, err error) {
	data, ok, err := readRegular(path)
	if err != nil || !ok || len(data) == 0 {
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// writeFile writes data to path atomically. An empty directory squatting
// on path is removed first; anything else there makes the rename fail.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		_ = os.Remove(path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}
