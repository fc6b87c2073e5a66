// Package stores implements domain store interfaces on top of SQLite.
package stores

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/colonyops/hive-review/internal/core/review"
	"github.com/colonyops/hive-review/internal/data/db"
)

// ReviewStore implements review.Store using SQLite. Each session is stored
// as a JSON document; a side table maps thread ids to their session.
type ReviewStore struct {
	db *db.DB
}

var _ review.Store = (*ReviewStore)(nil)

// NewReviewStore creates a new SQLite-backed review store.
func NewReviewStore(db *db.DB) *ReviewStore {
	return &ReviewStore{db: db}
}

// ListSessions returns every session for a feature.
func (s *ReviewStore) ListSessions(ctx context.Context, featureName string) ([]review.Session, error) {
	rows, err := s.db.Queries().ListReviewSessionsByFeature(ctx, featureName)
	if err != nil {
		return nil, fmt.Errorf("failed to list review sessions: %w", err)
	}

	sessions := make([]review.Session, 0, len(rows))
	for _, row := range rows {
		sess, err := rowToReviewSession(row)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// GetSession returns a session by id.
func (s *ReviewStore) GetSession(ctx context.Context, id string) (review.Session, error) {
	row, err := s.db.Queries().GetReviewSession(ctx, id)
	if isNoRows(err) {
		return review.Session{}, review.SessionNotFound(id)
	}
	if err != nil {
		return review.Session{}, fmt.Errorf("failed to get review session: %w", err)
	}
	return rowToReviewSession(row)
}

// FindSessionByThread returns the session that owns threadID.
func (s *ReviewStore) FindSessionByThread(ctx context.Context, threadID string) (review.Session, error) {
	sessionID, err := s.db.Queries().GetSessionIDByThread(ctx, threadID)
	if isNoRows(err) {
		return review.Session{}, review.ThreadNotFound(threadID)
	}
	if err != nil {
		return review.Session{}, fmt.Errorf("failed to find thread: %w", err)
	}
	return s.GetSession(ctx, sessionID)
}

// SaveSession writes the session document and rebuilds its thread index
// in one transaction. SQLITE_BUSY is retried a few times.
func (s *ReviewStore) SaveSession(ctx context.Context, sess review.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal review session: %w", err)
	}

	row := db.ReviewSession{
		ID:          sess.ID,
		FeatureName: sess.FeatureName,
		Scope:       string(sess.Scope),
		Status:      string(sess.Status),
		Document:    string(doc),
		CreatedAt:   sess.CreatedAt.UnixNano(),
		UpdatedAt:   sess.UpdatedAt.UnixNano(),
	}

	err = retryBusy(ctx, func() error {
		return s.db.WithTx(ctx, func(q *db.Queries) error {
			if err := q.UpsertReviewSession(ctx, row); err != nil {
				return err
			}
			if err := q.DeleteReviewThreads(ctx, sess.ID); err != nil {
				return err
			}
			for _, t := range sess.Threads {
				if err := q.InsertReviewThread(ctx, t.ID, sess.ID); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to save review session: %w", err)
	}
	return nil
}

func rowToReviewSession(row db.ReviewSession) (review.Session, error) {
	var sess review.Session
	if err := json.Unmarshal([]byte(row.Document), &sess); err != nil {
		return review.Session{}, fmt.Errorf("failed to decode review session %s: %w", row.ID, err)
	}
	return sess, nil
}
