package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the review-session statements.
type Queries struct {
	db DBTX
}

// New binds queries to a connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// ReviewSession is a row of review_sessions. Document holds the full
// session as JSON; the other columns exist for lookup and ordering.
type ReviewSession struct {
	ID          string
	FeatureName string
	Scope       string
	Status      string
	Document    string
	CreatedAt   int64
	UpdatedAt   int64
}

const upsertReviewSession = `
INSERT INTO review_sessions (id, feature_name, scope, status, document, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    feature_name = excluded.feature_name,
    scope        = excluded.scope,
    status       = excluded.status,
    document     = excluded.document,
    updated_at   = excluded.updated_at
`

func (q *Queries) UpsertReviewSession(ctx context.Context, arg ReviewSession) error {
	_, err := q.db.ExecContext(ctx, upsertReviewSession,
		arg.ID, arg.FeatureName, arg.Scope, arg.Status, arg.Document, arg.CreatedAt, arg.UpdatedAt,
	)
	return err
}

const getReviewSession = `
SELECT id, feature_name, scope, status, document, created_at, updated_at
FROM review_sessions
WHERE id = ?
`

func (q *Queries) GetReviewSession(ctx context.Context, id string) (ReviewSession, error) {
	var r ReviewSession
	err := q.db.QueryRowContext(ctx, getReviewSession, id).Scan(
		&r.ID, &r.FeatureName, &r.Scope, &r.Status, &r.Document, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

const listReviewSessionsByFeature = `
SELECT id, feature_name, scope, status, document, created_at, updated_at
FROM review_sessions
WHERE feature_name = ?
ORDER BY updated_at DESC, created_at DESC, id
`

func (q *Queries) ListReviewSessionsByFeature(ctx context.Context, featureName string) ([]ReviewSession, error) {
	rows, err := q.db.QueryContext(ctx, listReviewSessionsByFeature, featureName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []ReviewSession
	for rows.Next() {
		var r ReviewSession
		if err := rows.Scan(&r.ID, &r.FeatureName, &r.Scope, &r.Status, &r.Document, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const deleteReviewThreads = `DELETE FROM review_threads WHERE session_id = ?`

func (q *Queries) DeleteReviewThreads(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, deleteReviewThreads, sessionID)
	return err
}

const insertReviewThread = `INSERT INTO review_threads (thread_id, session_id) VALUES (?, ?)`

func (q *Queries) InsertReviewThread(ctx context.Context, threadID, sessionID string) error {
	_, err := q.db.ExecContext(ctx, insertReviewThread, threadID, sessionID)
	return err
}

const getSessionIDByThread = `SELECT session_id FROM review_threads WHERE thread_id = ?`

func (q *Queries) GetSessionIDByThread(ctx context.Context, threadID string) (string, error) {
	var id string
	err := q.db.QueryRowContext(ctx, getSessionIDByThread, threadID).Scan(&id)
	return id, err
}
