// session_repository.go implements SessionRepository, the PostgreSQL session
// store. Session ids are random UUIDs and rows carry no expiry: a token is
// honoured only while its row exists.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sports-federation/federation-portal/internal/db/models"
)

// SessionRepository handles admin session database operations
type SessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Create inserts a new session for userID and returns its id.
func (r *SessionRepository) Create(ctx context.Context, userID, ipAddress, userAgent string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}

	query := `
		INSERT INTO admin_sessions (session_id, user_id, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, id.String(), userID, ipAddress, userAgent, r.now().UTC()); err != nil {
		return "", err
	}
	return id.String(), nil
}

// Exists reports whether the session row is present.
func (r *SessionRepository) Exists(ctx context.Context, sessionID string) (bool, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return false, nil
	}
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM admin_sessions WHERE session_id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, sessionID); err != nil {
		return false, err
	}
	return exists, nil
}

// Get retrieves a session. It returns (nil, nil) when not found.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, nil
	}
	var s models.Session
	query := `
		SELECT session_id, user_id, ip_address, user_agent, created_at
		FROM admin_sessions
		WHERE session_id = $1
	`
	err := r.db.GetContext(ctx, &s, query, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE session_id = $1`, sessionID)
	return err
}

// ListByUser returns a user's sessions, newest first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	sessions := make([]*models.Session, 0)
	query := `
		SELECT session_id, user_id, ip_address, user_agent, created_at
		FROM admin_sessions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteByUser removes every session of userID and returns how many were removed.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOlderThan removes sessions created before cutoff. Their tokens have
// expired, so the rows can no longer authorize anything.
func (r *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
