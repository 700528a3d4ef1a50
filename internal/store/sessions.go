package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"guidepost/internal/models"
)

const sessionColumns = `id, migrant_id, migrant_name, guide_id, guide_name, title, request_status, created_at, updated_at, closed_at`

// SessionExists reports whether a session id is taken.
func (s *Store) SessionExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM sessions WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateSession inserts a session request.
func (s *Store) CreateSession(ctx context.Context, session *models.SessionRequest) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionArgs(session)...)
	return err
}

// ImportSession inserts a session unless its id already exists.
// It reports whether a row was written.
func (s *Store) ImportSession(ctx context.Context, session *models.SessionRequest) (bool, error) {
	if session == nil {
		return false, fmt.Errorf("session is required")
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionArgs(session)...)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func sessionArgs(session *models.SessionRequest) []any {
	return []any{
		session.ID,
		session.MigrantID,
		session.MigrantName,
		session.GuideID,
		session.GuideName,
		session.Title,
		session.RequestStatus,
		dbFormatTime(session.CreatedAt),
		nullTime(session.UpdatedAt),
		nullTime(session.ClosedAt),
	}
}

// GetSession returns a session by id, or nil when none exists.
func (s *Store) GetSession(ctx context.Context, id string) (*models.SessionRequest, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

// TransitionSession moves a session from one status to another only if it is
// still in the expected status. It reports whether the swap happened.
func (s *Store) TransitionSession(ctx context.Context, id string, from, to models.RequestStatus, updatedAt time.Time, closedAt *time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions
		SET request_status = ?, updated_at = ?, closed_at = COALESCE(?, closed_at)
		WHERE id = ? AND request_status = ?
	`, string(to), dbFormatTime(updatedAt), nullTime(closedAt), id, string(from))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListSessionsForUser returns sessions where userID is the party named by role.
// Identities are compared with exact equality.
func (s *Store) ListSessionsForUser(ctx context.Context, userID string, role models.Role) ([]models.SessionRequest, error) {
	var column string
	switch role {
	case models.RoleMigrant:
		column = "migrant_id"
	case models.RoleGuide:
		column = "guide_id"
	default:
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	sessions, corrupt, err := s.querySessions(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE "+column+" = ? ORDER BY created_at DESC, id ASC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	if len(corrupt) > 0 {
		return nil, fmt.Errorf("session %s is corrupt: %s", corrupt[0].ID, corrupt[0].Reason)
	}
	return sessions, nil
}

// ListStaleRequested returns requested sessions created before cutoff, oldest first.
// Matching rows whose columns do not decode are returned separately as corrupt;
// limit and offset count both.
func (s *Store) ListStaleRequested(ctx context.Context, cutoff time.Time, limit, offset int) ([]models.SessionRequest, []models.CorruptRecord, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE request_status = ? AND created_at < ? ORDER BY created_at ASC, id ASC"
	args := []any{string(models.RequestRequested), dbFormatTime(cutoff)}
	if limit > 0 || offset > 0 {
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, max(offset, 0))
	}
	return s.querySessions(ctx, query, args...)
}

// DeleteRequestedSession deletes a session only while it is still requested.
func (s *Store) DeleteRequestedSession(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE id = ? AND request_status = ?
	`, id, string(models.RequestRequested))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CountSessionsByStatus returns the number of sessions in each status.
func (s *Store) CountSessionsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT request_status, COUNT(*) FROM sessions GROUP BY request_status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]models.SessionRequest, []models.CorruptRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	sessions := []models.SessionRequest{}
	var corrupt []models.CorruptRecord
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			if setAsideCorrupt(err, &corrupt) {
				continue
			}
			return nil, nil, err
		}
		if session != nil {
			sessions = append(sessions, *session)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return sessions, corrupt, nil
}

func scanSession(scanner rowScanner) (*models.SessionRequest, error) {
	var session models.SessionRequest
	var createdAt, updatedAt, closedAt sql.NullString
	if err := scanner.Scan(
		&session.ID,
		&session.MigrantID,
		&session.MigrantName,
		&session.GuideID,
		&session.GuideName,
		&session.Title,
		&session.RequestStatus,
		&createdAt,
		&updatedAt,
		&closedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var err error
	if session.CreatedAt, err = dbParseTime(createdAt.String); err != nil {
		return nil, &decodeError{id: session.ID, column: "created_at", err: err}
	}
	if session.UpdatedAt, err = parseNullTime(updatedAt.String, updatedAt.Valid); err != nil {
		return nil, &decodeError{id: session.ID, column: "updated_at", err: err}
	}
	if session.ClosedAt, err = parseNullTime(closedAt.String, closedAt.Valid); err != nil {
		return nil, &decodeError{id: session.ID, column: "closed_at", err: err}
	}
	return &session, nil
}
