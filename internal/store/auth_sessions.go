package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"guidepost/internal/models"
)

const authSessionColumns = `id, payload, payload_state, has_principal, principal_user_id, principal_role, principal_name, expires_at, created_at, updated_at`

// UpsertAuthSession writes the typed form of an auth session.
// The principal columns are derived from session.Principal; the raw payload is kept for audit.
func (s *Store) UpsertAuthSession(ctx context.Context, session *models.AuthSession) error {
	if session == nil {
		return fmt.Errorf("auth session is required")
	}
	if strings.TrimSpace(session.ID) == "" {
		return fmt.Errorf("auth session id is required")
	}

	hasPrincipal := 0
	var userID, role, name any
	if session.Principal != nil {
		hasPrincipal = 1
		userID = nullIfEmpty(session.Principal.UserID)
		role = nullIfEmpty(session.Principal.Role)
		name = nullIfEmpty(session.Principal.DisplayName)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO auth_sessions (`+authSessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  payload = excluded.payload,
		  payload_state = excluded.payload_state,
		  has_principal = excluded.has_principal,
		  principal_user_id = excluded.principal_user_id,
		  principal_role = excluded.principal_role,
		  principal_name = excluded.principal_name,
		  expires_at = excluded.expires_at,
		  updated_at = excluded.updated_at
	`,
		session.ID,
		session.Payload,
		session.PayloadState,
		hasPrincipal,
		userID,
		role,
		name,
		nullTime(session.ExpiresAt),
		dbFormatTime(session.CreatedAt),
		dbFormatTime(session.UpdatedAt),
	)
	return err
}

// GetAuthSession returns one auth session, or nil when none exists.
func (s *Store) GetAuthSession(ctx context.Context, id string) (*models.AuthSession, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+authSessionColumns+" FROM auth_sessions WHERE id = ?", id)
	return scanAuthSession(row)
}

// ListAuthSessions returns every auth session ordered by id.
// Rows whose columns do not decode are returned separately as corrupt.
func (s *Store) ListAuthSessions(ctx context.Context) ([]models.AuthSession, []models.CorruptRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+authSessionColumns+" FROM auth_sessions ORDER BY id ASC")
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	sessions := []models.AuthSession{}
	var corrupt []models.CorruptRecord
	for rows.Next() {
		session, err := scanAuthSession(rows)
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

// DeleteEmptyAuthSession deletes a session only while it still parses and has no principal.
// A session that gained a principal since it was classified survives.
func (s *Store) DeleteEmptyAuthSession(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM auth_sessions
		WHERE id = ?
		  AND has_principal = 0
		  AND payload_state = ?
	`, id, string(models.PayloadOK))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanAuthSession(scanner rowScanner) (*models.AuthSession, error) {
	var session models.AuthSession
	var hasPrincipal int
	var userID, role, name, expiresAt, createdAt, updatedAt sql.NullString
	if err := scanner.Scan(
		&session.ID,
		&session.Payload,
		&session.PayloadState,
		&hasPrincipal,
		&userID,
		&role,
		&name,
		&expiresAt,
		&createdAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if hasPrincipal != 0 {
		session.Principal = &models.Identity{
			UserID:      userID.String,
			Role:        role.String,
			DisplayName: name.String,
		}
	}

	var err error
	if session.ExpiresAt, err = parseNullTime(expiresAt.String, expiresAt.Valid); err != nil {
		return nil, &decodeError{id: session.ID, column: "expires_at", err: err}
	}
	if session.CreatedAt, err = dbParseTime(createdAt.String); err != nil {
		return nil, &decodeError{id: session.ID, column: "created_at", err: err}
	}
	if session.UpdatedAt, err = dbParseTime(updatedAt.String); err != nil {
		return nil, &decodeError{id: session.ID, column: "updated_at", err: err}
	}
	return &session, nil
}
