package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"guidepost/internal/models"
)

// UpsertUser creates or refreshes a directory entry.
func (s *Store) UpsertUser(ctx context.Context, user *models.User, now time.Time) error {
	if user == nil {
		return fmt.Errorf("user is required")
	}
	if strings.TrimSpace(user.ID) == "" {
		return fmt.Errorf("user id is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  display_name = excluded.display_name,
		  role = excluded.role,
		  updated_at = excluded.updated_at
	`, user.ID, user.DisplayName, user.Role, dbFormatTime(now), dbFormatTime(now))
	return err
}

// GetUser returns a user by exact id, or nil when none exists.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	if id == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, role, created_at, updated_at
		FROM users
		WHERE id = ?
	`, id)
	return scanUser(row)
}

// ListUsers returns all users sorted by id.
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, role, created_at, updated_at
		FROM users
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		if user != nil {
			users = append(users, *user)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func scanUser(scanner rowScanner) (*models.User, error) {
	var user models.User
	var createdAt, updatedAt string
	if err := scanner.Scan(&user.ID, &user.DisplayName, &user.Role, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if user.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if user.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &user, nil
}
