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

var (
	// ErrFileOwned is returned when a document already references the file.
	ErrFileOwned = errors.New("file already owned by a document")
	// ErrFileMissing is returned when the referenced blob file does not exist.
	ErrFileMissing = errors.New("file does not exist")
)

const documentColumns = `id, user_id, original_name, document_type, country, status, description, file_id, uploaded_at, updated_at`

// DocumentExists reports whether a document id is taken.
func (s *Store) DocumentExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM documents WHERE id = ?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateDocument inserts a document record. The blob existence check and the
// insert are one statement, so a concurrent blob delete cannot slip between them.
func (s *Store) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM blob_files WHERE id = ?)
	`,
		doc.ID,
		doc.UserID,
		doc.OriginalName,
		doc.DocumentType,
		doc.Country,
		doc.Status,
		nullIfEmpty(doc.Description),
		doc.FileID,
		dbFormatTime(doc.UploadedAt),
		dbFormatTime(doc.UpdatedAt),
		doc.FileID,
	)
	if err != nil {
		if IsUniqueConstraint(err) && strings.Contains(err.Error(), "documents.file_id") {
			return fmt.Errorf("%w: %s", ErrFileOwned, doc.FileID)
		}
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrFileMissing, doc.FileID)
	}
	return nil
}

// GetDocument returns a document by id, or nil when none exists.
func (s *Store) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE id = ?", id)
	return scanDocument(row)
}

// GetDocumentByFileID returns the document owning fileID, or nil.
func (s *Store) GetDocumentByFileID(ctx context.Context, fileID string) (*models.Document, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+documentColumns+" FROM documents WHERE file_id = ?", fileID)
	return scanDocument(row)
}

// UpdateDocumentStatus sets the review status. It reports whether the document existed.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, updatedAt time.Time) (bool, error) {
	return s.updateDocumentField(ctx, id, "status", string(status), updatedAt)
}

// UpdateDocumentDescription sets or clears the description.
func (s *Store) UpdateDocumentDescription(ctx context.Context, id, description string, updatedAt time.Time) (bool, error) {
	return s.updateDocumentField(ctx, id, "description", nullIfEmpty(description), updatedAt)
}

func (s *Store) updateDocumentField(ctx context.Context, id, column string, value any, updatedAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE documents SET %s = ?, updated_at = ? WHERE id = ?", column),
		value, dbFormatTime(updatedAt), id,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteDocument removes a document record. The referenced blob is untouched.
func (s *Store) DeleteDocument(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListDocumentsByOwner returns one user's documents, newest first.
func (s *Store) ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	return s.queryDocuments(ctx, "SELECT "+documentColumns+" FROM documents WHERE user_id = ? ORDER BY uploaded_at DESC, id ASC", ownerID)
}

// ListDocuments returns every document, newest first.
func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	return s.queryDocuments(ctx, "SELECT "+documentColumns+" FROM documents ORDER BY uploaded_at DESC, id ASC")
}

func (s *Store) queryDocuments(ctx context.Context, query string, args ...any) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []models.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			docs = append(docs, *doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func scanDocument(scanner rowScanner) (*models.Document, error) {
	var doc models.Document
	var description sql.NullString
	var uploadedAt, updatedAt string
	if err := scanner.Scan(
		&doc.ID,
		&doc.UserID,
		&doc.OriginalName,
		&doc.DocumentType,
		&doc.Country,
		&doc.Status,
		&description,
		&doc.FileID,
		&uploadedAt,
		&updatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if description.Valid {
		doc.Description = description.String
	}
	var err error
	if doc.UploadedAt, err = dbParseTime(uploadedAt); err != nil {
		return nil, err
	}
	if doc.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &doc, nil
}
