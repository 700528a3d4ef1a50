package store

import (
	"context"
	"time"

	"guidepost/internal/models"
)

// CountDocuments returns the number of document records.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// BlobUsage returns the number of committed files, their total length, and their chunk count.
func (s *Store) BlobUsage(ctx context.Context) (files int, bytes int64, chunks int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(length), 0), COALESCE(SUM(chunk_count), 0)
		FROM blob_files
	`).Scan(&files, &bytes, &chunks)
	return files, bytes, chunks, err
}

// ListDanglingDocuments returns documents whose file record is missing.
func (s *Store) ListDanglingDocuments(ctx context.Context) ([]models.DanglingDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.file_id, d.user_id
		FROM documents d
		LEFT JOIN blob_files f ON f.id = d.file_id
		WHERE f.id IS NULL
		ORDER BY d.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DanglingDocument{}
	for rows.Next() {
		var item models.DanglingDocument
		if err := rows.Scan(&item.DocumentID, &item.FileID, &item.UserID); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListUnownedBlobs returns committed files no document references.
func (s *Store) ListUnownedBlobs(ctx context.Context) ([]models.UnownedBlob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.filename, f.length
		FROM blob_files f
		LEFT JOIN documents d ON d.file_id = f.id
		WHERE d.id IS NULL
		ORDER BY f.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.UnownedBlob{}
	for rows.Next() {
		var item models.UnownedBlob
		if err := rows.Scan(&item.FileID, &item.Filename, &item.Length); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// ListChunkOnlyFileIDs returns file ids that have chunks but no file record.
// When olderThan is non-nil only files whose newest chunk predates it are returned,
// so uploads still in progress are left out.
func (s *Store) ListChunkOnlyFileIDs(ctx context.Context, olderThan *time.Time) ([]string, error) {
	query := `
		SELECT c.file_id
		FROM blob_chunks c
		LEFT JOIN blob_files f ON f.id = c.file_id
		WHERE f.id IS NULL
		GROUP BY c.file_id
	`
	args := []any{}
	if olderThan != nil {
		query += " HAVING MAX(c.created_at) < ?"
		args = append(args, dbFormatTime(*olderThan))
	}
	query += " ORDER BY c.file_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
