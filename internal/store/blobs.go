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

// InsertChunk stores one chunk of an in-progress upload.
// Each chunk commits on its own; the file record written by InsertBlobFile
// is what makes the chunks visible as a file.
func (s *Store) InsertChunk(ctx context.Context, fileID string, seq int, data []byte, createdAt time.Time) error {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return fmt.Errorf("file id is required")
	}
	if seq < 0 {
		return fmt.Errorf("chunk seq must be >= 0")
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blob_chunks (file_id, seq, size, data, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, fileID, seq, len(data), data, dbFormatTime(createdAt))
	return err
}

// InsertBlobFile writes the file record once every chunk is stored.
// The chunk rows are re-checked inside the transaction so a file record is
// never written over a missing, extra, or short chunk.
func (s *Store) InsertBlobFile(ctx context.Context, file *models.BlobFile) error {
	if file == nil {
		return fmt.Errorf("blob file is required")
	}
	if strings.TrimSpace(file.ID) == "" {
		return fmt.Errorf("file id is required")
	}
	if file.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be > 0")
	}

	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var count int
		var total int64
		var maxSeq sql.NullInt64
		var oversized int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(SUM(size), 0), MAX(seq),
			       COALESCE(SUM(CASE WHEN size > ? THEN 1 ELSE 0 END), 0)
			FROM blob_chunks
			WHERE file_id = ?
		`, file.ChunkSize, file.ID).Scan(&count, &total, &maxSeq, &oversized)
		if err != nil {
			return err
		}

		if count != file.ChunkCount {
			return fmt.Errorf("file %s: expected %d chunks, found %d", file.ID, file.ChunkCount, count)
		}
		if total != file.Length {
			return fmt.Errorf("file %s: expected %d bytes, found %d", file.ID, file.Length, total)
		}
		if count > 0 && (!maxSeq.Valid || maxSeq.Int64 != int64(count-1)) {
			return fmt.Errorf("file %s: chunk sequence is not contiguous", file.ID)
		}
		if oversized > 0 {
			return fmt.Errorf("file %s: %d chunks exceed chunk size %d", file.ID, oversized, file.ChunkSize)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO blob_files (id, filename, length, chunk_size, chunk_count, digest, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, file.ID, file.Filename, file.Length, file.ChunkSize, file.ChunkCount, file.Digest, dbFormatTime(file.CreatedAt))
		return err
	})
}

// GetBlobFile returns a file record, or nil when none exists.
func (s *Store) GetBlobFile(ctx context.Context, fileID string) (*models.BlobFile, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, filename, length, chunk_size, chunk_count, digest, created_at
		FROM blob_files
		WHERE id = ?
	`, fileID)
	return scanBlobFile(row)
}

// BlobFileExists reports whether a file record exists.
func (s *Store) BlobFileExists(ctx context.Context, fileID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM blob_files WHERE id = ?", fileID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetChunk returns the data of one chunk. found is false when the chunk is missing.
func (s *Store) GetChunk(ctx context.Context, fileID string, seq int) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM blob_chunks WHERE file_id = ? AND seq = ?
	`, fileID, seq).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// ListChunkSeqs returns the stored sequence numbers of a file in order.
func (s *Store) ListChunkSeqs(ctx context.Context, fileID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq FROM blob_chunks WHERE file_id = ? ORDER BY seq ASC
	`, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seqs := []int{}
	for rows.Next() {
		var seq int
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, rows.Err()
}

// DeleteBlobFile removes the file record and all of its chunks in one transaction.
// It reports whether a file record existed.
func (s *Store) DeleteBlobFile(ctx context.Context, fileID string) (bool, error) {
	var deleted bool
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM blob_chunks WHERE file_id = ?", fileID); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM blob_files WHERE id = ?", fileID)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		deleted = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// DeleteChunks removes the chunks of a file that has no file record.
// Chunks of a committed file are left alone.
func (s *Store) DeleteChunks(ctx context.Context, fileID string) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM blob_chunks
		WHERE file_id = ?
		  AND NOT EXISTS (SELECT 1 FROM blob_files f WHERE f.id = blob_chunks.file_id)
	`, fileID)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func scanBlobFile(scanner rowScanner) (*models.BlobFile, error) {
	var file models.BlobFile
	var createdAt string
	if err := scanner.Scan(&file.ID, &file.Filename, &file.Length, &file.ChunkSize, &file.ChunkCount, &file.Digest, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	file.CreatedAt = parsed
	return &file, nil
}
