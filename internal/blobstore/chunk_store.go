package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"guidepost/internal/apperr"
	"guidepost/internal/models"
	"guidepost/internal/store"
)

const cleanupTimeout = 30 * time.Second

// Options configures a ChunkStore.
type Options struct {
	// ChunkSize is the maximum chunk length in bytes. Zero selects models.DefaultChunkSize.
	ChunkSize int
	// OperationTimeout bounds each database round trip. Zero leaves only the caller's deadline.
	OperationTimeout time.Duration
	Logger           *slog.Logger
	Now              func() time.Time
}

// ChunkStore splits files into fixed-size chunks kept in SQLite rows.
type ChunkStore struct {
	repo      store.ChunkRepository
	chunkSize int
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ BlobStore = (*ChunkStore)(nil)

// NewChunkStore creates a chunk store over repo.
func NewChunkStore(repo store.ChunkRepository, opts Options) (*ChunkStore, error) {
	if repo == nil {
		return nil, fmt.Errorf("chunk repository is required")
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("chunk size must be > 0")
	}
	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		chunkSize = models.DefaultChunkSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ChunkStore{
		repo:      repo,
		chunkSize: chunkSize,
		timeout:   opts.OperationTimeout,
		logger:    logger.With("component", "blobstore"),
		now:       now,
	}, nil
}

// NewFileID returns a fresh file id for CreateFileWithID.
func NewFileID() string {
	return uuid.NewString()
}

// ChunkSize returns the deployment chunk size.
func (c *ChunkStore) ChunkSize() int {
	return c.chunkSize
}

// CreateFile stores r under a newly generated file id.
func (c *ChunkStore) CreateFile(ctx context.Context, filename string, r io.Reader) (models.BlobFile, error) {
	return c.CreateFileWithID(ctx, NewFileID(), filename, r)
}

// CreateFileWithID streams r into chunks with sequence numbers 0..n-1 and
// writes the file record last. If anything fails after the first chunk is
// stored, the stored chunks are removed and no file record is written.
func (c *ChunkStore) CreateFileWithID(ctx context.Context, fileID, filename string, r io.Reader) (models.BlobFile, error) {
	var zero models.BlobFile
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return zero, apperr.ValidationCode(fmt.Errorf("file id is required"), apperr.CodeMissingRequired)
	}
	if r == nil {
		return zero, apperr.ValidationCode(fmt.Errorf("reader is required"), apperr.CodeMissingRequired)
	}
	if err := ctx.Err(); err != nil {
		return zero, apperr.FromContext(err)
	}

	existing, err := c.getFile(ctx, fileID)
	if err != nil {
		return zero, err
	}
	if existing != nil {
		return zero, apperr.Validationf("file id %s already exists", fileID)
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return zero, apperr.Internal(err)
	}

	createdAt := c.now().UTC()
	length, chunks, err := c.writeChunks(ctx, fileID, r, h, createdAt)
	if err != nil {
		if chunks > 0 {
			c.discardChunks(ctx, fileID)
		}
		return zero, c.writeFailure(ctx, fileID, err)
	}

	file := models.BlobFile{
		ID:         fileID,
		Filename:   filename,
		Length:     length,
		ChunkSize:  c.chunkSize,
		ChunkCount: chunks,
		Digest:     hex.EncodeToString(h.Sum(nil)),
		CreatedAt:  createdAt,
	}

	opCtx, cancel := c.opContext(ctx)
	err = c.repo.InsertBlobFile(opCtx, &file)
	cancel()
	if err != nil {
		if chunks > 0 {
			c.discardChunks(ctx, fileID)
		}
		return zero, c.writeFailure(ctx, fileID, err)
	}

	c.logger.Debug("blob file created", "file_id", fileID, "length", length, "chunks", chunks)
	return file, nil
}

func (c *ChunkStore) writeChunks(ctx context.Context, fileID string, r io.Reader, h hash.Hash, createdAt time.Time) (int64, int, error) {
	buf := make([]byte, c.chunkSize)
	var length int64
	seq := 0
	for {
		if err := ctx.Err(); err != nil {
			return length, seq, err
		}

		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			data := buf[:n]
			_, _ = h.Write(data)

			opCtx, cancel := c.opContext(ctx)
			err := c.repo.InsertChunk(opCtx, fileID, seq, data, createdAt)
			cancel()
			if err != nil {
				if store.IsUniqueConstraint(err) && seq == 0 {
					return length, seq, apperr.Validationf("file id %s is already being written", fileID)
				}
				return length, seq, fmt.Errorf("write chunk %d: %w", seq, err)
			}
			length += int64(n)
			seq++
		}

		switch {
		case readErr == nil:
			continue
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return length, seq, nil
		default:
			return length, seq, fmt.Errorf("read input: %w", readErr)
		}
	}
}

func (c *ChunkStore) writeFailure(ctx context.Context, fileID string, err error) error {
	if apperr.KindOf(err) == apperr.KindValidation {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.Timeout(fmt.Errorf("create file %s: %w", fileID, err))
	}
	return apperr.IncompleteWrite(fmt.Errorf("create file %s: %w", fileID, err))
}

// discardChunks removes the chunks of a failed upload. It runs on a context
// detached from the caller so a cancelled upload still cleans up.
func (c *ChunkStore) discardChunks(ctx context.Context, fileID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	n, err := c.repo.DeleteChunks(cleanupCtx, fileID)
	if err != nil {
		c.logger.Warn("discard chunks of failed upload", "file_id", fileID, "error", err)
		return
	}
	c.logger.Debug("discarded chunks of failed upload", "file_id", fileID, "chunks", n)
}

// OpenFile returns a lazy reader over the file's chunks.
func (c *ChunkStore) OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error) {
	file, err := c.getFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, apperr.NotFoundCode(fmt.Errorf("file not found: %s", fileID), apperr.CodeFileNotFound)
	}
	return newChunkReader(ctx, c, *file), nil
}

// StatFile returns the committed metadata of a file.
func (c *ChunkStore) StatFile(ctx context.Context, fileID string) (models.BlobStat, error) {
	file, err := c.getFile(ctx, fileID)
	if err != nil {
		return models.BlobStat{}, err
	}
	if file == nil {
		return models.BlobStat{}, apperr.NotFoundCode(fmt.Errorf("file not found: %s", fileID), apperr.CodeFileNotFound)
	}
	return models.BlobStat{
		Length:     file.Length,
		ChunkCount: file.ChunkCount,
		ChunkSize:  file.ChunkSize,
		Digest:     file.Digest,
	}, nil
}

// DeleteFile removes a file and its chunks. Missing files are ignored.
func (c *ChunkStore) DeleteFile(ctx context.Context, fileID string) error {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	deleted, err := c.repo.DeleteBlobFile(opCtx, fileID)
	if err != nil {
		return fmt.Errorf("delete file %s: %w", fileID, apperr.FromContext(err))
	}
	if deleted {
		c.logger.Debug("blob file deleted", "file_id", fileID)
	}
	return nil
}

func (c *ChunkStore) getFile(ctx context.Context, fileID string) (*models.BlobFile, error) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	file, err := c.repo.GetBlobFile(opCtx, fileID)
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", fileID, apperr.FromContext(err))
	}
	return file, nil
}

func (c *ChunkStore) fetchChunk(ctx context.Context, fileID string, seq int) ([]byte, bool, error) {
	opCtx, cancel := c.opContext(ctx)
	defer cancel()
	return c.repo.GetChunk(opCtx, fileID, seq)
}

func (c *ChunkStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}
