package blobstore

import (
	"context"
	"io"

	"guidepost/internal/models"
)

// BlobStore is the chunked byte-storage abstraction used by DocumentService.
// A file is invisible until every chunk is stored and its file record is written.
type BlobStore interface {
	CreateFile(ctx context.Context, filename string, r io.Reader) (models.BlobFile, error)
	CreateFileWithID(ctx context.Context, fileID, filename string, r io.Reader) (models.BlobFile, error)
	OpenFile(ctx context.Context, fileID string) (io.ReadCloser, error)
	StatFile(ctx context.Context, fileID string) (models.BlobStat, error)
	DeleteFile(ctx context.Context, fileID string) error
	ChunkSize() int
}
