package blobstore

import (
	"context"
	"fmt"
	"io"

	"guidepost/internal/apperr"
	"guidepost/internal/models"
)

// chunkReader streams a file one chunk query at a time.
// No cursor is held between reads, so abandoning it leaks nothing.
type chunkReader struct {
	ctx    context.Context
	store  *ChunkStore
	file   models.BlobFile
	next   int
	buf    []byte
	closed bool
}

func newChunkReader(ctx context.Context, store *ChunkStore, file models.BlobFile) *chunkReader {
	return &chunkReader{ctx: ctx, store: store, file: file}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, fmt.Errorf("read of closed file %s", r.file.ID)
	}
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.buf) == 0 {
		if r.next >= r.file.ChunkCount {
			return 0, io.EOF
		}
		if err := r.ctx.Err(); err != nil {
			return 0, apperr.FromContext(err)
		}
		data, found, err := r.store.fetchChunk(r.ctx, r.file.ID, r.next)
		if err != nil {
			return 0, fmt.Errorf("read chunk %d of %s: %w", r.next, r.file.ID, apperr.FromContext(err))
		}
		if !found {
			return 0, apperr.NotFoundCode(fmt.Errorf("chunk %d of file %s is missing", r.next, r.file.ID), apperr.CodeFileNotFound)
		}
		r.next++
		r.buf = data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}
