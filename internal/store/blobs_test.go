package store

import (
	"context"
	"testing"
	"time"

	"guidepost/internal/models"
)

func testNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func insertChunks(t *testing.T, st *Store, fileID string, chunks ...string) {
	t.Helper()
	for i, chunk := range chunks {
		if err := st.InsertChunk(context.Background(), fileID, i, []byte(chunk), testNow()); err != nil {
			t.Fatalf("insert chunk %d: %v", i, err)
		}
	}
}

func TestInsertBlobFileAndGet(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	now := testNow()

	insertChunks(t, st, "f1", "abcd", "ef")
	file := &models.BlobFile{ID: "f1", Filename: "a.txt", Length: 6, ChunkSize: 4, ChunkCount: 2, Digest: "d", CreatedAt: now}
	if err := st.InsertBlobFile(ctx, file); err != nil {
		t.Fatalf("insert file: %v", err)
	}

	got, err := st.GetBlobFile(ctx, "f1")
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if got == nil {
		t.Fatal("expected file record")
	}
	if got.Length != 6 || got.ChunkCount != 2 || got.ChunkSize != 4 || got.Filename != "a.txt" {
		t.Fatalf("unexpected file: %+v", got)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at %v, got %v", now, got.CreatedAt)
	}

	seqs, err := st.ListChunkSeqs(ctx, "f1")
	if err != nil {
		t.Fatalf("list seqs: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 0 || seqs[1] != 1 {
		t.Fatalf("unexpected seqs: %v", seqs)
	}
}

func TestInsertBlobFileRejectsInconsistentChunks(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		chunks []string
		file   models.BlobFile
	}{
		{
			name:   "missing chunk",
			chunks: []string{"abcd"},
			file:   models.BlobFile{ID: "m1", Length: 6, ChunkSize: 4, ChunkCount: 2},
		},
		{
			name:   "length mismatch",
			chunks: []string{"abcd", "e"},
			file:   models.BlobFile{ID: "m2", Length: 6, ChunkSize: 4, ChunkCount: 2},
		},
		{
			name:   "oversized chunk",
			chunks: []string{"abcdef"},
			file:   models.BlobFile{ID: "m3", Length: 6, ChunkSize: 4, ChunkCount: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insertChunks(t, st, tt.file.ID, tt.chunks...)
			file := tt.file
			file.CreatedAt = testNow()
			if err := st.InsertBlobFile(ctx, &file); err == nil {
				t.Fatal("expected error")
			}
			got, err := st.GetBlobFile(ctx, file.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != nil {
				t.Fatal("file record must not exist")
			}
		})
	}
}

func TestInsertBlobFileNonContiguous(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	if err := st.InsertChunk(ctx, "gap", 0, []byte("ab"), testNow()); err != nil {
		t.Fatalf("insert 0: %v", err)
	}
	if err := st.InsertChunk(ctx, "gap", 2, []byte("cd"), testNow()); err != nil {
		t.Fatalf("insert 2: %v", err)
	}
	file := &models.BlobFile{ID: "gap", Length: 4, ChunkSize: 2, ChunkCount: 2, CreatedAt: testNow()}
	if err := st.InsertBlobFile(ctx, file); err == nil {
		t.Fatal("expected contiguity error")
	}
}

func TestEmptyBlobFile(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	file := &models.BlobFile{ID: "empty", Filename: "e", Length: 0, ChunkSize: 4, ChunkCount: 0, CreatedAt: testNow()}
	if err := st.InsertBlobFile(ctx, file); err != nil {
		t.Fatalf("insert empty file: %v", err)
	}
	exists, err := st.BlobFileExists(ctx, "empty")
	if err != nil || !exists {
		t.Fatalf("expected empty file to exist: exists=%v err=%v", exists, err)
	}
}

func TestGetChunkMissing(t *testing.T) {
	st := testStore(t)
	_, found, err := st.GetChunk(context.Background(), "nope", 0)
	if err != nil {
		t.Fatalf("get chunk: %v", err)
	}
	if found {
		t.Fatal("expected missing chunk")
	}
}

func TestDeleteBlobFile(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	insertChunks(t, st, "d1", "ab", "c")
	if err := st.InsertBlobFile(ctx, &models.BlobFile{ID: "d1", Length: 3, ChunkSize: 2, ChunkCount: 2, CreatedAt: testNow()}); err != nil {
		t.Fatalf("insert file: %v", err)
	}

	deleted, err := st.DeleteBlobFile(ctx, "d1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("expected file to be deleted")
	}
	seqs, err := st.ListChunkSeqs(ctx, "d1")
	if err != nil {
		t.Fatalf("list seqs: %v", err)
	}
	if len(seqs) != 0 {
		t.Fatalf("expected no chunks, got %v", seqs)
	}

	deleted, err = st.DeleteBlobFile(ctx, "d1")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("second delete should report nothing removed")
	}
}

func TestDeleteChunksSkipsCommittedFiles(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	insertChunks(t, st, "committed", "ab")
	if err := st.InsertBlobFile(ctx, &models.BlobFile{ID: "committed", Length: 2, ChunkSize: 2, ChunkCount: 1, CreatedAt: testNow()}); err != nil {
		t.Fatalf("insert file: %v", err)
	}
	insertChunks(t, st, "aborted", "ab", "cd")

	n, err := st.DeleteChunks(ctx, "committed")
	if err != nil {
		t.Fatalf("delete committed chunks: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected committed chunks untouched, deleted %d", n)
	}

	n, err = st.DeleteChunks(ctx, "aborted")
	if err != nil {
		t.Fatalf("delete aborted chunks: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 aborted chunks deleted, got %d", n)
	}
}
