package blobstore

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/blake2b"

	"guidepost/internal/apperr"
	"guidepost/internal/models"
	"guidepost/internal/store"
)

const testChunkSize = 16

func newTestChunkStore(t *testing.T, chunkSize int) (*ChunkStore, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "blobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	cs, err := NewChunkStore(st, Options{ChunkSize: chunkSize, OperationTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new chunk store: %v", err)
	}
	return cs, st
}

func patterned(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

func TestCreateFileRoundTrip(t *testing.T) {
	cs, st := newTestChunkStore(t, testChunkSize)
	ctx := context.Background()

	for _, length := range []int{0, 1, testChunkSize - 1, testChunkSize, testChunkSize + 1, 10 * testChunkSize} {
		data := patterned(length)
		file, err := cs.CreateFile(ctx, "payload.bin", bytes.NewReader(data))
		if err != nil {
			t.Fatalf("length %d: create: %v", length, err)
		}
		if file.Length != int64(length) {
			t.Fatalf("length %d: recorded length %d", length, file.Length)
		}
		wantChunks := models.ExpectedChunkCount(int64(length), testChunkSize)
		if file.ChunkCount != wantChunks {
			t.Fatalf("length %d: expected %d chunks, got %d", length, wantChunks, file.ChunkCount)
		}

		stat, err := cs.StatFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("length %d: stat: %v", length, err)
		}
		if stat.Length != int64(length) || stat.ChunkCount != wantChunks {
			t.Fatalf("length %d: unexpected stat %+v", length, stat)
		}

		sum := blake2b.Sum256(data)
		if stat.Digest != hex.EncodeToString(sum[:]) {
			t.Fatalf("length %d: digest mismatch", length)
		}

		seqs, err := st.ListChunkSeqs(ctx, file.ID)
		if err != nil {
			t.Fatalf("length %d: list seqs: %v", length, err)
		}
		if len(seqs) != wantChunks {
			t.Fatalf("length %d: expected %d chunk rows, got %d", length, wantChunks, len(seqs))
		}
		for i, seq := range seqs {
			if seq != i {
				t.Fatalf("length %d: chunk sequence not contiguous: %v", length, seqs)
			}
			chunk, found, err := st.GetChunk(ctx, file.ID, seq)
			if err != nil || !found {
				t.Fatalf("length %d: get chunk %d: found=%v err=%v", length, seq, found, err)
			}
			if i < len(seqs)-1 && len(chunk) != testChunkSize {
				t.Fatalf("length %d: non-final chunk %d has %d bytes", length, seq, len(chunk))
			}
			if len(chunk) > testChunkSize {
				t.Fatalf("length %d: chunk %d exceeds chunk size", length, seq)
			}
		}

		rc, err := cs.OpenFile(ctx, file.ID)
		if err != nil {
			t.Fatalf("length %d: open: %v", length, err)
		}
		got, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("length %d: read: %v", length, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("length %d: content mismatch", length)
		}
	}
}

func TestDefaultChunkSize(t *testing.T) {
	cs, _ := newTestChunkStore(t, 0)
	if cs.ChunkSize() != models.DefaultChunkSize {
		t.Fatalf("expected default chunk size %d, got %d", models.DefaultChunkSize, cs.ChunkSize())
	}
	if _, err := NewChunkStore(nil, Options{}); err == nil {
		t.Fatal("expected error for nil repository")
	}
}

func TestOpenAndStatMissingFile(t *testing.T) {
	cs, _ := newTestChunkStore(t, testChunkSize)
	ctx := context.Background()

	if _, err := cs.OpenFile(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on open, got %v", err)
	}
	if _, err := cs.StatFile(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found on stat, got %v", err)
	}
}

func TestDeleteFileIsIdempotent(t *testing.T) {
	cs, st := newTestChunkStore(t, testChunkSize)
	ctx := context.Background()

	file, err := cs.CreateFile(ctx, "a", bytes.NewReader(patterned(40)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cs.DeleteFile(ctx, file.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := cs.DeleteFile(ctx, file.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := cs.StatFile(ctx, file.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	seqs, err := st.ListChunkSeqs(ctx, file.ID)
	if err != nil {
		t.Fatalf("list seqs: %v", err)
	}
	if len(seqs) != 0 {
		t.Fatalf("expected chunks removed, got %v", seqs)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestCreateFileIncompleteWriteCleansUp(t *testing.T) {
	cs, st := newTestChunkStore(t, testChunkSize)
	ctx := context.Background()

	fileID := NewFileID()
	reader := &failingReader{data: patterned(testChunkSize*2 + testChunkSize/2), err: errors.New("connection reset")}
	_, err := cs.CreateFileWithID(ctx, fileID, "broken.bin", reader)
	if !errors.Is(err, apperr.ErrIncompleteWrite) {
		t.Fatalf("expected incomplete write, got %v", err)
	}

	if _, err := cs.StatFile(ctx, fileID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected no file record, got %v", err)
	}
	seqs, err := st.ListChunkSeqs(ctx, fileID)
	if err != nil {
		t.Fatalf("list seqs: %v", err)
	}
	if len(seqs) != 0 {
		t.Fatalf("expected written chunks to be removed, got %v", seqs)
	}
}

func TestCreateFileNotVisibleWhileWriting(t *testing.T) {
	cs, st := newTestChunkStore(t, testChunkSize)
	ctx := context.Background()

	fileID := NewFileID()
	pr, pw := io.Pipe()
	type result struct {
		file models.BlobFile
		err  error
	}
	done := make(chan result, 1)
	go func() {
		file, err := cs.CreateFileWithID(ctx, fileID, "slow.bin", pr)
		done <- result{file: file, err: err}
	}()

	if _, err := pw.Write(patterned(testChunkSize)); err != nil {
		t.Fatalf("write first chunk: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		seqs, err := st.ListChunkSeqs(ctx, fileID)
		if err != nil {
			t.Fatalf("list seqs: %v", err)
		}
		if len(seqs) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first chunk was never written")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := cs.StatFile(ctx, fileID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("in-progress file must not be visible, got %v", err)
	}
	if _, err := cs.OpenFile(ctx, fileID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("in-progress file must not be readable, got %v", err)
	}

	if _, err := pw.Write(patterned(testChunkSize / 2)); err != nil {
		t.Fatalf("write tail: %v", err)
	}
	pw.Close()

	res := <-done
	if res.err != nil {
		t.Fatalf("create: %v", res.err)
	}
	stat, err := cs.StatFile(ctx, fileID)
	if err != nil {
		t.Fatalf("stat after commit: %v", err)
	}
	if stat.Length != int64(testChunkSize+testChunkSize/2) || stat.ChunkCount != 2 {
		t.Fatalf("unexpected stat: %+v", stat)
	}
}

func TestReaderEarlyClose(t *testing.T) {
	cs, _ := newTestChunkStore(t, testChunkSize)
	ctx := context.Background()

	file, err := cs.CreateFile(ctx, "big", bytes.NewReader(patterned(testChunkSize*8)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rc, err := cs.OpenFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	buf := make([]byte, 3)
	if _, err := io.ReadFull(rc, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := rc.Read(buf); err == nil {
		t.Fatal("expected error reading a closed file")
	}

	// An abandoned reader holds nothing that blocks a delete.
	if err := cs.DeleteFile(ctx, file.ID); err != nil {
		t.Fatalf("delete after early close: %v", err)
	}
}

// memoryRepo is an in-memory ChunkRepository used to inject storage faults.
type memoryRepo struct {
	mu          sync.Mutex
	files       map[string]models.BlobFile
	chunks      map[string]map[int][]byte
	blockInsert bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		files:  map[string]models.BlobFile{},
		chunks: map[string]map[int][]byte{},
	}
}

func (m *memoryRepo) InsertChunk(ctx context.Context, fileID string, seq int, data []byte, _ time.Time) error {
	if m.blockInsert {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks[fileID] == nil {
		m.chunks[fileID] = map[int][]byte{}
	}
	m.chunks[fileID][seq] = append([]byte(nil), data...)
	return nil
}

func (m *memoryRepo) InsertBlobFile(_ context.Context, file *models.BlobFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file.ID] = *file
	return nil
}

func (m *memoryRepo) GetBlobFile(_ context.Context, fileID string) (*models.BlobFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[fileID]
	if !ok {
		return nil, nil
	}
	return &file, nil
}

func (m *memoryRepo) GetChunk(_ context.Context, fileID string, seq int) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.chunks[fileID][seq]
	return data, ok, nil
}

func (m *memoryRepo) DeleteBlobFile(_ context.Context, fileID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[fileID]
	delete(m.files, fileID)
	delete(m.chunks, fileID)
	return ok, nil
}

func (m *memoryRepo) DeleteChunks(_ context.Context, fileID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[fileID]; ok {
		return 0, nil
	}
	n := len(m.chunks[fileID])
	delete(m.chunks, fileID)
	return n, nil
}

func TestReaderMissingChunkMidStream(t *testing.T) {
	repo := newMemoryRepo()
	cs, err := NewChunkStore(repo, Options{ChunkSize: testChunkSize})
	if err != nil {
		t.Fatalf("new chunk store: %v", err)
	}
	ctx := context.Background()

	file, err := cs.CreateFile(ctx, "holey", bytes.NewReader(patterned(testChunkSize*3)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	repo.mu.Lock()
	delete(repo.chunks[file.ID], 1)
	repo.mu.Unlock()

	rc, err := cs.OpenFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	_, err = io.ReadAll(rc)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found for missing chunk, got %v", err)
	}
}

func TestCreateFileTimeout(t *testing.T) {
	repo := newMemoryRepo()
	repo.blockInsert = true
	cs, err := NewChunkStore(repo, Options{ChunkSize: testChunkSize, OperationTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new chunk store: %v", err)
	}

	_, err = cs.CreateFile(context.Background(), "stuck", bytes.NewReader(patterned(testChunkSize)))
	if !errors.Is(err, apperr.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestCreateFileRejectsDuplicateID(t *testing.T) {
	cs, _ := newTestChunkStore(t, testChunkSize)
	ctx := context.Background()

	file, err := cs.CreateFile(ctx, "a", bytes.NewReader(patterned(5)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = cs.CreateFileWithID(ctx, file.ID, "b", bytes.NewReader(patterned(5)))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	rc, err := cs.OpenFile(ctx, file.ID)
	if err != nil {
		t.Fatalf("open original: %v", err)
	}
	defer rc.Close()
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read original: %v", err)
	}
	if !bytes.Equal(got, patterned(5)) {
		t.Fatal("original file was modified")
	}
}
