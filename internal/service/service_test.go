package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"guidepost/internal/blobstore"
	"guidepost/internal/models"
	"guidepost/internal/store"
)

const testChunkSize = 16

type testEnv struct {
	dbPath    string
	store     *store.Store
	blobs     *blobstore.ChunkStore
	documents *DocumentService
	sessions  *SessionService
	reconcile *ReconcileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "service.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts := Options{OperationTimeout: 5 * time.Second, Logger: logger}

	blobs, err := blobstore.NewChunkStore(st, blobstore.Options{ChunkSize: testChunkSize, Logger: logger})
	require.NoError(t, err)

	return &testEnv{
		dbPath:    dbPath,
		store:     st,
		blobs:     blobs,
		documents: NewDocumentService(st, blobs, opts),
		sessions:  NewSessionService(st, st, opts),
		reconcile: NewReconcileService(st, 2, opts),
	}
}

// corrupt rewrites rows behind the store's back, the way a bad manual edit would.
func (e *testEnv) corrupt(t *testing.T, query string, args ...any) {
	t.Helper()
	db, err := sql.Open("sqlite", e.dbPath)
	require.NoError(t, err)
	defer db.Close()
	result, err := db.Exec(query, args...)
	require.NoError(t, err)
	affected, err := result.RowsAffected()
	require.NoError(t, err)
	require.Positive(t, affected, "corrupt: no rows matched %q", query)
}

func (e *testEnv) addUser(t *testing.T, id, name string, role models.Role) models.Actor {
	t.Helper()
	err := e.store.UpsertUser(context.Background(), &models.User{ID: id, DisplayName: name, Role: string(role)}, time.Now())
	require.NoError(t, err)
	return models.Actor{UserID: id, Role: role}
}
