package store

import (
	"context"
	"time"

	"guidepost/internal/models"
)

// ChunkRepository is the row-level storage behind the blob chunk store.
type ChunkRepository interface {
	InsertChunk(ctx context.Context, fileID string, seq int, data []byte, createdAt time.Time) error
	InsertBlobFile(ctx context.Context, file *models.BlobFile) error
	GetBlobFile(ctx context.Context, fileID string) (*models.BlobFile, error)
	GetChunk(ctx context.Context, fileID string, seq int) ([]byte, bool, error)
	DeleteBlobFile(ctx context.Context, fileID string) (bool, error)
	DeleteChunks(ctx context.Context, fileID string) (int, error)
}

// DocumentStore abstracts document metadata storage.
type DocumentStore interface {
	DocumentExists(ctx context.Context, id string) (bool, error)
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	GetDocumentByFileID(ctx context.Context, fileID string) (*models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, updatedAt time.Time) (bool, error)
	UpdateDocumentDescription(ctx context.Context, id, description string, updatedAt time.Time) (bool, error)
	DeleteDocument(ctx context.Context, id string) (bool, error)
	ListDocumentsByOwner(ctx context.Context, ownerID string) ([]models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
}

// SessionStore abstracts session request storage.
type SessionStore interface {
	SessionExists(ctx context.Context, id string) (bool, error)
	CreateSession(ctx context.Context, session *models.SessionRequest) error
	ImportSession(ctx context.Context, session *models.SessionRequest) (bool, error)
	GetSession(ctx context.Context, id string) (*models.SessionRequest, error)
	TransitionSession(ctx context.Context, id string, from, to models.RequestStatus, updatedAt time.Time, closedAt *time.Time) (bool, error)
	ListSessionsForUser(ctx context.Context, userID string, role models.Role) ([]models.SessionRequest, error)
	ListStaleRequested(ctx context.Context, cutoff time.Time, limit, offset int) ([]models.SessionRequest, []models.CorruptRecord, error)
	DeleteRequestedSession(ctx context.Context, id string) (bool, error)
	CountSessionsByStatus(ctx context.Context) (map[string]int, error)
}

// UserStore abstracts the user directory.
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User, now time.Time) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// AuthSessionStore abstracts auth session storage.
type AuthSessionStore interface {
	UpsertAuthSession(ctx context.Context, session *models.AuthSession) error
	GetAuthSession(ctx context.Context, id string) (*models.AuthSession, error)
	ListAuthSessions(ctx context.Context) ([]models.AuthSession, []models.CorruptRecord, error)
	DeleteEmptyAuthSession(ctx context.Context, id string) (bool, error)
}

// MaintenanceStore abstracts the read-mostly reconciliation queries.
type MaintenanceStore interface {
	CountDocuments(ctx context.Context) (int, error)
	BlobUsage(ctx context.Context) (files int, bytes int64, chunks int, err error)
	ListDanglingDocuments(ctx context.Context) ([]models.DanglingDocument, error)
	ListUnownedBlobs(ctx context.Context) ([]models.UnownedBlob, error)
	ListChunkOnlyFileIDs(ctx context.Context, olderThan *time.Time) ([]string, error)
}

var (
	_ ChunkRepository  = (*Store)(nil)
	_ DocumentStore    = (*Store)(nil)
	_ SessionStore     = (*Store)(nil)
	_ UserStore        = (*Store)(nil)
	_ AuthSessionStore = (*Store)(nil)
	_ MaintenanceStore = (*Store)(nil)
)
