package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"guidepost/internal/apperr"
	"guidepost/internal/blobstore"
	"guidepost/internal/models"
	"guidepost/internal/store"
)

// DocumentService manages document metadata and the blob each document owns.
type DocumentService struct {
	base
	docs  store.DocumentStore
	blobs blobstore.BlobStore
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(docs store.DocumentStore, blobs blobstore.BlobStore, opts Options) *DocumentService {
	return &DocumentService{base: newBase("documents", opts), docs: docs, blobs: blobs}
}

// DocumentContent is an open document stream with its metadata.
type DocumentContent struct {
	Document models.Document
	Length   int64
	Reader   io.ReadCloser
}

// CreateDocument records a document for an existing blob file.
func (s *DocumentService) CreateDocument(ctx context.Context, actor models.Actor, fileID string, attrs models.DocumentAttrs) (models.Document, error) {
	var zero models.Document
	status, err := validateDocumentInput(actor, attrs)
	if err != nil {
		return zero, err
	}
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return zero, apperr.ValidationCode(fmt.Errorf("file id is required"), apperr.CodeMissingRequired)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.blobs.StatFile(ctx, fileID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return zero, apperr.DanglingReference(fmt.Errorf("file %s does not exist", fileID))
		}
		return zero, storeError("stat file", err)
	}

	id, err := store.GenerateDocumentID(func(id string) (bool, error) {
		return s.docs.DocumentExists(ctx, id)
	})
	if err != nil {
		return zero, storeError("generate document id", err)
	}

	now := s.now()
	doc := models.Document{
		ID:           id,
		UserID:       actor.UserID,
		OriginalName: strings.TrimSpace(attrs.OriginalName),
		DocumentType: strings.TrimSpace(attrs.DocumentType),
		Country:      strings.TrimSpace(attrs.Country),
		Status:       string(status),
		Description:  strings.TrimSpace(attrs.Description),
		FileID:       fileID,
		UploadedAt:   now,
		UpdatedAt:    now,
	}
	if err := s.docs.CreateDocument(ctx, &doc); err != nil {
		switch {
		case errors.Is(err, store.ErrFileOwned):
			return zero, apperr.ValidationCode(err, apperr.CodeFileAlreadyOwned)
		case errors.Is(err, store.ErrFileMissing):
			return zero, apperr.DanglingReference(fmt.Errorf("file %s does not exist", fileID))
		}
		return zero, storeError("create document", err)
	}

	s.logger.Info("document created", "document_id", doc.ID, "file_id", fileID, "user_id", actor.UserID)
	return doc, nil
}

// CreateDocumentFromReader uploads r and records a document for it.
// If the document cannot be recorded the uploaded blob is deleted again.
func (s *DocumentService) CreateDocumentFromReader(ctx context.Context, actor models.Actor, attrs models.DocumentAttrs, r io.Reader) (models.Document, error) {
	var zero models.Document
	if _, err := validateDocumentInput(actor, attrs); err != nil {
		return zero, err
	}

	file, err := s.blobs.CreateFile(ctx, strings.TrimSpace(attrs.OriginalName), r)
	if err != nil {
		return zero, err
	}

	doc, err := s.CreateDocument(ctx, actor, file.ID, attrs)
	if err != nil {
		cleanupCtx, cancel := s.detached(ctx)
		defer cancel()
		if delErr := s.blobs.DeleteFile(cleanupCtx, file.ID); delErr != nil {
			s.logger.Warn("delete blob of failed document", "file_id", file.ID, "error", delErr)
		}
		return zero, err
	}
	return doc, nil
}

// GetDocument returns one document.
func (s *DocumentService) GetDocument(ctx context.Context, id string) (models.Document, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.getDocument(ctx, id)
}

func (s *DocumentService) getDocument(ctx context.Context, id string) (models.Document, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Document{}, apperr.ValidationCode(fmt.Errorf("document id is required"), apperr.CodeMissingRequired)
	}
	doc, err := s.docs.GetDocument(ctx, id)
	if err != nil {
		return models.Document{}, storeError("get document", err)
	}
	if doc == nil {
		return models.Document{}, apperr.NotFoundCode(fmt.Errorf("document not found: %s", id), apperr.CodeDocumentNotFound)
	}
	return *doc, nil
}

// UpdateStatus sets a document's review status. Any status may follow any other.
func (s *DocumentService) UpdateStatus(ctx context.Context, id, status string) (models.Document, error) {
	parsed, err := models.ParseDocumentStatus(status)
	if err != nil {
		return models.Document{}, apperr.ValidationCode(err, apperr.CodeInvalidStatus)
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ok, err := s.docs.UpdateDocumentStatus(ctx, id, parsed, s.now())
	if err != nil {
		return models.Document{}, storeError("update document status", err)
	}
	if !ok {
		return models.Document{}, apperr.NotFoundCode(fmt.Errorf("document not found: %s", id), apperr.CodeDocumentNotFound)
	}
	return s.getDocument(ctx, id)
}

// UpdateDescription sets or clears a document's description.
func (s *DocumentService) UpdateDescription(ctx context.Context, id, description string) (models.Document, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	ok, err := s.docs.UpdateDocumentDescription(ctx, id, strings.TrimSpace(description), s.now())
	if err != nil {
		return models.Document{}, storeError("update document description", err)
	}
	if !ok {
		return models.Document{}, apperr.NotFoundCode(fmt.Errorf("document not found: %s", id), apperr.CodeDocumentNotFound)
	}
	return s.getDocument(ctx, id)
}

// DeleteDocument removes a document record and, when cascade is set, its blob.
// The record goes first; a blob left behind by a failed cascade shows up as an orphan.
func (s *DocumentService) DeleteDocument(ctx context.Context, id string, cascade bool) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	doc, err := s.getDocument(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.docs.DeleteDocument(ctx, doc.ID); err != nil {
		return storeError("delete document", err)
	}
	s.logger.Info("document deleted", "document_id", doc.ID, "cascade", cascade)

	if !cascade {
		return nil
	}
	if err := s.blobs.DeleteFile(ctx, doc.FileID); err != nil {
		s.logger.Warn("cascade delete of blob failed", "document_id", doc.ID, "file_id", doc.FileID, "error", err)
		return storeError("delete blob", err)
	}
	return nil
}

// OpenDocumentContent opens the blob behind a document for streaming.
func (s *DocumentService) OpenDocumentContent(ctx context.Context, id string) (DocumentContent, error) {
	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		return DocumentContent{}, err
	}
	stat, err := s.blobs.StatFile(ctx, doc.FileID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return DocumentContent{}, apperr.DanglingReference(fmt.Errorf("document %s references missing file %s", doc.ID, doc.FileID))
		}
		return DocumentContent{}, storeError("stat file", err)
	}
	reader, err := s.blobs.OpenFile(ctx, doc.FileID)
	if err != nil {
		return DocumentContent{}, storeError("open file", err)
	}
	return DocumentContent{Document: doc, Length: stat.Length, Reader: reader}, nil
}

// ListByOwner returns the documents uploaded by ownerID.
func (s *DocumentService) ListByOwner(ctx context.Context, ownerID string) ([]models.Document, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperr.ValidationCode(fmt.Errorf("owner id is required"), apperr.CodeMissingRequired)
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	docs, err := s.docs.ListDocumentsByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeError("list documents", err)
	}
	return docs, nil
}

// ListAll returns every document.
func (s *DocumentService) ListAll(ctx context.Context) ([]models.Document, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	docs, err := s.docs.ListDocuments(ctx)
	if err != nil {
		return nil, storeError("list documents", err)
	}
	return docs, nil
}

func validateDocumentInput(actor models.Actor, attrs models.DocumentAttrs) (models.DocumentStatus, error) {
	if strings.TrimSpace(actor.UserID) == "" {
		return "", apperr.ValidationCode(fmt.Errorf("user id is required"), apperr.CodeMissingRequired)
	}
	required := []struct {
		name  string
		value string
	}{
		{"original name", attrs.OriginalName},
		{"document type", attrs.DocumentType},
		{"country", attrs.Country},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return "", apperr.ValidationCode(fmt.Errorf("%s is required", field.name), apperr.CodeMissingRequired)
		}
	}
	if strings.TrimSpace(attrs.Status) == "" {
		return models.DocumentPending, nil
	}
	status, err := models.ParseDocumentStatus(attrs.Status)
	if err != nil {
		return "", apperr.ValidationCode(err, apperr.CodeInvalidStatus)
	}
	return status, nil
}
