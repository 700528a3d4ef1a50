package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"guidepost/internal/apperr"
	"guidepost/internal/models"
	"guidepost/internal/store"
)

const defaultPurgeBatchSize = 500

// ReconcileStore is the storage surface the reconciliation layer needs.
type ReconcileStore interface {
	store.MaintenanceStore
	store.AuthSessionStore
	ListStaleRequested(ctx context.Context, cutoff time.Time, limit, offset int) ([]models.SessionRequest, []models.CorruptRecord, error)
	DeleteRequestedSession(ctx context.Context, id string) (bool, error)
	DeleteChunks(ctx context.Context, fileID string) (int, error)
}

// ReconcileService reports on storage consistency and runs explicit,
// idempotent cleanup sweeps. Nothing here runs automatically.
type ReconcileService struct {
	base
	store     ReconcileStore
	batchSize int
}

// NewReconcileService constructs a ReconcileService.
func NewReconcileService(st ReconcileStore, batchSize int, opts Options) *ReconcileService {
	if batchSize <= 0 {
		batchSize = defaultPurgeBatchSize
	}
	return &ReconcileService{base: newBase("reconcile", opts), store: st, batchSize: batchSize}
}

// AggregateStorageStats counts documents and committed blob usage.
func (s *ReconcileService) AggregateStorageStats(ctx context.Context) (models.StorageStats, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var stats models.StorageStats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, err := s.store.CountDocuments(gctx)
		if err != nil {
			return storeError("count documents", err)
		}
		stats.DocumentCount = count
		return nil
	})
	g.Go(func() error {
		files, bytes, chunks, err := s.store.BlobUsage(gctx)
		if err != nil {
			return storeError("blob usage", err)
		}
		stats.BlobCount = files
		stats.TotalBytes = bytes
		stats.ChunkCount = chunks
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.StorageStats{}, err
	}
	return stats, nil
}

// FindOrphans lists records missing their counterpart in either direction,
// plus chunks left behind by uploads that never wrote a file record.
func (s *ReconcileService) FindOrphans(ctx context.Context) (models.OrphanReport, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	report := models.OrphanReport{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dangling, err := s.store.ListDanglingDocuments(gctx)
		if err != nil {
			return storeError("list dangling documents", err)
		}
		report.MetadataWithoutBlob = dangling
		return nil
	})
	g.Go(func() error {
		unowned, err := s.store.ListUnownedBlobs(gctx)
		if err != nil {
			return storeError("list unowned blobs", err)
		}
		report.BlobWithoutMetadata = unowned
		return nil
	})
	g.Go(func() error {
		ids, err := s.store.ListChunkOnlyFileIDs(gctx, nil)
		if err != nil {
			return storeError("list chunk-only files", err)
		}
		report.ChunksWithoutFile = ids
		return nil
	})
	if err := g.Wait(); err != nil {
		return models.OrphanReport{}, err
	}

	if !report.Empty() {
		s.logger.Info("orphans found",
			"metadata_without_blob", len(report.MetadataWithoutBlob),
			"blob_without_metadata", len(report.BlobWithoutMetadata),
			"chunks_without_file", len(report.ChunksWithoutFile),
		)
	}
	return report, nil
}

// RecordAuthSession stores an auth session, parsing its serialized payload once.
// A payload that cannot be parsed is kept verbatim and marked unparsable.
func (s *ReconcileService) RecordAuthSession(ctx context.Context, id, payload string, expiresAt *time.Time) (models.AuthSession, error) {
	if id == "" {
		return models.AuthSession{}, apperr.ValidationCode(fmt.Errorf("auth session id is required"), apperr.CodeMissingRequired)
	}

	now := s.now()
	session := models.AuthSession{
		ID:           id,
		Payload:      payload,
		PayloadState: string(models.PayloadOK),
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	identity, err := models.ParseAuthPayload(payload)
	if err != nil {
		session.PayloadState = string(models.PayloadUnparsable)
		s.logger.Warn("auth session payload is unparsable", "session_id", id, "error", err)
	} else {
		session.Principal = identity
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.store.UpsertAuthSession(ctx, &session); err != nil {
		return models.AuthSession{}, storeError("upsert auth session", err)
	}
	return session, nil
}

// ClassifyAuthSessions splits auth sessions by whether they carry a principal.
// Sessions whose payload could not be parsed are preserved, never classified empty.
// Rows that cannot be decoded at all are reported as corrupt.
func (s *ReconcileService) ClassifyAuthSessions(ctx context.Context) (models.AuthSessionClassification, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	sessions, corrupt, err := s.store.ListAuthSessions(ctx)
	if err != nil {
		return models.AuthSessionClassification{}, storeError("list auth sessions", err)
	}
	s.warnCorrupt("auth session", corrupt)
	out := classifyAuthSessions(sessions)
	out.Corrupt = corrupt
	return out, nil
}

func (s *ReconcileService) warnCorrupt(what string, records []models.CorruptRecord) {
	for _, record := range records {
		s.logger.Warn("corrupt "+what+" left in place", "id", record.ID, "reason", record.Reason)
	}
}

func classifyAuthSessions(sessions []models.AuthSession) models.AuthSessionClassification {
	out := models.AuthSessionClassification{
		Active:    []models.AuthSession{},
		Empty:     []models.AuthSession{},
		Preserved: []models.AuthSession{},
	}
	for _, session := range sessions {
		switch {
		case session.PayloadState != string(models.PayloadOK):
			out.Preserved = append(out.Preserved, session)
		case session.HasPrincipal():
			out.Active = append(out.Active, session)
		default:
			out.Empty = append(out.Empty, session)
		}
	}
	return out
}

// PurgeEmptyAuthSessions deletes sessions classified empty. Each delete
// re-checks emptiness in storage, so a session that gained a principal after
// classification is skipped rather than deleted.
func (s *ReconcileService) PurgeEmptyAuthSessions(ctx context.Context, dryRun bool) (models.PurgeResult, error) {
	result := models.PurgeResult{DryRun: dryRun}

	classified, err := s.ClassifyAuthSessions(ctx)
	if err != nil {
		return result, err
	}
	result.Candidates = len(classified.Empty)
	result.Corrupt = classified.Corrupt

	for _, session := range classified.Empty {
		if dryRun {
			result.IDs = append(result.IDs, session.ID)
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, apperr.FromContext(err)
		}

		opCtx, cancel := s.opContext(ctx)
		deleted, err := s.store.DeleteEmptyAuthSession(opCtx, session.ID)
		cancel()
		switch {
		case err != nil:
			result.Failed++
			s.logger.Warn("purge auth session", "session_id", session.ID, "error", err)
		case !deleted:
			result.Skipped++
		default:
			result.Deleted++
			result.IDs = append(result.IDs, session.ID)
		}
	}

	s.logger.Info("auth session purge finished", "dry_run", dryRun, "candidates", result.Candidates, "deleted", result.Deleted, "skipped", result.Skipped, "failed", result.Failed, "corrupt", len(result.Corrupt))
	return result, nil
}

// PurgeStaleSessionRequests deletes requested sessions created more than
// retention ago. A session that leaves the requested state while the sweep
// runs is skipped.
func (s *ReconcileService) PurgeStaleSessionRequests(ctx context.Context, retention time.Duration, dryRun bool) (models.PurgeResult, error) {
	result := models.PurgeResult{DryRun: dryRun}
	if retention <= 0 {
		return result, apperr.Validationf("retention must be > 0")
	}
	cutoff := s.now().Add(-retention)

	if dryRun {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		stale, corrupt, err := s.store.ListStaleRequested(opCtx, cutoff, 0, 0)
		if err != nil {
			return result, storeError("list stale sessions", err)
		}
		s.warnCorrupt("session request", corrupt)
		result.Corrupt = corrupt
		result.Candidates = len(stale)
		for _, session := range stale {
			result.IDs = append(result.IDs, session.ID)
		}
		return result, nil
	}

	// retained counts matching rows the sweep leaves behind, so the next
	// batch starts past them.
	seen := map[string]struct{}{}
	retained := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, apperr.FromContext(err)
		}

		opCtx, cancel := s.opContext(ctx)
		batch, corrupt, err := s.store.ListStaleRequested(opCtx, cutoff, s.batchSize, retained)
		cancel()
		if err != nil {
			return result, storeError("list stale sessions", err)
		}

		fresh := 0
		for _, record := range corrupt {
			if _, ok := seen[record.ID]; ok {
				continue
			}
			seen[record.ID] = struct{}{}
			fresh++
			retained++
			s.warnCorrupt("session request", []models.CorruptRecord{record})
			result.Corrupt = append(result.Corrupt, record)
		}
		for _, session := range batch {
			if _, ok := seen[session.ID]; ok {
				continue
			}
			seen[session.ID] = struct{}{}
			fresh++
			result.Candidates++

			opCtx, cancel := s.opContext(ctx)
			deleted, err := s.store.DeleteRequestedSession(opCtx, session.ID)
			cancel()
			switch {
			case err != nil:
				result.Failed++
				retained++
				s.logger.Warn("purge stale session", "session_id", session.ID, "error", err)
			case !deleted:
				result.Skipped++
			default:
				result.Deleted++
				result.IDs = append(result.IDs, session.ID)
			}
		}
		if fresh == 0 || len(batch)+len(corrupt) < s.batchSize {
			break
		}
	}

	s.logger.Info("stale session purge finished", "retention", retention, "candidates", result.Candidates, "deleted", result.Deleted, "skipped", result.Skipped, "failed", result.Failed, "corrupt", len(result.Corrupt))
	return result, nil
}

// PurgeOrphanChunks removes chunks of uploads that never wrote a file record
// and have not received a chunk within grace.
func (s *ReconcileService) PurgeOrphanChunks(ctx context.Context, grace time.Duration, dryRun bool) (models.PurgeResult, error) {
	result := models.PurgeResult{DryRun: dryRun}
	if grace < 0 {
		return result, apperr.Validationf("grace must be >= 0")
	}
	cutoff := s.now().Add(-grace)

	opCtx, cancel := s.opContext(ctx)
	ids, err := s.store.ListChunkOnlyFileIDs(opCtx, &cutoff)
	cancel()
	if err != nil {
		return result, storeError("list chunk-only files", err)
	}
	result.Candidates = len(ids)

	for _, fileID := range ids {
		if dryRun {
			result.IDs = append(result.IDs, fileID)
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, apperr.FromContext(err)
		}

		opCtx, cancel := s.opContext(ctx)
		n, err := s.store.DeleteChunks(opCtx, fileID)
		cancel()
		switch {
		case err != nil:
			result.Failed++
			s.logger.Warn("purge orphan chunks", "file_id", fileID, "error", err)
		case n == 0:
			result.Skipped++
		default:
			result.Deleted++
			result.IDs = append(result.IDs, fileID)
		}
	}

	s.logger.Info("orphan chunk purge finished", "dry_run", dryRun, "candidates", result.Candidates, "deleted", result.Deleted, "skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}
