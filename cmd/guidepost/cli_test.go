package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"guidepost/internal/apperr"
	"guidepost/internal/config"
	"guidepost/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv(logLevelEnvKey, "")
	cfg := config.Default()
	cfg.DBPath = filepath.Join(t.TempDir(), "guidepost.db")
	cfg.Blobs.ChunkSize = 8
	return &cfg
}

func execCLI(cfg *config.Config, args ...string) (string, error) {
	var buf bytes.Buffer
	prevWriter := outputWriter
	outputWriter = &buf
	defer func() {
		outputWriter = prevWriter
		outputFormatter = nil
	}()

	root := newRootCmd(cfg)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()
	out, err := execCLI(cfg, args...)
	if err != nil {
		t.Fatalf("guidepost %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeJSON[T any](t *testing.T, raw string) T {
	t.Helper()
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return out
}

func TestCLISessionLifecycle(t *testing.T) {
	cfg := testConfig(t)
	runCLI(t, cfg, "users", "upsert", "m-1", "--role", "migrant", "--name", "Ana")
	runCLI(t, cfg, "users", "upsert", "g-1", "--role", "guide", "--name", "Bo")

	session := decodeJSON[models.SessionRequest](t, runCLI(t, cfg,
		"sessions", "request", "--as", "m-1", "--guide", "g-1", "--title", "Visa paperwork", "-o", "json"))
	if session.RequestStatus != string(models.RequestRequested) {
		t.Fatalf("expected requested, got %q", session.RequestStatus)
	}
	if session.MigrantName != "Ana" || session.GuideName != "Bo" {
		t.Fatalf("expected display names, got %q / %q", session.MigrantName, session.GuideName)
	}

	accepted := decodeJSON[models.SessionRequest](t, runCLI(t, cfg,
		"sessions", "transition", session.ID, "accept", "--as", "g-1", "-o", "json"))
	if accepted.RequestStatus != string(models.RequestAccepted) {
		t.Fatalf("expected accepted, got %q", accepted.RequestStatus)
	}

	_, err := execCLI(cfg, "sessions", "transition", session.ID, "accept", "--as", "g-1")
	if !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	listed := decodeJSON[[]models.SessionRequest](t, runCLI(t, cfg,
		"sessions", "ls", "--user", "g-1", "--role", "guide", "-o", "json"))
	if len(listed) != 1 || listed[0].ID != session.ID {
		t.Fatalf("expected the accepted session, got %+v", listed)
	}

	text := runCLI(t, cfg, "sessions", "show", session.ID)
	if !strings.Contains(text, "status: accepted") {
		t.Fatalf("expected text detail, got:\n%s", text)
	}
}

func TestCLIRequiresKnownActor(t *testing.T) {
	cfg := testConfig(t)
	_, err := execCLI(cfg, "sessions", "request", "--as", "ghost", "--guide", "g-1", "--title", "x")
	if apperr.CodeOf(err) != apperr.CodeUserNotFound {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestCLIDocumentRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	runCLI(t, cfg, "users", "upsert", "m-1", "--role", "migrant")

	content := []byte("passport scan bytes spanning several chunks")
	src := filepath.Join(t.TempDir(), "passport.pdf")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	doc := decodeJSON[models.Document](t, runCLI(t, cfg,
		"docs", "create", src, "--as", "m-1", "--type", "passport", "--country", "PT", "-o", "json"))
	if doc.OriginalName != "passport.pdf" || doc.Status != string(models.DocumentPending) {
		t.Fatalf("unexpected document: %+v", doc)
	}

	if got := runCLI(t, cfg, "docs", "cat", doc.ID); got != string(content) {
		t.Fatalf("content mismatch: got %q", got)
	}

	stat := decodeJSON[models.BlobStat](t, runCLI(t, cfg, "blob", "stat", doc.FileID, "-o", "json"))
	if stat.Length != int64(len(content)) || stat.ChunkCount != models.ExpectedChunkCount(int64(len(content)), 8) {
		t.Fatalf("unexpected stat: %+v", stat)
	}

	if _, err := execCLI(cfg, "blob", "rm", doc.FileID); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected owned blob to be protected, got %v", err)
	}

	updated := decodeJSON[models.Document](t, runCLI(t, cfg, "docs", "status", doc.ID, "approved", "-o", "json"))
	if updated.Status != string(models.DocumentApproved) {
		t.Fatalf("expected approved, got %q", updated.Status)
	}

	stats := decodeJSON[models.StorageStats](t, runCLI(t, cfg, "admin", "stats", "-o", "json"))
	if stats.DocumentCount != 1 || stats.BlobCount != 1 || stats.TotalBytes != int64(len(content)) {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	runCLI(t, cfg, "docs", "rm", doc.ID)
	stats = decodeJSON[models.StorageStats](t, runCLI(t, cfg, "admin", "stats", "-o", "json"))
	if stats.DocumentCount != 0 || stats.BlobCount != 0 || stats.ChunkCount != 0 {
		t.Fatalf("expected cascade delete to empty storage, got %+v", stats)
	}
}

func TestCLIPurgeDefaultsToDryRun(t *testing.T) {
	cfg := testConfig(t)
	runCLI(t, cfg, "auth", "record", "as-empty", "--payload", `{"cookie":{}}`)
	runCLI(t, cfg, "auth", "record", "as-broken", "--payload", "{not json")

	dry := decodeJSON[models.PurgeResult](t, runCLI(t, cfg, "admin", "purge-auth-sessions", "-o", "json"))
	if !dry.DryRun || dry.Candidates != 1 || dry.Deleted != 0 {
		t.Fatalf("expected dry run over one candidate, got %+v", dry)
	}

	applied := decodeJSON[models.PurgeResult](t, runCLI(t, cfg, "admin", "purge-auth-sessions", "--force", "-o", "json"))
	if applied.DryRun || applied.Deleted != 1 {
		t.Fatalf("expected one deletion, got %+v", applied)
	}

	classified := decodeJSON[models.AuthSessionClassification](t, runCLI(t, cfg, "admin", "auth-sessions", "-o", "json"))
	if len(classified.Empty) != 0 || len(classified.Preserved) != 1 {
		t.Fatalf("expected only the unparsable session left, got %+v", classified)
	}
}

func TestCLIYAMLOutput(t *testing.T) {
	cfg := testConfig(t)
	out := runCLI(t, cfg, "admin", "stats", "-o", "yaml")
	for _, want := range []string{"document_count: 0", "blob_count: 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in yaml output:\n%s", want, out)
		}
	}
}

func TestCLIRejectsUnknownOutput(t *testing.T) {
	cfg := testConfig(t)
	if _, err := execCLI(cfg, "admin", "stats", "-o", "xml"); err == nil {
		t.Fatal("expected unsupported output format error")
	}
}

func TestCLIMigrateInspect(t *testing.T) {
	cfg := testConfig(t)
	runCLI(t, cfg, "migrate")
	out := runCLI(t, cfg, "migrate", "--inspect")
	if !strings.Contains(out, "No pending migrations.") {
		t.Fatalf("expected no pending migrations, got:\n%s", out)
	}
}
