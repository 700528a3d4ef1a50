package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guidepost/internal/config"
	"guidepost/internal/models"
)

func newAdminCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Storage reports and maintenance sweeps",
	}

	cmd.AddCommand(newAdminStatsCmd(cfg))
	cmd.AddCommand(newAdminOrphansCmd(cfg))
	cmd.AddCommand(newAdminAuthSessionsCmd(cfg))
	cmd.AddCommand(newAdminPurgeAuthSessionsCmd(cfg))
	cmd.AddCommand(newAdminPurgeRequestsCmd(cfg))
	cmd.AddCommand(newAdminGCChunksCmd(cfg))
	return cmd
}

func newAdminStatsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show document and blob storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				stats, err := a.reconcile.AggregateStorageStats(cmd.Context())
				if err != nil {
					return err
				}
				return writeResult(stats, func() error {
					return writePlain("documents=%d blobs=%d chunks=%d bytes=%d\n", stats.DocumentCount, stats.BlobCount, stats.ChunkCount, stats.TotalBytes)
				})
			})
		},
	}
}

func newAdminOrphansCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List documents without blobs, blobs without documents, and chunks without files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				report, err := a.reconcile.FindOrphans(cmd.Context())
				if err != nil {
					return err
				}
				return writeResult(report, func() error {
					return writeOrphanReport(report)
				})
			})
		},
	}
}

func newAdminAuthSessionsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-sessions",
		Short: "Classify auth sessions as active, empty, or preserved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				classified, err := a.reconcile.ClassifyAuthSessions(cmd.Context())
				if err != nil {
					return err
				}
				return writeResult(classified, func() error {
					return writeAuthClassification(classified)
				})
			})
		},
	}
}

func newAdminPurgeAuthSessionsCmd(cfg *config.Config) *cobra.Command {
	var dryRun, force bool

	cmd := &cobra.Command{
		Use:   "purge-auth-sessions",
		Short: "Delete auth sessions that carry no principal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(cmd.Context(), cfg, "empty auth sessions", isDryRun(dryRun, force), func(ctx context.Context, a *app, dry bool) (models.PurgeResult, error) {
				return a.reconcile.PurgeEmptyAuthSessions(ctx, dry)
			})
		},
	}

	addPurgeFlags(cmd, &dryRun, &force)
	return cmd
}

func newAdminPurgeRequestsCmd(cfg *config.Config) *cobra.Command {
	var (
		dryRun, force bool
		olderThan     string
	)

	cmd := &cobra.Command{
		Use:   "purge-requests",
		Short: "Delete session requests left in requested state past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			retention, err := durationFlag(olderThan, cfg.Maintenance.StaleRequestRetention.Duration, "--older-than")
			if err != nil {
				return err
			}
			return runPurge(cmd.Context(), cfg, "stale session requests", isDryRun(dryRun, force), func(ctx context.Context, a *app, dry bool) (models.PurgeResult, error) {
				return a.reconcile.PurgeStaleSessionRequests(ctx, retention, dry)
			})
		},
	}

	addPurgeFlags(cmd, &dryRun, &force)
	cmd.Flags().StringVar(&olderThan, "older-than", "", "retention window, e.g. 30d (default: maintenance.stale_request_retention)")
	return cmd
}

func newAdminGCChunksCmd(cfg *config.Config) *cobra.Command {
	var (
		dryRun, force bool
		grace         string
	)

	cmd := &cobra.Command{
		Use:   "gc-chunks",
		Short: "Delete chunks of uploads that never completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := durationFlag(grace, cfg.Blobs.OrphanChunkGrace.Duration, "--grace")
			if err != nil {
				return err
			}
			return runPurge(cmd.Context(), cfg, "chunk sets", isDryRun(dryRun, force), func(ctx context.Context, a *app, dry bool) (models.PurgeResult, error) {
				return a.reconcile.PurgeOrphanChunks(ctx, window, dry)
			})
		},
	}

	addPurgeFlags(cmd, &dryRun, &force)
	cmd.Flags().StringVar(&grace, "grace", "", "skip uploads that wrote a chunk within this window (default: blobs.orphan_chunk_grace)")
	return cmd
}

type purgeFunc func(ctx context.Context, a *app, dryRun bool) (models.PurgeResult, error)

func runPurge(ctx context.Context, cfg *config.Config, what string, dryRun bool, fn purgeFunc) error {
	return withApp(cfg, func(a *app) error {
		result, err := fn(ctx, a, dryRun)
		if err != nil {
			return err
		}
		return writeResult(result, func() error {
			return writePurgeResult(what, result)
		})
	})
}

func addPurgeFlags(cmd *cobra.Command, dryRun, force *bool) {
	cmd.Flags().BoolVar(dryRun, "dry-run", false, "show what would be removed without deleting (default)")
	cmd.Flags().BoolVar(force, "force", false, "actually delete (required for non-dry-run)")
}

// isDryRun keeps sweeps read-only unless --force is given without --dry-run.
func isDryRun(dryRun, force bool) bool {
	return dryRun || !force
}

func durationFlag(raw string, fallback time.Duration, name string) (time.Duration, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	value, err := config.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return value, nil
}

func writeOrphanReport(report models.OrphanReport) error {
	if report.Empty() {
		return writePlain("no orphans found\n")
	}
	lines := []string{fmt.Sprintf("documents without blob: %d", len(report.MetadataWithoutBlob))}
	for _, doc := range report.MetadataWithoutBlob {
		lines = append(lines, fmt.Sprintf("  %s file=%s user=%s", doc.DocumentID, doc.FileID, doc.UserID))
	}
	lines = append(lines, fmt.Sprintf("blobs without document: %d", len(report.BlobWithoutMetadata)))
	for _, blob := range report.BlobWithoutMetadata {
		lines = append(lines, fmt.Sprintf("  %s %s (%d bytes)", blob.FileID, blob.Filename, blob.Length))
	}
	lines = append(lines, fmt.Sprintf("chunks without file: %d", len(report.ChunksWithoutFile)))
	for _, fileID := range report.ChunksWithoutFile {
		lines = append(lines, "  "+fileID)
	}
	return writeLines(lines)
}

func writeAuthClassification(classified models.AuthSessionClassification) error {
	lines := []string{fmt.Sprintf("active=%d empty=%d preserved=%d", len(classified.Active), len(classified.Empty), len(classified.Preserved))}
	for _, group := range []struct {
		name     string
		sessions []models.AuthSession
	}{
		{"empty", classified.Empty},
		{"preserved", classified.Preserved},
	} {
		for _, session := range group.sessions {
			lines = append(lines, fmt.Sprintf("  %s: %s", group.name, formatAuthSessionLine(session)))
		}
	}
	for _, record := range classified.Corrupt {
		lines = append(lines, "  "+formatCorruptRecord(record))
	}
	return writeLines(lines)
}
