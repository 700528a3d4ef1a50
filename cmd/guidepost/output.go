package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"guidepost/internal/format"
	"guidepost/internal/models"
)

var (
	outputWriter    io.Writer = os.Stdout
	outputFormatter format.Formatter
)

// setOutputFormat selects the structured formatter, or none for text output.
func setOutputFormat(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "text" {
		outputFormatter = nil
		return nil
	}
	formatter, err := format.ForName(name)
	if err != nil {
		return err
	}
	outputFormatter = formatter
	return nil
}

func structuredOutput() bool {
	return outputFormatter != nil
}

// writeResult writes payload with the structured formatter, or falls back to plain.
func writeResult(payload any, plain func() error) error {
	if outputFormatter != nil {
		return outputFormatter.Write(outputWriter, payload)
	}
	return plain()
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(outputWriter, format, args...)
	return err
}

func writeLines(lines []string) error {
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeBlobFile(file models.BlobFile) error {
	return writeLines([]string{
		fmt.Sprintf("id: %s", file.ID),
		fmt.Sprintf("filename: %s", file.Filename),
		fmt.Sprintf("length: %d", file.Length),
		fmt.Sprintf("chunks: %d x %d", file.ChunkCount, file.ChunkSize),
		fmt.Sprintf("digest: %s", file.Digest),
		fmt.Sprintf("created_at: %s", formatTime(file.CreatedAt)),
	})
}

func writeBlobStat(fileID string, stat models.BlobStat) error {
	lines := []string{
		fmt.Sprintf("id: %s", fileID),
		fmt.Sprintf("length: %d", stat.Length),
		fmt.Sprintf("chunks: %d x %d", stat.ChunkCount, stat.ChunkSize),
	}
	if stat.Digest != "" {
		lines = append(lines, fmt.Sprintf("digest: %s", stat.Digest))
	}
	return writeLines(lines)
}

func writeDocumentDetail(doc models.Document) error {
	lines := []string{
		fmt.Sprintf("id: %s", doc.ID),
		fmt.Sprintf("user_id: %s", doc.UserID),
		fmt.Sprintf("original_name: %s", doc.OriginalName),
		fmt.Sprintf("document_type: %s", doc.DocumentType),
		fmt.Sprintf("country: %s", doc.Country),
		fmt.Sprintf("status: %s", doc.Status),
		fmt.Sprintf("file_id: %s", doc.FileID),
		fmt.Sprintf("uploaded_at: %s", formatTime(doc.UploadedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(doc.UpdatedAt)),
	}
	if doc.Description != "" {
		lines = append(lines, fmt.Sprintf("description: %s", doc.Description))
	}
	return writeLines(lines)
}

func writeDocumentList(docs []models.Document) error {
	for _, doc := range docs {
		if err := writePlain("%s\n", formatDocumentLine(doc)); err != nil {
			return err
		}
	}
	return nil
}

func formatDocumentLine(doc models.Document) string {
	return fmt.Sprintf("%s [%s] %s/%s %s (%s)", doc.ID, doc.Status, doc.Country, doc.DocumentType, doc.OriginalName, doc.UserID)
}

func writeSessionDetail(session models.SessionRequest) error {
	lines := []string{
		fmt.Sprintf("id: %s", session.ID),
		fmt.Sprintf("title: %s", session.Title),
		fmt.Sprintf("status: %s", session.RequestStatus),
		fmt.Sprintf("migrant: %s", formatParty(session.MigrantID, session.MigrantName)),
		fmt.Sprintf("guide: %s", formatParty(session.GuideID, session.GuideName)),
		fmt.Sprintf("created_at: %s", formatTime(session.CreatedAt)),
	}
	if session.UpdatedAt != nil {
		lines = append(lines, fmt.Sprintf("updated_at: %s", formatTime(*session.UpdatedAt)))
	}
	if session.ClosedAt != nil {
		lines = append(lines, fmt.Sprintf("closed_at: %s", formatTime(*session.ClosedAt)))
	}
	return writeLines(lines)
}

func writeSessionList(sessions []models.SessionRequest) error {
	for _, session := range sessions {
		if err := writePlain("%s\n", formatSessionLine(session)); err != nil {
			return err
		}
	}
	return nil
}

func formatSessionLine(session models.SessionRequest) string {
	return fmt.Sprintf("%s [%s] %s -> %s - %s", session.ID, session.RequestStatus, session.MigrantID, session.GuideID, session.Title)
}

func formatParty(id, name string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", id, name)
}

func writePurgeResult(what string, result models.PurgeResult) error {
	mode := "applied"
	verb := "removed"
	if result.DryRun {
		mode = "dry run"
		verb = "would remove"
	}
	if err := writePlain("%s: %s %d %s (candidates=%d skipped=%d failed=%d)\n",
		mode, verb, len(result.IDs), what, result.Candidates, result.Skipped, result.Failed); err != nil {
		return err
	}
	for _, id := range result.IDs {
		if err := writePlain("  %s\n", id); err != nil {
			return err
		}
	}
	for _, record := range result.Corrupt {
		if err := writePlain("  %s\n", formatCorruptRecord(record)); err != nil {
			return err
		}
	}
	return nil
}

func formatCorruptRecord(record models.CorruptRecord) string {
	return fmt.Sprintf("corrupt, left in place: %s (%s)", record.ID, record.Reason)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
