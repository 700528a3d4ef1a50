package main

import (
	"context"
	"errors"

	"guidepost/internal/apperr"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch apperr.CodeOf(err) {
	case apperr.CodeUserNotFound:
		lines = append(lines, "hint: register the user first with: guidepost users upsert <id> --role <migrant|guide>")
	case apperr.CodeGuideRoleRequired:
		lines = append(lines, "hint: the target user must exist with role guide; check with: guidepost users show <id>")
	case apperr.CodeFileAlreadyOwned:
		lines = append(lines, "hint: each blob file backs one document; upload a new copy with: guidepost blob put <path>")
	}

	switch apperr.KindOf(err) {
	case apperr.KindTimeout:
		lines = append(lines, "hint: operation timed out; raise operation_timeout or GUIDEPOST_OPERATION_TIMEOUT.")
		return uniqueLines(lines)
	case apperr.KindIncompleteWrite:
		lines = append(lines,
			"hint: the upload was discarded and can be retried.",
			"hint: leftover chunks are reclaimed with: guidepost admin gc-chunks --force",
		)
	case apperr.KindDanglingReference:
		lines = append(lines, "hint: store the file first with: guidepost blob put <path>")
	case apperr.KindInvalidTransition:
		lines = append(lines, "hint: inspect the current state with: guidepost sessions show <id>")
	case apperr.KindInternal:
		lines = append(lines, "hint: rerun with --log-level debug; check consistency with: guidepost admin orphans")
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: operation timed out; raise operation_timeout or GUIDEPOST_OPERATION_TIMEOUT.")
	}
	if errors.Is(err, context.Canceled) {
		lines = append(lines, "hint: interrupted; partially written uploads are discarded.")
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
