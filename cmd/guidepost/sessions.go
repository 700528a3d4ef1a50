package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"guidepost/internal/apperr"
	"guidepost/internal/config"
	"guidepost/internal/models"
)

func newSessionsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage migrant-guide session requests",
	}

	cmd.AddCommand(newSessionsRequestCmd(cfg))
	cmd.AddCommand(newSessionsTransitionCmd(cfg))
	cmd.AddCommand(newSessionsListCmd(cfg))
	cmd.AddCommand(newSessionsShowCmd(cfg))
	cmd.AddCommand(newSessionsImportCmd(cfg))
	return cmd
}

func newSessionsRequestCmd(cfg *config.Config) *cobra.Command {
	var (
		actorID string
		guideID string
		title   string
	)

	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request a session with a guide",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				actor, err := a.actor(cmd.Context(), actorID)
				if err != nil {
					return err
				}
				session, err := a.sessions.RequestSession(cmd.Context(), actor, guideID, title)
				if err != nil {
					return err
				}
				return writeResult(session, func() error {
					return writeSessionDetail(session)
				})
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "as", "", "requesting migrant user id (required)")
	cmd.Flags().StringVar(&guideID, "guide", "", "guide user id (required)")
	cmd.Flags().StringVar(&title, "title", "", "session title (required)")
	return cmd
}

func newSessionsTransitionCmd(cfg *config.Config) *cobra.Command {
	var actorID string

	cmd := &cobra.Command{
		Use:   "transition <id> <accept|decline|withdraw|start|cancel|end>",
		Short: "Apply a lifecycle event to a session",
		Args:  requireExactlyArgs(2, "id and event are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := models.ParseSessionEvent(args[1])
			if err != nil {
				return apperr.Validation(err)
			}
			return withApp(cfg, func(a *app) error {
				actor, err := a.actor(cmd.Context(), actorID)
				if err != nil {
					return err
				}
				session, err := a.sessions.Transition(cmd.Context(), args[0], actor, event)
				if err != nil {
					return err
				}
				return writeResult(session, func() error {
					return writePlain("%s\n", formatSessionLine(session))
				})
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "as", "", "acting user id (required)")
	return cmd
}

func newSessionsListCmd(cfg *config.Config) *cobra.Command {
	var (
		userID string
		role   string
	)

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List sessions where a user takes part in a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsedRole, err := models.ParseRole(role)
			if err != nil {
				return apperr.ValidationCode(err, apperr.CodeInvalidRole)
			}
			return withApp(cfg, func(a *app) error {
				sessions, err := a.sessions.ListForUser(cmd.Context(), userID, parsedRole)
				if err != nil {
					return err
				}
				return writeResult(sessions, func() error {
					return writeSessionList(sessions)
				})
			})
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&role, "role", "", "role the user plays: migrant or guide (required)")
	return cmd
}

func newSessionsShowCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				session, err := a.sessions.GetSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeResult(session, func() error {
					return writeSessionDetail(session)
				})
			})
		},
	}
}

func newSessionsImportCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import sessions exported from the legacy system (JSON or YAML)",
		Args:  requireExactlyArgs(1, "file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			records, err := decodeLegacySessions(args[0], data)
			if err != nil {
				return err
			}
			return withApp(cfg, func(a *app) error {
				result, err := a.sessions.ImportLegacySessions(cmd.Context(), records)
				if err != nil {
					return err
				}
				return writeResult(result, func() error {
					return writeImportResult(result)
				})
			})
		},
	}
}

// decodeLegacySessions parses a list of legacy records. Files ending in
// .yaml or .yml are YAML; anything else must be a JSON array or JSON lines.
func decodeLegacySessions(path string, data []byte) ([]models.LegacySessionRecord, error) {
	var records []models.LegacySessionRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return records, nil
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return records, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for dec.More() {
		var record models.LegacySessionRecord
		if err := dec.Decode(&record); err != nil {
			return nil, fmt.Errorf("parse %s record %d: %w", path, len(records)+1, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func writeImportResult(result models.LegacyImportResult) error {
	if err := writePlain("imported=%d skipped=%d errors=%d\n", result.Imported, result.Skipped, len(result.Errors)); err != nil {
		return err
	}
	ids := make([]string, 0, len(result.Errors))
	for id := range result.Errors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := writePlain("  %s: %s\n", id, result.Errors[id]); err != nil {
			return err
		}
	}
	return nil
}
