package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guidepost/internal/config"
	"guidepost/internal/models"
)

func newAuthCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Record identity-provider sessions",
	}

	cmd.AddCommand(newAuthRecordCmd(cfg))
	return cmd
}

func newAuthRecordCmd(cfg *config.Config) *cobra.Command {
	var (
		payload     string
		payloadFile string
		expiresIn   string
	)

	cmd := &cobra.Command{
		Use:   "record <session-id>",
		Short: "Store an auth session and classify its payload",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readPayload(payload, payloadFile)
			if err != nil {
				return err
			}
			var expiresAt *time.Time
			if strings.TrimSpace(expiresIn) != "" {
				ttl, err := config.ParseDuration(expiresIn)
				if err != nil {
					return fmt.Errorf("invalid --expires-in: %w", err)
				}
				at := time.Now().UTC().Add(ttl)
				expiresAt = &at
			}

			return withApp(cfg, func(a *app) error {
				session, err := a.reconcile.RecordAuthSession(cmd.Context(), args[0], raw, expiresAt)
				if err != nil {
					return err
				}
				return writeResult(session, func() error {
					return writePlain("%s\n", formatAuthSessionLine(session))
				})
			})
		},
	}

	cmd.Flags().StringVar(&payload, "payload", "", "serialized session payload")
	cmd.Flags().StringVar(&payloadFile, "payload-file", "", "read the payload from a file (- for stdin)")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "expiry relative to now, e.g. 12h or 14d")
	return cmd
}

func readPayload(inline, path string) (string, error) {
	if inline != "" && path != "" {
		return "", fmt.Errorf("use either --payload or --payload-file")
	}
	switch path {
	case "":
		return inline, nil
	case "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	default:
		data, err := os.ReadFile(path)
		return string(data), err
	}
}

func formatAuthSessionLine(session models.AuthSession) string {
	principal := "-"
	if session.Principal != nil {
		principal = session.Principal.UserID
		if session.Principal.Role != "" {
			principal += " (" + session.Principal.Role + ")"
		}
	}
	return fmt.Sprintf("%s [%s] principal=%s", session.ID, session.PayloadState, principal)
}
