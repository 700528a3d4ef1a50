package main

import (
	"strings"

	"github.com/spf13/cobra"

	"guidepost/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		output   string
		logLevel string
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:           "guidepost",
		Short:         "Guidepost stores migrant documents and manages guide session requests",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setOutputFormat(output); err != nil {
				return err
			}
			if err := configureLogger(logLevel, cfg.LogLevel, structuredOutput()); err != nil {
				return err
			}
			if path := strings.TrimSpace(dbPath); path != "" {
				cfg.DBPath = path
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text, json, or yaml")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (overrides db_path)")

	cmd.AddCommand(
		newMigrateCmd(cfg),
		newConfigCmd(cfg),
		newUsersCmd(cfg),
		newBlobCmd(cfg),
		newDocsCmd(cfg),
		newSessionsCmd(cfg),
		newAuthCmd(cfg),
		newAdminCmd(cfg),
	)

	return cmd
}
