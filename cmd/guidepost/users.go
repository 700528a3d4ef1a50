package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"guidepost/internal/apperr"
	"guidepost/internal/config"
	"guidepost/internal/models"
)

func newUsersCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage the user directory",
	}

	cmd.AddCommand(newUsersUpsertCmd(cfg))
	cmd.AddCommand(newUsersListCmd(cfg))
	cmd.AddCommand(newUsersShowCmd(cfg))
	return cmd
}

func newUsersUpsertCmd(cfg *config.Config) *cobra.Command {
	var (
		name string
		role string
	)

	cmd := &cobra.Command{
		Use:   "upsert <id>",
		Short: "Create or update a user",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return apperr.ValidationCode(fmt.Errorf("user id is required"), apperr.CodeMissingRequired)
			}
			parsedRole, err := models.ParseRole(role)
			if err != nil {
				return apperr.ValidationCode(err, apperr.CodeInvalidRole)
			}

			return withApp(cfg, func(a *app) error {
				user := &models.User{ID: id, DisplayName: strings.TrimSpace(name), Role: string(parsedRole)}
				if err := a.store.UpsertUser(cmd.Context(), user, time.Now().UTC()); err != nil {
					return apperr.FromContext(err)
				}
				saved, err := a.store.GetUser(cmd.Context(), id)
				if err != nil {
					return apperr.FromContext(err)
				}
				return writeResult(saved, func() error {
					return writePlain("%s %s %s\n", saved.ID, saved.Role, saved.DisplayName)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", "", "role: migrant or guide (required)")
	return cmd
}

func newUsersListCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				users, err := a.store.ListUsers(cmd.Context())
				if err != nil {
					return apperr.FromContext(err)
				}
				return writeResult(users, func() error {
					for _, user := range users {
						if err := writePlain("%s %s %s\n", user.ID, user.Role, user.DisplayName); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}

func newUsersShowCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				user, err := a.store.GetUser(cmd.Context(), args[0])
				if err != nil {
					return apperr.FromContext(err)
				}
				if user == nil {
					return apperr.NotFoundCode(fmt.Errorf("user %s not found", args[0]), apperr.CodeUserNotFound)
				}
				return writeResult(user, func() error {
					return writeLines([]string{
						fmt.Sprintf("id: %s", user.ID),
						fmt.Sprintf("display_name: %s", user.DisplayName),
						fmt.Sprintf("role: %s", user.Role),
						fmt.Sprintf("created_at: %s", formatTime(user.CreatedAt)),
						fmt.Sprintf("updated_at: %s", formatTime(user.UpdatedAt)),
					})
				})
			})
		},
	}
}
