package main

import (
	"strings"

	"github.com/spf13/cobra"

	"guidepost/internal/apperr"
	"guidepost/internal/config"
	"guidepost/internal/models"
)

func newDocsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage migrant documents",
	}

	cmd.AddCommand(newDocsCreateCmd(cfg))
	cmd.AddCommand(newDocsListCmd(cfg))
	cmd.AddCommand(newDocsShowCmd(cfg))
	cmd.AddCommand(newDocsCatCmd(cfg))
	cmd.AddCommand(newDocsStatusCmd(cfg))
	cmd.AddCommand(newDocsDescribeCmd(cfg))
	cmd.AddCommand(newDocsRmCmd(cfg))
	return cmd
}

func newDocsCreateCmd(cfg *config.Config) *cobra.Command {
	var (
		actorID string
		fileID  string
		attrs   models.DocumentAttrs
	)

	cmd := &cobra.Command{
		Use:   "create [path]",
		Short: "Upload a file as a document, or register an existing blob with --file-id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hasPath := len(args) == 1
			hasFileID := strings.TrimSpace(fileID) != ""
			if hasPath == hasFileID {
				return apperr.Validationf("pass either a path or --file-id")
			}

			return withApp(cfg, func(a *app) error {
				actor, err := a.actor(cmd.Context(), actorID)
				if err != nil {
					return err
				}

				var doc models.Document
				if hasFileID {
					doc, err = a.documents.CreateDocument(cmd.Context(), actor, fileID, attrs)
				} else {
					src, filename, openErr := openSource(args[0], attrs.OriginalName)
					if openErr != nil {
						return openErr
					}
					defer src.Close()
					attrs.OriginalName = filename
					doc, err = a.documents.CreateDocumentFromReader(cmd.Context(), actor, attrs, src)
				}
				if err != nil {
					return err
				}
				return writeResult(doc, func() error {
					return writeDocumentDetail(doc)
				})
			})
		},
	}

	cmd.Flags().StringVar(&actorID, "as", "", "acting user id (required)")
	cmd.Flags().StringVar(&fileID, "file-id", "", "existing blob file id")
	cmd.Flags().StringVar(&attrs.OriginalName, "name", "", "original file name (default: base name of path)")
	cmd.Flags().StringVar(&attrs.DocumentType, "type", "", "document type (required)")
	cmd.Flags().StringVar(&attrs.Country, "country", "", "issuing country (required)")
	cmd.Flags().StringVar(&attrs.Description, "description", "", "free-text description")
	cmd.Flags().StringVar(&attrs.Status, "status", "", "initial status (default pending)")
	return cmd
}

func newDocsListCmd(cfg *config.Config) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List documents, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				var (
					docs []models.Document
					err  error
				)
				if strings.TrimSpace(owner) != "" {
					docs, err = a.documents.ListByOwner(cmd.Context(), owner)
				} else {
					docs, err = a.documents.ListAll(cmd.Context())
				}
				if err != nil {
					return err
				}
				return writeResult(docs, func() error {
					return writeDocumentList(docs)
				})
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "only documents of this user id")
	return cmd
}

func newDocsShowCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a document",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				doc, err := a.documents.GetDocument(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeResult(doc, func() error {
					return writeDocumentDetail(doc)
				})
			})
		},
	}
}

func newDocsCatCmd(cfg *config.Config) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "cat <id>",
		Short: "Stream a document's content",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				content, err := a.documents.OpenDocumentContent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer content.Reader.Close()
				return copyToDest(dest, content.Reader)
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "write to this path instead of stdout")
	return cmd
}

func newDocsStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <pending|approved|rejected>",
		Short: "Set a document's review status",
		Args:  requireExactlyArgs(2, "id and status are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				doc, err := a.documents.UpdateStatus(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return writeResult(doc, func() error {
					return writePlain("%s\n", formatDocumentLine(doc))
				})
			})
		},
	}
}

func newDocsDescribeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <id> <description>",
		Short: "Replace a document's description",
		Args:  requireExactlyArgs(2, "id and description are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				doc, err := a.documents.UpdateDescription(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return writeResult(doc, func() error {
					return writeDocumentDetail(doc)
				})
			})
		},
	}
}

func newDocsRmCmd(cfg *config.Config) *cobra.Command {
	var keepBlob bool

	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a document and, unless --keep-blob, its blob",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				if err := a.documents.DeleteDocument(cmd.Context(), args[0], !keepBlob); err != nil {
					return err
				}
				return writeResult(map[string]any{"id": args[0], "deleted": true, "cascade": !keepBlob}, func() error {
					return writePlain("deleted %s\n", args[0])
				})
			})
		},
	}

	cmd.Flags().BoolVar(&keepBlob, "keep-blob", false, "keep the blob file")
	return cmd
}
