package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"guidepost/internal/apperr"
	"guidepost/internal/config"
	"guidepost/internal/models"
)

func newBlobCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Store and read chunked blob files",
	}

	cmd.AddCommand(newBlobPutCmd(cfg))
	cmd.AddCommand(newBlobGetCmd(cfg))
	cmd.AddCommand(newBlobStatCmd(cfg))
	cmd.AddCommand(newBlobRmCmd(cfg))
	return cmd
}

func newBlobPutCmd(cfg *config.Config) *cobra.Command {
	var (
		name   string
		fileID string
	)

	cmd := &cobra.Command{
		Use:   "put <path>",
		Short: "Store a local file as a blob (- reads stdin)",
		Args:  requireExactlyArgs(1, "path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, filename, err := openSource(args[0], name)
			if err != nil {
				return err
			}
			defer src.Close()

			return withApp(cfg, func(a *app) error {
				var file models.BlobFile
				if strings.TrimSpace(fileID) != "" {
					file, err = a.blobs.CreateFileWithID(cmd.Context(), fileID, filename, src)
				} else {
					file, err = a.blobs.CreateFile(cmd.Context(), filename, src)
				}
				if err != nil {
					return err
				}
				return writeResult(file, func() error {
					return writeBlobFile(file)
				})
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "stored filename (default: base name of path)")
	cmd.Flags().StringVar(&fileID, "id", "", "use this file id instead of a generated one")
	return cmd
}

func newBlobGetCmd(cfg *config.Config) *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "get <file-id>",
		Short: "Stream a blob to stdout or a file",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				r, err := a.blobs.OpenFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				defer r.Close()
				return copyToDest(dest, r)
			})
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "write to this path instead of stdout")
	return cmd
}

func newBlobStatCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <file-id>",
		Short: "Show blob metadata without reading content",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfg, func(a *app) error {
				stat, err := a.blobs.StatFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeResult(stat, func() error {
					return writeBlobStat(args[0], stat)
				})
			})
		},
	}
}

func newBlobRmCmd(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rm <file-id>",
		Short: "Delete a blob and its chunks",
		Args:  requireOneID,
		RunE: func(cmd *cobra.Command, args []string) error {
			fileID := args[0]
			return withApp(cfg, func(a *app) error {
				owner, err := a.store.GetDocumentByFileID(cmd.Context(), fileID)
				if err != nil {
					return apperr.FromContext(err)
				}
				if owner != nil && !force {
					return apperr.Validationf("file %s backs document %s; delete the document or pass --force", fileID, owner.ID)
				}
				if err := a.blobs.DeleteFile(cmd.Context(), fileID); err != nil {
					return err
				}
				return writeResult(map[string]any{"file_id": fileID, "deleted": true}, func() error {
					return writePlain("deleted %s\n", fileID)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "delete even when a document references the file")
	return cmd
}

// openSource opens path for reading; "-" selects stdin.
func openSource(path, name string) (io.ReadCloser, string, error) {
	filename := strings.TrimSpace(name)
	if path == "-" {
		if filename == "" {
			filename = "stdin"
		}
		return io.NopCloser(os.Stdin), filename, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", path, err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	return f, filename, nil
}

func copyToDest(dest string, r io.Reader) error {
	if strings.TrimSpace(dest) == "" {
		_, err := io.Copy(outputWriter, r)
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return err
	}
	return f.Close()
}
