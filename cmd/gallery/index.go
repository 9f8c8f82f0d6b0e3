package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"gallery/internal/database"
	"gallery/internal/indexer"
	"gallery/internal/startup"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Index the media directory once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.DatabaseDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}

			ctx := cmd.Context()
			db, err := database.New(ctx, filepath.Join(cfg.DatabaseDir, startup.DatabaseFile), nil)
			if err != nil {
				return err
			}
			defer db.Close()

			mediaDir, err := filepath.Abs(cfg.MediaDir)
			if err != nil {
				return fmt.Errorf("failed to resolve media directory path: %w", err)
			}

			result, err := indexer.New(db, mediaDir).Index(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Indexed %d files in %d folders (%d removed, %d errors) in %v\n",
				result.Files, result.Folders, result.Removed, result.Errors, result.Duration)
			return nil
		},
	}
}
