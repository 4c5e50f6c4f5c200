package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dvloznov/pocketbook/internal/backup"
	"github.com/dvloznov/pocketbook/internal/exports"
	"github.com/dvloznov/pocketbook/internal/jobs"
	"github.com/dvloznov/pocketbook/internal/logger"
)

// runJob runs one export job in-process against the session's store.
func runJob(ctx context.Context, s *session, job *jobs.ExportJob) (string, error) {
	runner, closeSinks, err := exports.Open(ctx, s.cfg, s.eng.Store())
	if err != nil {
		return "", err
	}
	defer func() {
		if err := closeSinks(); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("Failed to close export sinks")
		}
	}()

	job.JobID = uuid.New().String()
	job.CreatedAt = time.Now()
	return runner.Handle(ctx, job)
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write a backup file",
		Long:  `Write the whole document to a JSON backup file and record the backup time.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				msg, err := runJob(ctx, s, &jobs.ExportJob{Type: jobs.JobTypeExportFile, Path: path})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
				return err
			})
		},
	}
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the document with a backup file",
		Long: `Replace the whole document with the contents of a backup file written by
export. The file is checked first; a rejected file leaves the document as it was.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				doc, err := backup.Restore(s.eng.Store(), f)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %d transactions\n", len(doc.Transactions))
				return err
			})
		},
	}
}

// NewBackupBigQueryCommand creates the backup-bigquery command.
func NewBackupBigQueryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup-bigquery",
		Short: "Append new transactions to BigQuery",
		Long: `Insert the transactions that are not yet in the BigQuery table, keyed by
the signed-in uid. Needs --uid and bigquery.project in the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.UID == "" {
				return errors.New("backup-bigquery needs --uid")
			}
			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				msg, err := runJob(ctx, s, &jobs.ExportJob{Type: jobs.JobTypeBackupBigQuery, UID: rootOpts.UID})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
				return err
			})
		},
	}
}

// NewSyncNotionCommand creates the sync-notion command.
func NewSyncNotionCommand(rootOpts *RootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "sync-notion",
		Short: "Mirror transactions into a Notion database",
		Long: `Create, update and archive pages in the configured Notion database so it
matches the transaction list. Needs notion.token and notion.database_id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				msg, err := runJob(ctx, s, &jobs.ExportJob{Type: jobs.JobTypeSyncNotion, DryRun: dryRun})
				if err != nil {
					return err
				}
				if dryRun {
					msg = "dry run: " + msg
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), msg)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without writing to Notion")
	return cmd
}
