// Package exports runs export jobs against the configured sinks.
package exports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dvloznov/pocketbook/internal/backup"
	bq "github.com/dvloznov/pocketbook/internal/bigquery"
	"github.com/dvloznov/pocketbook/internal/jobs"
	"github.com/dvloznov/pocketbook/internal/logger"
	"github.com/dvloznov/pocketbook/internal/notionsync"
	"github.com/dvloznov/pocketbook/internal/schedule"
)

// ErrSinkNotConfigured is returned for jobs whose sink was not set up.
var ErrSinkNotConfigured = errors.New("export sink not configured")

// Runner executes export jobs.
type Runner struct {
	store    backup.Store
	sink     bq.TransactionSink
	notion   notionsync.NotionService
	notionDB string
	clock    schedule.Clock
}

// Option configures a Runner.
type Option func(*Runner)

// WithBigQuery enables backup_bigquery jobs.
func WithBigQuery(sink bq.TransactionSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithNotion enables sync_notion jobs.
func WithNotion(svc notionsync.NotionService, databaseID string) Option {
	return func(r *Runner) {
		r.notion = svc
		r.notionDB = databaseID
	}
}

// WithClock sets the clock used for backup timestamps.
func WithClock(c schedule.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// NewRunner returns a runner exporting st.
func NewRunner(st backup.Store, opts ...Option) *Runner {
	r := &Runner{store: st, clock: schedule.Real{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle implements jobs.JobHandler.
func (r *Runner) Handle(ctx context.Context, job *jobs.ExportJob) (string, error) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.JobID).
		Str("job_type", string(job.Type)).
		Logger()
	ctx = logger.WithContext(ctx, log)

	switch job.Type {
	case jobs.JobTypeExportFile:
		return r.exportFile(job.Path)

	case jobs.JobTypeBackupBigQuery:
		if r.sink == nil {
			return "", fmt.Errorf("%w: bigquery", ErrSinkNotConfigured)
		}
		n, err := backup.ToBigQuery(ctx, r.sink, r.store, job.UID, r.clock.Now())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("inserted %d rows", n), nil

	case jobs.JobTypeSyncNotion:
		if r.notion == nil || r.notionDB == "" {
			return "", fmt.Errorf("%w: notion", ErrSinkNotConfigured)
		}
		res, err := notionsync.SyncTransactions(ctx, r.notion, r.notionDB, r.store.Get().Transactions, job.DryRun)
		if err != nil {
			return "", err
		}
		if res.Failed > 0 {
			return "", fmt.Errorf("notion sync: %d page operations failed", res.Failed)
		}
		return fmt.Sprintf("created %d, updated %d, archived %d, unchanged %d",
			res.Created, res.Updated, res.Archived, res.Skipped), nil

	default:
		return "", fmt.Errorf("unknown job type %q", job.Type)
	}
}

// exportFile writes a backup next to path and renames it into place so a
// failed export never leaves a truncated file behind.
func (r *Runner) exportFile(path string) (string, error) {
	if path == "" {
		return "", errors.New("export path is required")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".pocketbook-export-*")
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	now := r.clock.Now()
	if err := backup.Export(tmp, r.store.Get(), now); err != nil {
		_ = tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move export file: %w", err)
	}
	r.store.MarkBackup(now)
	return "wrote " + path, nil
}
