package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"

	bq "github.com/dvloznov/pocketbook/internal/bigquery"
)

// Re-export interface from shared package for backward compatibility
type TransactionSink = bq.TransactionSink

// BigQueryTransactionSink is the concrete implementation of TransactionSink
// that interacts with BigQuery. It holds a shared client for all operations.
type BigQueryTransactionSink struct {
	client *bigquery.Client
	cfg    TableConfig
}

// NewBigQueryTransactionSink creates a client for cfg.Project and makes sure
// the backup table exists.
func NewBigQueryTransactionSink(ctx context.Context, cfg TableConfig) (*BigQueryTransactionSink, error) {
	if cfg.Project == "" {
		return nil, errors.New("NewBigQueryTransactionSink: project is required")
	}
	cfg = cfg.withDefaults()

	client, err := bigquery.NewClient(ctx, cfg.Project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryTransactionSink: creating client: %w", err)
	}
	if err := EnsureTableWithClient(ctx, client, cfg); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &BigQueryTransactionSink{client: client, cfg: cfg}, nil
}

// Close closes the BigQuery client connection.
func (s *BigQueryTransactionSink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ExportedIDs delegates to QueryExportedIDsWithClient with the shared client.
func (s *BigQueryTransactionSink) ExportedIDs(ctx context.Context, uid string) (map[string]bool, error) {
	return QueryExportedIDsWithClient(ctx, s.client, s.cfg, uid)
}

// InsertTransactions delegates to InsertTransactionsWithClient with the shared client.
func (s *BigQueryTransactionSink) InsertTransactions(ctx context.Context, rows []*TransactionRow) error {
	return InsertTransactionsWithClient(ctx, s.client, s.cfg, rows)
}

// QueryTransactionsByDateRange delegates to QueryTransactionsByDateRangeWithClient with the shared client.
func (s *BigQueryTransactionSink) QueryTransactionsByDateRange(ctx context.Context, uid string, startDate, endDate time.Time) ([]*TransactionRow, error) {
	return QueryTransactionsByDateRangeWithClient(ctx, s.client, s.cfg, uid, startDate, endDate)
}

var _ TransactionSink = (*BigQueryTransactionSink)(nil)
