package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// EnsureTableWithClient creates the dataset and the transactions table when
// they do not exist yet. The schema is inferred from TransactionRow and the
// table is partitioned by day of export.
func EnsureTableWithClient(ctx context.Context, client *bigquery.Client, cfg TableConfig) error {
	cfg = cfg.withDefaults()
	dataset := client.DatasetInProject(cfg.Project, cfg.Dataset)

	if err := dataset.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTable: creating dataset %s: %w", cfg.Dataset, err)
	}

	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}

	meta := &bigquery.TableMetadata{
		Schema: schema,
		TimePartitioning: &bigquery.TimePartitioning{
			Type:  bigquery.DayPartitioningType,
			Field: "exported_ts",
		},
	}
	if err := dataset.Table(cfg.Table).Create(ctx, meta); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("EnsureTable: creating table %s: %w", cfg.Table, err)
	}
	return nil
}

// InsertTransactionsWithClient streams rows into the backup table. Each row
// carries an insert id derived from the transaction and export time, so a
// retried batch is de-duplicated by BigQuery on a best-effort basis.
func InsertTransactionsWithClient(ctx context.Context, client *bigquery.Client, cfg TableConfig, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	cfg = cfg.withDefaults()

	schema, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return fmt.Errorf("InsertTransactions: inferring schema: %w", err)
	}

	savers := make([]*bigquery.StructSaver, 0, len(rows))
	for _, row := range rows {
		savers = append(savers, &bigquery.StructSaver{
			Struct:   row,
			Schema:   schema,
			InsertID: row.TransactionID + "@" + row.ExportedTS.Format(time.RFC3339),
		})
	}

	inserter := client.DatasetInProject(cfg.Project, cfg.Dataset).Table(cfg.Table).Inserter()
	if err := inserter.Put(ctx, savers); err != nil {
		return fmt.Errorf("InsertTransactions: inserting rows: %w", err)
	}
	return nil
}

// QueryExportedIDsWithClient returns the ids already present in the backup
// table for uid.
func QueryExportedIDsWithClient(ctx context.Context, client *bigquery.Client, cfg TableConfig, uid string) (map[string]bool, error) {
	q := client.Query(`
		SELECT DISTINCT transaction_id
		FROM ` + cfg.FullName() + `
		WHERE uid = @uid
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "uid", Value: uid},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryExportedIDs: query read: %w", err)
	}

	ids := make(map[string]bool)
	for {
		var r struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryExportedIDs: iter next: %w", err)
		}
		ids[r.TransactionID] = true
	}
	return ids, nil
}

// QueryTransactionsByDateRangeWithClient returns uid's backed-up rows with
// a transaction date in [startDate, endDate], latest export first.
func QueryTransactionsByDateRangeWithClient(ctx context.Context, client *bigquery.Client, cfg TableConfig, uid string, startDate, endDate time.Time) ([]*TransactionRow, error) {
	q := client.Query(`
		SELECT
			transaction_id,
			uid,
			date,
			time,
			amount,
			category,
			place,
			memo,
			payment,
			auto,
			refunded,
			exported_ts
		FROM ` + cfg.FullName() + `
		WHERE uid = @uid
		  AND date >= @start_date
		  AND date <= @end_date
		ORDER BY date DESC, exported_ts DESC
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "uid", Value: uid},
		{Name: "start_date", Value: startDate.Format(dateFormat)},
		{Name: "end_date", Value: endDate.Format(dateFormat)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactionsByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var r TransactionRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactionsByDateRange: iter next: %w", err)
		}
		rows = append(rows, &r)
	}
	return rows, nil
}

func isAlreadyExists(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusConflict
}
