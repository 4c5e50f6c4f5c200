package exports

import (
	"context"
	"fmt"

	"github.com/dvloznov/pocketbook/internal/backup"
	"github.com/dvloznov/pocketbook/internal/config"
	infraBQ "github.com/dvloznov/pocketbook/internal/infra/bigquery"
	"github.com/dvloznov/pocketbook/internal/notionsync"
)

// Open builds a runner with every sink cfg configures. BigQuery needs a
// project and Notion needs a token and database id; missing settings leave
// the sink off. The returned close function releases the sink clients.
func Open(ctx context.Context, cfg config.Config, st backup.Store) (*Runner, func() error, error) {
	var opts []Option
	closeFn := func() error { return nil }

	if cfg.BigQuery.Project != "" {
		sink, err := infraBQ.NewBigQueryTransactionSink(ctx, infraBQ.TableConfig{
			Project: cfg.BigQuery.Project,
			Dataset: cfg.BigQuery.Dataset,
			Table:   cfg.BigQuery.Table,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open bigquery sink: %w", err)
		}
		opts = append(opts, WithBigQuery(sink))
		closeFn = sink.Close
	}

	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		opts = append(opts, WithNotion(notionsync.NewNotionClient(cfg.Notion.Token, nil), cfg.Notion.DatabaseID))
	}

	return NewRunner(st, opts...), closeFn, nil
}
