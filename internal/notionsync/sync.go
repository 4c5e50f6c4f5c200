package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/logger"
)

const (
	// BatchSize is the page size of database queries.
	BatchSize = 100
)

// Result counts what a sync did, or would do in dry-run mode.
type Result struct {
	Created  int
	Updated  int
	Archived int
	Skipped  int
	Failed   int
}

// SyncTransactions mirrors transactions into a Notion database keyed by the
// "Transaction ID" property:
//  1. Queries every existing page
//  2. Archives pages whose transaction is gone, or that carry no id
//  3. Creates pages for new transactions and rewrites changed ones
//
// Failures on individual pages are logged and counted; the sync goes on.
func SyncTransactions(ctx context.Context, notionClient NotionService, notionDBID string, transactions []domain.Transaction, dryRun bool) (Result, error) {
	log := logger.FromContext(ctx)
	var res Result

	log.Info().
		Int("transaction_count", len(transactions)).
		Bool("dry_run", dryRun).
		Msg("Starting transaction sync to Notion")

	byID := make(map[string]domain.Transaction, len(transactions))
	for _, tx := range transactions {
		byID[tx.ID] = tx
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return res, fmt.Errorf("failed to query Notion pages: %w", err)
	}
	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	existing := make(map[string]notionapi.Page, len(notionPages))
	for _, page := range notionPages {
		txID := richTextValue(page, PropTransactionID)
		_, live := byID[txID]
		_, seen := existing[txID]

		// Pages for deleted transactions, without an id, or duplicating
		// another page's id are archived.
		if txID == "" || !live || seen {
			if dryRun {
				log.Info().
					Str("transaction_id", txID).
					Str("page_id", string(page.ID)).
					Msg("[DRY RUN] Would archive stale Notion page")
				res.Archived++
				continue
			}
			if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", txID).
					Str("page_id", string(page.ID)).
					Msg("Failed to archive stale Notion page")
				res.Failed++
				continue
			}
			log.Debug().
				Str("transaction_id", txID).
				Str("page_id", string(page.ID)).
				Msg("Archived stale Notion page")
			res.Archived++
			continue
		}
		existing[txID] = page
	}

	for _, tx := range transactions {
		page, found := existing[tx.ID]
		if found && richTextValue(page, PropRevision) == Revision(tx) {
			res.Skipped++
			continue
		}

		if dryRun {
			if found {
				log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would update Notion page")
				res.Updated++
			} else {
				log.Info().Str("transaction_id", tx.ID).Msg("[DRY RUN] Would create Notion page")
				res.Created++
			}
			continue
		}

		props := TransactionToNotionProperties(tx)
		if found {
			if _, err := notionClient.UpdatePage(ctx, string(page.ID), props); err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", tx.ID).
					Str("page_id", string(page.ID)).
					Msg("Failed to update Notion page")
				res.Failed++
				continue
			}
			res.Updated++
			continue
		}

		created, err := notionClient.CreatePage(ctx, notionDBID, props)
		if err != nil {
			log.Warn().
				Err(err).
				Str("transaction_id", tx.ID).
				Msg("Failed to create Notion page")
			res.Failed++
			continue
		}
		log.Debug().
			Str("transaction_id", tx.ID).
			Str("page_id", string(created.ID)).
			Msg("Created Notion page")
		res.Created++
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("archived", res.Archived).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Transaction sync completed")

	return res, nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: BatchSize,
		}
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
