// Package backup writes and restores whole-document backups and exports
// transactions to an append-only sink.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	bq "github.com/dvloznov/pocketbook/internal/bigquery"
	"github.com/dvloznov/pocketbook/internal/domain"
)

// Version is the envelope format written by Export.
const Version = 1

// ErrUnsupportedVersion is returned by Import for envelopes it cannot read.
var ErrUnsupportedVersion = errors.New("unsupported backup version")

// ErrInvalidBackup is returned by Import when the file is not a backup.
var ErrInvalidBackup = errors.New("invalid backup")

type envelope struct {
	Version    int             `json:"version"`
	ExportedAt time.Time       `json:"exportedAt"`
	Document   json.RawMessage `json:"document"`
}

// Store is the part of the document store a restore or export needs.
type Store interface {
	Get() domain.Document
	ReplaceDocument(doc domain.Document)
	MarkBackup(at time.Time)
}

// Export writes doc to w as a versioned backup envelope.
func Export(w io.Writer, doc domain.Document, exportedAt time.Time) error {
	body, err := domain.Encode(doc)
	if err != nil {
		return fmt.Errorf("Export: encoding document: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelope{
		Version:    Version,
		ExportedAt: exportedAt.UTC(),
		Document:   body,
	}); err != nil {
		return fmt.Errorf("Export: writing backup: %w", err)
	}
	return nil
}

// Import reads a backup written by Export. A backup with any field that does
// not fit its type is rejected whole.
func Import(r io.Reader) (domain.Document, time.Time, error) {
	var env envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return domain.Document{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if env.Version != Version {
		return domain.Document{}, time.Time{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if len(env.Document) == 0 {
		return domain.Document{}, time.Time{}, fmt.Errorf("%w: missing document", ErrInvalidBackup)
	}

	doc, bad, err := domain.Decode(env.Document)
	if err != nil {
		return domain.Document{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if len(bad) > 0 {
		return domain.Document{}, time.Time{}, fmt.Errorf("%w: bad fields %v", ErrInvalidBackup, bad)
	}
	return doc, env.ExportedAt, nil
}

// ToFile exports the current document and records the backup time.
func ToFile(w io.Writer, st Store, now time.Time) error {
	if err := Export(w, st.Get(), now); err != nil {
		return err
	}
	st.MarkBackup(now)
	return nil
}

// Restore replaces the store's document with the backup read from r.
// The store is left untouched when the backup cannot be read.
func Restore(st Store, r io.Reader) (domain.Document, error) {
	doc, _, err := Import(r)
	if err != nil {
		return domain.Document{}, err
	}
	st.ReplaceDocument(doc)
	return doc, nil
}

// ToBigQuery appends every transaction not yet present in sink for uid and
// marks the backup time once the insert succeeds. It returns the number of
// rows written.
func ToBigQuery(ctx context.Context, sink bq.TransactionSink, st Store, uid string, now time.Time) (int, error) {
	if uid == "" {
		return 0, errors.New("ToBigQuery: uid is required")
	}

	exported, err := sink.ExportedIDs(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("ToBigQuery: listing exported ids: %w", err)
	}

	doc := st.Get()
	rows := make([]*bq.TransactionRow, 0, len(doc.Transactions))
	for _, tx := range doc.Transactions {
		if exported[tx.ID] {
			continue
		}
		row, err := bq.RowFromTransaction(uid, tx, now)
		if err != nil {
			return 0, fmt.Errorf("ToBigQuery: %w", err)
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := sink.InsertTransactions(ctx, rows); err != nil {
			return 0, fmt.Errorf("ToBigQuery: inserting %d rows: %w", len(rows), err)
		}
	}
	st.MarkBackup(now)
	return len(rows), nil
}
