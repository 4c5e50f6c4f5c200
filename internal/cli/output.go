package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dvloznov/pocketbook/internal/domain"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTransactions(w io.Writer, txs []domain.Transaction) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tAMOUNT\tCATEGORY\tPLACE\tPAYMENT\tFLAGS")
	for _, tx := range txs {
		flags := ""
		if tx.Auto {
			flags += "auto "
		}
		if tx.Refunded {
			flags += "refunded"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			tx.ID, tx.Date, tx.Time, tx.Amount.StringFixed(2), tx.Category, tx.Place, tx.Payment, flags)
	}
	return tw.Flush()
}

// output writes v as JSON, or calls text for the text format.
func output(w io.Writer, opts *RootOptions, v any, text func(io.Writer) error) error {
	if opts.Format == "json" || text == nil {
		return writeJSON(w, v)
	}
	return text(w)
}
