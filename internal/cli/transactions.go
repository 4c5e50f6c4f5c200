package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/dvloznov/pocketbook/internal/domain"
	"github.com/dvloznov/pocketbook/internal/store"
)

// ErrNeedsConfirmation is returned by add when the entry looks like a
// duplicate and --yes was not given.
var ErrNeedsConfirmation = errors.New("a matching transaction exists; re-run with --yes to add it anyway")

type txFlags struct {
	date     string
	clock    string
	amount   string
	category string
	place    string
	memo     string
	payment  string
	auto     bool
	refunded bool
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&f.clock, "time", "", "time of day (HH:MM)")
	cmd.Flags().StringVar(&f.amount, "amount", "", "amount, e.g. 12.50")
	cmd.Flags().StringVar(&f.category, "category", "", "category")
	cmd.Flags().StringVar(&f.place, "place", "", "place or merchant")
	cmd.Flags().StringVar(&f.memo, "memo", "", "free-text memo")
	cmd.Flags().StringVar(&f.payment, "payment", "", "payment method")
	cmd.Flags().BoolVar(&f.auto, "auto", false, "mark as automatically recorded")
	cmd.Flags().BoolVar(&f.refunded, "refunded", false, "mark as refunded")
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		flags txFlags
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a transaction",
		Long: `Add a transaction at the top of the list.

A manual entry with the same date, amount and category as an existing one
is held back as a likely duplicate; pass --yes to add it anyway.`,
		Example: `  pocketbook add --amount 4.20 --category coffee --place Kiosk --payment card`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(flags.amount)
			if err != nil {
				return fmt.Errorf("--amount %q: %w", flags.amount, err)
			}
			date := flags.date
			if date == "" {
				date = time.Now().Format(domain.DateLayout)
			}
			tx := domain.Transaction{
				Date:     date,
				Time:     flags.clock,
				Amount:   amount,
				Category: flags.category,
				Place:    flags.place,
				Memo:     flags.memo,
				Payment:  flags.payment,
				Auto:     flags.auto,
				Refunded: flags.refunded,
			}
			if err := tx.Validate(); err != nil {
				return err
			}

			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				res, err := s.eng.Store().AddTransaction(tx)
				if err != nil {
					return err
				}
				if res.Status == store.NeedsConfirmation {
					if !yes {
						_ = output(cmd.ErrOrStderr(), rootOpts, res.Existing, func(w io.Writer) error {
							return writeTransactions(w, []domain.Transaction{*res.Existing})
						})
						return ErrNeedsConfirmation
					}
					inserted, err := s.eng.Store().ConfirmTransaction(res.Transaction)
					if err != nil {
						return err
					}
					res.Transaction = inserted
				}
				return output(cmd.OutOrStdout(), rootOpts, res.Transaction, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, res.Transaction.ID)
					return err
				})
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "add even if it looks like a duplicate")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var flags txFlags

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a transaction",
		Long:  `Change the given fields of a transaction; fields whose flags are not set are kept.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch, err := flags.patch(cmd)
			if err != nil {
				return err
			}

			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				id := args[0]
				current, ok := s.eng.Store().Transaction(id)
				if !ok {
					return fmt.Errorf("transaction %s not found", id)
				}
				if err := patch.Apply(current).Validate(); err != nil {
					return err
				}
				s.eng.Store().UpdateTransaction(id, patch)

				updated, _ := s.eng.Store().Transaction(id)
				return output(cmd.OutOrStdout(), rootOpts, updated, func(w io.Writer) error {
					return writeTransactions(w, []domain.Transaction{updated})
				})
			})
		},
	}

	flags.register(cmd)
	return cmd
}

func (f *txFlags) patch(cmd *cobra.Command) (domain.TransactionPatch, error) {
	var p domain.TransactionPatch
	changed := cmd.Flags().Changed

	str := func(name, v string) *string {
		if !changed(name) {
			return nil
		}
		return &v
	}
	p.Date = str("date", f.date)
	p.Time = str("time", f.clock)
	p.Category = str("category", f.category)
	p.Place = str("place", f.place)
	p.Memo = str("memo", f.memo)
	p.Payment = str("payment", f.payment)

	if changed("amount") {
		amount, err := decimal.NewFromString(f.amount)
		if err != nil {
			return p, fmt.Errorf("--amount %q: %w", f.amount, err)
		}
		p.Amount = &amount
	}
	if changed("auto") {
		p.Auto = &f.auto
	}
	if changed("refunded") {
		p.Refunded = &f.refunded
	}

	if p == (domain.TransactionPatch{}) {
		return p, errors.New("nothing to update; pass at least one field flag")
	}
	return p, nil
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				if _, ok := s.eng.Store().DeleteTransaction(args[0]); !ok {
					return fmt.Errorf("transaction %s not found", args[0])
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return err
			})
		},
	}
}
