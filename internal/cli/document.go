package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dvloznov/pocketbook/internal/domain"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [field]",
		Short: "Print the document or one field",
		Long: `Print the whole document, or a single field by name.

In text format the transactions field is printed as a table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				doc := s.eng.Store().Get()
				out := cmd.OutOrStdout()

				if len(args) == 0 {
					return writeJSON(out, doc)
				}

				f, err := domain.ParseField(args[0])
				if err != nil {
					return err
				}
				if f == domain.FieldTransactions {
					return output(out, rootOpts, doc.Transactions, func(w io.Writer) error {
						return writeTransactions(w, doc.Transactions)
					})
				}
				raw, err := doc.Raw(f)
				if err != nil {
					return err
				}
				return writeJSON(out, raw)
			})
		},
	}
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <field> <json>",
		Short: "Replace one field with a JSON value",
		Long: `Replace one document field. The value must be JSON of the field's
type; null resets the field to its default. Transactions are changed
through add, update and delete instead.`,
		Example: `  pocketbook set theme '"light"'
  pocketbook set budget '{"food":300}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := domain.ParseField(args[0])
			if err != nil {
				return err
			}
			raw := json.RawMessage(args[1])
			if !json.Valid(raw) {
				return fmt.Errorf("value for %s is not valid JSON: %s", f, args[1])
			}

			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				if err := s.eng.Store().SetField(f, raw); err != nil {
					return err
				}
				stored, err := s.eng.Store().Get().Raw(f)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), stored)
			})
		},
	}
}
