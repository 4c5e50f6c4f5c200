package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/pocketbook/internal/cloudsync"
	"github.com/dvloznov/pocketbook/internal/recurring"
)

// NewRecurringCommand creates the recurring command.
func NewRecurringCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recurring",
		Short: "Post this month's fixed expenses",
		Long: `Add an automatic transaction for every fixed expense whose day of the month
has been reached and that has not been posted this month yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				n, err := recurring.Post(s.eng.Store(), time.Now())
				if n > 0 || err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "posted %d transactions\n", n)
				}
				return err
			})
		},
	}
}

// NewPushCommand creates the push command.
func NewPushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Sign in, merge with the cloud copy and push",
		Long: `Sign in as --uid, load the account's cloud copy (it wins over local data
when present, otherwise the local document is uploaded) and push any
pending change. Prints the sync status afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rootOpts.UID == "" {
				return errors.New("push needs --uid")
			}
			return withSession(cmd.Context(), rootOpts, func(ctx context.Context, s *session) error {
				if err := s.eng.Sync().Flush(ctx); err != nil {
					return err
				}
				status := s.eng.Sync().Status()
				return output(cmd.OutOrStdout(), rootOpts, status, func(w io.Writer) error {
					return writeStatus(w, status)
				})
			})
		},
	}
}

func writeStatus(w io.Writer, st cloudsync.Status) error {
	uid := "-"
	if st.Identity != nil {
		uid = st.Identity.UID
	}
	if _, err := fmt.Fprintf(w, "uid:     %s\nstate:   %s\npending: %t\n", uid, st.State, st.PushPending); err != nil {
		return err
	}
	if st.LastPushAt != nil {
		if _, err := fmt.Fprintf(w, "pushed:  %s\n", st.LastPushAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if st.LastError != "" {
		if _, err := fmt.Fprintf(w, "error:   %s\n", st.LastError); err != nil {
			return err
		}
	}
	return nil
}
