package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/claimwiz/internal/progress"
	"github.com/roach88/claimwiz/internal/queue"
	"github.com/roach88/claimwiz/internal/session"
	"github.com/roach88/claimwiz/internal/store"
)

func newQueueCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and deliver queued submissions",
	}
	cmd.AddCommand(newQueueListCommand(opts))
	cmd.AddCommand(newQueueDrainCommand(opts))
	return cmd
}

func newQueueListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List queued submissions in delivery order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			envs, err := s.Queue().Pending(cmd.Context())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "list queue", nil, err)
			}
			if envs == nil {
				envs = []store.Envelope{}
			}
			return f.Success(envs, renderEnvelopes(envs))
		},
	}
}

func renderEnvelopes(envs []store.Envelope) string {
	if len(envs) == 0 {
		return InfoMsg("No queued submissions") + "\n"
	}
	rows := make([][]string, 0, len(envs))
	for _, e := range envs {
		rows = append(rows, []string{
			e.ID,
			e.EnqueuedAt.Local().Format(progress.ReportTimeLayout),
			strconv.Itoa(e.Attempts),
		})
	}
	return Table([]string{"ID", "QUEUED", "ATTEMPTS"}, rows) + "\n"
}

func newQueueDrainCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Deliver queued submissions now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			s.Queue().Channel().Listen(func(m queue.Message) {
				f.VerboseLog("%s: %s (%s)", m.Kind, m.Message, m.SubmissionID)
			})

			res, err := s.Drain(cmd.Context())
			switch {
			case errors.Is(err, session.ErrOffline):
				return f.Fail(ExitFailure, ErrCodeOffline, "offline: submissions stay queued", nil, err)
			case errors.Is(err, queue.ErrDrainInFlight):
				return f.Fail(ExitFailure, ErrCodeDelivery, "another delivery is already running", nil, err)
			case err != nil && res.Failed != "":
				msg := fmt.Sprintf("delivery of %s failed (%s), %d still queued",
					res.Failed, formatAttempts(res.Attempts), res.Remaining)
				return f.Fail(ExitFailure, ErrCodeDelivery, msg, res, err)
			case err != nil:
				return f.Fail(ExitFailure, ErrCodeDelivery, err.Error(), res, err)
			}
			return f.Success(res, SuccessMsg("Delivered %d, %d remaining", len(res.Delivered), res.Remaining)+"\n")
		},
	}
}

func formatAttempts(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}
