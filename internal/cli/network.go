package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/claimwiz/internal/connectivity"
	"github.com/roach88/claimwiz/internal/features"
	"github.com/roach88/claimwiz/internal/queue"
)

// ProbeView is the probe command payload.
type ProbeView struct {
	URL   string              `json:"url"`
	State connectivity.Status `json:"state"`
}

func newProbeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Run one liveness probe against probe_url",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			if !s.Features().Enabled(features.LivenessProbe) {
				return f.Fail(ExitCommandError, ErrCodeConfig, "no probe_url configured", nil, nil)
			}
			state := s.Monitor().Probe(cmd.Context())
			view := ProbeView{URL: opts.cfg.ProbeURL, State: state}
			if state == connectivity.Offline {
				return f.Fail(ExitFailure, ErrCodeOffline, fmt.Sprintf("%s is unreachable", view.URL), view, nil)
			}
			return f.Success(view, SuccessMsg("%s is reachable", view.URL)+"\n")
		},
	}
}

func newWatchCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Probe connectivity and deliver queued submissions until interrupted",
		Long: `Probe connectivity and deliver queued submissions until interrupted.

Runs the liveness probe every probe_interval. Whenever connectivity is
restored the queued submissions are delivered in order, and each delivery is
announced.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			w := f.GetErrWriter()
			s.Monitor().OnNotice(func(n connectivity.Notice) {
				if out := RenderNotice(n); out != "" {
					fmt.Fprintln(w, out)
				}
			})
			s.Queue().Channel().Listen(func(m queue.Message) {
				fmt.Fprintln(w, RenderNotice(connectivity.Notice{Kind: connectivity.NoticeToast, Message: m.Message}))
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintln(w, InfoMsg("Watching connectivity every %s (Ctrl-C to stop)", opts.cfg.ProbeInterval))
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "watch", nil, err)
			}
			return nil
		},
	}
}

// Execute runs the root command and returns the process exit code. Errors
// not already written by a command are printed to stderr.
func Execute(ctx context.Context) int {
	cmd := NewRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || !exitErr.reported {
			fmt.Fprintln(os.Stderr, ErrorMsg("%v", err))
		}
		return GetExitCode(err)
	}
	return ExitSuccess
}
