package cli

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/claimwiz/internal/connectivity"
	"github.com/roach88/claimwiz/internal/features"
	"github.com/roach88/claimwiz/internal/progress"
	"github.com/roach88/claimwiz/internal/session"
	"github.com/roach88/claimwiz/internal/wizard"
)

// StatusView is the status command payload.
type StatusView struct {
	progress.Progress
	StepID       string              `json:"step_id"`
	StepTitle    string              `json:"step_title"`
	Connectivity connectivity.Status `json:"connectivity"`
	Queued       int                 `json:"queued"`
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current step, progress and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			ctx := cmd.Context()
			if s.Features().Enabled(features.LivenessProbe) {
				s.Monitor().Probe(ctx)
			}
			view, err := statusView(ctx, s)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "read status", nil, err)
			}
			return f.Success(view, renderStatus(view))
		},
	}
}

func statusView(ctx context.Context, s *session.Session) (StatusView, error) {
	p := s.Tracker().Progress()
	view := StatusView{Progress: p, Connectivity: s.Monitor().State()}
	if st, ok := s.Definition().Step(p.CurrentStep); ok {
		view.StepID = st.ID
		view.StepTitle = st.Title
	}
	n, err := s.Store().Count(ctx)
	if err != nil {
		return StatusView{}, err
	}
	view.Queued = n
	return view, nil
}

func renderStatus(v StatusView) string {
	var b strings.Builder
	if v.Connectivity == connectivity.Offline {
		b.WriteString(RenderNotice(connectivity.Notice{
			Kind:    connectivity.NoticeBanner,
			Title:   connectivity.OfflineTitle,
			Message: connectivity.OfflineMessage,
		}))
		b.WriteString("\n")
	}
	b.WriteString(renderProgress(v.Progress, v.StepTitle))
	b.WriteString(KeyValues("",
		KV("Connectivity", string(v.Connectivity)),
		KV("Queued", strconv.Itoa(v.Queued)),
	))
	return b.String()
}

func renderProgress(p progress.Progress, title string) string {
	remaining := progress.NotAvailable
	if p.EstimateAvailable {
		remaining = progress.FormatDuration(p.TimeRemaining)
	}
	step := fmt.Sprintf("%d of %d", p.CurrentStep, p.TotalSteps)
	if title != "" {
		step += " " + accentStyle.Render(title)
	}
	status := "in progress"
	if p.Completed {
		status = successStyle.Render("submitted")
	}
	return KeyValues("",
		KV("Step", step),
		KV("Progress", fmt.Sprintf("%d%%", p.Percent)),
		KV("Status", status),
		KV("Time spent", progress.FormatDuration(p.TimeSpent)),
		KV("Time remaining", remaining),
		KV("Sections", strconv.Itoa(p.CompletedSections)),
	)
}

// stepValues collects the values for the current step: everything known so
// far overlaid with --set, saved back as the draft.
func stepValues(ctx context.Context, s *session.Session, set map[string]string) (map[string]string, error) {
	values, err := s.FormValues(ctx)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return values, nil
	}
	draft, _, err := s.Draft(ctx)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		draft = map[string]string{}
	}
	maps.Copy(draft, set)
	if err := s.SaveDraft(ctx, draft); err != nil {
		return nil, err
	}
	maps.Copy(values, set)
	return values, nil
}

// onlyStep keeps the values of the fields on step.
func onlyStep(s *session.Session, step int, values map[string]string) map[string]string {
	st, ok := s.Definition().Step(step)
	if !ok {
		return nil
	}
	out := map[string]string{}
	for _, fld := range st.Fields {
		if v, ok := values[fld.Name]; ok {
			out[fld.Name] = v
		}
	}
	return out
}

type transitionFunc func(s *session.Session, snapshot map[string]string) (progress.Progress, error)

func newTransitionCommand(opts *RootOptions, use, short string, args cobra.PositionalArgs, build func(args []string) (transitionFunc, error)) *cobra.Command {
	var set map[string]string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			move, err := build(args)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeBadArgument, err.Error(), nil, err)
			}

			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			values, err := stepValues(cmd.Context(), s, set)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "read form values", nil, err)
			}
			current := s.Tracker().Progress().CurrentStep
			p, err := move(s, onlyStep(s, current, values))
			if err != nil {
				return transitionFailure(f, err)
			}

			title := ""
			if st, ok := s.Definition().Step(p.CurrentStep); ok {
				title = st.Title
			}
			return f.Success(p, renderProgress(p, title))
		},
	}
	cmd.Flags().StringToStringVarP(&set, "set", "s", nil, "field values for the current step (name=value)")
	return cmd
}

func newGoToCommand(opts *RootOptions) *cobra.Command {
	return newTransitionCommand(opts, "goto <step>", "Jump to a step", cobra.ExactArgs(1),
		func(args []string) (transitionFunc, error) {
			step, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("step must be a number, got %q", args[0])
			}
			return func(s *session.Session, snap map[string]string) (progress.Progress, error) {
				return s.Tracker().GoToStep(step, snap)
			}, nil
		})
}

func newNextCommand(opts *RootOptions) *cobra.Command {
	return newTransitionCommand(opts, "next", "Validate the current step and move forward", cobra.NoArgs,
		func([]string) (transitionFunc, error) {
			return func(s *session.Session, snap map[string]string) (progress.Progress, error) {
				return s.Tracker().Advance(snap)
			}, nil
		})
}

func newPrevCommand(opts *RootOptions) *cobra.Command {
	return newTransitionCommand(opts, "prev", "Move back one step", cobra.NoArgs,
		func([]string) (transitionFunc, error) {
			return func(s *session.Session, snap map[string]string) (progress.Progress, error) {
				return s.Tracker().Previous(snap)
			}, nil
		})
}

// transitionFailure reports a rejected transition or submit.
func transitionFailure(f *OutputFormatter, err error) error {
	if report, ok := wizard.ValidationReport(err); ok {
		if f.Format != "json" {
			fmt.Fprint(f.Writer, report.Summary())
		}
		return f.Fail(ExitFailure, ErrCodeValidation, "step fields are invalid", report, err)
	}
	if wizard.IsTransitionError(err) {
		return f.Fail(ExitFailure, ErrCodeTransition, err.Error(), nil, err)
	}
	return f.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil, err)
}

func newSubmitCommand(opts *RootOptions) *cobra.Command {
	var set map[string]string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the claim from the final step",
		Long: `Submit the claim from the final step.

The claim is queued durably before anything is sent. When online it is
delivered immediately; otherwise it stays queued until connectivity returns
(see "claimwiz watch").`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			ctx := cmd.Context()
			values, err := stepValues(ctx, s, set)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "read form values", nil, err)
			}
			if !s.Monitor().SubmitEnabled() {
				fmt.Fprintln(f.GetErrWriter(), WarnMsg("%s", connectivity.SubmitDisabledHint))
			}

			res, err := s.Submit(ctx, values)
			if err != nil {
				if wizard.IsTransitionError(err) {
					return transitionFailure(f, err)
				}
				return f.Fail(ExitFailure, ErrCodeSubmit, "submission not recorded", err.Error(), err)
			}

			var text string
			switch {
			case res.Delivered:
				text = SuccessMsg("Submission %s delivered", res.SubmissionID)
			case res.Drain != nil && res.Drain.Failed != "":
				text = WarnMsg("Submission %s queued; delivery failed and will be retried when connectivity returns", res.SubmissionID)
			default:
				text = InfoMsg("Submission %s queued; it will be delivered when you're back online", res.SubmissionID)
			}
			return f.Success(res, text+"\n")
		},
	}
	cmd.Flags().StringToStringVarP(&set, "set", "s", nil, "field values (name=value)")
	return cmd
}

// ValidateView is the validate command payload.
type ValidateView struct {
	Step   int               `json:"step"`
	Valid  bool              `json:"valid"`
	Values map[string]string `json:"values"`
	Errors any               `json:"errors,omitempty"`
}

func newValidateCommand(opts *RootOptions) *cobra.Command {
	var (
		set  map[string]string
		step int
	)
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check field values for a step without moving",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			if step == 0 {
				step = s.Tracker().Progress().CurrentStep
			}
			values, err := s.FormValues(cmd.Context())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "read form values", nil, err)
			}
			maps.Copy(values, set)
			values = onlyStep(s, step, values)

			report, err := s.ValidateStep(step, values)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeBadArgument, err.Error(), nil, err)
			}
			st, _ := s.Definition().Step(step)
			view := ValidateView{Step: step, Valid: report.Valid(), Values: values}
			if !report.Valid() {
				view.Errors = report.Errors
				if f.Format != "json" {
					fmt.Fprint(f.Writer, report.Summary())
				}
				return f.Fail(ExitFailure, ErrCodeValidation, "step fields are invalid", view, nil)
			}
			return f.Success(view, SuccessMsg("Step %d (%s) is valid", step, st.Title)+"\n")
		},
	}
	cmd.Flags().StringToStringVarP(&set, "set", "s", nil, "field values (name=value)")
	cmd.Flags().IntVar(&step, "step", 0, "step to validate (default current)")
	return cmd
}

func newReportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the progress report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			r, err := s.Tracker().Report()
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "build report", nil, err)
			}
			return f.Success(r, r.Text())
		},
	}
}

func newResetCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Discard progress and start over (queued submissions are kept)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f := opts.formatter(cmd)
			s, err := opts.openSession(cmd, f)
			if err != nil {
				return err
			}
			defer closeSession(s, &err)

			p, err := s.Reset(cmd.Context())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeGeneric, "reset", nil, err)
			}
			return f.Success(p, SuccessMsg("Progress cleared")+"\n")
		},
	}
}
