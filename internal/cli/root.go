package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/claimwiz/internal/config"
	"github.com/roach88/claimwiz/internal/logging"
	"github.com/roach88/claimwiz/internal/session"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string
	Offline    bool

	cfg       *config.Config
	closeLogs func() error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the claimwiz CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claimwiz",
		Short: "Tax credit claim wizard",
		Long: `Work through a multi-step tax credit claim.

Progress is checkpointed after every step so an interrupted session resumes
where it left off. Submissions made while offline are queued and delivered
when connectivity returns.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if opts.Database != "" {
				cfg.Database = opts.Database
			}
			level := cfg.LogLevel
			if opts.Verbose {
				level = "debug"
			}
			closeLogs, err := logging.Configure(level, cfg.LogFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "configure logging", err)
			}
			opts.cfg = cfg
			opts.closeLogs = closeLogs
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.closeLogs != nil {
				return opts.closeLogs()
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default $XDG_CONFIG_HOME/claimwiz/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "database path (overrides config)")
	cmd.PersistentFlags().BoolVar(&opts.Offline, "offline", false, "start with the platform reporting offline")

	// Add subcommands
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newGoToCommand(opts))
	cmd.AddCommand(newNextCommand(opts))
	cmd.AddCommand(newPrevCommand(opts))
	cmd.AddCommand(newSubmitCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newResetCommand(opts))
	cmd.AddCommand(newQueueCommand(opts))
	cmd.AddCommand(newProbeCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newAssetsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openSession initializes a session from the loaded config. The caller must
// Dispose it.
func (o *RootOptions) openSession(cmd *cobra.Command, f *OutputFormatter) (*session.Session, error) {
	online := !o.Offline
	s := session.New(o.cfg, session.Deps{Online: &online})
	if _, err := s.Init(cmd.Context()); err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeSession, "open session", err.Error(), err)
	}
	f.VerboseLog("Session database: %s", o.cfg.Database)
	return s, nil
}

// closeSession disposes s, folding a dispose failure into err.
func closeSession(s *session.Session, err *error) {
	if derr := s.Dispose(); derr != nil {
		*err = errors.Join(*err, derr)
	}
}
