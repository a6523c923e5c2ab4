// Package cli implements the ctadmin command-line tool.
package cli

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

// RootOptions holds the persistent flags shared by every command.
type RootOptions struct {
	Verbose    bool
	Format     string
	ConfigPath string
	APIURL     string
	Mode       string
	StateDir   string
	Timeout    time.Duration

	// httpClient replaces the default HTTP client. Tests point it at an
	// in-process backend.
	httpClient *http.Client
}

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the ctadmin root command with all subcommands.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctadmin",
		Short: "Administer copy-trade accounts from the terminal",
		Long: `ctadmin signs in to the copy-trade backend and manages accounts.

The cookie session (default) is renewed silently and survives between
invocations; the token session keeps a bearer token instead. Session
state lives in the state directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateRootOptions(opts); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				return err
			}
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "log requests and session events to stderr")
	flags.StringVar(&opts.Format, "format", "text", "output format: text|json")
	flags.StringVar(&opts.ConfigPath, "config", "", "config file (default $CTADMIN_CONFIG or <user config dir>/ctadmin/config.yaml)")
	flags.StringVar(&opts.APIURL, "api-url", "", "backend base URL (overrides config and environment)")
	flags.StringVar(&opts.Mode, "mode", "", "session model: cookie|token")
	flags.StringVar(&opts.StateDir, "state-dir", "", "directory holding session state")
	flags.DurationVar(&opts.Timeout, "timeout", 0, "per-request timeout (default from config, 30s)")

	cmd.AddCommand(
		NewLoginCommand(opts),
		NewLogoutCommand(opts),
		NewWhoamiCommand(opts),
		NewRefreshCommand(opts),
		NewAccountsCommand(opts),
		NewStatsCommand(opts),
		NewPublicStatsCommand(opts),
		NewWatchCommand(opts),
	)

	return cmd
}

func validateRootOptions(opts *RootOptions) error {
	if !slices.Contains(ValidFormats, opts.Format) {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
	}
	if opts.Mode != "" {
		if _, err := parseMode(opts.Mode); err != nil {
			return WrapExitError(ExitCommandError, "invalid --mode", err)
		}
	}
	if opts.Timeout < 0 {
		return NewExitError(ExitCommandError, "--timeout must not be negative")
	}
	return nil
}
