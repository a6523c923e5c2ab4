package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/ctadmin"
	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/session"
	"github.com/MrEthical07/ctadmin/transport"
)

// sessionView is the printed form of a session.
type sessionView struct {
	User             api.User   `json:"user"`
	Mode             string     `json:"mode"`
	SessionExpiresAt *time.Time `json:"session_expires_at,omitempty"`
}

func newSessionView(mode ctadmin.Mode, state session.State) sessionView {
	v := sessionView{Mode: mode.String()}
	if state.User != nil {
		v.User = *state.User
	}
	if !state.SessionExpiresAt.IsZero() {
		exp := state.SessionExpiresAt
		v.SessionExpiresAt = &exp
	}
	return v
}

func (v sessionView) render(w io.Writer) error {
	role := "operator"
	if v.User.IsAdmin {
		role = "administrator"
	}
	fmt.Fprintf(w, "Signed in as %s <%s> (%s, %s session)\n", v.User.Username, v.User.Email, role, v.Mode)
	if v.SessionExpiresAt != nil {
		fmt.Fprintf(w, "Session valid until %s\n", v.SessionExpiresAt.Local().Format(time.RFC1123))
	}
	return nil
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and store the session",
		Long: `Sign in to the backend and keep the session in the state directory.

The password is read from stdin with --password-stdin, or from
$CTADMIN_PASSWORD. The username defaults to the config file or
$CTADMIN_USERNAME.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				username := inv.settings.username
				if len(args) == 1 {
					username = args[0]
				}
				if strings.TrimSpace(username) == "" {
					return inputError("username required: pass it as an argument or set $CTADMIN_USERNAME")
				}
				password, err := readPassword(cmd.InOrStdin(), passwordStdin)
				if err != nil {
					return err
				}

				if _, err := inv.client.Login(ctx, username, password); err != nil {
					if transport.IsUnauthorized(err) {
						// The login endpoint never triggers session recovery.
						msg := "sign-in rejected"
						if d := transport.Detail(err); d != "" {
							msg += ": " + d
						}
						return &ExitError{Code: ExitFailure, Message: msg}
					}
					return err
				}
				view := newSessionView(inv.client.Mode(), inv.client.State())
				return inv.out.Success(view, view.render)
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from the first line of stdin")
	return cmd
}

func readPassword(stdin io.Reader, fromStdin bool) (string, error) {
	if !fromStdin {
		if p := os.Getenv(envPassword); p != "" {
			return p, nil
		}
		return "", inputError("password required: use --password-stdin or set $CTADMIN_PASSWORD")
	}
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", WrapExitError(ExitCommandError, "read password", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", inputError("empty password on stdin")
	}
	return line, nil
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "End the session and forget stored credentials",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				if err := inv.client.Logout(ctx); err != nil {
					return err
				}
				return inv.out.Success(map[string]string{"message": "signed out"}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Signed out")
					return err
				})
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in administrator",
		Long: `Restore the stored session the way a fresh dashboard load does and
print who it belongs to. A cookie session is renewed in the process.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				state, err := mountSession(ctx, inv.client)
				if err != nil {
					return err
				}
				view := newSessionView(inv.client.Mode(), state)
				return inv.out.Success(view, view.render)
			})
		},
	}
}

// NewRefreshCommand creates the refresh command.
func NewRefreshCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "refresh",
		Short:         "Renew the cookie session now",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(rootOpts, cmd, nil, func(ctx context.Context, inv *invocation) error {
				if err := inv.client.Refresh(ctx); err != nil {
					return err
				}
				return inv.out.Success(map[string]string{"message": "session renewed"}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, "Session renewed")
					return err
				})
			})
		},
	}
}

// watchSummary is printed when watch returns.
type watchSummary struct {
	Username string        `json:"username"`
	Renewals uint64        `json:"renewals"`
	Elapsed  time.Duration `json:"elapsed_ns"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		interval time.Duration
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session alive until interrupted",
		Long: `Restore the stored session and renew it periodically, the way an open
dashboard does, until interrupted or --for elapses. Exits with status 3
if the session is lost.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				return report(newFormatter(rootOpts, cmd), inputError("--interval must be positive"))
			}
			configure := func(s *settings) { s.renewInterval = interval }
			return withClient(rootOpts, cmd, configure, func(ctx context.Context, inv *invocation) error {
				if inv.client.Mode() != ctadmin.ModeCookie {
					return ctadmin.ErrRefreshUnsupported
				}
				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}
				return runWatch(ctx, inv)
			})
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", session.DefaultRenewInterval, "renewal interval")
	cmd.Flags().DurationVar(&duration, "for", 0, "stop after this long (default: until interrupted)")
	return cmd
}

func runWatch(ctx context.Context, inv *invocation) error {
	started := time.Now()
	state, err := mountSession(ctx, inv.client)
	if err != nil {
		return err
	}
	username := state.Username()
	inv.out.VerboseLog("watching session of %s", username)

	// Subscribers run on the writer's goroutine; hand states off.
	states := make(chan session.State, 8)
	cancel := inv.client.Subscribe(func(s session.State) {
		select {
		case states <- s:
		default:
		}
	})
	defer cancel()

	summary := func() watchSummary {
		return watchSummary{
			Username: username,
			Renewals: inv.client.RenewalCalls(),
			Elapsed:  time.Since(started),
		}
	}

	for {
		select {
		case <-ctx.Done():
			sum := summary()
			return inv.out.Success(sum, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Session of %s kept alive for %s (%d renewals)\n",
					sum.Username, sum.Elapsed.Round(time.Second), sum.Renewals)
				return err
			})
		case s := <-states:
			if !s.Authenticated() {
				return ctadmin.ErrNotAuthenticated
			}
		}
	}
}
