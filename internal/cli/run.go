package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/ctadmin"
	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/session"
	"github.com/MrEthical07/ctadmin/tokenstore"
	"github.com/MrEthical07/ctadmin/transport"
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeConfig       = "config"
	ErrCodeInput        = "invalid_input"
	ErrCodeAuthRequired = "auth_required"
	ErrCodeRejected     = "rejected"
	ErrCodeNetwork      = "network"
	ErrCodeUnsupported  = "unsupported"
	ErrCodeInternal     = "internal"
)

// invocation is what a command body gets to work with.
type invocation struct {
	out      *OutputFormatter
	client   *ctadmin.Client
	settings settings
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// withClient resolves settings, builds a client, runs fn and reports its
// error. configure may adjust settings before the client is built.
func withClient(opts *RootOptions, cmd *cobra.Command, configure func(*settings), fn func(ctx context.Context, inv *invocation) error) error {
	out := newFormatter(opts, cmd)

	s, err := resolveSettings(opts)
	if err != nil {
		return reportCode(out, ExitCommandError, ErrCodeConfig, err)
	}
	if configure != nil {
		configure(&s)
	}
	client, err := newClient(opts, s, cmd.ErrOrStderr())
	if err != nil {
		return reportCode(out, ExitCommandError, ErrCodeConfig, err)
	}
	defer client.Close()

	out.VerboseLog("backend %s (%s session, state %s)", client.BaseURL(), client.Mode(), s.statePath())

	if err := fn(cmd.Context(), &invocation{out: out, client: client, settings: s}); err != nil {
		return report(out, err)
	}
	return nil
}

// report writes err through out and converts it to an ExitError. Errors
// that already carry an exit code are reported as they are.
func report(out *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code := ErrCodeRejected
		if exitErr.Code == ExitCommandError {
			code = ErrCodeInput
		}
		_ = out.Error(code, exitErr.Error(), transport.StatusCode(err))
		return exitErr
	}

	var httpErr *transport.HTTPError
	var netErr *transport.TransportError
	switch {
	case errors.Is(err, ctadmin.ErrNotAuthenticated),
		errors.Is(err, tokenstore.ErrNotFound),
		transport.IsUnauthorized(err):
		msg := "not signed in; run \"ctadmin login\""
		if d := transport.Detail(err); d != "" {
			msg = d + "; run \"ctadmin login\""
		}
		_ = out.Error(ErrCodeAuthRequired, msg, transport.StatusCode(err))
		return WrapExitError(ExitAuthRequired, "authentication required", err)
	case errors.As(err, &httpErr):
		msg := httpErr.Detail
		if msg == "" {
			msg = err.Error()
		}
		_ = out.Error(ErrCodeRejected, msg, httpErr.Status)
		return WrapExitError(ExitFailure, "request rejected", err)
	case errors.As(err, &netErr):
		return reportCode(out, ExitCommandError, ErrCodeNetwork, err)
	case errors.Is(err, api.ErrInvalidInput),
		errors.Is(err, api.ErrInvalidStatus),
		errors.Is(err, api.ErrPasswordTooShort),
		errors.Is(err, ctadmin.ErrEmptyCredentials):
		return reportCode(out, ExitCommandError, ErrCodeInput, err)
	case errors.Is(err, api.ErrUnsupported),
		errors.Is(err, api.ErrRefreshUnsupported):
		return reportCode(out, ExitCommandError, ErrCodeUnsupported, err)
	default:
		return reportCode(out, ExitFailure, ErrCodeInternal, err)
	}
}

func reportCode(out *OutputFormatter, exit int, code string, err error) error {
	_ = out.Error(code, err.Error(), 0)
	return WrapExitError(exit, code, err)
}

// mountSession bootstraps the persisted session and waits for it to settle.
func mountSession(ctx context.Context, client *ctadmin.Client) (session.State, error) {
	client.Mount(ctx)
	select {
	case <-client.Ready():
	case <-ctx.Done():
		return session.State{}, ctx.Err()
	}
	state := client.State()
	if !state.Authenticated() {
		return state, ctadmin.ErrNotAuthenticated
	}
	return state, nil
}

func inputError(message string) error {
	return NewExitError(ExitCommandError, message)
}
