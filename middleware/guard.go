package middleware

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrEthical07/ctadmin/nav"
	"github.com/MrEthical07/ctadmin/transport"
)

const (
	// DefaultAuthPathSegment marks requests to authentication endpoints.
	DefaultAuthPathSegment = "/api/v2/auth/"
	// DefaultLoginPath is the login route.
	DefaultLoginPath = "/login"
)

// maxAttempts bounds authorization-recovery re-dispatches per request.
const maxAttempts = 1

// Decision is the action Recovery takes for a dispatch outcome.
type Decision int

const (
	// Pass hands the outcome to the caller untouched.
	Pass Decision = iota
	// RenewAndRetry renews the session and re-dispatches the request once.
	RenewAndRetry
	// Redirect resets the credentials and navigates to the login route.
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Pass:
		return "pass"
	case RenewAndRetry:
		return "renew_and_retry"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Outcome reports what a recovery attempt ended in.
type Outcome int

const (
	// OutcomeRetried means renewal succeeded and the request was re-dispatched.
	OutcomeRetried Outcome = iota + 1
	// OutcomeRenewFailed means renewal failed and the login route was shown.
	OutcomeRenewFailed
	// OutcomeRedirected means the token model reset its credential.
	OutcomeRedirected
)

// RecoveryConfig configures [Recovery].
//
// A nil Renew selects the token model: every eligible 401 resets the
// credential and redirects. A non-nil Renew selects the cookie model.
type RecoveryConfig struct {
	AuthPathSegment string
	LoginPath       string
	Navigator       nav.Navigator
	Renew           func(ctx context.Context) error
	OnUnrecoverable func(ctx context.Context)
	Logger          *slog.Logger
	Observer        func(Outcome)
}

func (c RecoveryConfig) withDefaults() RecoveryConfig {
	if strings.TrimSpace(c.AuthPathSegment) == "" {
		c.AuthPathSegment = DefaultAuthPathSegment
	}
	if strings.TrimSpace(c.LoginPath) == "" {
		c.LoginPath = DefaultLoginPath
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Decide classifies the outcome of dispatching req.
func (c RecoveryConfig) Decide(req transport.Request, err error) Decision {
	c = c.withDefaults()
	if !transport.IsUnauthorized(err) {
		return Pass
	}
	if strings.Contains(req.Path, c.AuthPathSegment) {
		return Pass
	}
	if c.Navigator != nil && nav.IsWithin(c.Navigator.Location(), c.LoginPath) {
		return Pass
	}
	if c.Renew == nil {
		return Redirect
	}
	if req.Attempt >= maxAttempts {
		return Pass
	}
	return RenewAndRetry
}

// Recovery returns the response hook that handles expired sessions.
//
// The retried request goes back through the full pipeline so request hooks
// pick up any rotated credential. When recovery gives up, the caller sees
// the original error.
func Recovery(cfg RecoveryConfig) transport.ResponseHook {
	cfg = cfg.withDefaults()
	return func(ctx context.Context, d transport.Dispatcher, req transport.Request, resp *transport.Response, err error) (*transport.Response, error) {
		switch cfg.Decide(req, err) {
		case Pass:
			return resp, err
		case Redirect:
			cfg.Logger.Info("middleware: credential rejected, redirecting to login", "request", req.String())
			cfg.giveUp(ctx)
			cfg.observe(OutcomeRedirected)
			return resp, err
		}

		if rerr := cfg.Renew(ctx); rerr != nil {
			if ctx.Err() != nil {
				// Only the shared renewal's own failure ends the session.
				cfg.Logger.Debug("middleware: caller left before renewal settled", "request", req.String(), "err", rerr)
				return resp, err
			}
			cfg.Logger.Warn("middleware: session renewal failed", "request", req.String(), "err", rerr)
			cfg.giveUp(ctx)
			cfg.observe(OutcomeRenewFailed)
			return resp, err
		}
		cfg.observe(OutcomeRetried)
		return d.Dispatch(ctx, req.Retried())
	}
}

func (c RecoveryConfig) giveUp(ctx context.Context) {
	if c.OnUnrecoverable != nil {
		c.OnUnrecoverable(ctx)
	}
	if c.Navigator != nil {
		c.Navigator.Navigate(c.LoginPath)
	}
}

func (c RecoveryConfig) observe(o Outcome) {
	if c.Observer != nil {
		c.Observer(o)
	}
}
