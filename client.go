package ctadmin

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/nav"
	"github.com/MrEthical07/ctadmin/refresh"
	"github.com/MrEthical07/ctadmin/session"
	"github.com/MrEthical07/ctadmin/sessionjar"
	"github.com/MrEthical07/ctadmin/tokenstore"
	"github.com/MrEthical07/ctadmin/transport"
)

// Client is an authenticated admin client for the copy-trade backend.
//
// Every request flows through one pipeline: a request-id hook, the
// credential hook for the configured Mode, and the session recovery hook.
// Client methods are safe for concurrent use.
type Client struct {
	config    Config
	logger    *slog.Logger
	navigator nav.Navigator

	pipeline   *transport.Pipeline
	jar        *sessionjar.Jar
	tokens     tokenstore.Store
	auth       *api.AuthAPI
	accounts   *Accounts
	public     *api.PublicAPI
	refresher  *refresh.Coordinator
	controller *session.Controller

	metrics *Metrics
	audit   *auditDispatcher

	closed    atomic.Bool
	closeOnce sync.Once
}

// Config returns the resolved configuration.
func (c *Client) Config() Config {
	return c.config
}

// Mode returns the session model in use.
func (c *Client) Mode() Mode {
	return c.config.Mode
}

// BaseURL returns the API base URL requests are resolved against.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Navigator returns the navigator redirects are sent to.
func (c *Client) Navigator() nav.Navigator {
	return c.navigator
}

// Session returns the session controller.
func (c *Client) Session() *session.Controller {
	return c.controller
}

// State returns a snapshot of the authentication state.
func (c *Client) State() session.State {
	return c.controller.State()
}

// Subscribe registers fn for every state change. fn must not call back into
// the Client synchronously.
func (c *Client) Subscribe(fn func(session.State)) (cancel func()) {
	return c.controller.Store().Subscribe(fn)
}

// Mount starts session bootstrap in the background and, in cookie mode,
// periodic renewal once authenticated. Wait on Ready for the outcome.
func (c *Client) Mount(ctx context.Context) {
	if c.closed.Load() {
		return
	}
	c.controller.Mount(ctx)
}

// Ready is closed once bootstrap has settled or the client is unmounted.
func (c *Client) Ready() <-chan struct{} {
	return c.controller.Ready()
}

// Unmount stops bootstrap and renewal and waits for them to return.
func (c *Client) Unmount() {
	c.controller.Unmount()
}

// Login signs in and navigates to the admin route.
func (c *Client) Login(ctx context.Context, username, password string) (api.User, error) {
	if c.closed.Load() {
		return api.User{}, ErrClientClosed
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return api.User{}, ErrEmptyCredentials
	}
	return c.controller.Login(ctx, api.Credentials{Username: username, Password: password})
}

// Logout signs out and navigates to the login route. In cookie mode any
// local cookies left behind by an unreachable backend are dropped too.
func (c *Client) Logout(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := c.controller.Logout(ctx); err != nil {
		return err
	}
	if c.jar != nil {
		if err := c.jar.Clear(ctx); err != nil {
			c.logger.Warn("ctadmin: cookie cleanup failed", "err", err)
		}
	}
	return nil
}

// CurrentUser asks the backend who is signed in. It does not change the
// session state.
func (c *Client) CurrentUser(ctx context.Context) (api.User, error) {
	if c.closed.Load() {
		return api.User{}, ErrClientClosed
	}
	return c.auth.CurrentUser(ctx)
}

// Refresh renews the cookie session now, joining a renewal already in
// flight. Token mode has nothing to renew and returns
// [ErrRefreshUnsupported].
func (c *Client) Refresh(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if c.refresher == nil {
		return ErrRefreshUnsupported
	}
	return c.refresher.Do(ctx)
}

// RenewalInFlight reports whether a cookie-session renewal is running.
func (c *Client) RenewalInFlight() bool {
	return c.refresher != nil && c.refresher.InFlight()
}

// RenewalCalls returns how many renewal requests reached the backend.
func (c *Client) RenewalCalls() uint64 {
	if c.refresher == nil {
		return 0
	}
	return c.refresher.Calls()
}

// Accounts returns the account administration API.
func (c *Client) Accounts() *Accounts {
	return c.accounts
}

// Public returns the unauthenticated API.
func (c *Client) Public() *api.PublicAPI {
	return c.public
}

// Do sends a custom request through the authenticated pipeline.
func (c *Client) Do(ctx context.Context, req transport.Request) (*transport.Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	return c.pipeline.Dispatch(ctx, req)
}

// MetricsSnapshot copies the client's counters and histograms.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Close unmounts the session and flushes pending audit events. The client
// rejects further commands.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.controller.Unmount()
		c.audit.Close()
	})
}

// expire is the recovery hook's last resort: the backend rejected the
// session and it could not be renewed.
func (c *Client) expire(ctx context.Context) {
	c.controller.Expire(ctx)
}
