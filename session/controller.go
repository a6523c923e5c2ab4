package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/jwt"
	"github.com/MrEthical07/ctadmin/nav"
	"github.com/MrEthical07/ctadmin/tokenstore"
)

var (
	// ErrUnmounted is returned by commands issued after Unmount.
	ErrUnmounted = errors.New("session: controller unmounted")
	// ErrMissingUser is returned when a cookie login response has no user.
	ErrMissingUser = errors.New("session: login response has no user")
	// ErrMissingToken is returned when a token login response has no token.
	ErrMissingToken = errors.New("session: login response has no access token")
)

// Mode selects the session model.
type Mode int

const (
	// ModeCookie uses HTTP-only session cookies with CSRF protection.
	ModeCookie Mode = iota
	// ModeToken uses a stored bearer token.
	ModeToken
)

func (m Mode) String() string {
	switch m {
	case ModeCookie:
		return "cookie"
	case ModeToken:
		return "token"
	default:
		return "unknown"
	}
}

const (
	DefaultRenewInterval = 10 * time.Minute
	DefaultTokenKey      = "token"
	DefaultAdminRoute    = "/admin"
	DefaultLoginRoute    = "/login"
)

// Authenticator is the subset of the auth API the controller drives.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (api.LoginResult, error)
	CurrentUser(ctx context.Context) (api.User, error)
	Logout(ctx context.Context) error
}

// Renewer renews the session; normally a refresh.Coordinator.
type Renewer interface {
	Do(ctx context.Context) error
}

// EventKind names a session transition.
type EventKind string

const (
	EventBootstrap   EventKind = "bootstrap"
	EventLogin       EventKind = "login"
	EventLoginFailed EventKind = "login_failed"
	EventLogout      EventKind = "logout"
	EventRenewed     EventKind = "renewed"
	EventRenewFailed EventKind = "renew_failed"
	EventExpired     EventKind = "expired"
)

// Event reports a transition to the observer.
type Event struct {
	Kind          EventKind
	Username      string
	Authenticated bool
	Err           error
}

// Config tunes a Controller. Zero fields take the Default values.
type Config struct {
	Mode          Mode
	RenewInterval time.Duration
	TokenKey      string
	AdminRoute    string
	LoginRoute    string
}

func (c Config) withDefaults() Config {
	if c.RenewInterval <= 0 {
		c.RenewInterval = DefaultRenewInterval
	}
	if c.TokenKey == "" {
		c.TokenKey = DefaultTokenKey
	}
	if c.AdminRoute == "" {
		c.AdminRoute = DefaultAdminRoute
	}
	if c.LoginRoute == "" {
		c.LoginRoute = DefaultLoginRoute
	}
	return c
}

// Deps are the Controller's collaborators. Renewer is required in cookie
// mode and Tokens in token mode.
type Deps struct {
	Auth      Authenticator
	Renewer   Renewer
	Tokens    tokenstore.Store
	Navigator nav.Navigator
	Store     *Store
	Logger    *slog.Logger
	Observer  func(Event)
}

// Controller drives bootstrap, login, logout, periodic renewal and expiry.
type Controller struct {
	cfg      Config
	auth     Authenticator
	renewer  Renewer
	tokens   tokenstore.Store
	nav      nav.Navigator
	store    *Store
	logger   *slog.Logger
	observer func(Event)

	mu          sync.Mutex
	mounted     bool
	unmounted   bool
	booting     bool
	expireDue   bool // Expire arrived while bootstrap was running
	life        context.Context
	stop        context.CancelFunc
	renewCancel context.CancelFunc
	wg          sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
}

// NewController validates deps and returns an unmounted Controller.
func NewController(cfg Config, deps Deps) (*Controller, error) {
	cfg = cfg.withDefaults()
	if deps.Auth == nil {
		return nil, errors.New("session: authenticator is required")
	}
	switch cfg.Mode {
	case ModeCookie:
		if deps.Renewer == nil {
			return nil, errors.New("session: cookie mode requires a renewer")
		}
	case ModeToken:
		if deps.Tokens == nil {
			return nil, errors.New("session: token mode requires a token store")
		}
	default:
		return nil, errors.New("session: unknown mode")
	}
	if deps.Navigator == nil {
		deps.Navigator = nav.NewMemory("/")
	}
	if deps.Store == nil {
		deps.Store = NewStore()
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		cfg:      cfg,
		auth:     deps.Auth,
		renewer:  deps.Renewer,
		tokens:   deps.Tokens,
		nav:      deps.Navigator,
		store:    deps.Store,
		logger:   deps.Logger.With("component", "session", "mode", cfg.Mode.String()),
		observer: deps.Observer,
		ready:    make(chan struct{}),
	}, nil
}

// Store returns the state store the controller writes.
func (c *Controller) Store() *Store {
	return c.store
}

// State returns the current state.
func (c *Controller) State() State {
	return c.store.State()
}

// Mode returns the session model in use.
func (c *Controller) Mode() Mode {
	return c.cfg.Mode
}

// Ready is closed once bootstrap has settled or the controller is unmounted.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Mount starts bootstrap in the background. Later calls are no-ops.
// Cancelling ctx does not unmount; call Unmount for that.
func (c *Controller) Mount(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	if c.mounted || c.unmounted {
		c.mu.Unlock()
		return
	}
	c.mounted = true
	c.booting = true
	if c.life == nil {
		c.life, c.stop = context.WithCancel(context.WithoutCancel(ctx))
	}
	life := c.life
	c.wg.Add(1)
	c.mu.Unlock()

	go c.bootstrap(life)
}

// Unmount stops every timer and in-flight operation and blocks until the
// controller's goroutines have returned. State is left as it was.
func (c *Controller) Unmount() {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	c.stopRenewalLocked()
	if c.stop != nil {
		c.stop()
	}
	c.mu.Unlock()

	c.markReady()
	c.wg.Wait()
}

func (c *Controller) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

func (c *Controller) isUnmounted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unmounted
}

func (c *Controller) bootstrap(ctx context.Context) {
	defer c.wg.Done()
	defer c.markReady()

	var token string
	switch c.cfg.Mode {
	case ModeCookie:
		if err := c.renewer.Do(ctx); err != nil {
			c.logger.Debug("session: silent renewal skipped", "err", err)
		}
	case ModeToken:
		t, ok, err := tokenstore.Lookup(ctx, c.tokens, c.cfg.TokenKey)
		if err != nil {
			c.logger.Warn("session: token lookup failed", "err", err)
		}
		if !ok {
			c.settleBootstrap(State{}, Event{Kind: EventBootstrap})
			return
		}
		token = t
	}

	user, err := c.auth.CurrentUser(ctx)
	if err != nil {
		if c.isUnmounted() {
			return
		}
		c.logger.Info("session: no active session", "err", err)
		if c.cfg.Mode == ModeToken {
			c.deleteToken(ctx)
		}
		c.settleBootstrap(State{}, Event{Kind: EventBootstrap, Err: err})
		return
	}

	next := State{User: &user}
	if token != "" {
		if exp, ok := jwt.ExpiresAt(token); ok {
			next.SessionExpiresAt = exp
		}
	}
	c.settleBootstrap(next, Event{Kind: EventBootstrap})
}

// settle writes next (with Loading cleared) unless unmounted, starting or
// stopping the renewal loop to match. It reports whether the write happened.
func (c *Controller) settle(next State, ev Event) bool {
	return c.write(next, ev, false)
}

// settleBootstrap is bootstrap's settle. An Expire that arrived while
// bootstrap was running turns the outcome anonymous.
func (c *Controller) settleBootstrap(next State, ev Event) bool {
	return c.write(next, ev, true)
}

func (c *Controller) write(next State, ev Event, bootstrap bool) bool {
	next.Loading = false
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return false
	}
	if bootstrap {
		c.booting = false
		if c.expireDue {
			c.expireDue = false
			next = State{}
		}
	}
	c.store.set(next)
	if next.Authenticated() {
		c.startRenewalLocked()
	} else {
		c.stopRenewalLocked()
	}
	c.mu.Unlock()

	if ev.Username == "" {
		ev.Username = next.Username()
	}
	ev.Authenticated = next.Authenticated()
	c.emit(ev)
	return true
}

// Login authenticates and navigates to the admin route. Errors from the
// backend are returned unmodified. In cookie mode a successful login starts
// periodic renewal whether or not the controller was mounted; Unmount stops
// it.
func (c *Controller) Login(ctx context.Context, creds api.Credentials) (api.User, error) {
	if c.isUnmounted() {
		return api.User{}, ErrUnmounted
	}
	res, err := c.auth.Login(ctx, creds)
	if err != nil {
		c.emit(Event{Kind: EventLoginFailed, Username: creds.Username, Err: err})
		return api.User{}, err
	}

	var next State
	switch c.cfg.Mode {
	case ModeCookie:
		if res.User == nil {
			return api.User{}, ErrMissingUser
		}
		next = State{User: res.User, SessionExpiresAt: res.SessionExpiresAt}
	case ModeToken:
		if res.AccessToken == "" {
			return api.User{}, ErrMissingToken
		}
		if err := c.tokens.Set(ctx, c.cfg.TokenKey, res.AccessToken); err != nil {
			return api.User{}, err
		}
		user, err := c.auth.CurrentUser(ctx)
		if err != nil {
			c.deleteToken(ctx)
			c.emit(Event{Kind: EventLoginFailed, Username: creds.Username, Err: err})
			return api.User{}, err
		}
		next = State{User: &user}
		if exp, ok := jwt.ExpiresAt(res.AccessToken); ok {
			next.SessionExpiresAt = exp
		}
	}

	if !c.settle(next, Event{Kind: EventLogin}) {
		return api.User{}, ErrUnmounted
	}
	c.nav.Navigate(c.cfg.AdminRoute)
	return *next.User, nil
}

// Logout ends the session and navigates to the login route. In cookie mode
// the logout endpoint is called best-effort; its failure is only logged.
func (c *Controller) Logout(ctx context.Context) error {
	if c.isUnmounted() {
		return ErrUnmounted
	}
	var endpointErr error
	switch c.cfg.Mode {
	case ModeCookie:
		if endpointErr = c.auth.Logout(ctx); endpointErr != nil {
			c.logger.Warn("session: logout endpoint failed", "err", endpointErr)
		}
	case ModeToken:
		c.deleteToken(ctx)
	}

	username := c.store.State().Username()
	if !c.settle(State{}, Event{Kind: EventLogout, Username: username, Err: endpointErr}) {
		return ErrUnmounted
	}
	c.nav.Navigate(c.cfg.LoginRoute)
	return nil
}

// Expire drops the session after the backend rejected it for good. In token
// mode the stored token is removed as well. It does not navigate.
//
// While bootstrap is running the expiry is deferred to bootstrap, which
// then settles anonymous.
func (c *Controller) Expire(ctx context.Context) {
	if c.cfg.Mode == ModeToken {
		c.deleteToken(ctx)
	}
	c.mu.Lock()
	if c.booting && !c.unmounted {
		c.expireDue = true
		c.mu.Unlock()
		c.logger.Info("session: expired during bootstrap")
		return
	}
	c.mu.Unlock()
	username := c.store.State().Username()
	if c.settle(State{}, Event{Kind: EventExpired, Username: username}) {
		c.logger.Info("session: expired", "user", username)
	}
}

func (c *Controller) deleteToken(ctx context.Context) {
	if c.tokens == nil {
		return
	}
	if err := c.tokens.Delete(context.WithoutCancel(ctx), c.cfg.TokenKey); err != nil {
		c.logger.Warn("session: token removal failed", "err", err)
	}
}

func (c *Controller) emit(ev Event) {
	if c.observer != nil {
		c.observer(ev)
	}
}

func (c *Controller) startRenewalLocked() {
	if c.cfg.Mode != ModeCookie || c.renewCancel != nil || c.unmounted {
		return
	}
	if c.life == nil {
		// Login before Mount: the loop lives until Unmount.
		c.life, c.stop = context.WithCancel(context.Background())
	}
	ctx, cancel := context.WithCancel(c.life)
	c.renewCancel = cancel
	c.wg.Add(1)
	go c.renewLoop(ctx)
}

func (c *Controller) stopRenewalLocked() {
	if c.renewCancel != nil {
		c.renewCancel()
		c.renewCancel = nil
	}
}

func (c *Controller) renewLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.cfg.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := c.renewer.Do(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			c.emit(Event{Kind: EventRenewed, Username: c.store.State().Username(), Authenticated: true})
			continue
		}

		c.logger.Warn("session: periodic renewal failed", "err", err)
		username := c.store.State().Username()
		if c.settle(State{}, Event{Kind: EventRenewFailed, Username: username, Err: err}) {
			c.nav.Navigate(c.cfg.LoginRoute)
		}
		return
	}
}
