package ctadmin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/middleware"
	"github.com/MrEthical07/ctadmin/nav"
	"github.com/MrEthical07/ctadmin/refresh"
	"github.com/MrEthical07/ctadmin/session"
	"github.com/MrEthical07/ctadmin/sessionjar"
	"github.com/MrEthical07/ctadmin/tokenstore"
	"github.com/MrEthical07/ctadmin/transport"
)

// Builder assembles a [Client]. Configure it during initialization and call
// Build once.
type Builder struct {
	config     Config
	runtimeEnv RuntimeEnv

	httpClient  *http.Client
	tokens      tokenstore.Store
	cookieStore tokenstore.Store
	navigator   nav.Navigator
	logger      *slog.Logger
	auditSink   AuditSink

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithMode selects the session model.
func (b *Builder) WithMode(mode Mode) *Builder {
	b.config.Mode = mode
	return b
}

// WithBaseURL pins the API base URL, bypassing [ResolveBaseURL].
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.config.BaseURL = baseURL
	return b
}

// WithRuntimeEnv supplies the deploy-time environment consulted when no
// BaseURL is configured.
func (b *Builder) WithRuntimeEnv(env RuntimeEnv) *Builder {
	b.runtimeEnv = env
	return b
}

// WithHTTPClient sets the HTTP client. It is copied; in cookie mode the copy
// gets a session jar unless the client already has one.
func (b *Builder) WithHTTPClient(client *http.Client) *Builder {
	b.httpClient = client
	return b
}

// WithTokenStore sets where ModeToken keeps the bearer token. Defaults to
// an in-memory store.
func (b *Builder) WithTokenStore(store tokenstore.Store) *Builder {
	b.tokens = store
	return b
}

// WithCookieStore persists the cookie-mode session jar in store so a
// session survives process restarts.
func (b *Builder) WithCookieStore(store tokenstore.Store) *Builder {
	b.cookieStore = store
	return b
}

// WithNavigator sets the navigation target for redirects. Defaults to an
// in-memory navigator starting at "/".
func (b *Builder) WithNavigator(n nav.Navigator) *Builder {
	b.navigator = n
	return b
}

// WithLogger sets the structured logger. Defaults to discarding.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination and enables auditing.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client. In cookie mode
// with a cookie store, persisted cookies are restored here.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if cfg.BaseURL == "" {
		cfg.BaseURL = ResolveBaseURL(b.runtimeEnv)
	}
	cfg = cfg.withModeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	navigator := b.navigator
	if navigator == nil {
		navigator = nav.NewMemory("/")
	}

	c := &Client{
		config:    cfg,
		logger:    logger.With("component", "ctadmin", "mode", cfg.Mode.String()),
		navigator: navigator,
		metrics:   NewMetrics(cfg.Metrics),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	hc := &http.Client{Timeout: cfg.HTTP.Timeout}
	if b.httpClient != nil {
		copied := *b.httpClient
		hc = &copied
	}

	// -------- CREDENTIAL SOURCE --------
	var credential transport.RequestHook
	switch cfg.Mode {
	case ModeCookie:
		src, err := b.cookieSource(hc, base, logger, cfg.HTTP)
		if err != nil {
			c.audit.Close()
			return nil, err
		}
		if jar, ok := src.(*sessionjar.Jar); ok {
			c.jar = jar
		}
		credential = middleware.CSRF(src, cfg.CSRF.CookieName, cfg.CSRF.HeaderName)
	case ModeToken:
		c.tokens = b.tokens
		if c.tokens == nil {
			c.tokens = tokenstore.NewMemory()
		}
		credential = middleware.Bearer(c.tokens, cfg.Token.Key, logger)
	}

	// -------- PIPELINE --------
	pipeline, err := transport.NewPipeline(cfg.BaseURL, hc,
		transport.WithUserAgent(cfg.HTTP.UserAgent),
		transport.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		transport.WithObserver(c.observeRoundTrip),
		transport.WithRequestHook(middleware.RequestID(middleware.DefaultRequestIDHeader)),
		transport.WithRequestHook(credential),
	)
	if err != nil {
		c.audit.Close()
		return nil, err
	}
	c.pipeline = pipeline

	// -------- COLLABORATORS --------
	c.auth = api.NewAuthAPI(pipeline, cfg.Endpoints.Auth)
	c.accounts = &Accounts{api: api.NewAccountsAPI(pipeline, cfg.Endpoints.AdminPrefix), client: c}
	c.public = api.NewPublicAPI(pipeline)

	recovery := middleware.RecoveryConfig{
		AuthPathSegment: cfg.Endpoints.AuthSegment,
		LoginPath:       cfg.Routes.Login,
		Navigator:       navigator,
		OnUnrecoverable: c.expire,
		Logger:          logger,
		Observer:        c.observeRecovery,
	}
	deps := session.Deps{
		Auth:      c.auth,
		Navigator: navigator,
		Logger:    logger,
		Observer:  c.observeSession,
	}
	if cfg.Mode == ModeCookie {
		c.refresher = refresh.New(refresh.RenewerFunc(c.auth.Refresh), refresh.WithObserver(c.observeRenewal))
		recovery.Renew = c.refresher.Do
		deps.Renewer = c.refresher
	} else {
		deps.Tokens = c.tokens
	}
	pipeline.OnResponse(middleware.Recovery(recovery))

	// -------- SESSION CONTROLLER --------
	controller, err := session.NewController(session.Config{
		Mode:          cfg.Mode,
		RenewInterval: cfg.Renewal.Interval,
		TokenKey:      cfg.Token.Key,
		AdminRoute:    cfg.Routes.Admin,
		LoginRoute:    cfg.Routes.Login,
	}, deps)
	if err != nil {
		c.audit.Close()
		return nil, err
	}
	c.controller = controller

	b.built = true
	return c, nil
}

// cookieSource installs a session jar on hc unless it carries its own, and
// returns what the CSRF hook reads the cookie from.
func (b *Builder) cookieSource(hc *http.Client, base *url.URL, logger *slog.Logger, httpCfg HTTPConfig) (middleware.CookieSource, error) {
	if hc.Jar != nil {
		return jarSource{jar: hc.Jar, base: base}, nil
	}
	opts := []sessionjar.Option{sessionjar.WithLogger(logger)}
	if b.cookieStore != nil {
		opts = append(opts, sessionjar.WithStore(b.cookieStore, sessionjar.DefaultStoreKey))
	}
	jar, err := sessionjar.New(base, opts...)
	if err != nil {
		return nil, err
	}
	if b.cookieStore != nil {
		ctx := context.Background()
		if httpCfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, httpCfg.Timeout)
			defer cancel()
		}
		if err := jar.Load(ctx); err != nil {
			return nil, fmt.Errorf("restore cookies: %w", err)
		}
	}
	hc.Jar = jar
	return jar, nil
}

// jarSource reads cookies from a caller-supplied jar at the API origin.
type jarSource struct {
	jar  http.CookieJar
	base *url.URL
}

func (s jarSource) CookieValue(name string) (string, bool) {
	for _, ck := range s.jar.Cookies(s.base) {
		if ck.Name == name {
			return ck.Value, true
		}
	}
	return "", false
}
