package ctadmin

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/middleware"
	"github.com/MrEthical07/ctadmin/session"
)

// Mode selects how the client authenticates against the backend.
type Mode = session.Mode

const (
	// ModeCookie uses HTTP-only session cookies, CSRF double submit and
	// silent renewal. It is the default.
	ModeCookie = session.ModeCookie
	// ModeToken keeps a bearer token in a tokenstore. Expired tokens are not
	// renewed; the user signs in again.
	ModeToken = session.ModeToken
)

// Config holds every tunable of a Client.
//
// Config values are copied into the Client at Build time; later changes to
// the caller's copy have no effect.
type Config struct {
	Mode      Mode
	BaseURL   string
	CSRF      CSRFConfig
	Token     TokenConfig
	Endpoints EndpointsConfig
	Routes    RoutesConfig
	Renewal   RenewalConfig
	HTTP      HTTPConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CSRFConfig names the readable cookie and the header it is echoed into.
type CSRFConfig struct {
	CookieName string
	HeaderName string
}

// TokenConfig configures bearer-token storage in ModeToken.
type TokenConfig struct {
	Key string
}

/*
====================================
ENDPOINT AND ROUTE CONFIG
====================================
*/

// EndpointsConfig selects the backend paths. Empty fields are filled from
// the Mode: v2 paths for ModeCookie, v1 paths for ModeToken.
type EndpointsConfig struct {
	Auth        api.AuthPaths
	AdminPrefix string
	// AuthSegment marks requests that never trigger session recovery.
	AuthSegment string
}

// RoutesConfig names the navigation targets.
type RoutesConfig struct {
	Admin string
	Login string
}

/*
====================================
RENEWAL AND HTTP CONFIG
====================================
*/

// RenewalConfig tunes cookie-session renewal.
type RenewalConfig struct {
	// Interval between background renewals while authenticated.
	Interval time.Duration
}

// HTTPConfig tunes the underlying HTTP client.
type HTTPConfig struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the cookie-mode configuration used when the caller
// supplies none. BaseURL is left empty so Build resolves it.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Mode: ModeCookie,
		CSRF: CSRFConfig{
			CookieName: middleware.DefaultCSRFCookie,
			HeaderName: middleware.DefaultCSRFHeader,
		},
		Token: TokenConfig{
			Key: session.DefaultTokenKey,
		},
		Routes: RoutesConfig{
			Admin: session.DefaultAdminRoute,
			Login: session.DefaultLoginRoute,
		},
		Renewal: RenewalConfig{
			Interval: session.DefaultRenewInterval,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "ctadmin/1",
			MaxBodyBytes: 4 << 20,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// withModeDefaults fills endpoint fields the caller left empty.
func (c Config) withModeDefaults() Config {
	auth := api.CookiePaths()
	prefix := api.AdminPrefix
	if c.Mode == ModeToken {
		auth = api.TokenPaths()
		prefix = api.LegacyAdminPrefix
	}
	if c.Endpoints.Auth == (api.AuthPaths{}) {
		c.Endpoints.Auth = auth
	}
	if c.Endpoints.AdminPrefix == "" {
		c.Endpoints.AdminPrefix = prefix
	}
	if c.Endpoints.AuthSegment == "" {
		c.Endpoints.AuthSegment = c.Endpoints.Auth.Segment()
	}
	return c
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first problem in c. Endpoint fields left empty are
// checked with their Mode defaults. Every error wraps [ErrInvalidConfig].
func (c *Config) Validate() error {
	v := c.withModeDefaults()
	if v.Mode != ModeCookie && v.Mode != ModeToken {
		return invalid("unknown Mode %d", int(v.Mode))
	}

	u, err := url.Parse(v.BaseURL)
	if err != nil || u.Host == "" {
		return invalid("BaseURL %q must be an absolute URL", v.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("BaseURL scheme must be http or https")
	}

	switch v.Mode {
	case ModeCookie:
		if strings.TrimSpace(v.CSRF.CookieName) == "" {
			return invalid("CSRF CookieName must be set in cookie mode")
		}
		if strings.TrimSpace(v.CSRF.HeaderName) == "" {
			return invalid("CSRF HeaderName must be set in cookie mode")
		}
		if v.Renewal.Interval <= 0 {
			return invalid("Renewal Interval must be > 0")
		}
		if v.Endpoints.Auth.Refresh == "" {
			return invalid("cookie mode requires a refresh endpoint")
		}
	case ModeToken:
		if strings.TrimSpace(v.Token.Key) == "" {
			return invalid("Token Key must be set in token mode")
		}
	}

	if v.Endpoints.Auth.Login == "" || v.Endpoints.Auth.Me == "" {
		return invalid("Endpoints Auth requires Login and Me paths")
	}
	if !strings.HasPrefix(v.Routes.Admin, "/") || !strings.HasPrefix(v.Routes.Login, "/") {
		return invalid("Routes must be absolute paths")
	}
	if v.Routes.Admin == v.Routes.Login {
		return invalid("Routes Admin and Login must differ")
	}

	if v.HTTP.Timeout < 0 {
		return invalid("HTTP Timeout must be >= 0")
	}
	if v.HTTP.MaxBodyBytes < 0 {
		return invalid("HTTP MaxBodyBytes must be >= 0")
	}

	if v.Audit.Enabled && v.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0 when audit is enabled")
	}
	if v.Metrics.EnableLatencyHistograms && !v.Metrics.Enabled {
		return invalid("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
