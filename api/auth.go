package api

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/MrEthical07/ctadmin/transport"
)

// AuthPaths names the auth endpoints of one path set. An empty Refresh means
// the path set cannot renew a session.
type AuthPaths struct {
	Login   string
	Me      string
	Refresh string
	Logout  string
}

// CookiePaths is the cookie-session auth surface.
func CookiePaths() AuthPaths {
	return AuthPaths{
		Login:   "/api/v2/auth/login",
		Me:      "/api/v2/auth/me",
		Refresh: "/api/v2/auth/refresh",
		Logout:  "/api/v2/auth/logout",
	}
}

// TokenPaths is the legacy bearer-token auth surface.
func TokenPaths() AuthPaths {
	return AuthPaths{
		Login:  "/api/auth/login",
		Me:     "/api/auth/me",
		Logout: "/api/auth/logout",
	}
}

// Segment returns the directory shared by the auth endpoints with a trailing
// slash, e.g. "/api/v2/auth/". Requests whose path contains it are auth calls.
func (p AuthPaths) Segment() string {
	return strings.TrimRight(path.Dir(p.Login), "/") + "/"
}

// AuthAPI calls the auth endpoints.
type AuthAPI struct {
	d     transport.Dispatcher
	paths AuthPaths
}

// NewAuthAPI returns an AuthAPI sending through d.
func NewAuthAPI(d transport.Dispatcher, paths AuthPaths) *AuthAPI {
	return &AuthAPI{d: d, paths: paths}
}

// Paths returns the endpoints in use.
func (a *AuthAPI) Paths() AuthPaths {
	return a.paths
}

// Login submits credentials. Which LoginResult fields are set depends on the
// path set.
func (a *AuthAPI) Login(ctx context.Context, creds Credentials) (LoginResult, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return LoginResult{}, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}
	req, err := jsonRequest(http.MethodPost, a.paths.Login, creds)
	if err != nil {
		return LoginResult{}, err
	}
	var out LoginResult
	if err := call(ctx, a.d, req, &out); err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

// CurrentUser returns the authenticated user.
func (a *AuthAPI) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := call(ctx, a.d, get(a.paths.Me), &u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Refresh renews the session. The backend rotates the session cookies and
// answers 204.
func (a *AuthAPI) Refresh(ctx context.Context) error {
	if a.paths.Refresh == "" {
		return ErrRefreshUnsupported
	}
	return call(ctx, a.d, transport.NewRequest(http.MethodPost, a.paths.Refresh), nil)
}

// Logout ends the server-side session.
func (a *AuthAPI) Logout(ctx context.Context) error {
	if a.paths.Logout == "" {
		return ErrUnsupported
	}
	return call(ctx, a.d, transport.NewRequest(http.MethodPost, a.paths.Logout), nil)
}
