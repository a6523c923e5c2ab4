package apitest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/internal/rate"
	"github.com/MrEthical07/ctadmin/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// Cookie names and the CSRF header the fake backend uses.
const (
	AccessCookie  = "ct_access"
	RefreshCookie = "ct_refresh"
	CSRFCookie    = "ct_csrf"
	CSRFHeader    = "X-CSRF-Token"
)

// Backend error details.
const (
	DetailBadCredentials = "Usuario ou senha incorretos"
	DetailInvalidToken   = "Token invalido ou expirado"
	DetailInvalidSession = "Sessao invalida"
	DetailRevoked        = "Sessao revogada"
	DetailCSRF           = "CSRF token invalido"
	DetailForbidden      = "Acesso restrito a administradores"
	DetailNotFound       = "Conta nao encontrada"
	DetailDuplicate      = "Numero da conta ja existe"
	DetailBadAdminPass   = "Senha do admin invalida"
	DetailRateLimited    = "Muitas tentativas. Tente novamente mais tarde."
)

// Options configures a Server. Zero fields take the documented defaults.
type Options struct {
	// AdminUsername and AdminPassword seed the administrator
	// (admin / admin123).
	AdminUsername string
	AdminPassword string
	AdminEmail    string
	// AccessTTL is the access token lifetime (30m).
	AccessTTL time.Duration
	// RefreshTTL is the refresh token lifetime (7 days).
	RefreshTTL time.Duration
	// RevealTTL is the advertised password reveal window (30s).
	RevealTTL time.Duration
	// Secret signs access tokens.
	Secret []byte
	// Redis holds session state. An embedded miniredis is started when nil.
	Redis redis.UniversalClient
	// RevealLimit throttles password reveals per admin (3 per 10 minutes).
	RevealLimit rate.Rule
	// LoginLimit throttles logins per client address. Disabled by default.
	LoginLimit rate.Rule
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.AdminUsername == "" {
		o.AdminUsername = "admin"
	}
	if o.AdminPassword == "" {
		o.AdminPassword = "admin123"
	}
	if o.AdminEmail == "" {
		o.AdminEmail = "admin@copytrade.app"
	}
	if o.AccessTTL <= 0 {
		o.AccessTTL = 30 * time.Minute
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = 7 * 24 * time.Hour
	}
	if o.RevealTTL <= 0 {
		o.RevealTTL = 30 * time.Second
	}
	if len(o.Secret) == 0 {
		o.Secret = []byte("apitest-secret-key-not-for-production")
	}
	if o.RevealLimit == (rate.Rule{}) {
		o.RevealLimit = rate.Rule{Limit: 3, Window: 10 * time.Minute}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

type userRecord struct {
	user api.User
	hash []byte
}

// Server is a running fake backend.
type Server struct {
	opts     Options
	http     *httptest.Server
	mini     *miniredis.Miniredis
	rdb      redis.UniversalClient
	ownRedis bool
	tokens   *jwt.Manager
	sessions *sessionRegistry
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu       sync.Mutex
	users    map[string]*userRecord
	nextUser int64
	accounts *accountStore
	hits     map[string]int
	headers  map[string]http.Header

	failRefresh  atomic.Bool
	refreshDelay atomic.Int64
}

// Start launches a Server on a loopback port.
func Start(opts Options) (*Server, error) {
	opts = opts.withDefaults()

	s := &Server{
		opts:     opts,
		rdb:      opts.Redis,
		logger:   opts.Logger,
		users:    map[string]*userRecord{},
		accounts: newAccountStore(),
		hits:     map[string]int{},
		headers:  map[string]http.Header{},
	}
	if s.rdb == nil {
		mini, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("apitest: start redis: %w", err)
		}
		s.mini = mini
		s.rdb = redis.NewClient(&redis.Options{Addr: mini.Addr()})
		s.ownRedis = true
	}

	tokens, err := jwt.NewManager(jwt.Config{AccessTTL: opts.AccessTTL, Secret: opts.Secret})
	if err != nil {
		s.closeRedis()
		return nil, err
	}
	s.tokens = tokens
	s.sessions = &sessionRegistry{
		rdb:        s.rdb,
		prefix:     "apitest",
		refreshTTL: opts.RefreshTTL,
		accessTTL:  opts.AccessTTL,
	}
	s.limiter = rate.New(s.rdb, "apitest:rl")

	if _, err := s.AddUser(opts.AdminUsername, opts.AdminPassword, opts.AdminEmail, true); err != nil {
		s.closeRedis()
		return nil, err
	}

	s.http = httptest.NewServer(s.routes())
	return s, nil
}

// New starts a Server for the duration of the test.
func New(tb testingTB, opts Options) *Server {
	tb.Helper()
	s, err := Start(opts)
	if err != nil {
		tb.Fatalf("apitest: %v", err)
	}
	tb.Cleanup(s.Close)
	return s
}

// testingTB is the subset of testing.TB the package needs.
type testingTB interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}

// URL is the base URL of the server.
func (s *Server) URL() string {
	return s.http.URL
}

// Client returns a fresh copy of the server's HTTP client, without a
// cookie jar.
func (s *Server) Client() *http.Client {
	c := *s.http.Client()
	return &c
}

// Close shuts the server down.
func (s *Server) Close() {
	s.http.Close()
	s.closeRedis()
}

func (s *Server) closeRedis() {
	if !s.ownRedis {
		return
	}
	if c, ok := s.rdb.(*redis.Client); ok {
		_ = c.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

// AddUser registers a user and returns it.
func (s *Server) AddUser(username, password, email string, admin bool) (api.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return api.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return api.User{}, fmt.Errorf("apitest: user %q exists", username)
	}
	s.nextUser++
	u := api.User{
		ID:        s.nextUser,
		Username:  username,
		Email:     email,
		IsActive:  true,
		IsAdmin:   admin,
		CreatedAt: time.Now().UTC(),
	}
	s.users[username] = &userRecord{user: u, hash: hash}
	return u, nil
}

// SeedAccount stores an account directly, bypassing authentication.
func (s *Server) SeedAccount(in api.AccountCreate) api.Account {
	acc, _ := s.accounts.create(in, 1)
	return acc
}

// ExpireAccess invalidates every access token issued so far. Cookie
// sessions recover through refresh; bearer tokens do not.
func (s *Server) ExpireAccess() {
	if err := s.sessions.expireAccess(context.Background()); err != nil {
		s.logger.Error("apitest: expire access", "err", err)
	}
}

// FailRefresh makes every refresh call answer 401 while on is true.
func (s *Server) FailRefresh(on bool) {
	s.failRefresh.Store(on)
}

// SetRefreshDelay holds every refresh call for d before answering.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.refreshDelay.Store(int64(d))
}

// Hits returns how many requests reached method and path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// LastHeader returns header name of the latest request to method and path.
func (s *Server) LastHeader(method, path, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[method+" "+path]
	if !ok {
		return ""
	}
	return h.Get(name)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.hits[key]++
		s.headers[key] = r.Header.Clone()
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)

	r.Route("/api/v2/auth", func(r chi.Router) {
		r.Post("/login", s.loginV2)
		r.With(s.requireCSRF).Post("/refresh", s.refreshV2)
		r.Get("/me", s.meV2)
		r.With(s.requireCSRF).Post("/logout", s.logoutV2)
	})
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.loginV1)
		r.Get("/me", s.meV1)
		r.Post("/logout", s.logoutV1)
	})
	r.Route("/api/v2/admin", func(r chi.Router) {
		r.Use(s.requireCSRF, s.requireAdmin(s.cookieUser))
		s.mountAccounts(r, false)
		r.Post("/accounts/{id}/password/reveal", s.revealPassword)
		r.Post("/accounts/{id}/password/rotate", s.rotatePassword)
	})
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.requireAdmin(s.bearerUser))
		s.mountAccounts(r, true)
	})
	r.Get("/api/public/stats", s.publicStats)
	return r
}

type detailBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, detailBody{Detail: detail})
}

func noStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errors.New("corpo da requisicao invalido")
	}
	return nil
}
