package apitest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/internal/rate"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type authError struct {
	status int
	detail string
}

func (e *authError) Error() string { return e.detail }

func unauthorized(detail string) *authError {
	return &authError{status: http.StatusUnauthorized, detail: detail}
}

func writeAuthError(w http.ResponseWriter, err error) {
	var ae *authError
	if errors.As(err, &ae) {
		if ae.status == http.StatusUnauthorized && ae.detail == DetailInvalidToken {
			w.Header().Set("WWW-Authenticate", "Bearer")
		}
		writeDetail(w, ae.status, ae.detail)
		return
	}
	writeDetail(w, http.StatusInternalServerError, "erro interno")
}

// authenticate checks username and password.
func (s *Server) authenticate(username, password string) (api.User, bool) {
	s.mu.Lock()
	rec, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return api.User{}, false
	}
	if bcrypt.CompareHashAndPassword(rec.hash, []byte(password)) != nil {
		return api.User{}, false
	}
	return rec.user, rec.user.IsActive
}

func (s *Server) lookupUser(username string) (api.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.users[username]
	if !ok {
		return api.User{}, unauthorized("Usuario nao encontrado")
	}
	if !rec.user.IsActive {
		return api.User{}, unauthorized("Usuario inativo")
	}
	return rec.user, nil
}

// userFromToken verifies an access token and checks its session.
func (s *Server) userFromToken(ctx context.Context, token string) (api.User, string, error) {
	if token == "" {
		return api.User{}, "", unauthorized(DetailInvalidToken)
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return api.User{}, "", unauthorized(DetailInvalidToken)
	}
	user, err := s.lookupUser(claims.Username())
	if err != nil {
		return api.User{}, "", err
	}
	if claims.SID == "" {
		return api.User{}, "", unauthorized(DetailInvalidSession)
	}
	state, err := s.sessions.state(ctx, claims.SID)
	if err != nil {
		return api.User{}, "", err
	}
	switch state {
	case sessionRevoked:
		return api.User{}, "", unauthorized(DetailRevoked)
	case sessionStale, sessionMissing:
		return api.User{}, "", unauthorized(DetailInvalidToken)
	}
	return user, claims.SID, nil
}

func (s *Server) cookieUser(r *http.Request) (api.User, error) {
	var token string
	if c, err := r.Cookie(AccessCookie); err == nil {
		token = c.Value
	}
	u, _, err := s.userFromToken(r.Context(), token)
	return u, err
}

func (s *Server) bearerUser(r *http.Request) (api.User, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return api.User{}, &authError{status: http.StatusForbidden, detail: "Not authenticated"}
	}
	u, _, err := s.userFromToken(r.Context(), strings.TrimSpace(token))
	return u, err
}

type userKey struct{}

func currentUser(r *http.Request) api.User {
	u, _ := r.Context().Value(userKey{}).(api.User)
	return u
}

func (s *Server) requireAdmin(resolve func(*http.Request) (api.User, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := resolve(r)
			if err != nil {
				writeAuthError(w, err)
				return
			}
			if !u.IsAdmin {
				writeDetail(w, http.StatusForbidden, DetailForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
		})
	}
}

// requireCSRF enforces the double submit check on state-changing methods.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		c, err := r.Cookie(CSRFCookie)
		header := r.Header.Get(CSRFHeader)
		if err != nil || c.Value == "" || header == "" || c.Value != header {
			writeDetail(w, http.StatusForbidden, DetailCSRF)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) checkLoginLimit(w http.ResponseWriter, r *http.Request) bool {
	err := s.limiter.Allow(r.Context(), "login_ip", clientAddr(r), s.opts.LoginLimit)
	switch {
	case err == nil:
		return true
	case errors.Is(err, rate.ErrRateLimited):
		writeDetail(w, http.StatusTooManyRequests, DetailRateLimited)
	default:
		writeDetail(w, http.StatusServiceUnavailable, "servico indisponivel")
	}
	return false
}

func (s *Server) setSessionCookies(w http.ResponseWriter, access string, tokens issued) {
	refreshAge := int(s.opts.RefreshTTL / time.Second)
	http.SetCookie(w, &http.Cookie{
		Name: AccessCookie, Value: access, Path: "/",
		MaxAge: int(s.opts.AccessTTL / time.Second), HttpOnly: true, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: RefreshCookie, Value: tokens.refresh, Path: "/api/v2/auth",
		MaxAge: refreshAge, HttpOnly: true, SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: CSRFCookie, Value: tokens.csrf, Path: "/",
		MaxAge: refreshAge, SameSite: http.SameSiteStrictMode,
	})
}

func clearSessionCookies(w http.ResponseWriter) {
	for _, c := range []struct{ name, path string }{
		{AccessCookie, "/"},
		{RefreshCookie, "/api/v2/auth"},
		{CSRFCookie, "/"},
	} {
		http.SetCookie(w, &http.Cookie{Name: c.name, Value: "", Path: c.path, MaxAge: -1})
	}
}

func (s *Server) loginV2(w http.ResponseWriter, r *http.Request) {
	if !s.checkLoginLimit(w, r) {
		return
	}
	var creds api.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	user, ok := s.authenticate(creds.Username, creds.Password)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, DetailBadCredentials)
		return
	}

	sid := uuid.NewString()
	tokens, err := s.sessions.create(r.Context(), sid, user.Username, true)
	if err != nil {
		s.logger.Error("apitest: create session", "err", err)
		writeDetail(w, http.StatusInternalServerError, "erro interno")
		return
	}
	access, err := s.tokens.Issue(user.Username, sid)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "erro interno")
		return
	}
	s.setSessionCookies(w, access, tokens)
	noStore(w)
	writeJSON(w, http.StatusOK, api.LoginResult{
		User:             &user,
		SessionExpiresAt: time.Now().UTC().Add(s.opts.RefreshTTL),
	})
}

func (s *Server) refreshV2(w http.ResponseWriter, r *http.Request) {
	if d := time.Duration(s.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}
	if s.failRefresh.Load() {
		writeDetail(w, http.StatusUnauthorized, DetailInvalidSession)
		return
	}

	refresh, rerr := r.Cookie(RefreshCookie)
	csrf, cerr := r.Cookie(CSRFCookie)
	if rerr != nil || cerr != nil || refresh.Value == "" || csrf.Value == "" {
		writeDetail(w, http.StatusUnauthorized, DetailInvalidSession)
		return
	}
	next, sid, username, err := s.sessions.rotate(r.Context(), refresh.Value, csrf.Value)
	if err != nil {
		if !errors.Is(err, errSessionInvalid) {
			s.logger.Error("apitest: rotate session", "err", err)
		}
		writeDetail(w, http.StatusUnauthorized, DetailInvalidSession)
		return
	}
	access, err := s.tokens.Issue(username, sid)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "erro interno")
		return
	}
	s.setSessionCookies(w, access, next)
	noStore(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) meV2(w http.ResponseWriter, r *http.Request) {
	u, err := s.cookieUser(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	noStore(w)
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) logoutV2(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(AccessCookie); err == nil {
		token = c.Value
	}
	_, sid, err := s.userFromToken(r.Context(), token)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	if err := s.sessions.revoke(r.Context(), sid); err != nil {
		s.logger.Error("apitest: revoke session", "err", err)
	}
	clearSessionCookies(w)
	noStore(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout realizado com sucesso"})
}

func (s *Server) loginV1(w http.ResponseWriter, r *http.Request) {
	if !s.checkLoginLimit(w, r) {
		return
	}
	var creds api.Credentials
	if err := decodeBody(r, &creds); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	user, ok := s.authenticate(creds.Username, creds.Password)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, DetailBadCredentials)
		return
	}
	// Bearer tokens carry a session id only so ExpireAccess can reach them.
	sid := uuid.NewString()
	if _, err := s.sessions.create(r.Context(), sid, user.Username, false); err != nil {
		writeDetail(w, http.StatusInternalServerError, "erro interno")
		return
	}
	access, err := s.tokens.Issue(user.Username, sid)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "erro interno")
		return
	}
	noStore(w)
	writeJSON(w, http.StatusOK, api.LoginResult{AccessToken: access, TokenType: "bearer"})
}

func (s *Server) meV1(w http.ResponseWriter, r *http.Request) {
	u, err := s.bearerUser(r)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) logoutV1(w http.ResponseWriter, r *http.Request) {
	if _, err := s.bearerUser(r); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout realizado com sucesso"})
}
