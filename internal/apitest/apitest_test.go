package apitest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type browser struct {
	t    *testing.T
	srv  *Server
	http *http.Client
}

func newBrowser(t *testing.T, srv *Server) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	c := srv.Client()
	c.Jar = jar
	return &browser{t: t, srv: srv, http: c}
}

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.srv.URL() + "/api/v2/auth/")
	for _, c := range b.http.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) do(method, path string, body any, csrf bool) *http.Response {
	b.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(b.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, b.srv.URL()+path, &buf)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")
	if csrf {
		req.Header.Set(CSRFHeader, b.cookie(CSRFCookie))
	}
	resp, err := b.http.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (b *browser) login() {
	b.t.Helper()
	resp := b.do(http.MethodPost, "/api/v2/auth/login", api.Credentials{Username: "admin", Password: "admin123"}, false)
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
}

func decodeDetail(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body detailBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Detail
}

func TestCookieLoginSetsSessionCookies(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)

	resp := b.do(http.MethodPost, "/api/v2/auth/login", api.Credentials{Username: "admin", Password: "admin123"}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var out api.LoginResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.User)
	assert.Equal(t, "admin", out.User.Username)
	assert.True(t, out.User.IsAdmin)
	assert.False(t, out.SessionExpiresAt.IsZero())

	assert.NotEmpty(t, b.cookie(AccessCookie))
	assert.NotEmpty(t, b.cookie(RefreshCookie))
	assert.NotEmpty(t, b.cookie(CSRFCookie))

	me := b.do(http.MethodGet, "/api/v2/auth/me", nil, false)
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func TestCookieLoginRejectsBadPassword(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)

	resp := b.do(http.MethodPost, "/api/v2/auth/login", api.Credentials{Username: "admin", Password: "nope"}, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, DetailBadCredentials, decodeDetail(t, resp))
}

func TestRefreshRequiresMatchingCSRF(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)
	b.login()

	resp := b.do(http.MethodPost, "/api/v2/auth/refresh", nil, false)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, DetailCSRF, decodeDetail(t, resp))
}

func TestRefreshRotatesSecrets(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)
	b.login()

	oldRefresh := b.cookie(RefreshCookie)
	oldCSRF := b.cookie(CSRFCookie)

	resp := b.do(http.MethodPost, "/api/v2/auth/refresh", nil, true)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEqual(t, oldRefresh, b.cookie(RefreshCookie))
	assert.NotEqual(t, oldCSRF, b.cookie(CSRFCookie))

	// The previous refresh token is single use.
	replay := newBrowser(t, srv)
	u, _ := url.Parse(srv.URL() + "/api/v2/auth/")
	replay.http.Jar.SetCookies(u, []*http.Cookie{
		{Name: RefreshCookie, Value: oldRefresh, Path: "/api/v2/auth"},
		{Name: CSRFCookie, Value: oldCSRF, Path: "/"},
	})
	resp = replay.do(http.MethodPost, "/api/v2/auth/refresh", nil, true)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, DetailInvalidSession, decodeDetail(t, resp))
}

func TestExpireAccessRecoversThroughRefresh(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)
	b.login()

	srv.ExpireAccess()
	resp := b.do(http.MethodGet, "/api/v2/auth/me", nil, false)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, DetailInvalidToken, decodeDetail(t, resp))

	require.Equal(t, http.StatusNoContent, b.do(http.MethodPost, "/api/v2/auth/refresh", nil, true).StatusCode)
	assert.Equal(t, http.StatusOK, b.do(http.MethodGet, "/api/v2/auth/me", nil, false).StatusCode)
}

func TestFailRefresh(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)
	b.login()

	srv.FailRefresh(true)
	resp := b.do(http.MethodPost, "/api/v2/auth/refresh", nil, true)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 1, srv.Hits(http.MethodPost, "/api/v2/auth/refresh"))
}

func TestLogoutRevokesSession(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)
	b.login()
	access := b.cookie(AccessCookie)

	resp := b.do(http.MethodPost, "/api/v2/auth/logout", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, b.cookie(AccessCookie))

	stale := newBrowser(t, srv)
	u, _ := url.Parse(srv.URL() + "/")
	stale.http.Jar.SetCookies(u, []*http.Cookie{{Name: AccessCookie, Value: access, Path: "/"}})
	me := stale.do(http.MethodGet, "/api/v2/auth/me", nil, false)
	require.Equal(t, http.StatusUnauthorized, me.StatusCode)
	assert.Equal(t, DetailRevoked, decodeDetail(t, me))
}

func TestBearerLoginAndExpiry(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)

	resp := b.do(http.MethodPost, "/api/auth/login", api.Credentials{Username: "admin", Password: "admin123"}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out api.LoginResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "bearer", out.TokenType)
	require.NotEmpty(t, out.AccessToken)

	me := func() int {
		req, _ := http.NewRequest(http.MethodGet, srv.URL()+"/api/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+out.AccessToken)
		r, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer r.Body.Close()
		return r.StatusCode
	}
	assert.Equal(t, http.StatusOK, me())
	srv.ExpireAccess()
	assert.Equal(t, http.StatusUnauthorized, me())
}

func TestAdminRequiresAdministrator(t *testing.T) {
	srv := New(t, Options{})
	_, err := srv.AddUser("viewer", "viewer123", "viewer@copytrade.app", false)
	require.NoError(t, err)

	b := newBrowser(t, srv)
	resp := b.do(http.MethodPost, "/api/v2/auth/login", api.Credentials{Username: "viewer", Password: "viewer123"}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	list := b.do(http.MethodGet, "/api/v2/admin/accounts", nil, false)
	require.Equal(t, http.StatusForbidden, list.StatusCode)
	assert.Equal(t, DetailForbidden, decodeDetail(t, list))
}

func TestAccountsCRUD(t *testing.T) {
	srv := New(t, Options{})
	b := newBrowser(t, srv)
	b.login()

	price := api.Decimal("150.00")
	in := api.AccountCreate{
		AccountNumber:   "1001",
		AccountPassword: "s3cret",
		Server:          "Demo-1",
		BuyerName:       "Maria Souza",
		PurchaseDate:    api.DateOf(time.Now()),
		PurchasePrice:   &price,
	}
	resp := b.do(http.MethodPost, "/api/v2/admin/accounts", in, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created api.Account
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	assert.Equal(t, api.StatusPending, created.Status)
	assert.Empty(t, created.AccountPassword)

	dup := b.do(http.MethodPost, "/api/v2/admin/accounts", in, true)
	require.Equal(t, http.StatusBadRequest, dup.StatusCode)
	assert.Equal(t, DetailDuplicate, decodeDetail(t, dup))

	status := b.do(http.MethodPatch, "/api/v2/admin/accounts/1/status", map[string]string{"status": "bogus"}, true)
	assert.Equal(t, http.StatusBadRequest, status.StatusCode)

	list := b.do(http.MethodGet, "/api/v2/admin/accounts?search=maria", nil, false)
	require.Equal(t, http.StatusOK, list.StatusCode)
	var accounts []api.Account
	require.NoError(t, json.NewDecoder(list.Body).Decode(&accounts))
	assert.Len(t, accounts, 1)

	stats := b.do(http.MethodGet, "/api/v2/admin/stats", nil, false)
	var st api.AdminStats
	require.NoError(t, json.NewDecoder(stats.Body).Decode(&st))
	assert.Equal(t, 1, st.TotalAccounts)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 1, st.AccountsThisMonth)
	assert.Equal(t, api.Decimal("150.00"), st.TotalRevenue)

	assert.Equal(t, http.StatusNoContent, b.do(http.MethodDelete, "/api/v2/admin/accounts/1", nil, true).StatusCode)
	missing := b.do(http.MethodGet, "/api/v2/admin/accounts/1", nil, false)
	require.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, DetailNotFound, decodeDetail(t, missing))
}

func TestRevealPasswordIsRateLimited(t *testing.T) {
	srv := New(t, Options{RevealLimit: rate.Rule{Limit: 2, Window: time.Minute}})
	acc := srv.SeedAccount(api.AccountCreate{
		AccountNumber:   "2002",
		AccountPassword: "hunter22",
		Server:          "Live-3",
		BuyerName:       "Joao",
		PurchaseDate:    api.NewDate(2024, time.January, 2),
	})
	b := newBrowser(t, srv)
	b.login()
	path := "/api/v2/admin/accounts/" + strconv.FormatInt(acc.ID, 10) + "/password/reveal"

	bad := b.do(http.MethodPost, path, map[string]string{"admin_password": "wrong"}, true)
	require.Equal(t, http.StatusUnauthorized, bad.StatusCode)
	assert.Equal(t, DetailBadAdminPass, decodeDetail(t, bad))

	ok := b.do(http.MethodPost, path, map[string]string{"admin_password": "admin123"}, true)
	require.Equal(t, http.StatusOK, ok.StatusCode)
	assert.Equal(t, "no-store", ok.Header.Get("Cache-Control"))
	var reveal api.PasswordReveal
	require.NoError(t, json.NewDecoder(ok.Body).Decode(&reveal))
	assert.Equal(t, "hunter22", reveal.AccountPassword)
	assert.Equal(t, 30, reveal.ExpiresInSeconds)

	limited := b.do(http.MethodPost, path, map[string]string{"admin_password": "admin123"}, true)
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
}

func TestLegacyAdminExposesPassword(t *testing.T) {
	srv := New(t, Options{})
	srv.SeedAccount(api.AccountCreate{
		AccountNumber:   "3003",
		AccountPassword: "plain",
		Server:          "Demo-2",
		BuyerName:       "Ana",
		PurchaseDate:    api.NewDate(2024, time.March, 5),
	})
	b := newBrowser(t, srv)
	resp := b.do(http.MethodPost, "/api/auth/login", api.Credentials{Username: "admin", Password: "admin123"}, false)
	var out api.LoginResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	req, _ := http.NewRequest(http.MethodGet, srv.URL()+"/api/admin/accounts/1", nil)
	req.Header.Set("Authorization", "Bearer "+out.AccessToken)
	r, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer r.Body.Close()
	require.Equal(t, http.StatusOK, r.StatusCode)
	var acc api.Account
	require.NoError(t, json.NewDecoder(r.Body).Decode(&acc))
	assert.Equal(t, "plain", acc.AccountPassword)
}

func TestPublicStatsNeedsNoSession(t *testing.T) {
	srv := New(t, Options{})
	srv.SeedAccount(api.AccountCreate{
		AccountNumber: "4004", AccountPassword: "x", Server: "S", BuyerName: "B",
		PurchaseDate: api.NewDate(2024, time.May, 1), Status: api.StatusInCopy,
	})
	resp, err := srv.Client().Get(srv.URL() + "/api/public/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st api.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, api.Stats{TotalAccounts: 1, InCopy: 1}, st)
}
