package ctadmin

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/ctadmin/api"
	"github.com/MrEthical07/ctadmin/internal/apitest"
	"github.com/MrEthical07/ctadmin/nav"
	"github.com/MrEthical07/ctadmin/tokenstore"
	"github.com/MrEthical07/ctadmin/transport"
)

type testClient struct {
	*Client
	srv   *apitest.Server
	nav   *nav.Memory
	audit *ChannelSink
}

func buildTestClient(t *testing.T, srv *apitest.Server, mode Mode, configure func(*Builder)) *testClient {
	t.Helper()
	navigator := nav.NewMemory("/")
	sink := NewChannelSink(512)
	b := New().
		WithMode(mode).
		WithBaseURL(srv.URL()).
		WithHTTPClient(srv.Client()).
		WithNavigator(navigator).
		WithAuditSink(sink)
	if configure != nil {
		configure(b)
	}
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(c.Close)
	return &testClient{Client: c, srv: srv, nav: navigator, audit: sink}
}

func (tc *testClient) login(t *testing.T) api.User {
	t.Helper()
	u, err := tc.Login(context.Background(), "admin", "admin123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return u
}

// auditTypes closes the client and returns every audited event type.
func (tc *testClient) auditTypes() []string {
	tc.Close()
	var out []string
	for {
		select {
		case ev := <-tc.audit.Events():
			out = append(out, ev.EventType)
		default:
			return out
		}
	}
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func seed(srv *apitest.Server, number, buyer string) api.Account {
	return srv.SeedAccount(api.AccountCreate{
		AccountNumber:   number,
		AccountPassword: "pw-" + number,
		Server:          "Demo-1",
		BuyerName:       buyer,
		PurchaseDate:    api.NewDate(2024, time.June, 1),
	})
}

func TestBuildRejectsSecondUse(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	b := New().WithBaseURL(srv.URL())
	c, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()
	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, err := New().WithBaseURL("not a url").Build()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuildResolvesBaseURLFromRuntimeEnv(t *testing.T) {
	c, err := New().WithRuntimeEnv(RuntimeEnv{EnvAPIURL: "https://api.example.com/"}).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer c.Close()
	if c.BaseURL() != "https://api.example.com" {
		t.Fatalf("unexpected base url %q", c.BaseURL())
	}
}

func TestCookieLoginSendsCSRFOnMutations(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)

	u := tc.login(t)
	if u.Username != "admin" || !u.IsAdmin {
		t.Fatalf("unexpected user %+v", u)
	}
	if !tc.State().Authenticated() {
		t.Fatal("expected authenticated state")
	}
	if tc.nav.Last() != "/admin" {
		t.Fatalf("expected navigation to /admin, got %q", tc.nav.Last())
	}

	acc, err := tc.Accounts().Create(context.Background(), api.AccountCreate{
		AccountNumber:   "5005",
		AccountPassword: "secret",
		Server:          "Demo-1",
		BuyerName:       "Maria",
		PurchaseDate:    api.NewDate(2024, time.June, 1),
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if acc.AccountPassword != "" {
		t.Fatal("cookie surface leaked account password")
	}
	if srv.LastHeader(http.MethodPost, "/api/v2/admin/accounts", "X-CSRF-Token") == "" {
		t.Fatal("expected CSRF header on create")
	}
	if srv.LastHeader(http.MethodPost, "/api/v2/admin/accounts", "X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestLoginRejectsEmptyCredentials(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)

	if _, err := tc.Login(context.Background(), " ", "x"); !errors.Is(err, ErrEmptyCredentials) {
		t.Fatalf("expected ErrEmptyCredentials, got %v", err)
	}
	if srv.Hits(http.MethodPost, "/api/v2/auth/login") != 0 {
		t.Fatal("empty credentials reached the backend")
	}
}

func TestLoginFailureKeepsAnonymousState(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)

	_, err := tc.Login(context.Background(), "admin", "wrong")
	if transport.StatusCode(err) != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if transport.Detail(err) != apitest.DetailBadCredentials {
		t.Fatalf("unexpected detail %q", transport.Detail(err))
	}
	if tc.State().Authenticated() {
		t.Fatal("state authenticated after failed login")
	}
	if got := tc.MetricsSnapshot().Counters[MetricLoginFailure]; got != 1 {
		t.Fatalf("expected one login failure, got %d", got)
	}
	if !containsString(tc.auditTypes(), auditEventLoginFailure) {
		t.Fatal("expected login_failure audit event")
	}
}

func TestConcurrentUnauthorizedShareOneRenewal(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	seed(srv, "6006", "Joao")
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.login(t)

	srv.ExpireAccess()
	srv.SetRefreshDelay(300 * time.Millisecond)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := tc.Accounts().List(context.Background(), api.ListOptions{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
	}
	if got := srv.Hits(http.MethodPost, "/api/v2/auth/refresh"); got != 1 {
		t.Fatalf("expected one refresh call, got %d", got)
	}
	if got := tc.RenewalCalls(); got != 1 {
		t.Fatalf("expected one renewal, got %d", got)
	}
	if !tc.State().Authenticated() {
		t.Fatal("session lost after renewal")
	}
	if got := tc.MetricsSnapshot().Counters[MetricRecoveryRetried]; got != callers {
		t.Fatalf("expected %d retries, got %d", callers, got)
	}
}

func TestCallerTimeoutDuringRenewalKeepsSession(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	seed(srv, "6007", "Rita")
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.login(t)

	srv.ExpireAccess()
	srv.SetRefreshDelay(300 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := tc.Accounts().List(ctx, api.ListOptions{}); !transport.IsUnauthorized(err) {
		t.Fatalf("expected the original 401, got %v", err)
	}
	time.Sleep(400 * time.Millisecond)

	if !tc.State().Authenticated() {
		t.Fatal("caller timeout ended a session whose renewal succeeded")
	}
	if tc.nav.Last() != "/admin" {
		t.Fatalf("unexpected navigation to %q", tc.nav.Last())
	}
	if _, err := tc.Accounts().List(context.Background(), api.ListOptions{}); err != nil {
		t.Fatalf("List after renewal: %v", err)
	}
	if got := tc.RenewalCalls(); got != 1 {
		t.Fatalf("expected one renewal, got %d", got)
	}
}

func TestRenewalFailureExpiresSession(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.login(t)

	srv.ExpireAccess()
	srv.FailRefresh(true)

	_, err := tc.Accounts().Stats(context.Background())
	if !transport.IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	if tc.State().Authenticated() {
		t.Fatal("expected session to be dropped")
	}
	if tc.nav.Last() != "/login" {
		t.Fatalf("expected redirect to /login, got %q", tc.nav.Last())
	}
	snap := tc.MetricsSnapshot()
	if snap.Counters[MetricRecoveryRenewFailed] != 1 || snap.Counters[MetricSessionExpired] != 1 {
		t.Fatalf("unexpected counters %v", snap.Counters)
	}
	if !containsString(tc.auditTypes(), auditEventSessionExpired) {
		t.Fatal("expected session_expired audit event")
	}
}

func TestUnauthorizedOnLoginRouteIsNotRecovered(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.login(t)
	tc.nav.Navigate("/login")

	srv.ExpireAccess()
	if _, err := tc.Accounts().Stats(context.Background()); !transport.IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	if srv.Hits(http.MethodPost, "/api/v2/auth/refresh") != 0 {
		t.Fatal("renewal attempted from the login route")
	}
}

func TestExplicitRefresh(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.login(t)

	if err := tc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if srv.LastHeader(http.MethodPost, "/api/v2/auth/refresh", "X-CSRF-Token") == "" {
		t.Fatal("refresh sent without CSRF header")
	}
	if got := tc.MetricsSnapshot().Counters[MetricRenewalSuccess]; got != 1 {
		t.Fatalf("expected one renewal success, got %d", got)
	}
}

func TestCookieLogout(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.login(t)

	if err := tc.Logout(context.Background()); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if tc.State().Authenticated() {
		t.Fatal("still authenticated after logout")
	}
	if tc.nav.Last() != "/login" {
		t.Fatalf("expected /login, got %q", tc.nav.Last())
	}
	if _, err := tc.CurrentUser(context.Background()); !transport.IsUnauthorized(err) {
		t.Fatalf("expected 401 after logout, got %v", err)
	}
}

func TestMountRestoresPersistedCookies(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	cookies := tokenstore.NewMemory()

	first := buildTestClient(t, srv, ModeCookie, func(b *Builder) { b.WithCookieStore(cookies) })
	first.login(t)
	first.Close()

	second := buildTestClient(t, srv, ModeCookie, func(b *Builder) { b.WithCookieStore(cookies) })
	second.Mount(context.Background())
	select {
	case <-second.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("bootstrap did not settle")
	}
	if second.State().Username() != "admin" {
		t.Fatalf("expected restored session, got %+v", second.State())
	}
	if got := second.MetricsSnapshot().Counters[MetricBootstrapAuthenticated]; got != 1 {
		t.Fatalf("expected authenticated bootstrap, got %d", got)
	}
}

func TestMountWithoutSessionIsAnonymous(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)

	tc.Mount(context.Background())
	<-tc.Ready()
	if tc.State().Authenticated() {
		t.Fatal("expected anonymous state")
	}
	if tc.State().Loading {
		t.Fatal("state still loading after bootstrap")
	}
	if len(tc.nav.History()) != 0 {
		t.Fatalf("bootstrap navigated: %v", tc.nav.History())
	}
}

func TestTokenModeLoginAndRejection(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	seed(srv, "7007", "Ana")
	tokens := tokenstore.NewMemory()
	tc := buildTestClient(t, srv, ModeToken, func(b *Builder) { b.WithTokenStore(tokens) })

	tc.login(t)
	if _, ok, _ := tokenstore.Lookup(context.Background(), tokens, "token"); !ok {
		t.Fatal("expected stored token")
	}
	if tc.State().SessionExpiresAt.IsZero() {
		t.Fatal("expected expiry from token claims")
	}

	acc, err := tc.Accounts().Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if acc.AccountPassword != "pw-7007" {
		t.Fatalf("legacy surface should return password, got %q", acc.AccountPassword)
	}
	if _, err := tc.Accounts().RevealPassword(context.Background(), 1, "admin123"); !errors.Is(err, api.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if err := tc.Refresh(context.Background()); !errors.Is(err, ErrRefreshUnsupported) {
		t.Fatalf("expected ErrRefreshUnsupported, got %v", err)
	}

	srv.ExpireAccess()
	if _, err := tc.Accounts().List(context.Background(), api.ListOptions{}); !transport.IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	if _, ok, _ := tokenstore.Lookup(context.Background(), tokens, "token"); ok {
		t.Fatal("token survived rejection")
	}
	if tc.State().Authenticated() {
		t.Fatal("still authenticated")
	}
	if tc.nav.Last() != "/login" {
		t.Fatalf("expected /login, got %q", tc.nav.Last())
	}
	if got := tc.MetricsSnapshot().Counters[MetricRecoveryRedirected]; got != 1 {
		t.Fatalf("expected one redirect, got %d", got)
	}
}

func TestTokenModeBootstrap(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tokens := tokenstore.NewMemory()

	first := buildTestClient(t, srv, ModeToken, func(b *Builder) { b.WithTokenStore(tokens) })
	first.login(t)
	first.Close()

	second := buildTestClient(t, srv, ModeToken, func(b *Builder) { b.WithTokenStore(tokens) })
	second.Mount(context.Background())
	<-second.Ready()
	if second.State().Username() != "admin" {
		t.Fatalf("expected bootstrap from stored token, got %+v", second.State())
	}
	if srv.Hits(http.MethodPost, "/api/v2/auth/refresh") != 0 {
		t.Fatal("token mode must not renew")
	}
}

func TestAccountsLifecycleIsAudited(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.login(t)
	ctx := context.Background()

	acc, err := tc.Accounts().Create(ctx, api.AccountCreate{
		AccountNumber:   "8008",
		AccountPassword: "initial",
		Server:          "Live-2",
		BuyerName:       "Carlos",
		PurchaseDate:    api.NewDate(2024, time.July, 3),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	name := "Carlos Lima"
	if _, err := tc.Accounts().Update(ctx, acc.ID, api.AccountUpdate{BuyerName: &name}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated, err := tc.Accounts().UpdateStatus(ctx, acc.ID, api.StatusApproved); err != nil || updated.Status != api.StatusApproved {
		t.Fatalf("UpdateStatus: %v %+v", err, updated)
	}
	if _, err := tc.Accounts().RotatePassword(ctx, acc.ID, "rotated-pass"); err != nil {
		t.Fatalf("RotatePassword: %v", err)
	}
	reveal, err := tc.Accounts().RevealPassword(ctx, acc.ID, "admin123")
	if err != nil {
		t.Fatalf("RevealPassword: %v", err)
	}
	if reveal.AccountPassword != "rotated-pass" {
		t.Fatalf("unexpected reveal %q", reveal.AccountPassword)
	}
	list, err := tc.Accounts().List(ctx, api.ListOptions{Search: "lima"})
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %d", err, len(list))
	}
	stats, err := tc.Accounts().Stats(ctx)
	if err != nil || stats.Approved != 1 {
		t.Fatalf("Stats: %v %+v", err, stats)
	}
	if err := tc.Accounts().Delete(ctx, acc.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tc.Accounts().Get(ctx, acc.ID); transport.StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	types := tc.auditTypes()
	for _, want := range []string{
		auditEventLoginSuccess,
		auditEventAccountCreated,
		auditEventAccountUpdated,
		auditEventAccountStatusChange,
		auditEventPasswordRotated,
		auditEventPasswordRevealed,
		auditEventAccountDeleted,
	} {
		if !containsString(types, want) {
			t.Fatalf("missing audit event %q in %v", want, types)
		}
	}
}

func TestPublicStatsWithoutSession(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	seed(srv, "9009", "Bia")
	tc := buildTestClient(t, srv, ModeCookie, nil)

	st, err := tc.Public().Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.TotalAccounts != 1 || st.Pending != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestClosedClientRejectsCommands(t *testing.T) {
	srv := apitest.New(t, apitest.Options{})
	tc := buildTestClient(t, srv, ModeCookie, nil)
	tc.Close()

	if _, err := tc.Login(context.Background(), "admin", "admin123"); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("Login: expected ErrClientClosed, got %v", err)
	}
	if _, err := tc.Accounts().List(context.Background(), api.ListOptions{}); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("List: expected ErrClientClosed, got %v", err)
	}
	if err := tc.Logout(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("Logout: expected ErrClientClosed, got %v", err)
	}
}
