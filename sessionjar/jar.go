// Package sessionjar provides the cookie jar used by the cookie session model.
//
// The jar holds the HTTP-only session cookies set by the backend and exposes
// the readable CSRF cookie through CookieValue. When given a tokenstore it also
// persists the backend's cookies so a later process resumes the same session.
package sessionjar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/ctadmin/tokenstore"
	"golang.org/x/net/publicsuffix"
)

// DefaultStoreKey is the tokenstore key persisted cookies are saved under.
const DefaultStoreKey = "cookies"

type storedCookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path,omitempty"`
	Domain   string    `json:"domain,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (c storedCookie) id() string {
	return c.Name + "|" + c.Domain + "|" + c.Path
}

// Jar is an http.CookieJar bound to one backend origin.
type Jar struct {
	mu     sync.Mutex
	inner  *cookiejar.Jar
	base   *url.URL
	store  tokenstore.Store
	key    string
	logger *slog.Logger
	saved  map[string]storedCookie
	now    func() time.Time
}

// Option configures a Jar.
type Option func(*Jar)

// WithStore persists cookies for the base origin under key in store.
func WithStore(store tokenstore.Store, key string) Option {
	return func(j *Jar) {
		j.store = store
		if strings.TrimSpace(key) != "" {
			j.key = key
		}
	}
}

// WithLogger sets the logger used for persistence failures.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Jar) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// New returns a Jar for the backend at base.
func New(base *url.URL, opts ...Option) (*Jar, error) {
	if base == nil || base.Host == "" {
		return nil, errors.New("sessionjar: base url required")
	}
	inner, err := newInner()
	if err != nil {
		return nil, err
	}
	u := *base
	j := &Jar{
		inner:  inner,
		base:   &u,
		key:    DefaultStoreKey,
		logger: slog.New(slog.DiscardHandler),
		saved:  make(map[string]storedCookie),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(j)
		}
	}
	return j, nil
}

func newInner() (*cookiejar.Jar, error) {
	inner, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("sessionjar: create jar: %w", err)
	}
	return inner, nil
}

// Load restores persisted cookies. A missing entry is not an error.
func (j *Jar) Load(ctx context.Context) error {
	if j.store == nil {
		return nil
	}
	raw, ok, err := tokenstore.Lookup(ctx, j.store, j.key)
	if err != nil {
		return fmt.Errorf("sessionjar: load cookies: %w", err)
	}
	if !ok {
		return nil
	}
	var stored []storedCookie
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return fmt.Errorf("sessionjar: decode cookies: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	now := j.now()
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if !c.Expires.IsZero() && !c.Expires.After(now) {
			continue
		}
		j.saved[c.id()] = c
		cookies = append(cookies, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	j.inner.SetCookies(j.base, cookies)
	return nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	j.inner.SetCookies(u, cookies)
	if j.store == nil || !sameOrigin(u, j.base) {
		j.mu.Unlock()
		return
	}
	now := j.now()
	for _, c := range cookies {
		sc := storedCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     cookiePath(u, c.Path),
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
		if c.MaxAge > 0 {
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		expired := c.MaxAge < 0 || (!sc.Expires.IsZero() && !sc.Expires.After(now))
		if expired || c.Value == "" {
			delete(j.saved, sc.id())
			continue
		}
		j.saved[sc.id()] = sc
	}
	snapshot := make([]storedCookie, 0, len(j.saved))
	for _, c := range j.saved {
		snapshot = append(snapshot, c)
	}
	j.mu.Unlock()

	j.persist(snapshot)
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// CookieValue returns the value of the named cookie visible at the base origin.
func (j *Jar) CookieValue(name string) (string, bool) {
	for _, c := range j.Cookies(j.base) {
		if c.Name == name && c.Value != "" {
			return c.Value, true
		}
	}
	return "", false
}

// Clear drops every cookie and the persisted copy.
func (j *Jar) Clear(ctx context.Context) error {
	inner, err := newInner()
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.inner = inner
	j.saved = make(map[string]storedCookie)
	j.mu.Unlock()

	if j.store == nil {
		return nil
	}
	if err := j.store.Delete(ctx, j.key); err != nil {
		return fmt.Errorf("sessionjar: clear cookies: %w", err)
	}
	return nil
}

func (j *Jar) persist(snapshot []storedCookie) {
	ctx := context.Background()
	if len(snapshot) == 0 {
		if err := j.store.Delete(ctx, j.key); err != nil {
			j.logger.Warn("sessionjar: delete persisted cookies failed", "err", err)
		}
		return
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		j.logger.Warn("sessionjar: encode cookies failed", "err", err)
		return
	}
	if err := j.store.Set(ctx, j.key, string(data)); err != nil {
		j.logger.Warn("sessionjar: persist cookies failed", "err", err)
	}
}

func sameOrigin(a, b *url.URL) bool {
	return a != nil && b != nil && strings.EqualFold(a.Hostname(), b.Hostname())
}

// cookiePath applies the RFC 6265 default-path rule for cookies without a Path.
func cookiePath(u *url.URL, p string) string {
	if p != "" && strings.HasPrefix(p, "/") {
		return p
	}
	dir := u.Path
	if i := strings.LastIndex(dir, "/"); i > 0 {
		return dir[:i]
	}
	return "/"
}
