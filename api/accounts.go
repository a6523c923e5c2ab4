package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrEthical07/ctadmin/transport"
)

const (
	// AdminPrefix is the cookie-session admin surface.
	AdminPrefix = "/api/v2/admin"
	// LegacyAdminPrefix is the bearer-token admin surface. It has no password
	// reveal or rotation endpoints.
	LegacyAdminPrefix = "/api/admin"

	// MaxListLimit is the largest page the backend serves.
	MaxListLimit = 500
)

// ListOptions filters an account listing. Zero values are omitted.
type ListOptions struct {
	Status AccountStatus
	Search string
	Skip   int
	Limit  int
}

func (o ListOptions) query() (url.Values, error) {
	q := url.Values{}
	if o.Status != "" {
		if !o.Status.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, o.Status)
		}
		q.Set("status", string(o.Status))
	}
	if s := strings.TrimSpace(o.Search); s != "" {
		q.Set("search", s)
	}
	if o.Skip < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", ErrInvalidInput)
	}
	if o.Skip > 0 {
		q.Set("skip", strconv.Itoa(o.Skip))
	}
	if o.Limit < 0 || o.Limit > MaxListLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxListLimit)
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q, nil
}

// AccountsAPI calls the admin account endpoints.
type AccountsAPI struct {
	d      transport.Dispatcher
	prefix string
}

// NewAccountsAPI returns an AccountsAPI rooted at prefix.
func NewAccountsAPI(d transport.Dispatcher, prefix string) *AccountsAPI {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = AdminPrefix
	}
	return &AccountsAPI{d: d, prefix: prefix}
}

func (a *AccountsAPI) accounts() string {
	return a.prefix + "/accounts"
}

func (a *AccountsAPI) account(id int64) string {
	return a.accounts() + "/" + strconv.FormatInt(id, 10)
}

func (a *AccountsAPI) supportsPasswordOps() bool {
	return a.prefix != LegacyAdminPrefix
}

// List returns accounts matching opts.
func (a *AccountsAPI) List(ctx context.Context, opts ListOptions) ([]Account, error) {
	q, err := opts.query()
	if err != nil {
		return nil, err
	}
	out := []Account{}
	if err := call(ctx, a.d, get(a.accounts()).WithQuery(q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one account.
func (a *AccountsAPI) Get(ctx context.Context, id int64) (Account, error) {
	var out Account
	if err := call(ctx, a.d, get(a.account(id)), &out); err != nil {
		return Account{}, err
	}
	return out, nil
}

// Create registers a new account.
func (a *AccountsAPI) Create(ctx context.Context, in AccountCreate) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	return a.send(ctx, http.MethodPost, a.accounts(), in)
}

// Update applies a partial update.
func (a *AccountsAPI) Update(ctx context.Context, id int64, in AccountUpdate) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	return a.send(ctx, http.MethodPut, a.account(id), in)
}

// UpdateStatus moves an account to status.
func (a *AccountsAPI) UpdateStatus(ctx context.Context, id int64, status AccountStatus) (Account, error) {
	if !status.Valid() {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return a.send(ctx, http.MethodPatch, a.account(id)+"/status", map[string]AccountStatus{"status": status})
}

// Delete removes an account.
func (a *AccountsAPI) Delete(ctx context.Context, id int64) error {
	return call(ctx, a.d, transport.NewRequest(http.MethodDelete, a.account(id)), nil)
}

// AdminStats returns counts and revenue.
func (a *AccountsAPI) AdminStats(ctx context.Context) (AdminStats, error) {
	var out AdminStats
	if err := call(ctx, a.d, get(a.prefix+"/stats"), &out); err != nil {
		return AdminStats{}, err
	}
	return out, nil
}

// RevealPassword decrypts the account password after re-checking the
// administrator's own password.
func (a *AccountsAPI) RevealPassword(ctx context.Context, id int64, adminPassword string) (PasswordReveal, error) {
	if !a.supportsPasswordOps() {
		return PasswordReveal{}, ErrUnsupported
	}
	if adminPassword == "" {
		return PasswordReveal{}, fmt.Errorf("%w: admin_password is required", ErrInvalidInput)
	}
	req, err := jsonRequest(http.MethodPost, a.account(id)+"/password/reveal", map[string]string{"admin_password": adminPassword})
	if err != nil {
		return PasswordReveal{}, err
	}
	var out PasswordReveal
	if err := call(ctx, a.d, req, &out); err != nil {
		return PasswordReveal{}, err
	}
	return out, nil
}

// RotatePassword replaces the account password.
func (a *AccountsAPI) RotatePassword(ctx context.Context, id int64, newPassword string) (Account, error) {
	if !a.supportsPasswordOps() {
		return Account{}, ErrUnsupported
	}
	if len(newPassword) < MinPasswordLength {
		return Account{}, ErrPasswordTooShort
	}
	return a.send(ctx, http.MethodPost, a.account(id)+"/password/rotate", map[string]string{"new_password": newPassword})
}

func (a *AccountsAPI) send(ctx context.Context, method, p string, body any) (Account, error) {
	req, err := jsonRequest(method, p, body)
	if err != nil {
		return Account{}, err
	}
	var out Account
	if err := call(ctx, a.d, req, &out); err != nil {
		return Account{}, err
	}
	return out, nil
}
