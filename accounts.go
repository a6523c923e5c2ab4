package ctadmin

import (
	"context"
	"strconv"

	"github.com/MrEthical07/ctadmin/api"
)

// Accounts administers copy-trade accounts through the client's session.
// Mutations and password reveals are audited; reads are not.
type Accounts struct {
	api    *api.AccountsAPI
	client *Client
}

// List returns accounts matching opts.
func (a *Accounts) List(ctx context.Context, opts api.ListOptions) ([]api.Account, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.api.List(ctx, opts)
}

// Get returns one account.
func (a *Accounts) Get(ctx context.Context, id int64) (api.Account, error) {
	if err := a.ready(); err != nil {
		return api.Account{}, err
	}
	return a.api.Get(ctx, id)
}

// Stats returns the admin dashboard figures.
func (a *Accounts) Stats(ctx context.Context) (api.AdminStats, error) {
	if err := a.ready(); err != nil {
		return api.AdminStats{}, err
	}
	return a.api.AdminStats(ctx)
}

// Create registers a new account.
func (a *Accounts) Create(ctx context.Context, in api.AccountCreate) (api.Account, error) {
	if err := a.ready(); err != nil {
		return api.Account{}, err
	}
	acc, err := a.api.Create(ctx, in)
	a.record(ctx, auditEventAccountCreated, acc.ID, err, map[string]string{"account_number": in.AccountNumber})
	return acc, err
}

// Update applies a partial update.
func (a *Accounts) Update(ctx context.Context, id int64, in api.AccountUpdate) (api.Account, error) {
	if err := a.ready(); err != nil {
		return api.Account{}, err
	}
	acc, err := a.api.Update(ctx, id, in)
	a.record(ctx, auditEventAccountUpdated, id, err, nil)
	return acc, err
}

// UpdateStatus moves an account to status.
func (a *Accounts) UpdateStatus(ctx context.Context, id int64, status api.AccountStatus) (api.Account, error) {
	if err := a.ready(); err != nil {
		return api.Account{}, err
	}
	acc, err := a.api.UpdateStatus(ctx, id, status)
	a.record(ctx, auditEventAccountStatusChange, id, err, map[string]string{"status": string(status)})
	return acc, err
}

// Delete removes an account.
func (a *Accounts) Delete(ctx context.Context, id int64) error {
	if err := a.ready(); err != nil {
		return err
	}
	err := a.api.Delete(ctx, id)
	a.record(ctx, auditEventAccountDeleted, id, err, nil)
	return err
}

// RevealPassword decrypts the account password after the backend re-checks
// adminPassword. The result must not be cached.
func (a *Accounts) RevealPassword(ctx context.Context, id int64, adminPassword string) (api.PasswordReveal, error) {
	if err := a.ready(); err != nil {
		return api.PasswordReveal{}, err
	}
	out, err := a.api.RevealPassword(ctx, id, adminPassword)
	a.record(ctx, auditEventPasswordRevealed, id, err, nil)
	return out, err
}

// RotatePassword replaces the account password.
func (a *Accounts) RotatePassword(ctx context.Context, id int64, newPassword string) (api.Account, error) {
	if err := a.ready(); err != nil {
		return api.Account{}, err
	}
	acc, err := a.api.RotatePassword(ctx, id, newPassword)
	a.record(ctx, auditEventPasswordRotated, id, err, nil)
	return acc, err
}

func (a *Accounts) ready() error {
	if a.client.closed.Load() {
		return ErrClientClosed
	}
	return nil
}

func (a *Accounts) record(ctx context.Context, eventType string, id int64, err error, metadata map[string]string) {
	md := map[string]string{}
	if id > 0 {
		md["account_id"] = strconv.FormatInt(id, 10)
	}
	for k, v := range metadata {
		md[k] = v
	}
	a.client.emitAudit(ctx, eventType, a.client.currentUsername(), err == nil, err, md)
}
