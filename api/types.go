package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// User is the authenticated administrator as returned by the me endpoints.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries whichever login response the path set produced.
//
// The cookie endpoints fill User and SessionExpiresAt. The token endpoints
// fill AccessToken and TokenType and leave User nil.
type LoginResult struct {
	User             *User     `json:"user,omitempty"`
	SessionExpiresAt time.Time `json:"session_expires_at,omitzero"`
	AccessToken      string    `json:"access_token,omitempty"`
	TokenType        string    `json:"token_type,omitempty"`
}

// AccountStatus is the lifecycle state of a copy-trade account.
type AccountStatus string

const (
	StatusPending   AccountStatus = "pending"
	StatusApproved  AccountStatus = "approved"
	StatusInCopy    AccountStatus = "in_copy"
	StatusExpired   AccountStatus = "expired"
	StatusSuspended AccountStatus = "suspended"
)

// AccountStatuses lists every valid status in display order.
var AccountStatuses = []AccountStatus{StatusPending, StatusApproved, StatusInCopy, StatusExpired, StatusSuspended}

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	for _, v := range AccountStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParseAccountStatus validates raw as a status.
func ParseAccountStatus(raw string) (AccountStatus, error) {
	s := AccountStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Account is a copy-trade account as the admin endpoints return it.
// AccountPassword is only populated by the legacy admin path set.
type Account struct {
	ID              int64         `json:"id"`
	AccountNumber   string        `json:"account_number"`
	AccountPassword string        `json:"account_password,omitempty"`
	Server          string        `json:"server"`
	BuyerName       string        `json:"buyer_name"`
	BuyerEmail      *string       `json:"buyer_email"`
	BuyerPhone      *string       `json:"buyer_phone"`
	BuyerNotes      *string       `json:"buyer_notes"`
	PurchaseDate    Date          `json:"purchase_date"`
	ExpiryDate      *Date         `json:"expiry_date"`
	PurchasePrice   *Decimal      `json:"purchase_price"`
	Status          AccountStatus `json:"status"`
	CopyCount       int           `json:"copy_count"`
	MaxCopies       int           `json:"max_copies"`
	MarginSize      *Decimal      `json:"margin_size"`
	Phase1Target    *Decimal      `json:"phase1_target"`
	Phase1Status    *string       `json:"phase1_status"`
	Phase2Target    *Decimal      `json:"phase2_target"`
	Phase2Status    *string       `json:"phase2_status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       *time.Time    `json:"updated_at"`
	CreatedBy       *int64        `json:"created_by"`
}

// AccountCreate is the body of a create call.
type AccountCreate struct {
	AccountNumber   string        `json:"account_number"`
	AccountPassword string        `json:"account_password"`
	Server          string        `json:"server"`
	BuyerName       string        `json:"buyer_name"`
	BuyerEmail      *string       `json:"buyer_email,omitempty"`
	BuyerPhone      *string       `json:"buyer_phone,omitempty"`
	BuyerNotes      *string       `json:"buyer_notes,omitempty"`
	PurchaseDate    Date          `json:"purchase_date"`
	ExpiryDate      *Date         `json:"expiry_date,omitempty"`
	PurchasePrice   *Decimal      `json:"purchase_price,omitempty"`
	Status          AccountStatus `json:"status,omitempty"`
	MaxCopies       int           `json:"max_copies,omitempty"`
	MarginSize      *Decimal      `json:"margin_size,omitempty"`
	Phase1Target    *Decimal      `json:"phase1_target,omitempty"`
	Phase1Status    *string       `json:"phase1_status,omitempty"`
	Phase2Target    *Decimal      `json:"phase2_target,omitempty"`
	Phase2Status    *string       `json:"phase2_status,omitempty"`
}

// Validate checks the fields the backend requires.
func (c AccountCreate) Validate() error {
	switch {
	case strings.TrimSpace(c.AccountNumber) == "":
		return fmt.Errorf("%w: account_number is required", ErrInvalidInput)
	case c.AccountPassword == "":
		return fmt.Errorf("%w: account_password is required", ErrInvalidInput)
	case strings.TrimSpace(c.Server) == "":
		return fmt.Errorf("%w: server is required", ErrInvalidInput)
	case strings.TrimSpace(c.BuyerName) == "":
		return fmt.Errorf("%w: buyer_name is required", ErrInvalidInput)
	case c.PurchaseDate.IsZero():
		return fmt.Errorf("%w: purchase_date is required", ErrInvalidInput)
	case c.Status != "" && !c.Status.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidStatus, c.Status)
	case c.MaxCopies < 0:
		return fmt.Errorf("%w: max_copies must not be negative", ErrInvalidInput)
	}
	return nil
}

// AccountUpdate is a partial update; nil fields are left unchanged.
// AccountPassword is only honored by the legacy admin path set; the current
// one rotates passwords through RotatePassword.
type AccountUpdate struct {
	AccountNumber   *string        `json:"account_number,omitempty"`
	AccountPassword *string        `json:"account_password,omitempty"`
	Server          *string        `json:"server,omitempty"`
	BuyerName       *string        `json:"buyer_name,omitempty"`
	BuyerEmail      *string        `json:"buyer_email,omitempty"`
	BuyerPhone      *string        `json:"buyer_phone,omitempty"`
	BuyerNotes      *string        `json:"buyer_notes,omitempty"`
	PurchaseDate    *Date          `json:"purchase_date,omitempty"`
	ExpiryDate      *Date          `json:"expiry_date,omitempty"`
	PurchasePrice   *Decimal       `json:"purchase_price,omitempty"`
	Status          *AccountStatus `json:"status,omitempty"`
	CopyCount       *int           `json:"copy_count,omitempty"`
	MaxCopies       *int           `json:"max_copies,omitempty"`
	MarginSize      *Decimal       `json:"margin_size,omitempty"`
	Phase1Target    *Decimal       `json:"phase1_target,omitempty"`
	Phase1Status    *string        `json:"phase1_status,omitempty"`
	Phase2Target    *Decimal       `json:"phase2_target,omitempty"`
	Phase2Status    *string        `json:"phase2_status,omitempty"`
}

// Validate rejects an unknown status.
func (u AccountUpdate) Validate() error {
	if u.Status != nil && !u.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *u.Status)
	}
	return nil
}

// Stats are the public per-status counts.
type Stats struct {
	TotalAccounts int `json:"total_accounts"`
	Pending       int `json:"pending"`
	Approved      int `json:"approved"`
	InCopy        int `json:"in_copy"`
	Expired       int `json:"expired"`
	Suspended     int `json:"suspended"`
}

// AdminStats extends Stats with revenue figures.
type AdminStats struct {
	Stats
	TotalRevenue      Decimal `json:"total_revenue"`
	AccountsThisMonth int     `json:"accounts_this_month"`
}

// PasswordReveal is a decrypted account password and its display window.
type PasswordReveal struct {
	AccountPassword  string    `json:"account_password"`
	RevealedAt       time.Time `json:"revealed_at"`
	ExpiresInSeconds int       `json:"expires_in_seconds"`
}

// ExpiresAt is when the reveal window closes.
func (p PasswordReveal) ExpiresAt() time.Time {
	return p.RevealedAt.Add(time.Duration(p.ExpiresInSeconds) * time.Second)
}

// Decimal is a fixed-point amount kept in its textual form. It decodes from a
// JSON number or string and encodes as a string.
type Decimal string

// ParseDecimal validates s as a decimal amount.
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("%w: decimal %q", ErrInvalidInput, s)
	}
	return Decimal(s), nil
}

// Float64 returns d as a float for display arithmetic.
func (d Decimal) Float64() float64 {
	f, _ := strconv.ParseFloat(string(d), 64)
	return f
}

func (d Decimal) String() string { return string(d) }

// MarshalJSON encodes d as a JSON string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(d))
}

// UnmarshalJSON accepts a JSON number, a numeric string, or null.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	raw := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
	}
	parsed, err := ParseDecimal(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date without time of day.
type Date struct {
	t time.Time
}

// NewDate returns the date y-m-d.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses s in [DateLayout].
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q", ErrInvalidInput, s)
	}
	return Date{t: t}, nil
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool { return d.t.IsZero() }

// Time returns midnight UTC of d.
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// MarshalJSON encodes d as "YYYY-MM-DD", or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD" or null.
func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: date %s", ErrInvalidInput, b)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
