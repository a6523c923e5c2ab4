// Package session owns the client's authentication state and its lifecycle.
//
// # State machine
//
// A [Store] holds one [State]. It starts loading, and the [Controller] moves it
// to authenticated or unauthenticated through bootstrap, login, logout,
// periodic renewal and expiry. Consumers read snapshots and subscribe to
// changes; only the Controller writes.
//
// # Session models
//
// [ModeCookie] relies on HTTP-only cookies: bootstrap attempts a silent
// renewal, login returns the user directly, and a ticker renews the session
// while authenticated. [ModeToken] keeps a bearer token in a tokenstore:
// bootstrap only asks for the profile when a token exists, and logout is local.
//
// # Lifecycle
//
// After [Controller.Unmount] no state is written, no navigation happens and
// every timer is stopped.
//
// # What this package must NOT do
//
//   - Build HTTP requests; it talks to the backend through [Authenticator].
//   - Retry failed renewals; a failed renewal ends the session.
//   - Format errors for display.
package session
