// Package ctadmin is an admin client for the copy-trade backend. It keeps an
// administrator signed in, attaches credentials to every request and
// recovers from expired sessions without the caller noticing.
//
// Build a [Client] with [New] and [Builder.Build], call [Client.Mount] to
// restore any existing session, then use [Client.Login], [Client.Accounts]
// and friends. [Client.Close] stops background renewal and flushes audit
// events.
//
// # Session models
//
// [ModeCookie] talks to the v2 endpoints. The backend sets HTTP-only access
// and refresh cookies plus a readable CSRF cookie that is echoed into a
// header on every mutating request. A 401 triggers one shared renewal and a
// single retry of each rejected request; while signed in, the session is
// renewed in the background.
//
// [ModeToken] talks to the v1 endpoints with a bearer token kept in a
// tokenstore. A 401 clears the token and redirects to the login route.
//
// # Architecture boundaries
//
// ctadmin is the public surface and the composition root. Request building
// lives in api, the request pipeline in transport, credential and recovery
// hooks in middleware, renewal coalescing in refresh and the state machine
// in session. Those packages never import ctadmin.
//
// # What this package must NOT do
//
//   - Log or audit passwords, tokens or CSRF values.
//   - Retry a request more than once after a 401.
//   - Mix session models within one Client.
package ctadmin
