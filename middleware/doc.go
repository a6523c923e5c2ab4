// Package middleware provides the request and response hooks that sit on a
// [transport.Pipeline] between the API collaborators and the backend.
//
// # Hooks
//
//   - [CSRF]: copies the readable CSRF cookie into a request header on
//     state-changing methods.
//   - [Bearer]: attaches the stored access token to every request.
//   - [RequestID]: stamps a correlation ID on every request.
//   - [Recovery]: turns a 401 into a single renew-and-retry (cookie model) or
//     a credential reset and redirect to the login route (token model).
//
// # Architecture boundaries
//
// Hooks translate session state into HTTP headers and HTTP outcomes into
// session actions. Session renewal itself is delegated to the caller-supplied
// Renew function, normally a [refresh.Coordinator].
//
// # What this package must NOT do
//
//   - Call authentication endpoints directly.
//   - Mutate the caller's request; hooks work on copies.
//   - Retry a request more than once per recovery.
package middleware
