// Package transport implements the HTTP pipeline shared by every ctadmin call.
//
// # Pipeline model
//
// A [Pipeline] wraps an [http.Client] with an ordered list of request hooks and
// response hooks. Request hooks run in registration order before the request is
// sent; response hooks run in registration order after it returns (or fails).
// Response hooks receive the pipeline itself as a [Dispatcher] so they can
// re-issue a request through the full stack, which re-applies every request
// hook to the new attempt.
//
// # Request envelope
//
// [Request] is a value type. Every With* method returns a copy, and the
// authorization-recovery retry counter is carried on the envelope instead of
// being mutated on a shared object.
//
// # Error taxonomy
//
//   - [TransportError]: no response was received.
//   - [HTTPError]: a non-2xx response was received; Detail holds the server's
//     "detail" message when one is present.
//
// # What this package must NOT do
//
//   - Interpret authentication state or navigate.
//   - Retry on its own; retries belong to response hooks.
package transport
