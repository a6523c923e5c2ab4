// Package refresh coalesces concurrent session renewals.
//
// # Coalescing
//
// Every caller that asks for a renewal while one is outstanding waits on that
// same renewal and observes its result. Once it completes, the next request
// starts a fresh one.
//
// # Architecture boundaries
//
// This package owns the single-flight bookkeeping only. The renewal call itself
// is injected as a [Renewer], normally the auth API's refresh endpoint.
//
// # What this package must NOT do
//
//   - Retry a failed renewal.
//   - Touch session state or navigation.
//   - Import transport, middleware, or session.
package refresh
