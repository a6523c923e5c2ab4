// Package apitest runs an in-process fake of the copy-trade backend for
// tests and examples.
//
// The fake serves both authentication variants: cookie sessions with CSRF
// double submit and rotating refresh tokens under /api/v2, and stateless
// bearer tokens under /api. Session state lives in Redis (an embedded
// miniredis unless one is supplied) and accounts live in memory.
//
// Test controls let a caller expire every access token, make renewal fail,
// slow renewal down and count requests per path.
package apitest
