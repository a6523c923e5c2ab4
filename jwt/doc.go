// Package jwt reads and mints the backend's HS256 access tokens.
//
// Clients never hold the signing secret, so [Inspect] decodes claims without
// verifying the signature; its output is for display and scheduling only and
// must never be used to authorize anything. [Manager] signs and verifies with
// the shared secret and backs the in-process test server.
package jwt
