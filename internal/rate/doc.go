// Package rate provides Redis fixed-window rate limit primitives.
//
// # Window semantics
//
// Each (namespace, identifier) pair owns one counter key. The first hit in a
// window sets the key's TTL to the window length; hits past the limit are
// rejected until the key expires. Key layout: "<prefix>:<namespace>:<id>".
//
// # What this package must NOT do
//
//   - Decide policies (limits and windows belong to the caller).
//   - Be imported outside the ctadmin module.
package rate
