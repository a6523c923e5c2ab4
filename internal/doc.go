// Package internal holds helpers private to the ctadmin module: opaque
// random tokens and their digests.
//
// # Sub-packages
//
//   - apitest: in-process fake of the copy-trade backend
//   - cli: the ctadmin command tree
//   - rate: Redis fixed-window rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public ctadmin API.
//   - Be imported by any package outside the ctadmin module.
package internal
