// Package api holds the typed REST collaborators of the admin backend: the
// auth endpoints, the admin account endpoints, and the public statistics.
//
// Every collaborator sends through a [transport.Dispatcher], so credentials,
// CSRF headers and 401 recovery are applied by the pipeline, not here.
//
// # Path sets
//
// The backend exposes a cookie-session surface under /api/v2 and a legacy
// bearer-token surface under /api. [CookiePaths] and [TokenPaths] select the
// auth endpoints; [AdminPrefix] and [LegacyAdminPrefix] select the account
// endpoints.
//
// # What this package must NOT do
//
//   - Store credentials or session state.
//   - Retry requests.
package api
