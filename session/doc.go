// Package session provides the client session store: the single source of truth for
// "who is logged in" on one storefront client, persisted through a [kv.Medium] so it
// survives page loads.
//
// # Lifecycle
//
// A [Store] starts in [StatusLoading]. [Store.Initialize] runs exactly once and always
// resolves the status to [StatusAbsent] or [StatusPresent]. Afterwards the status only
// changes through [Store.Commit] and [Store.Clear].
//
// # Persisted layout
//
// Two entries: the JSON-encoded identity and the opaque credential token. They are
// written together in one atomic medium write and removed together. A half-written or
// unparseable pair is treated as an absent session and erased; it is never reported
// as an error.
//
// # What this package must NOT do
//
//   - Import the root package, flow, or guard (no upward imports).
//   - Make routing or authorization decisions.
//   - Log or expose the credential token beyond [Snapshot].
package session
