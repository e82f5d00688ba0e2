// Package autosort coordinates plugin sorting for the active game profile.
//
// The package sits between a host application (which owns the UI, the
// profile list and the load order) and a rule-evaluation engine (see package
// rules). It never sorts anything itself.
//
// ARCHITECTURE:
//
// Future chains:
// Profile switches and sorts are each serialized by a chain of futures. A
// request reserves the next slot synchronously, under a mutex, and then waits
// for the slot before it. This gives:
//   - strict FIFO processing in call order
//   - at most one session initialization and one engine sort at a time
//   - no locks held while engine calls block
//
// Components:
//   - SessionManager: owns the current Session (game + engine handle)
//   - ListCache: reloads rule lists only when the userlist changed on disk
//   - SortCoordinator: runs one sort at a time and publishes the result
//   - Classify/Report: map engine failures to user notifications
//   - MetadataService: unserialized, uncached metadata lookups
//
// Request Flow (sort):
//  1. RequestSort drops automatic requests while auto sort is disabled
//  2. The request waits for the previous sort, then for the current session
//  3. A session that does not match the active profile, or has no engine,
//     ends the request silently
//  4. The plugin snapshot (load order ∩ enabled) is taken
//  5. StartActivity → ListCache.EnsureLoaded → Engine.Sort → StopActivity
//  6. Success publishes the order; failure is classified and reported
//
// ERROR POLICY:
//
// Every future settles on every path. Engine failures are reported through
// the Host and recorded on the outcome; they are never returned to callers,
// so a failed request cannot poison the request queued behind it.
package autosort
