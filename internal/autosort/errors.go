package autosort

import "errors"

// Failure taxonomy. Engine errors are wrapped with one of these so callers
// can tell which step failed with errors.Is, while the engine's own message
// stays reachable through rules.EngineMessage.
var (
	// ErrSessionInit means the engine could not be constructed. Sorting is
	// disabled for the session.
	ErrSessionInit = errors.New("session init failed")

	// ErrMasterlistUpdate means the masterlist could not be refreshed. The
	// session stays usable with a stale or absent masterlist.
	ErrMasterlistUpdate = errors.New("masterlist update failed")

	// ErrListLoad means the lists could not be loaded. Only the current sort
	// attempt is aborted.
	ErrListLoad = errors.New("list load failed")

	// ErrEnginePanic means an engine call panicked. It classifies as a
	// generic sort failure.
	ErrEnginePanic = errors.New("engine panicked")
)
