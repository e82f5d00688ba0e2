// Package harness provides conformance testing for the autosort service.
//
// A scenario scripts one fake engine per game, replays a sequence of host
// signals against a real autosort.Service and checks the trace of host
// effects and engine calls that results.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	games: [skyrimse]          # optional, defaults to the engines' games
//	auto_sort: false
//	retries: 0                 # masterlist update retries
//	engines:
//	  skyrimse:
//	    sort_result: [c.esp, a.esp]
//	    sort_error: "Cyclic interaction between A and B"
//	    update_error: "offline"
//	    init_error: "native library missing"
//	    metadata: { a.esp: ["Requires SKSE"] }
//	steps:
//	  - activate: skyrimse
//	  - plugins: { load_order: [a.esp, b.esp], enabled: [a.esp] }
//	  - touch_userlist: { game: skyrimse, mtime: 10 }
//	  - sort: { manual: true }
//	  - metadata: [a.esp]
//	assertions:
//	  - type: trace_order
//	    events: [activity_started, "sort_started skyrimse", load_order]
//	  - type: load_order
//	    expect: [c.esp, a.esp]
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - trace_contains: an event of kind exists, optionally with a detail substring
//   - trace_order: events appear in the specified order (not necessarily adjacent)
//   - trace_count: an event kind appears exactly N times
//   - load_order: the last published load order
//   - notification: a notification with the message (and level) was published
//   - outcome: the n-th sort step was sorted, skipped or failed
//
// # Deterministic Testing
//
// Every step waits for the work it triggered before the next step runs,
// sort ids are sequential and userlist mtimes are offsets from a fixed
// epoch. Traces are therefore identical across runs, which golden file
// comparison (RunWithGolden) relies on.
package harness
