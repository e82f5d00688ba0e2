// Package rules defines the boundary to the rule-evaluation engine that
// orders plugins.
//
// The orchestration layer in package autosort only ever talks to an Engine.
// It never looks inside: an engine sorts a list of plugin names, loads a
// masterlist plus userlist pair, refreshes the masterlist from a remote
// mirror and answers per-plugin metadata queries.
//
// Failures cross the boundary as plain messages. Callers classify them by
// pattern (see autosort.Classify), so an engine must keep the message text
// stable: cycles start with "Cyclic interaction" and rejected inputs end
// with "is not a valid plugin".
//
// YAMLEngine is a small reference implementation backed by YAML rule lists.
// It exists so the CLI can run end to end without a native sorting library;
// it understands "after" and "req" load-after rules, global priorities and
// the diagnostic fields surfaced through Metadata.
package rules
