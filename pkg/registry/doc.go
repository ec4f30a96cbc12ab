// Package registry implements the parameter registry of spec §4.A: a
// process-wide, once-initialized table of configuration parameter records
// looked up by wire id or name, with per-node-kind mandatory-bit masks and
// applicability rules used by the codec (pkg/configwire) and file store
// (pkg/configstore) to validate and default a node's configuration.
//
// Duplicate wire ids or names, like the original's offset-overflow check,
// are build-time invariant violations: Init panics rather than returning an
// error, matching the original's fatal abort.
package registry
