// Package types holds the shared cluster-configuration data model used by
// the registry, codec, file store, protocol and transport packages: node
// kinds, tagged-union parameter values, per-node and per-link configs, the
// per-cluster system section, and the grid that groups clusters with their
// cluster-server peers (spec §3.2, §3.3).
package types
