// Package configstore implements the versioned on-disk configuration file
// store of spec §3.5 and §4.C: config.version's ownership grammar
// (ReadVersion/WriteVersion/LockAndLoad/ReleaseLock), the per-generation
// grid and cluster INI files (LoadGrid/LoadCluster/CommitNewGeneration),
// and the bootstrap INI path (LoadClusterFromINI) used when no cluster
// server is yet reachable.
//
// INI lexing is delegated to pkg/configstore/ini, itself a thin
// collaborator over gopkg.in/ini.v1; this package owns the validation,
// default-application and id-assignment logic, done in a single walk over
// the parsed sections with no separate sizing pass.
package configstore
