// Package replication resolves spec §4.E's open question — a
// cluster-server-to-cluster-server synchronisation protocol is referenced
// but not specified — with a Raft group (hashicorp/raft) over the grid's
// cluster-server peers. The group's FSM applies exactly one command kind,
// CommitGeneration, which records a new configuration version and grid in
// memory and rejects versions that are not newer than the current one. It
// does not write or step the config.version state file.
package replication
