// Package csserver implements the cluster-server runtime of spec §4.E: the
// accept loop and bounded worker pool that run pkg/csproto's server driver
// per connection, the start-up sequence that takes ownership of the
// version file and bootstraps generation 1 from INI inputs when none
// exist, and the shutdown sequence that releases ownership. Replication of
// commit_new_generation across cluster-server peers is implemented by the
// replication subpackage.
package csserver
