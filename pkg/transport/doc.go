// Package transport implements the data-transport layer of spec §3.6/§3.7
// and §4.F: per-peer send-nodes driving a send path with an adaptive-wait
// algorithm, a bounded pool of receive workers, a heartbeat worker walking
// all attached send-nodes, and listen-server workers accepting the
// server side of a link.
//
// The original's per-role OS thread plus a hand-rolled poll-set becomes,
// here, one goroutine per connection (the Go runtime's netpoller already
// multiplexes blocking reads for us) feeding a small bounded pool of
// dispatch goroutines that own the per-hash-bucket posting spec §4.F.4
// describes; Runtime.Start runs every worker goroutine under an
// errgroup.Group. An error in one worker does not stop the others;
// Runtime.Stop stops them all and returns the first error reported, the
// idiomatic-Go analogue of the original's thread-pool join.
package transport
