/*
Package log provides structured logging built on zerolog.

A single package-level Logger is configured once via Init and then shared by
every other package. Component loggers add a fixed field: WithComponent tags
the subsystem (registry, codec, configstore, csproto, csserver, transport);
WithCluster, WithNode, WithPeer and WithConnection tag the cluster id, node
id, remote peer address, and a caller-supplied connection id respectively.
The accept loop and the transport workers tag per-connection lines with
WithPeer, so a single connection's lines can be followed by its peer address.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	l := log.WithComponent("csserver").With().Logger()
	l.Info().Uint32("cluster_id", 3).Msg("generation committed")
*/
package log
