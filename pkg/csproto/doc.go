// Package csproto implements the configuration protocol of spec §4.D: the
// CR-terminated text line protocol by which a node retrieves cluster
// configuration from a cluster-server peer, both the client driver
// (GetCSConfig) and the per-connection server state machine (NewConn /
// Conn.Serve).
package csproto
