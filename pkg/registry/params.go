package registry

import "github.com/iClaustron/iclaustron-sub000/pkg/types"

// mandatory bit positions, disjoint within each kind they apply to.
const (
	bitNodeID = iota
	bitHostname
	bitDataDir
	bitPortNumber
	bitNoOfReplicas
)

func allKinds(kinds ...types.NodeKind) types.NodeKindMask {
	var m types.NodeKindMask
	for _, k := range kinds {
		m |= k.Bit()
	}
	return m
}

var serverKinds = allKinds(
	types.KindDataServer, types.KindClusterServer, types.KindSQLServer,
	types.KindRepServer, types.KindFileServer, types.KindRestore,
	types.KindClusterManager,
)

var allNodeKinds = allKinds(
	types.KindDataServer, types.KindClient, types.KindClusterServer,
	types.KindSQLServer, types.KindRepServer, types.KindFileServer,
	types.KindRestore, types.KindClusterManager,
)

// DefaultRecords returns the curated parameter table installed by
// production callers (spec §3.1). Wire ids avoid the structural range used
// by the codec for section-ref and node-identity keys (999, 1000-3000,
// 16382 — see pkg/configwire).
func DefaultRecords() []*Record {
	return []*Record{
		{
			Name: "NodeId", WireID: 3, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32}, HasMin: true, HasMax: true, Min: 1, Max: 16383,
			Applicable: allNodeKinds, ChangeClass: types.ChangeNotChangeable,
			Flags: types.Flags{Mandatory: true, KeyMember: true}, MandatoryBit: bitNodeID,
		},
		{
			Name: "HostName", WireID: 7, Kind: types.ValueString,
			Default: types.Value{Kind: types.ValueString, S: ""},
			Applicable: allNodeKinds, ChangeClass: types.ChangeNodeRestart,
			Flags: types.Flags{StringType: true, Mandatory: true, DerivedDefault: true}, MandatoryBit: bitHostname,
		},
		{
			Name: "DataDir", WireID: 11, Kind: types.ValueString,
			Default: types.Value{Kind: types.ValueString, S: "."},
			Applicable: serverKinds, ChangeClass: types.ChangeInitialNodeRestart,
			Flags: types.Flags{StringType: true, Mandatory: true}, MandatoryBit: bitDataDir,
		},
		{
			Name: "PortNumber", WireID: 15, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 1186}, HasMin: true, HasMax: true, Min: 1, Max: 65535,
			Applicable: serverKinds, ChangeClass: types.ChangeNodeRestart,
			Flags: types.Flags{Mandatory: true}, MandatoryBit: bitPortNumber,
		},
		{
			Name: "NoOfReplicas", WireID: 19, Kind: types.ValueU16,
			Default: types.Value{Kind: types.ValueU16, U: 1}, HasMin: true, HasMax: true, Min: 1, Max: 4,
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeClusterRestart,
			Flags: types.Flags{Mandatory: true}, MandatoryBit: bitNoOfReplicas,
		},
		{
			Name: "MaxNoOfTables", WireID: 23, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 128}, HasMin: true, HasMax: true, Min: 8, Max: 20320,
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeClusterRestart,
		},
		{
			Name: "MaxNoOfAttributes", WireID: 27, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 1000}, HasMin: true, HasMax: true, Min: 32, Max: 4294967039,
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeClusterRestart,
		},
		{
			Name: "DataMemory", WireID: 31, Kind: types.ValueU64,
			Default: types.Value{Kind: types.ValueU64, U: 98 * 1024 * 1024}, HasMin: true, Min: 1024 * 1024,
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeClusterRestart,
		},
		{
			Name: "IndexMemory", WireID: 35, Kind: types.ValueU64,
			Default: types.Value{Kind: types.ValueU64, U: 18 * 1024 * 1024}, HasMin: true, Min: 1024 * 1024,
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeClusterRestart,
		},
		{
			Name: "TimeBetweenWatchDogCheck", WireID: 39, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 6000}, HasMin: true, HasMax: true, Min: 70, Max: 4294967039,
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeRollingUpgrade,
		},
		{
			Name: "ArbitrationRank", WireID: 43, Kind: types.ValueU16,
			Default: types.Value{Kind: types.ValueU16, U: 1}, HasMin: true, HasMax: true, Max: 2,
			Applicable: allKinds(types.KindDataServer, types.KindClusterManager), ChangeClass: types.ChangeNodeRestart,
		},
		{
			Name: "ConnectString", WireID: 47, Kind: types.ValueString,
			Default: types.Value{Kind: types.ValueString, S: ""},
			Applicable: allNodeKinds, ChangeClass: types.ChangeNodeRestart,
			Flags: types.Flags{StringType: true},
		},
		{
			Name: "TotalMemoryConfig", WireID: 51, Kind: types.ValueU64,
			Default: types.Value{Kind: types.ValueU64, U: 0}, HasMin: true, Min: 0,
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeInitialNodeRestart,
		},
		{
			Name: "NumCPUs", WireID: 55, Kind: types.ValueU16,
			Default: types.Value{Kind: types.ValueU16, U: 1}, HasMin: true, HasMax: true, Min: 1, Max: 1024,
			Applicable: serverKinds, ChangeClass: types.ChangeInitialNodeRestart,
		},
		{
			Name: "UseOnlyIPv4", WireID: 59, Kind: types.ValueBool,
			Default: types.Value{Kind: types.ValueBool, B: false},
			Applicable: allNodeKinds, ChangeClass: types.ChangeNodeRestart,
			Flags: types.Flags{Boolean: true},
		},
		{
			Name: "ClusterServerPrimary", WireID: 63, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 0},
			Applicable: types.KindSystem.Bit(), ChangeClass: types.ChangeOnline,
			Flags: types.Flags{DerivedDefault: true},
		},
		{
			Name: "SendBufferMemory", WireID: 67, Kind: types.ValueU64,
			Default: types.Value{Kind: types.ValueU64, U: 2 * 1024 * 1024}, HasMin: true, Min: 256 * 1024,
			Applicable: types.KindComm.Bit(), ChangeClass: types.ChangeNodeRestart,
		},
		{
			Name: "ReceiveBufferMemory", WireID: 71, Kind: types.ValueU64,
			Default: types.Value{Kind: types.ValueU64, U: 2 * 1024 * 1024}, HasMin: true, Min: 256 * 1024,
			Applicable: types.KindComm.Bit(), ChangeClass: types.ChangeNodeRestart,
		},
		{
			Name: "HeartbeatIntervalMillis", WireID: 75, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 1500}, HasMin: true, HasMax: true, Min: 100, Max: 60000,
			Applicable: types.KindComm.Bit(), ChangeClass: types.ChangeNodeRestart,
		},
		{
			Name: "MaxWaitInNanos", WireID: 79, Kind: types.ValueU64,
			Default: types.Value{Kind: types.ValueU64, U: 50000}, HasMin: true, Min: 0,
			Applicable: types.KindComm.Bit(), ChangeClass: types.ChangeOnline,
		},
		{
			Name: "IClaustronClusterManagerPort", WireID: 83, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 10203}, HasMin: true, HasMax: true, Min: 1, Max: 65535,
			Applicable: types.KindClusterManager.Bit(), ChangeClass: types.ChangeNodeRestart,
			Flags: types.Flags{IClaustronOnly: true}, Version: types.VersionWindow{MinExt: 1},
		},
		{
			Name: "ObsoleteMaxNoOfSavedEvents", WireID: 87, Kind: types.ValueU32,
			Default: types.Value{Kind: types.ValueU32, U: 100},
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeNotChangeable,
			Flags: types.Flags{Deprecated: true, NotConfigurable: true},
		},
		{
			Name: "FilesystemPath", WireID: 91, Kind: types.ValueString,
			Default: types.Value{Kind: types.ValueString, S: ""},
			Applicable: serverKinds, ChangeClass: types.ChangeInitialNodeRestart,
			Flags: types.Flags{StringType: true, DerivedDefault: true},
		},
		{
			Name: "DataServerCheckpointPath", WireID: 95, Kind: types.ValueString,
			Default: types.Value{Kind: types.ValueString, S: ""},
			Applicable: types.KindDataServer.Bit(), ChangeClass: types.ChangeInitialNodeRestart,
			Flags: types.Flags{StringType: true, DerivedDefault: true},
		},
		{
			Name: "PcntrlHostname", WireID: 99, Kind: types.ValueString,
			Default: types.Value{Kind: types.ValueString, S: ""},
			Applicable: serverKinds, ChangeClass: types.ChangeNodeRestart,
			Flags: types.Flags{StringType: true, DerivedDefault: true},
		},
		{
			Name: "NodeName", WireID: 103, Kind: types.ValueString,
			Default: types.Value{Kind: types.ValueString, S: ""},
			Applicable: allNodeKinds, ChangeClass: types.ChangeNodeRestart,
			Flags: types.Flags{StringType: true, DerivedDefault: true},
		},
	}
}
