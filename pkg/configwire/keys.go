package configwire

import "github.com/iClaustron/iclaustron-sub000/pkg/types"

// ValType is the wire key-value type tag (spec §3.4).
type ValType int

const (
	TypeInt32     ValType = 1
	TypeString    ValType = 2
	TypeSectionRef ValType = 3
	TypeInt64     ValType = 4
)

// Key is the decoded form of a 32-bit wire key word, packed as
// (type:4)(section_id:14)(config_id:14) (spec §3.4).
type Key struct {
	Type      ValType
	SectionID int
	ConfigID  int
}

func PackKey(k Key) uint32 {
	return uint32(k.Type)<<28 | uint32(k.SectionID&0x3fff)<<14 | uint32(k.ConfigID&0x3fff)
}

func UnpackKey(w uint32) Key {
	return Key{
		Type:      ValType(w >> 28),
		SectionID: int(w>>14) & 0x3fff,
		ConfigID:  int(w) & 0x3fff,
	}
}

// Structural config ids, fixed by spec §3.4 and used directly by the codec
// rather than looked up in the parameter registry: they describe wire
// layout, not a configurable value.
const (
	ConfigIDSystemSectionRef = 1000
	ConfigIDNodeSectionRef   = 2000
	ConfigIDCommSectionRef   = 3000
	ConfigIDParentID         = 16382
	ConfigIDNodeType         = 999
)

// Additional structural config ids within the node/comm/system sections,
// not fixed by spec prose but needed for the codec's own round-trip
// consistency (decode(encode(x)) == x).
const (
	ConfigIDNodeID1 = 3 // comm section: first endpoint's node id
	ConfigIDNodeID2 = 4 // comm section: second endpoint's node id

	ConfigIDSystemName       = 1
	ConfigIDSystemGeneration = 2
	ConfigIDSystemPrimaryCS  = 3
)

// VerificationString prepends every wire key-value stream (spec §3.4).
const VerificationString = "NDBCONFV"

// Base64LineLength is the wire line length for the base64 body (spec §3.4,
// §4.D get-config reply).
const Base64LineLength = 76

// wireNodeType maps types.NodeKind to the wire node-type values used for
// key 999. Values are stable across this module's lifetime since they are
// part of the wire contract, not an internal implementation detail.
var wireNodeType = map[types.NodeKind]uint32{
	types.KindDataServer:     1,
	types.KindClient:         2,
	types.KindClusterServer:  3,
	types.KindSQLServer:      2, // classic MySQL servers are API/client nodes on the wire
	types.KindRepServer:      2,
	types.KindFileServer:     2,
	types.KindRestore:        2,
	types.KindClusterManager: 5,
}

func NodeTypeToWire(k types.NodeKind) uint32 {
	if v, ok := wireNodeType[k]; ok {
		return v
	}
	return 2
}

func WireToNodeType(v uint32) types.NodeKind {
	for k, wv := range wireNodeType {
		if wv == v && k != types.KindSQLServer && k != types.KindRepServer && k != types.KindFileServer && k != types.KindRestore {
			return k
		}
	}
	return types.KindClient
}
