package types

// NodeKind enumerates the node kinds a parameter or node struct can belong
// to (spec §3.1's applicability mask, §3.2's per-node-kind arrays).
type NodeKind int

const (
	KindDataServer NodeKind = iota
	KindClient
	KindClusterServer
	KindSQLServer
	KindRepServer
	KindFileServer
	KindRestore
	KindClusterManager
	KindComm
	KindSystem

	numNodeKinds = int(KindSystem) + 1
)

func (k NodeKind) String() string {
	switch k {
	case KindDataServer:
		return "data-server"
	case KindClient:
		return "client"
	case KindClusterServer:
		return "cluster-server"
	case KindSQLServer:
		return "sql-server"
	case KindRepServer:
		return "rep-server"
	case KindFileServer:
		return "file-server"
	case KindRestore:
		return "restore"
	case KindClusterManager:
		return "cluster-manager"
	case KindComm:
		return "comm"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// NodeKindMask is a bitset over NodeKind, used as the applicability mask on
// a Record.
type NodeKindMask uint16

func (k NodeKind) Bit() NodeKindMask { return 1 << uint(k) }

func (m NodeKindMask) Has(k NodeKind) bool { return m&k.Bit() != 0 }

// ValueKind identifies the storage type of a parameter value (spec §3.1's
// data type and §3.4's wire key type).
type ValueKind int

const (
	ValueU16 ValueKind = iota
	ValueU32
	ValueU64
	ValueBool
	ValueChar
	ValueString
)

// Value is a tagged union carrying one configuration value, replacing the
// original's struct-offset write with a typed union assignable to a map
// slot. Only the field matching Kind is meaningful.
type Value struct {
	Kind ValueKind
	U    uint64
	S    string
	B    bool
}

func (v Value) Uint() uint64 {
	if v.Kind == ValueBool {
		if v.B {
			return 1
		}
		return 0
	}
	return v.U
}

// ChangeClass is the change-class enumeration of spec §3.1.
type ChangeClass int

const (
	ChangeOnline ChangeClass = iota
	ChangeNodeRestart
	ChangeRollingUpgrade
	ChangeRollingUpgradeSpecial
	ChangeInitialNodeRestart
	ChangeClusterRestart
	ChangeNotChangeable
)

// VersionWindow bounds a parameter's applicability by base and extended
// iClaustron version numbers (spec §3.1, §4.A applicable_to).
type VersionWindow struct {
	MinBase int
	MaxBase int // 0 means unbounded
	MinExt  int
	MaxExt  int // 0 means unbounded
}

func (w VersionWindow) Contains(base, ext int) bool {
	if base < w.MinBase || (w.MaxBase != 0 && base > w.MaxBase) {
		return false
	}
	if ext < w.MinExt || (w.MaxExt != 0 && ext > w.MaxExt) {
		return false
	}
	return true
}

// Flags holds the boolean flag set of spec §3.1.
type Flags struct {
	Deprecated      bool
	NotConfigurable bool
	StringType      bool
	Boolean         bool
	Mandatory       bool
	KeyMember       bool
	DerivedDefault  bool
	IClaustronOnly  bool
	NotSent         bool
}

// NodeConfig holds one node's resolved configuration: parameter values
// keyed by the registry's dense Index (the Go analogue of a struct-offset
// write — see DESIGN.md), plus the identity fields every node kind shares.
type NodeConfig struct {
	NodeID   uint32
	Kind     NodeKind
	Hostname string
	Values   map[int]Value // registry Index -> value
}

// LinkKey identifies a communication link by its unordered node-id pair,
// hashed per spec §3.2 invariant 3 / §4.B step 6 as first^second.
type LinkKey struct {
	First, Second uint32
}

func NewLinkKey(a, b uint32) LinkKey {
	if a <= b {
		return LinkKey{First: a, Second: b}
	}
	return LinkKey{First: b, Second: a}
}

func (k LinkKey) Hash() uint32 { return k.First ^ k.Second }

// LinkConfig is one communication-link record (spec §3.2, §3.6).
type LinkConfig struct {
	NodeID1, NodeID2 uint32
	ServerNodeID     uint32 // which side is the server, per §3.2 invariant 4
	Hostname1        string
	Hostname2        string
	Values           map[int]Value
}

// SystemSection holds the per-cluster system section of spec §3.4: cluster
// name, primary cluster-server id, configuration generation number.
type SystemSection struct {
	Name             string
	PrimaryClusterCS uint32
	Generation       uint32
}

// ClusterConfig is one cluster's full configuration (spec §3.2).
type ClusterConfig struct {
	ID       uint32
	Name     string
	Password string

	Nodes   map[uint32]*NodeConfig   // node id -> node
	ByKind  map[NodeKind][]uint32    // kind -> node ids, derived counts via len()
	Links   map[LinkKey]*LinkConfig
	System  SystemSection
	MaxNodeID uint32
}

func NewClusterConfig(id uint32, name, password string) *ClusterConfig {
	return &ClusterConfig{
		ID:       id,
		Name:     name,
		Password: password,
		Nodes:    make(map[uint32]*NodeConfig),
		ByKind:   make(map[NodeKind][]uint32),
		Links:    make(map[LinkKey]*LinkConfig),
	}
}

// AddNode registers a node, updating ByKind and MaxNodeID.
func (c *ClusterConfig) AddNode(n *NodeConfig) {
	c.Nodes[n.NodeID] = n
	c.ByKind[n.Kind] = append(c.ByKind[n.Kind], n.NodeID)
	if n.NodeID > c.MaxNodeID {
		c.MaxNodeID = n.NodeID
	}
}

// ServerSide implements spec §3.2 invariant 4: the higher node id is the
// server side of a link unless one side is a data server, in which case
// the data server is the server side.
func (c *ClusterConfig) ServerSide(a, b uint32) uint32 {
	aIsDS := c.kindOf(a) == KindDataServer
	bIsDS := c.kindOf(b) == KindDataServer
	switch {
	case aIsDS && !bIsDS:
		return a
	case bIsDS && !aIsDS:
		return b
	}
	if a > b {
		return a
	}
	return b
}

func (c *ClusterConfig) kindOf(id uint32) NodeKind {
	if n, ok := c.Nodes[id]; ok {
		return n.Kind
	}
	return KindSystem
}

// ClusterServerPeer is one endpoint of the grid's cluster-server peer list
// (spec §3.3).
type ClusterServerPeer struct {
	NodeID   uint32
	Hostname string
	Port     int
}

// Grid is a vector of up to IC_MAX_CLUSTER_ID cluster configurations plus
// the cluster-server peer list (spec §3.3).
type Grid struct {
	Clusters []*ClusterConfig
	Peers    []ClusterServerPeer
}

// MaxClusterID bounds cluster identifiers (IC_MAX_CLUSTER_ID in the
// original); clusters in a Grid must have IDs below this.
const MaxClusterID = 16384

func (g *Grid) ClusterByID(id uint32) (*ClusterConfig, bool) {
	for _, c := range g.Clusters {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (g *Grid) ClusterByName(name string) (*ClusterConfig, bool) {
	for _, c := range g.Clusters {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}
