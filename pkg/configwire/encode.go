package configwire

import (
	"encoding/base64"
	"sort"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// Encode serializes cluster into the wire key-value stream of spec §3.4,
// base64-encoded, for the version numbers base/ext (spec §4.B encoding).
// Encoding is deterministic: equal inputs always produce byte-identical
// output, satisfying the encode-determinism property of spec §8.1.
func Encode(reg *registry.Registry, cluster *types.ClusterConfig, base, ext int) ([]byte, error) {
	e := &encoder{reg: reg, cluster: cluster, base: base, ext: ext}
	words, err := e.build()
	if err != nil {
		return nil, err
	}

	body := wordsToBytes(words)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(body)))
	base64.StdEncoding.Encode(out, body)
	return out, nil
}

// WrapLines76 splits a base64 body into CR-terminated 76-character lines,
// the on-wire representation used by the configuration protocol's
// get-config reply (spec §3.4, §4.D).
func WrapLines76(body []byte) []byte {
	var out []byte
	for i := 0; i < len(body); i += Base64LineLength {
		end := i + Base64LineLength
		if end > len(body) {
			end = len(body)
		}
		out = append(out, body[i:end]...)
		out = append(out, '\r')
	}
	return out
}

type encoder struct {
	reg       *registry.Registry
	cluster   *types.ClusterConfig
	base, ext int
	words     []uint32
}

func (e *encoder) emitKey(k Key) { e.words = append(e.words, PackKey(k)) }

func (e *encoder) emitInt32(section, configID int, v uint32) {
	e.emitKey(Key{Type: TypeInt32, SectionID: section, ConfigID: configID})
	e.words = append(e.words, v)
}

func (e *encoder) emitSectionRef(section, configID, target int) {
	e.emitKey(Key{Type: TypeSectionRef, SectionID: section, ConfigID: configID})
	e.words = append(e.words, uint32(target))
}

func (e *encoder) emitInt64(section, configID int, v uint64) {
	e.emitKey(Key{Type: TypeInt64, SectionID: section, ConfigID: configID})
	e.words = append(e.words, uint32(v>>32), uint32(v))
}

func (e *encoder) emitString(section, configID int, s string) {
	e.emitKey(Key{Type: TypeString, SectionID: section, ConfigID: configID})
	lengthWord, content := encodeStringWords(s)
	e.words = append(e.words, lengthWord)
	e.words = append(e.words, content...)
}

func (e *encoder) emitValue(section, configID int, v types.Value) error {
	switch v.Kind {
	case types.ValueU16, types.ValueU32, types.ValueBool, types.ValueChar:
		e.emitInt32(section, configID, uint32(v.Uint()))
	case types.ValueU64:
		e.emitInt64(section, configID, v.U)
	case types.ValueString:
		e.emitString(section, configID, v.S)
	default:
		return icerr.New(icerr.ProtocolError, "unsupported value kind %d", v.Kind)
	}
	return nil
}

func (e *encoder) emitParams(section int, kind types.NodeKind, values map[int]types.Value) error {
	for _, rec := range e.reg.All() {
		if rec.Flags.NotSent {
			continue
		}
		if !registry.Applicable(rec, kind, e.base, e.ext) {
			continue
		}
		v, ok := values[rec.Index]
		if !ok {
			v = rec.Default
		}
		if err := e.emitValue(section, rec.WireID, v); err != nil {
			return err
		}
	}
	return nil
}

func sortedNodeIDs(m map[uint32]*types.NodeConfig) []uint32 {
	out := make([]uint32, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *encoder) build() ([]uint32, error) {
	c := e.cluster

	var apiIDs, dataServerIDs []uint32
	for _, id := range sortedNodeIDs(c.Nodes) {
		if c.Nodes[id].Kind == types.KindDataServer {
			dataServerIDs = append(dataServerIDs, id)
		} else {
			apiIDs = append(apiIDs, id)
		}
	}
	numAPI := len(apiIDs)

	linkPairs := e.allLinkPairs()
	numComms := len(linkPairs)

	// Section id assignment, matching the deterministic enumeration of
	// spec §4.B step 2.
	const section0 = 0
	const nodeMetaSection = 1
	firstAPISection := 2
	sysMetaSection := firstAPISection + numAPI
	systemSection := sysMetaSection + 1
	commMetaSection := sysMetaSection + 2
	firstCommSection := sysMetaSection + 3
	firstDataServerSection := firstCommSection + numComms

	e.emitSectionRef(section0, ConfigIDSystemSectionRef, sysMetaSection)
	e.emitSectionRef(section0, ConfigIDNodeSectionRef, nodeMetaSection)
	e.emitSectionRef(section0, ConfigIDCommSectionRef, commMetaSection)

	allNodeSections := make([]int, 0, numAPI+len(dataServerIDs))
	for i := range apiIDs {
		allNodeSections = append(allNodeSections, firstAPISection+i)
	}
	for i := range dataServerIDs {
		allNodeSections = append(allNodeSections, firstDataServerSection+i)
	}
	for i, sid := range allNodeSections {
		e.emitSectionRef(nodeMetaSection, i, sid)
	}

	for i, id := range apiIDs {
		if err := e.emitNodeSection(firstAPISection+i, c.Nodes[id]); err != nil {
			return nil, err
		}
	}

	e.emitSectionRef(sysMetaSection, 0, systemSection)
	e.emitString(systemSection, ConfigIDSystemName, c.System.Name)
	e.emitInt32(systemSection, ConfigIDSystemGeneration, c.System.Generation)
	e.emitInt32(systemSection, ConfigIDSystemPrimaryCS, c.System.PrimaryClusterCS)

	for i := range linkPairs {
		e.emitSectionRef(commMetaSection, i, firstCommSection+i)
	}
	for i, pair := range linkPairs {
		if err := e.emitCommSection(firstCommSection+i, c, pair[0], pair[1]); err != nil {
			return nil, err
		}
	}

	for i, id := range dataServerIDs {
		if err := e.emitNodeSection(firstDataServerSection+i, c.Nodes[id]); err != nil {
			return nil, err
		}
	}

	body := append([]uint32{}, e.words...)
	verify := bytesToWords([]byte(VerificationString))
	full := append(verify, body...)
	checksum := xorAll(full)
	full = append(full, checksum)
	return full, nil
}

// allLinkPairs returns every unordered pair of distinct node ids requiring
// a link (the fully-connected policy of spec §3.2 invariant 3), in a
// deterministic order.
func (e *encoder) allLinkPairs() [][2]uint32 {
	ids := sortedNodeIDs(e.cluster.Nodes)
	var pairs [][2]uint32
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			pairs = append(pairs, [2]uint32{ids[i], ids[j]})
		}
	}
	return pairs
}

func (e *encoder) emitNodeSection(section int, node *types.NodeConfig) error {
	// NodeId and HostName come from the node's identity fields, so a node
	// whose Values map lacks them still decodes to the same id and host.
	values := make(map[int]types.Value, len(node.Values)+2)
	for k, v := range node.Values {
		values[k] = v
	}
	if rec, err := e.reg.LookupByName("NodeId"); err == nil {
		values[rec.Index] = types.Value{Kind: rec.Kind, U: uint64(node.NodeID)}
	}
	if rec, err := e.reg.LookupByName("HostName"); err == nil && node.Hostname != "" {
		values[rec.Index] = types.Value{Kind: types.ValueString, S: node.Hostname}
	}
	if err := e.emitParams(section, node.Kind, values); err != nil {
		return err
	}
	e.emitInt32(section, ConfigIDParentID, 0)
	e.emitInt32(section, ConfigIDNodeType, NodeTypeToWire(node.Kind))
	return nil
}

// resolveLink returns the link record for (a,b), synthesizing a default
// one from the node hostnames and the server-side rule (spec §3.2
// invariant 4) when the cluster has none on file.
func resolveLink(c *types.ClusterConfig, a, b uint32) *types.LinkConfig {
	key := types.NewLinkKey(a, b)
	if l, ok := c.Links[key]; ok {
		return l
	}
	server := c.ServerSide(a, b)
	l := &types.LinkConfig{
		NodeID1:      a,
		NodeID2:      b,
		ServerNodeID: server,
		Values:       make(map[int]types.Value),
	}
	if n, ok := c.Nodes[a]; ok {
		l.Hostname1 = n.Hostname
	}
	if n, ok := c.Nodes[b]; ok {
		l.Hostname2 = n.Hostname
	}
	return l
}

func (e *encoder) emitCommSection(section int, c *types.ClusterConfig, a, b uint32) error {
	link := resolveLink(c, a, b)
	e.emitInt32(section, ConfigIDNodeID1, link.NodeID1)
	e.emitInt32(section, ConfigIDNodeID2, link.NodeID2)
	if err := e.emitParams(section, types.KindComm, link.Values); err != nil {
		return err
	}
	e.emitInt32(section, ConfigIDParentID, 0)
	e.emitInt32(section, ConfigIDNodeType, 0)
	return nil
}
