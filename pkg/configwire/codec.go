// Package configwire implements the base64 wire key-value codec of spec
// §3.4 and §4.B: encoding a cluster configuration into the verification-
// string-prefixed, checksummed, base64-framed byte stream exchanged by the
// configuration protocol, and decoding it back.
package configwire

import (
	"encoding/base64"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// rawEntry is one decoded (key, value) pair before it is interpreted in
// the context of its owning section.
type rawEntry struct {
	key Key
	val types.Value
}

// Decode parses a base64 wire stream into a single cluster configuration
// (spec §4.B decoding). base/ext are the requesting node's version numbers,
// used to validate parameter applicability.
func Decode(reg *registry.Registry, encoded []byte, base, ext int) (*types.ClusterConfig, error) {
	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, icerr.Wrap(icerr.ProtocolError, err, "invalid base64 body")
	}
	if len(raw)%4 != 0 || len(raw) <= 12 {
		return nil, icerr.New(icerr.ProtocolError, "decoded body length %d invalid", len(raw))
	}

	words := bytesToWords(raw)
	if string(raw[:8]) != VerificationString {
		return nil, icerr.New(icerr.ProtocolError, "missing verification string")
	}
	if xorAll(words) != 0 {
		return nil, icerr.New(icerr.MessageChecksum, "checksum mismatch")
	}

	// words[0:2] verification string, words[len-1] checksum, payload in between.
	payload := words[2 : len(words)-1]

	sections, order, err := splitSections(payload)
	if err != nil {
		return nil, err
	}

	d := &decoder{reg: reg, sections: sections, order: order, base: base, ext: ext}
	return d.build()
}

// splitSections walks the flat key-value stream once, grouping entries by
// their key's section id while recording the order sections were first
// seen. This collapses the original's structure-discovery and assignment
// passes into one Go-idiomatic walk over growable maps/slices; no
// pre-sized allocation pass is made.
func splitSections(words []uint32) (map[int][]rawEntry, []int, error) {
	sections := make(map[int][]rawEntry)
	var order []int
	seen := make(map[int]bool)

	i := 0
	for i < len(words) {
		key := UnpackKey(words[i])
		i++
		var val types.Value
		switch key.Type {
		case TypeInt32, TypeSectionRef:
			if i >= len(words) {
				return nil, nil, icerr.New(icerr.ProtocolError, "truncated int32 value")
			}
			val = types.Value{Kind: types.ValueU32, U: uint64(words[i])}
			i++
		case TypeInt64:
			if i+1 >= len(words) {
				return nil, nil, icerr.New(icerr.ProtocolError, "truncated int64 value")
			}
			hi, lo := words[i], words[i+1]
			val = types.Value{Kind: types.ValueU64, U: uint64(hi)<<32 | uint64(lo)}
			i += 2
		case TypeString:
			if i >= len(words) {
				return nil, nil, icerr.New(icerr.ProtocolError, "truncated string length")
			}
			lengthWord := words[i]
			i++
			n := stringWordCountFromLengthWord(lengthWord)
			if i+n > len(words) {
				return nil, nil, icerr.New(icerr.ProtocolError, "truncated string content")
			}
			s, ok := decodeStringWords(lengthWord, words[i:i+n])
			if !ok {
				return nil, nil, icerr.New(icerr.ProtocolError, "malformed string length")
			}
			val = types.Value{Kind: types.ValueString, S: s}
			i += n
		default:
			return nil, nil, icerr.New(icerr.ProtocolError, "unknown wire value type %d", key.Type)
		}

		if !seen[key.SectionID] {
			seen[key.SectionID] = true
			order = append(order, key.SectionID)
		}
		sections[key.SectionID] = append(sections[key.SectionID], rawEntry{key: key, val: val})
	}
	return sections, order, nil
}

func stringWordCountFromLengthWord(lengthWord uint32) int {
	if lengthWord < 2 {
		return 0
	}
	return (int(lengthWord) + 3) / 4
}

type decoder struct {
	reg      *registry.Registry
	sections map[int][]rawEntry
	order    []int
	base, ext int
}

func (d *decoder) entryByConfigID(sectionID, configID int) (rawEntry, bool) {
	for _, e := range d.sections[sectionID] {
		if e.key.ConfigID == configID {
			return e, true
		}
	}
	return rawEntry{}, false
}

func (d *decoder) build() (*types.ClusterConfig, error) {
	// Section 0: three section-ref keys.
	sysRefEntry, ok := d.entryByConfigID(0, ConfigIDSystemSectionRef)
	if !ok {
		return nil, icerr.New(icerr.ProtocolError, "section 0 missing system section ref")
	}
	nodeRefEntry, ok := d.entryByConfigID(0, ConfigIDNodeSectionRef)
	if !ok {
		return nil, icerr.New(icerr.ProtocolError, "section 0 missing node section ref")
	}
	commRefEntry, ok := d.entryByConfigID(0, ConfigIDCommSectionRef)
	if !ok {
		return nil, icerr.New(icerr.ProtocolError, "section 0 missing comm section ref")
	}

	sysMetaSection := int(sysRefEntry.val.Uint())
	nodeMetaSection := int(nodeRefEntry.val.Uint())
	commMetaSection := int(commRefEntry.val.Uint())

	if nodeMetaSection != 1 {
		return nil, icerr.New(icerr.ProtocolError, "node meta section sentinel must be 1, got %d", nodeMetaSection)
	}
	if commMetaSection != sysMetaSection+2 {
		return nil, icerr.New(icerr.ProtocolError, "comm meta section %d inconsistent with system meta section %d", commMetaSection, sysMetaSection)
	}
	systemSection := sysMetaSection + 1
	firstCommSection := sysMetaSection + 3
	numAPI := sysMetaSection - 2
	if numAPI < 0 {
		return nil, icerr.New(icerr.ProtocolError, "negative API node count derived from system meta section %d", sysMetaSection)
	}

	if ref, ok := d.entryByConfigID(sysMetaSection, 0); ok {
		if int(ref.val.Uint()) != systemSection {
			return nil, icerr.New(icerr.ProtocolError, "system meta section points at %d, expected %d", int(ref.val.Uint()), systemSection)
		}
	}

	// Node meta section lists every node section, API first then data server.
	nodeSectionIDs := sortedSectionIDs(d.sections[nodeMetaSection])
	if len(nodeSectionIDs) < numAPI {
		return nil, icerr.New(icerr.ProtocolError, "node meta section has fewer entries than num_api")
	}

	firstDataServer := -1
	for _, sid := range nodeSectionIDs {
		if sid >= firstCommSection {
			firstDataServer = sid
			break
		}
	}
	numComms := 0
	if firstDataServer >= 0 {
		numComms = firstDataServer - firstCommSection
	} else {
		numComms = len(d.sections[commMetaSection])
	}
	if numComms < 0 {
		return nil, icerr.New(icerr.ProtocolError, "negative comm section count")
	}

	cluster := types.NewClusterConfig(0, "", "")

	seenNodeIDs := make(map[uint32]bool)
	for idx, sid := range nodeSectionIDs {
		node, err := d.decodeNodeSection(sid)
		if err != nil {
			return nil, err
		}
		if seenNodeIDs[node.NodeID] {
			return nil, icerr.New(icerr.ConflictingIds, "duplicate node id %d", node.NodeID).WithNode(node.NodeID)
		}
		seenNodeIDs[node.NodeID] = true
		_ = idx // ordering (API vs data-server) is carried by section id, not needed further
		cluster.AddNode(node)
	}

	sys, err := d.decodeSystemSection(systemSection)
	if err != nil {
		return nil, err
	}
	cluster.System = sys

	commSectionIDs := sortedSectionIDs(d.sections[commMetaSection])
	if len(commSectionIDs) != numComms {
		return nil, icerr.New(icerr.ProtocolError, "comm meta section entry count disagrees with derived num_comms")
	}
	for _, sid := range commSectionIDs {
		link, err := d.decodeCommSection(sid, cluster)
		if err != nil {
			return nil, err
		}
		key := types.NewLinkKey(link.NodeID1, link.NodeID2)
		cluster.Links[key] = link
	}

	return cluster, nil
}

// sortedSectionIDs returns the section-ref values of a meta section's
// entries, ordered by their config id (which enumerates position: 0,1,2…).
func sortedSectionIDs(entries []rawEntry) []int {
	maxCfg := -1
	for _, e := range entries {
		if e.key.ConfigID > maxCfg {
			maxCfg = e.key.ConfigID
		}
	}
	out := make([]int, 0, len(entries))
	for cfg := 0; cfg <= maxCfg; cfg++ {
		for _, e := range entries {
			if e.key.ConfigID == cfg {
				out = append(out, int(e.val.Uint()))
				break
			}
		}
	}
	return out
}

func (d *decoder) decodeNodeSection(sectionID int) (*types.NodeConfig, error) {
	var nodeType uint32
	var nodeID uint32
	haveType, haveID := false, false
	values := make(map[int]types.Value)

	for _, e := range d.sections[sectionID] {
		switch e.key.ConfigID {
		case ConfigIDNodeType:
			nodeType = uint32(e.val.Uint())
			haveType = true
			continue
		case ConfigIDParentID:
			if e.val.Uint() != 0 {
				return nil, icerr.New(icerr.ProtocolError, "non-zero parent id in section %d", sectionID)
			}
			continue
		}
		rec, err := d.reg.LookupByWireID(e.key.ConfigID)
		if err != nil {
			return nil, icerr.Wrap(icerr.ProtocolError, err, "unknown config id %d in node section %d", e.key.ConfigID, sectionID)
		}
		if rec.Flags.Deprecated || rec.Flags.NotConfigurable {
			continue
		}
		nv, err := d.typeCheck(rec, e.val)
		if err != nil {
			return nil, err
		}
		values[rec.Index] = nv
		if rec.Name == "NodeId" {
			nodeID = uint32(nv.Uint())
			haveID = true
		}
	}
	if !haveType {
		return nil, icerr.New(icerr.ProtocolError, "node section %d missing node-type key", sectionID)
	}
	if !haveID {
		return nil, icerr.New(icerr.ProtocolError, "node section %d missing node id", sectionID)
	}

	node := &types.NodeConfig{
		NodeID: nodeID,
		Kind:   WireToNodeType(nodeType),
		Values: values,
	}
	if hostRec, err := d.reg.LookupByName("HostName"); err == nil {
		if v, ok := values[hostRec.Index]; ok {
			node.Hostname = v.S
		}
	}
	return node, nil
}

func (d *decoder) decodeSystemSection(sectionID int) (types.SystemSection, error) {
	var sys types.SystemSection
	for _, e := range d.sections[sectionID] {
		switch e.key.ConfigID {
		case ConfigIDSystemName:
			sys.Name = e.val.S
		case ConfigIDSystemGeneration:
			sys.Generation = uint32(e.val.Uint())
		case ConfigIDSystemPrimaryCS:
			sys.PrimaryClusterCS = uint32(e.val.Uint())
		default:
			return sys, icerr.New(icerr.ProtocolError, "unknown key %d in system section %d", e.key.ConfigID, sectionID)
		}
	}
	return sys, nil
}

func (d *decoder) decodeCommSection(sectionID int, cluster *types.ClusterConfig) (*types.LinkConfig, error) {
	link := &types.LinkConfig{Values: make(map[int]types.Value)}
	haveN1, haveN2 := false, false
	for _, e := range d.sections[sectionID] {
		switch e.key.ConfigID {
		case ConfigIDNodeID1:
			link.NodeID1 = uint32(e.val.Uint())
			haveN1 = true
			continue
		case ConfigIDNodeID2:
			link.NodeID2 = uint32(e.val.Uint())
			haveN2 = true
			continue
		case ConfigIDParentID, ConfigIDNodeType:
			// Communication sections mirror node sections (spec §3.4);
			// these keys carry no meaning for a link and are ignored.
			continue
		}
		rec, err := d.reg.LookupByWireID(e.key.ConfigID)
		if err != nil {
			return nil, icerr.Wrap(icerr.ProtocolError, err, "unknown config id %d in comm section %d", e.key.ConfigID, sectionID)
		}
		if rec.Flags.Deprecated || rec.Flags.NotConfigurable {
			continue
		}
		nv, err := d.typeCheck(rec, e.val)
		if err != nil {
			return nil, err
		}
		link.Values[rec.Index] = nv
	}
	if !haveN1 || !haveN2 {
		return nil, icerr.New(icerr.ProtocolError, "comm section %d missing endpoint node ids", sectionID)
	}
	link.ServerNodeID = cluster.ServerSide(link.NodeID1, link.NodeID2)
	if n1, ok := cluster.Nodes[link.NodeID1]; ok {
		link.Hostname1 = n1.Hostname
	}
	if n2, ok := cluster.Nodes[link.NodeID2]; ok {
		link.Hostname2 = n2.Hostname
	}
	return link, nil
}

// wireCategory classifies how a value travels on the wire: a 32-bit int32
// word, a 64-bit int64 pair, or a length-prefixed string (spec §3.4).
// encode.go's emitValue widens every 32-bit-or-smaller storage kind
// (U16, U32, Bool, Char) onto the int32 category, so a record's storage
// kind and a decoded wire value's kind only ever agree up to category, not
// by exact ValueKind.
type wireCategory int

const (
	wire32 wireCategory = iota
	wire64
	wireString
)

func categoryOf(k types.ValueKind) wireCategory {
	switch k {
	case types.ValueU64:
		return wire64
	case types.ValueString:
		return wireString
	default:
		return wire32
	}
}

// typeCheck validates a decoded wire value against its record's wire
// category and bounds, then returns the value recast to the record's
// storage kind (e.g. wire32/U32 narrowed back to U16, Bool, or Char) so
// it round-trips through types.Value the way the record declares it.
func (d *decoder) typeCheck(rec *registry.Record, v types.Value) (types.Value, error) {
	if categoryOf(rec.Kind) != categoryOf(v.Kind) {
		return types.Value{}, icerr.New(icerr.ProtocolError, "wire value type mismatch for %q", rec.Name).WithKey(rec.Name)
	}
	norm := v
	norm.Kind = rec.Kind
	if rec.Kind == types.ValueBool {
		norm.B = v.U != 0
	}
	if rec.HasMin && norm.Uint() < rec.Min {
		return types.Value{}, icerr.New(icerr.ConfigValueOutOfBounds, "%q below minimum", rec.Name).WithKey(rec.Name)
	}
	if rec.HasMax && norm.Uint() > rec.Max {
		return types.Value{}, icerr.New(icerr.ConfigValueOutOfBounds, "%q above maximum", rec.Name).WithKey(rec.Name)
	}
	return norm, nil
}
