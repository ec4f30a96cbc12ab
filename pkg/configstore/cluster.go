package configstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iClaustron/iclaustron-sub000/pkg/configstore/ini"
	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

var sectionNameByKind = map[types.NodeKind]string{
	types.KindDataServer:     "data server",
	types.KindClient:         "client",
	types.KindClusterServer:  "cluster server",
	types.KindSQLServer:      "sql server",
	types.KindRepServer:      "rep server",
	types.KindFileServer:     "file server",
	types.KindRestore:        "restore",
	types.KindClusterManager: "cluster manager",
}

const socketSectionName = "socket"

func defaultSectionName(kind types.NodeKind) string { return sectionNameByKind[kind] + " default" }

// LoadCluster reads <cluster_name>.ini.N via the INI reader collaborator
// (spec §4.C load_cluster).
func LoadCluster(reg *registry.Registry, path string) (*types.ClusterConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, icerr.Wrap(icerr.FailedToOpenFile, err, "loading %s", path)
	}
	return buildClusterFromINI(reg, f)
}

// LoadClusterFromINI parses raw INI bytes directly — the original's
// IC_API_CONFIG_SERVER bootstrap path for reading local INI files when no
// cluster server is reachable, carried forward per SPEC_FULL.md §13 and
// exposed to both the cluster server's own bootstrap and
// `ic-ctl get-config --bootstrap-from`.
func LoadClusterFromINI(reg *registry.Registry, data []byte) (*types.ClusterConfig, error) {
	f, err := ini.Parse(data)
	if err != nil {
		return nil, icerr.Wrap(icerr.FailedToOpenFile, err, "parsing bootstrap INI")
	}
	return buildClusterFromINI(reg, f)
}

func buildClusterFromINI(reg *registry.Registry, f *ini.File) (*types.ClusterConfig, error) {
	c := types.NewClusterConfig(0, "", "")

	defaults := make(map[types.NodeKind]map[string]string)
	for kind, name := range sectionNameByKind {
		for _, sec := range f.SectionsNamed(name + " default") {
			defaults[kind] = sec.Keys
		}
	}

	seenIDs := make(map[uint32]bool)
	for kind, name := range sectionNameByKind {
		for _, sec := range f.SectionsNamed(name) {
			node, present, err := buildNode(reg, kind, defaults[kind], sec.Keys)
			if err != nil {
				return nil, err
			}
			if seenIDs[node.NodeID] {
				return nil, icerr.New(icerr.NodeAlreadyDefined, "node id %d already defined", node.NodeID).WithNode(node.NodeID)
			}
			seenIDs[node.NodeID] = true

			applyDerivedDefaults(reg, node)
			if err := checkMandatory(reg, kind, present); err != nil {
				return nil, err
			}
			c.AddNode(node)
		}
	}

	if len(c.Nodes) == 0 {
		return nil, icerr.New(icerr.NoNodesFound, "no node sections found")
	}

	for _, sec := range f.SectionsNamed(socketSectionName) {
		link, err := buildLink(reg, c, sec.Keys)
		if err != nil {
			return nil, err
		}
		c.Links[types.NewLinkKey(link.NodeID1, link.NodeID2)] = link
	}
	synthesizeMissingLinks(c)

	return c, nil
}

// buildNode applies registry defaults, then the kind's default section,
// then the node's own section, tracking which mandatory bits were ever
// supplied (by default section or node section — a registry default alone
// does not satisfy a mandatory requirement).
func buildNode(reg *registry.Registry, kind types.NodeKind, kindDefaults, nodeKeys map[string]string) (*types.NodeConfig, uint64, error) {
	vals := make(map[int]types.Value)
	reg.FillDefaults(vals, kind)

	var present uint64
	apply := func(keys map[string]string) error {
		for key, raw := range keys {
			rec, err := reg.LookupByName(key)
			if err != nil {
				return icerr.New(icerr.NoSuchConfigKey, "unknown key %q", key).WithKey(key)
			}
			if !rec.Applicable.Has(kind) {
				return icerr.New(icerr.CorrectConfigInWrongSection, "%q is not applicable to %s", key, kind).WithKey(key)
			}
			v, err := parseValue(rec, raw)
			if err != nil {
				return err
			}
			vals[rec.Index] = v
			if rec.Flags.Mandatory {
				present |= 1 << rec.MandatoryBit
			}
		}
		return nil
	}
	if err := apply(kindDefaults); err != nil {
		return nil, 0, err
	}
	if err := apply(nodeKeys); err != nil {
		return nil, 0, err
	}

	node := &types.NodeConfig{Kind: kind, Values: vals}
	if rec, err := reg.LookupByName("NodeId"); err == nil {
		node.NodeID = uint32(vals[rec.Index].Uint())
	}
	if rec, err := reg.LookupByName("HostName"); err == nil {
		node.Hostname = vals[rec.Index].S
	}
	return node, present, nil
}

func parseValue(rec *registry.Record, raw string) (types.Value, error) {
	switch rec.Kind {
	case types.ValueString:
		return types.Value{Kind: types.ValueString, S: raw}, nil
	case types.ValueBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return types.Value{}, icerr.New(icerr.NoBooleanValue, "%q is not boolean", rec.Name).WithKey(rec.Name)
		}
		return types.Value{Kind: types.ValueBool, B: b}, nil
	default:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return types.Value{}, icerr.New(icerr.WrongConfigNumber, "%q is not numeric", rec.Name).WithKey(rec.Name)
		}
		if rec.HasMin && n < rec.Min {
			return types.Value{}, icerr.New(icerr.ConfigValueOutOfBounds, "%q below minimum", rec.Name).WithKey(rec.Name)
		}
		if rec.HasMax && n > rec.Max {
			return types.Value{}, icerr.New(icerr.ConfigValueOutOfBounds, "%q above maximum", rec.Name).WithKey(rec.Name)
		}
		kind := rec.Kind
		return types.Value{Kind: kind, U: n}, nil
	}
}

// applyDerivedDefaults fills in spec §4.C's four derived-default fields
// when they were left at their empty-string registry default.
func applyDerivedDefaults(reg *registry.Registry, node *types.NodeConfig) {
	get := func(name string) (int, bool) {
		rec, err := reg.LookupByName(name)
		if err != nil || !rec.Applicable.Has(node.Kind) {
			return 0, false
		}
		return rec.Index, true
	}
	setIfEmpty := func(name, fallback string) {
		idx, ok := get(name)
		if !ok {
			return
		}
		if v := node.Values[idx]; v.S == "" {
			node.Values[idx] = types.Value{Kind: types.ValueString, S: fallback}
		}
	}

	if idx, ok := get("DataDir"); ok {
		setIfEmpty("FilesystemPath", node.Values[idx].S)
	}
	if idx, ok := get("FilesystemPath"); ok {
		setIfEmpty("DataServerCheckpointPath", node.Values[idx].S)
	}
	setIfEmpty("PcntrlHostname", node.Hostname)
	setIfEmpty("NodeName", fmt.Sprintf("node_%d", node.NodeID))
}

func checkMandatory(reg *registry.Registry, kind types.NodeKind, present uint64) error {
	want := reg.MandatoryMask(kind)
	if present&want == want {
		return nil
	}
	var missing []string
	for _, rec := range reg.All() {
		if !rec.Flags.Mandatory || !rec.Applicable.Has(kind) {
			continue
		}
		bit := uint64(1) << rec.MandatoryBit
		if want&bit != 0 && present&bit == 0 {
			missing = append(missing, rec.Name)
		}
	}
	return icerr.New(icerr.NoSuchConfigKey, "missing mandatory parameters for %s: %s", kind, strings.Join(missing, ", "))
}

func buildLink(reg *registry.Registry, c *types.ClusterConfig, keys map[string]string) (*types.LinkConfig, error) {
	n1, err := strconv.ParseUint(keys["node1"], 10, 32)
	if err != nil {
		return nil, icerr.New(icerr.NoSuchConfigKey, "socket section missing node1")
	}
	n2, err := strconv.ParseUint(keys["node2"], 10, 32)
	if err != nil {
		return nil, icerr.New(icerr.NoSuchConfigKey, "socket section missing node2")
	}
	link := &types.LinkConfig{NodeID1: uint32(n1), NodeID2: uint32(n2), Values: make(map[int]types.Value)}
	link.ServerNodeID = c.ServerSide(link.NodeID1, link.NodeID2)
	if n, ok := c.Nodes[link.NodeID1]; ok {
		link.Hostname1 = n.Hostname
	}
	if n, ok := c.Nodes[link.NodeID2]; ok {
		link.Hostname2 = n.Hostname
	}
	for key, raw := range keys {
		if key == "node1" || key == "node2" {
			continue
		}
		rec, err := reg.LookupByName(key)
		if err != nil {
			return nil, icerr.New(icerr.NoSuchConfigKey, "unknown socket key %q", key).WithKey(key)
		}
		v, err := parseValue(rec, raw)
		if err != nil {
			return nil, err
		}
		link.Values[rec.Index] = v
	}
	return link, nil
}

// synthesizeMissingLinks materialises a default link for every unordered
// pair of present nodes without one on file, per spec §4.B step 6 /
// §3.2 invariant 3 (fully-connected policy).
func synthesizeMissingLinks(c *types.ClusterConfig) {
	ids := make([]uint32, 0, len(c.Nodes))
	for id := range c.Nodes {
		ids = append(ids, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			key := types.NewLinkKey(a, b)
			if _, ok := c.Links[key]; ok {
				continue
			}
			c.Links[key] = &types.LinkConfig{
				NodeID1:      a,
				NodeID2:      b,
				ServerNodeID: c.ServerSide(a, b),
				Hostname1:    c.Nodes[a].Hostname,
				Hostname2:    c.Nodes[b].Hostname,
				Values:       make(map[int]types.Value),
			}
		}
	}
}

// renderClusterINI writes a ClusterConfig back out in the same section
// grammar LoadCluster reads, used by CommitNewGeneration.
func renderClusterINI(c *types.ClusterConfig, reg *registry.Registry) string {
	var b strings.Builder
	for kind, name := range sectionNameByKind {
		ids := c.ByKind[kind]
		for _, id := range ids {
			node := c.Nodes[id]
			fmt.Fprintf(&b, "[%s]\n", name)
			for _, rec := range reg.All() {
				if !rec.Applicable.Has(kind) {
					continue
				}
				v, ok := node.Values[rec.Index]
				if !ok {
					continue
				}
				fmt.Fprintf(&b, "%s=%s\n", rec.Name, formatValue(v))
			}
			b.WriteString("\n")
		}
	}
	for _, link := range c.Links {
		fmt.Fprintf(&b, "[%s]\nnode1=%d\nnode2=%d\n", socketSectionName, link.NodeID1, link.NodeID2)
		for _, rec := range reg.All() {
			if !rec.Applicable.Has(types.KindComm) {
				continue
			}
			v, ok := link.Values[rec.Index]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s=%s\n", rec.Name, formatValue(v))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatValue(v types.Value) string {
	switch v.Kind {
	case types.ValueString:
		return v.S
	case types.ValueBool:
		return strconv.FormatBool(v.B)
	default:
		return strconv.FormatUint(v.Uint(), 10)
	}
}
