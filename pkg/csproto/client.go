package csproto

import (
	"bytes"
	"io"
	"net"

	"github.com/iClaustron/iclaustron-sub000/pkg/configwire"
	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// Dialer abstracts the connection primitive of spec §6.4 so tests can
// substitute an in-memory pipe instead of a real TCP dial.
type Dialer func(addr string) (net.Conn, error)

// ClientResult is the outcome of GetCSConfig for one cluster.
type ClientResult struct {
	Cluster        *types.ClusterConfig
	AssignedNodeID uint32
}

// GetCSConfig implements spec §4.D's client driver (get_cs_config):
// connect to the first reachable endpoint, resolve cluster ids (via
// get-cluster-list when iclaustron, else cluster id 0), then for each
// cluster id run the get-nodeid / get-config exchange and decode the
// reply via pkg/configwire.
func GetCSConfig(
	reg *registry.Registry,
	dial Dialer,
	endpoints []string,
	requestedNodeID int,
	version int,
	nodeType int,
	desiredClusterNames []string,
) (map[uint32]*ClientResult, error) {
	var conn net.Conn
	var lastErr error
	for _, ep := range endpoints {
		c, err := dial(ep)
		if err != nil {
			lastErr = err
			continue
		}
		conn = c
		break
	}
	if conn == nil {
		return nil, icerr.Wrap(icerr.GetConfigByClusterServer, lastErr, "no cluster server reachable among %d endpoints", len(endpoints))
	}
	defer conn.Close()

	lr := newLineReader(conn)

	iclaustron := version&IClaustronBit != 0

	var clusterIDs []uint32
	if iclaustron {
		ids, err := getClusterList(conn, lr, desiredClusterNames)
		if err != nil {
			return nil, err
		}
		clusterIDs = ids
	} else {
		clusterIDs = []uint32{0}
	}

	results := make(map[uint32]*ClientResult, len(clusterIDs))
	seen := make(map[uint32]bool)
	for _, cid := range clusterIDs {
		if seen[cid] {
			return nil, icerr.New(icerr.ConflictingClusterIds, "duplicate cluster id %d", cid)
		}
		seen[cid] = true

		assigned, err := getNodeID(conn, lr, requestedNodeID, version, nodeType, cid, iclaustron)
		if err != nil {
			return nil, err
		}

		body, err := getConfig(conn, lr, version, nodeType)
		if err != nil {
			return nil, err
		}

		cluster, err := configwire.Decode(reg, body, version, boolToExt(iclaustron))
		if err != nil {
			return nil, err
		}
		cluster.ID = cid
		results[cid] = &ClientResult{Cluster: cluster, AssignedNodeID: assigned}
	}
	return results, nil
}

// ListClusters connects to the first reachable endpoint and returns every
// cluster the cluster server reports via get-cluster-list (spec §4.D);
// it requires the iclaustron protocol extension.
func ListClusters(dial Dialer, endpoints []string) ([]ClusterListEntry, error) {
	var conn net.Conn
	var lastErr error
	for _, ep := range endpoints {
		c, err := dial(ep)
		if err != nil {
			lastErr = err
			continue
		}
		conn = c
		break
	}
	if conn == nil {
		return nil, icerr.Wrap(icerr.GetConfigByClusterServer, lastErr, "no cluster server reachable among %d endpoints", len(endpoints))
	}
	defer conn.Close()

	lr := newLineReader(conn)
	return getClusterListEntries(conn, lr)
}

func boolToExt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func getNodeID(conn io.Writer, lr *lineReader, nodeID, version, nodeType int, clusterID int, iclaustron bool) (uint32, error) {
	if err := writeLine(conn, "get nodeid"); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "nodeid: %d", nodeID); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "version: %d", version); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "nodetype: %d", nodeType); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "user: mysqld"); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "password: mysqld"); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "public key: a public key"); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "endian: little"); err != nil {
		return 0, err
	}
	if err := writeLine(conn, "log_event: 0"); err != nil {
		return 0, err
	}
	if iclaustron {
		if err := writeLine(conn, "cluster_id: %d", clusterID); err != nil {
			return 0, err
		}
	}
	if err := writeEmptyLine(conn); err != nil {
		return 0, err
	}

	lines, err := lr.readGroup()
	if err != nil {
		return 0, err
	}
	if len(lines) == 0 || lines[0] != "get nodeid reply" {
		return 0, icerr.New(icerr.ProtocolError, "expected get nodeid reply").WithLine(lr.line)
	}
	fields, err := parseKV(lines[1:], lr.line)
	if err != nil {
		return 0, err
	}
	if result, ok := fields["result"]; !ok || result != "Ok" {
		return 0, icerr.New(icerr.ProtocolError, "get nodeid failed: %s", fields["result"])
	}
	n, err := parseIntField(fields, "nodeid")
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func getConfig(conn io.Writer, lr *lineReader, version, nodeType int) ([]byte, error) {
	if err := writeLine(conn, "get config"); err != nil {
		return nil, err
	}
	if err := writeLine(conn, "version: %d", version); err != nil {
		return nil, err
	}
	if err := writeLine(conn, "nodetype: %d", nodeType); err != nil {
		return nil, err
	}
	if err := writeEmptyLine(conn); err != nil {
		return nil, err
	}

	lines, err := lr.readGroup()
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || lines[0] != "get config reply" {
		return nil, icerr.New(icerr.ProtocolError, "expected get config reply").WithLine(lr.line)
	}
	fields, err := parseKV(lines[1:], lr.line)
	if err != nil {
		return nil, err
	}
	if fields["result"] != "Ok" {
		return nil, icerr.New(icerr.ProtocolError, "get config failed: %s", fields["result"])
	}
	length, err := parseIntField(fields, "Content-Length")
	if err != nil {
		return nil, err
	}

	// The body follows the header group's terminating empty line, wrapped
	// at 76 base64 characters per CR-terminated line (spec §3.4, §4.D).
	var body bytes.Buffer
	for body.Len() < length {
		line, err := lr.readLine()
		if err != nil {
			return nil, err
		}
		body.WriteString(line)
	}
	if body.Len() != length {
		return nil, icerr.New(icerr.ProtocolError, "get config body length mismatch")
	}
	if _, err := lr.readLine(); err != nil { // trailing empty line
		return nil, err
	}
	return body.Bytes(), nil
}

func getClusterList(conn io.Writer, lr *lineReader, desired []string) ([]uint32, error) {
	entries, err := getClusterListEntries(conn, lr)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(desired))
	for _, d := range desired {
		wanted[d] = true
	}
	var ids []uint32
	for _, e := range entries {
		if len(wanted) > 0 && !wanted[e.Name] {
			continue
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

// getClusterListEntries runs the get-cluster-list exchange and returns
// every entry the cluster server reports, unfiltered.
func getClusterListEntries(conn io.Writer, lr *lineReader) ([]ClusterListEntry, error) {
	if err := writeLine(conn, "get cluster list"); err != nil {
		return nil, err
	}
	if err := writeEmptyLine(conn); err != nil {
		return nil, err
	}

	header, err := lr.readLine()
	if err != nil {
		return nil, err
	}
	if header != "get cluster list reply" {
		return nil, icerr.New(icerr.ProtocolError, "expected get cluster list reply").WithLine(lr.line)
	}

	var entries []ClusterListEntry
	for {
		line, err := lr.readLine()
		if err != nil {
			return nil, err
		}
		if line == "end get cluster list" {
			break
		}
		nameKey, nameVal, ok := kv(line)
		if !ok || nameKey != "clustername" {
			return nil, icerr.New(icerr.ProtocolError, "malformed cluster list entry %q", line).WithLine(lr.line)
		}
		idLine, err := lr.readLine()
		if err != nil {
			return nil, err
		}
		idKey, idVal, ok := kv(idLine)
		if !ok || idKey != "clusterid" {
			return nil, icerr.New(icerr.ProtocolError, "malformed cluster list entry %q", idLine).WithLine(lr.line)
		}
		n, err := parseIntField(map[string]string{"clusterid": idVal}, "clusterid")
		if err != nil {
			return nil, err
		}
		entries = append(entries, ClusterListEntry{Name: nameVal, ID: uint32(n)})
	}
	return entries, nil
}
