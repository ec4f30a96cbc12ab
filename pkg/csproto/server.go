package csproto

import (
	"errors"
	"io"
	"net"

	"github.com/iClaustron/iclaustron-sub000/pkg/configwire"
	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// state is the per-connection server driver state of spec §4.D.
type state int

const (
	stateInitial state = iota
	stateWaitGetNodeid
	stateWaitGetMgmdNodeid
	stateWaitSetConnection
	stateWaitConvertTransporter
)

// ClusterSource answers the two questions the server driver needs of the
// surrounding cluster-server runtime: which cluster a connecting peer
// belongs to, and the current generation's configuration for it.
type ClusterSource interface {
	// ClusterList returns the iclaustron-only cluster list: (name, id) pairs.
	ClusterList() []ClusterListEntry
	// Cluster returns the live configuration for clusterID, or an error
	// wrapping icerr.NoSuchCluster if unknown.
	Cluster(clusterID uint32) (*types.ClusterConfig, error)
	// AssignNodeID allocates or validates a node id within a cluster,
	// implementing spec §4.D's "requested id 0 means any compatible id of
	// the matching node type" rule.
	AssignNodeID(clusterID uint32, requestedNodeID, nodeType int) (uint32, error)
	// RecordConnectionParameter stores a dynamically-reported port
	// (set-connection-parameter) so a later get-connection-parameter from
	// a peer observes it.
	RecordConnectionParameter(clusterID uint32, node1, node2, param, value int) error
	// ConnectionParameter is the read side of RecordConnectionParameter.
	ConnectionParameter(clusterID uint32, node1, node2, param int) (int, bool)
}

// Conn is the per-connection server driver. One is created per accepted
// TCP connection by the cluster-server runtime's accept loop (spec §4.E);
// Serve runs the state machine to completion or error.
type Conn struct {
	reg     *registry.Registry
	src     ClusterSource
	lr      *lineReader
	w       io.Writer
	st      state
	cluster uint32
	hasCID  bool
	nodeID  uint32
}

// NewConn wraps conn for one configuration-protocol session.
func NewConn(reg *registry.Registry, src ClusterSource, conn net.Conn) *Conn {
	return &Conn{reg: reg, src: src, lr: newLineReader(conn), w: conn, st: stateInitial}
}

// Serve runs the request loop until the peer disconnects or a fatal
// protocol violation occurs. It returns nil on a clean peer-initiated
// close (io.EOF from readLine), and an error otherwise.
func (c *Conn) Serve() error {
	for {
		action, err := c.lr.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // peer closed the connection
			}
			return err
		}
		if err := c.dispatch(action); err != nil {
			return err
		}
	}
}

func (c *Conn) dispatch(action string) error {
	switch action {
	case "get cluster list":
		return c.handleGetClusterList()
	case "get nodeid":
		return c.handleGetNodeID()
	case "get mgmd nodeid":
		return c.handleGetMgmdNodeID()
	case "get config":
		return c.handleGetConfig()
	case "set connection parameter":
		return c.handleSetConnectionParameter()
	case "get connection parameter":
		return c.handleGetConnectionParameter()
	case "report event":
		return c.handleReportEvent()
	case "transporter connect":
		return c.handleTransporterConnect()
	default:
		return icerr.New(icerr.ProtocolError, "unknown action %q", action).WithLine(c.lr.line)
	}
}

func (c *Conn) requireState(allowed ...state) error {
	for _, s := range allowed {
		if c.st == s {
			return nil
		}
	}
	return icerr.New(icerr.ProtocolError, "action illegal in state %d", c.st)
}

func (c *Conn) handleGetClusterList() error {
	if err := c.requireState(stateInitial); err != nil {
		return err
	}
	if _, err := c.lr.readGroup(); err != nil {
		return err
	}
	if err := writeLine(c.w, "get cluster list reply"); err != nil {
		return err
	}
	for _, e := range c.src.ClusterList() {
		if err := writeLine(c.w, "clustername: %s", e.Name); err != nil {
			return err
		}
		if err := writeLine(c.w, "clusterid: %d", e.ID); err != nil {
			return err
		}
	}
	if err := writeLine(c.w, "end get cluster list"); err != nil {
		return err
	}
	return nil
}

func (c *Conn) handleGetNodeID() error {
	if err := c.requireState(stateInitial, stateWaitGetNodeid, stateWaitGetMgmdNodeid); err != nil {
		return err
	}
	lines, err := c.lr.readGroup()
	if err != nil {
		return err
	}
	fields, err := parseKV(lines, c.lr.line)
	if err != nil {
		return err
	}
	requested, err := parseIntField(fields, "nodeid")
	if err != nil {
		return err
	}
	version, err := parseIntField(fields, "version")
	if err != nil {
		return err
	}
	nodeType, err := parseIntField(fields, "nodetype")
	if err != nil {
		return err
	}

	clusterID := uint32(0)
	hasCID := false
	if version&IClaustronBit != 0 {
		if raw, ok := fields["cluster_id"]; ok {
			n, err := parseIntField(map[string]string{"cluster_id": raw}, "cluster_id")
			if err != nil {
				return err
			}
			clusterID = uint32(n)
			hasCID = true
		}
	}

	assigned, assignErr := c.src.AssignNodeID(clusterID, requested, nodeType)
	if assignErr != nil {
		if err := writeLine(c.w, "get nodeid reply"); err != nil {
			return err
		}
		if err := writeLine(c.w, "result: %s", assignErr.Error()); err != nil {
			return err
		}
		return writeEmptyLine(c.w)
	}

	c.cluster = clusterID
	c.hasCID = hasCID
	c.nodeID = assigned
	c.st = stateWaitGetMgmdNodeid

	if err := writeLine(c.w, "get nodeid reply"); err != nil {
		return err
	}
	if err := writeLine(c.w, "nodeid: %d", assigned); err != nil {
		return err
	}
	if err := writeLine(c.w, "result: Ok"); err != nil {
		return err
	}
	return writeEmptyLine(c.w)
}

func (c *Conn) handleGetMgmdNodeID() error {
	if err := c.requireState(stateWaitGetMgmdNodeid); err != nil {
		return err
	}
	if _, err := c.lr.readGroup(); err != nil {
		return err
	}
	cluster, err := c.src.Cluster(c.cluster)
	if err != nil {
		return err
	}
	var mgmdID uint32
	for _, id := range cluster.ByKind[types.KindClusterServer] {
		mgmdID = id
		break
	}
	c.st = stateWaitSetConnection
	if err := writeLine(c.w, "get mgmd nodeid reply"); err != nil {
		return err
	}
	if err := writeLine(c.w, "nodeid: %d", mgmdID); err != nil {
		return err
	}
	return writeEmptyLine(c.w)
}

func (c *Conn) handleGetConfig() error {
	if err := c.requireState(stateWaitGetMgmdNodeid, stateWaitSetConnection, stateWaitConvertTransporter); err != nil {
		return err
	}
	lines, err := c.lr.readGroup()
	if err != nil {
		return err
	}
	fields, err := parseKV(lines, c.lr.line)
	if err != nil {
		return err
	}
	version, err := parseIntField(fields, "version")
	if err != nil {
		return err
	}

	cluster, err := c.src.Cluster(c.cluster)
	if err != nil {
		return err
	}
	ext := 0
	if c.hasCID {
		ext = 1
	}
	body, err := configwire.Encode(c.reg, cluster, version, ext)
	if err != nil {
		return err
	}

	if err := writeLine(c.w, "get config reply"); err != nil {
		return err
	}
	if err := writeLine(c.w, "result: Ok"); err != nil {
		return err
	}
	if err := writeLine(c.w, "Content-Length: %d", len(body)); err != nil {
		return err
	}
	if err := writeLine(c.w, "Content-Type: ndbconfig/octet-stream"); err != nil {
		return err
	}
	if err := writeLine(c.w, "Content-Transfer-Encoding: base64"); err != nil {
		return err
	}
	if err := writeEmptyLine(c.w); err != nil {
		return err
	}
	if _, err := c.w.Write(configwire.WrapLines76(body)); err != nil {
		return err
	}
	return writeEmptyLine(c.w)
}

func (c *Conn) handleSetConnectionParameter() error {
	if err := c.requireState(stateWaitSetConnection, stateWaitConvertTransporter); err != nil {
		return err
	}
	lines, err := c.lr.readGroup()
	if err != nil {
		return err
	}
	fields, err := parseKV(lines, c.lr.line)
	if err != nil {
		return err
	}
	node1, err := parseIntField(fields, "node1")
	if err != nil {
		return err
	}
	node2, err := parseIntField(fields, "node2")
	if err != nil {
		return err
	}
	param, err := parseIntField(fields, "param")
	if err != nil {
		return err
	}
	value, err := parseIntField(fields, "value")
	if err != nil {
		return err
	}
	result := "Ok"
	if err := c.src.RecordConnectionParameter(c.cluster, node1, node2, param, value); err != nil {
		result = err.Error()
	} else {
		c.st = stateWaitConvertTransporter
	}
	if err := writeLine(c.w, "set connection parameter reply"); err != nil {
		return err
	}
	if err := writeLine(c.w, "result: %s", result); err != nil {
		return err
	}
	return writeEmptyLine(c.w)
}

func (c *Conn) handleGetConnectionParameter() error {
	if err := c.requireState(stateWaitSetConnection, stateWaitConvertTransporter); err != nil {
		return err
	}
	lines, err := c.lr.readGroup()
	if err != nil {
		return err
	}
	fields, err := parseKV(lines, c.lr.line)
	if err != nil {
		return err
	}
	node1, err := parseIntField(fields, "node1")
	if err != nil {
		return err
	}
	node2, err := parseIntField(fields, "node2")
	if err != nil {
		return err
	}
	param, err := parseIntField(fields, "param")
	if err != nil {
		return err
	}
	value, ok := c.src.ConnectionParameter(c.cluster, node1, node2, param)
	if err := writeLine(c.w, "get connection parameter reply"); err != nil {
		return err
	}
	if !ok {
		if err := writeLine(c.w, "result: not found"); err != nil {
			return err
		}
		return writeEmptyLine(c.w)
	}
	if err := writeLine(c.w, "result: Ok"); err != nil {
		return err
	}
	if err := writeLine(c.w, "value: %d", value); err != nil {
		return err
	}
	return writeEmptyLine(c.w)
}

func (c *Conn) handleReportEvent() error {
	lines, err := c.lr.readGroup()
	if err != nil {
		return err
	}
	// Events are accepted regardless of state and simply acknowledged;
	// the payload is discarded.
	_ = lines
	if err := writeLine(c.w, "report event reply"); err != nil {
		return err
	}
	if err := writeLine(c.w, "result: Ok"); err != nil {
		return err
	}
	return writeEmptyLine(c.w)
}

func (c *Conn) handleTransporterConnect() error {
	if err := c.requireState(stateWaitConvertTransporter); err != nil {
		return err
	}
	if _, err := c.lr.readGroup(); err != nil {
		return err
	}
	if err := writeLine(c.w, "transporter connect reply"); err != nil {
		return err
	}
	if err := writeLine(c.w, "result: Ok"); err != nil {
		return err
	}
	return writeEmptyLine(c.w)
}
