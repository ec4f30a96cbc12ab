package csproto

import (
	"io"
	"net"
	"testing"

	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *registry.Registry {
	r := registry.New()
	r.Init(registry.DefaultRecords())
	return r
}

func buildTestCluster() *types.ClusterConfig {
	c := types.NewClusterConfig(1, "kalle", "p")
	c.System = types.SystemSection{Name: "kalle", Generation: 1}

	ds := &types.NodeConfig{NodeID: 1, Kind: types.KindDataServer, Hostname: "dbhost1", Values: map[int]types.Value{}}
	cs := &types.NodeConfig{NodeID: 2, Kind: types.KindClusterServer, Hostname: "mgmhost", Values: map[int]types.Value{}}
	api := &types.NodeConfig{NodeID: 3, Kind: types.KindClient, Hostname: "apihost", Values: map[int]types.Value{}}
	c.AddNode(ds)
	c.AddNode(cs)
	c.AddNode(api)
	return c
}

// fakeSource implements ClusterSource against a single fixed cluster.
type fakeSource struct {
	cluster *types.ClusterConfig
	params  map[[4]int]int
}

func newFakeSource(c *types.ClusterConfig) *fakeSource {
	return &fakeSource{cluster: c, params: map[[4]int]int{}}
}

func (f *fakeSource) ClusterList() []ClusterListEntry {
	return []ClusterListEntry{{Name: f.cluster.Name, ID: f.cluster.ID}}
}

func (f *fakeSource) Cluster(id uint32) (*types.ClusterConfig, error) {
	return f.cluster, nil
}

func (f *fakeSource) AssignNodeID(clusterID uint32, requested, nodeType int) (uint32, error) {
	if requested != 0 {
		return uint32(requested), nil
	}
	return 3, nil
}

func (f *fakeSource) RecordConnectionParameter(clusterID uint32, node1, node2, param, value int) error {
	f.params[[4]int{int(clusterID), node1, node2, param}] = value
	return nil
}

func (f *fakeSource) ConnectionParameter(clusterID uint32, node1, node2, param int) (int, bool) {
	v, ok := f.params[[4]int{int(clusterID), node1, node2, param}]
	return v, ok
}

func TestClientServerGetNodeIDAndConfig(t *testing.T) {
	reg := testRegistry()
	cluster := buildTestCluster()
	src := newFakeSource(cluster)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	srv := NewConn(reg, src, serverConn)
	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	dial := func(addr string) (net.Conn, error) { return clientConn, nil }
	results, err := GetCSConfig(reg, dial, []string{"unused:0"}, 3, 0, 0, nil)
	require.NoError(t, err)

	require.Contains(t, results, uint32(0))
	res := results[0]
	assert.Equal(t, uint32(3), res.AssignedNodeID)
	assert.Len(t, res.Cluster.Nodes, 3)
	assert.Equal(t, types.KindDataServer, res.Cluster.Nodes[1].Kind)
	assert.Equal(t, "mgmhost", res.Cluster.Nodes[2].Hostname)
}

func TestClientServerIClaustronClusterList(t *testing.T) {
	reg := testRegistry()
	cluster := buildTestCluster()
	src := newFakeSource(cluster)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	srv := NewConn(reg, src, serverConn)
	go srv.Serve()

	dial := func(addr string) (net.Conn, error) { return clientConn, nil }
	results, err := GetCSConfig(reg, dial, []string{"unused:0"}, 3, IClaustronBit, 0, []string{"kalle"})
	require.NoError(t, err)
	require.Contains(t, results, uint32(1))
}

func TestServerRejectsOutOfOrderAction(t *testing.T) {
	reg := testRegistry()
	cluster := buildTestCluster()
	src := newFakeSource(cluster)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	srv := NewConn(reg, src, serverConn)
	errCh := make(chan error, 1)
	go func() {
		err := srv.Serve()
		// Drain the rest of the request group, which the server never reads
		// once it has rejected the action, so the client's write can complete.
		go io.Copy(io.Discard, serverConn)
		errCh <- err
	}()

	// "get mgmd nodeid" before "get nodeid" is illegal per the state
	// machine (spec §4.D).
	require.NoError(t, writeLine(clientConn, "get mgmd nodeid"))
	require.NoError(t, writeEmptyLine(clientConn))

	err := <-errCh
	require.Error(t, err)
}
