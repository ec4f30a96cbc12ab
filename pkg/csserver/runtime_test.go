package csserver

import (
	"net"
	"testing"
	"time"

	"github.com/iClaustron/iclaustron-sub000/pkg/configwire"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	r.Init(registry.DefaultRecords())
	return r
}

const testClusterINI = `
[data server default]
PortNumber=1186
DataDir=/var/lib/ic/data
NoOfReplicas=1

[data server]
NodeId=1
HostName=dbhost1

[cluster server]
NodeId=2
HostName=mgmhost1
PortNumber=1186
DataDir=/var/lib/ic/cs

[client]
NodeId=3
HostName=apihost1
`

func newTestRuntime(t *testing.T) (*Runtime, string) {
	t.Helper()
	dir := t.TempDir()
	reg := testRegistry(t)
	rt := New(Config{Dir: dir, ListenAddr: "127.0.0.1:0", ProcessName: "ic-csd", NumWorkers: 4}, reg)
	err := rt.Bootstrap([]BootstrapInput{{Name: "kalle", ID: 1, Password: "p", INI: []byte(testClusterINI)}})
	require.NoError(t, err)
	return rt, dir
}

func TestRuntimeBootstrapThenClusterSource(t *testing.T) {
	rt, _ := newTestRuntime(t)

	list := rt.ClusterList()
	require.Len(t, list, 1)
	assert.Equal(t, "kalle", list[0].Name)

	c, err := rt.Cluster(list[0].ID)
	require.NoError(t, err)
	assert.Len(t, c.Nodes, 3)

	id, err := rt.AssignNodeID(c.ID, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id)

	_, err = rt.AssignNodeID(c.ID, 99, 0)
	assert.Error(t, err)

	assignedAny, err := rt.AssignNodeID(c.ID, 0, int(configwire.NodeTypeToWire(types.KindDataServer)))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), assignedAny)
}

func TestRuntimeConnectionParameterRoundTrip(t *testing.T) {
	rt, _ := newTestRuntime(t)
	c, err := rt.Cluster(1)
	require.NoError(t, err)

	require.NoError(t, rt.RecordConnectionParameter(c.ID, 1, 2, 5, 42))
	v, ok := rt.ConnectionParameter(c.ID, 1, 2, 5)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = rt.ConnectionParameter(c.ID, 1, 2, 6)
	assert.False(t, ok)
}

func TestRuntimeStartAcceptsConnections(t *testing.T) {
	rt, _ := newTestRuntime(t)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	rt.cfg.ListenAddr = addr
	done := make(chan error, 1)
	go func() { done <- rt.Start() }()

	var conn net.Conn
	for i := 0; i < 50; i++ {
		conn, err = net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	require.NoError(t, err)
	conn.Close()

	require.NoError(t, rt.Stop())
	require.NoError(t, <-done)
}

func TestRuntimeIsLeaderWithoutReplication(t *testing.T) {
	rt, _ := newTestRuntime(t)
	assert.True(t, rt.IsLeader())
	assert.Equal(t, 1, rt.ConfigGeneration())
}

func TestRuntimeCommitGenerationWithoutReplication(t *testing.T) {
	rt, dir := newTestRuntime(t)
	_ = dir
	c, err := rt.Cluster(1)
	require.NoError(t, err)

	newVersion, err := rt.CommitGeneration([]*types.ClusterConfig{c})
	require.NoError(t, err)
	assert.Equal(t, 2, newVersion)
	assert.Equal(t, 2, rt.ConfigGeneration())
}
