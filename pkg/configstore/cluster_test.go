package configstore

import (
	"testing"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
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

const minimalClusterINI = `
[data server default]
PortNumber=1186
DataDir=/var/lib/ic/data
NoOfReplicas=1

[data server]
NodeId=1
HostName=dbhost1

[data server]
NodeId=2
HostName=dbhost2

[client]
NodeId=3
HostName=apihost1
`

func TestLoadClusterFromINI(t *testing.T) {
	reg := testRegistry(t)

	c, err := LoadClusterFromINI(reg, []byte(minimalClusterINI))
	require.NoError(t, err)

	require.Len(t, c.Nodes, 3)
	assert.Equal(t, types.KindDataServer, c.Nodes[1].Kind)
	assert.Equal(t, "dbhost1", c.Nodes[1].Hostname)
	assert.Equal(t, types.KindClient, c.Nodes[3].Kind)

	dataDirRec, err := reg.LookupByName("DataDir")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ic/data", c.Nodes[1].Values[dataDirRec.Index].S)

	fsPathRec, err := reg.LookupByName("FilesystemPath")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ic/data", c.Nodes[1].Values[fsPathRec.Index].S,
		"FilesystemPath must derive from DataDir when not set")

	// Fully-connected policy: 3 nodes -> 3 links, synthesized since no
	// [socket] sections were present.
	assert.Len(t, c.Links, 3)
}

func TestLoadClusterMissingMandatoryFails(t *testing.T) {
	reg := testRegistry(t)
	const badINI = `
[client]
NodeId=3
`
	_, err := LoadClusterFromINI(reg, []byte(badINI))
	require.Error(t, err)
	assert.True(t, icerr.Is(err, icerr.NoSuchConfigKey))
}

func TestLoadClusterUnknownKeyFails(t *testing.T) {
	reg := testRegistry(t)
	const badINI = `
[client]
NodeId=3
HostName=h
NoSuchThing=1
`
	_, err := LoadClusterFromINI(reg, []byte(badINI))
	require.Error(t, err)
	assert.True(t, icerr.Is(err, icerr.NoSuchConfigKey))
}

func TestLoadClusterDuplicateNodeIDFails(t *testing.T) {
	reg := testRegistry(t)
	const badINI = `
[client]
NodeId=3
HostName=h1

[client]
NodeId=3
HostName=h2
`
	_, err := LoadClusterFromINI(reg, []byte(badINI))
	require.Error(t, err)
	assert.True(t, icerr.Is(err, icerr.NodeAlreadyDefined))
}

func TestCommitNewGenerationBootstrap(t *testing.T) {
	dir := t.TempDir()
	reg := testRegistry(t)

	cluster, err := LoadClusterFromINI(reg, []byte(minimalClusterINI))
	require.NoError(t, err)
	cluster.ID = 0
	cluster.Name = "kalle"
	cluster.Password = "p"

	v, err := CommitNewGeneration(dir, []*types.ClusterConfig{cluster}, 0, reg)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	version, state, _, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, StateBusy, state)

	refs, err := LoadGrid(dir, 1)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "kalle", refs[0].Name)
}
