package registry

import (
	"testing"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	r.Init(DefaultRecords())
	return r
}

func TestLookupByWireID(t *testing.T) {
	r := newTestRegistry(t)

	rec, err := r.LookupByWireID(7)
	require.NoError(t, err)
	assert.Equal(t, "HostName", rec.Name)

	_, err = r.LookupByWireID(999999)
	require.Error(t, err)
	assert.True(t, icerr.Is(err, icerr.UnknownParameter))
}

func TestLookupByName(t *testing.T) {
	r := newTestRegistry(t)

	rec, err := r.LookupByName("NoOfReplicas")
	require.NoError(t, err)
	assert.Equal(t, 19, rec.WireID)

	_, err = r.LookupByName("NoSuchParameter")
	require.Error(t, err)
	assert.True(t, icerr.Is(err, icerr.UnknownParameter))
}

func TestInitIsIdempotent(t *testing.T) {
	r := New()
	r.Init(DefaultRecords())
	r.Init(DefaultRecords()) // second call is a no-op, not a panic

	assert.Len(t, r.All(), len(DefaultRecords()))
}

func TestMandatoryMaskDisjointWithinKind(t *testing.T) {
	r := newTestRegistry(t)

	mask := r.MandatoryMask(types.KindDataServer)
	// NodeId, HostName, DataDir, PortNumber, NoOfReplicas are all
	// mandatory and applicable to data-server.
	assert.NotZero(t, mask&(1<<bitNodeID))
	assert.NotZero(t, mask&(1<<bitHostname))
	assert.NotZero(t, mask&(1<<bitDataDir))
	assert.NotZero(t, mask&(1<<bitPortNumber))
	assert.NotZero(t, mask&(1<<bitNoOfReplicas))
}

func TestApplicableVersionWindow(t *testing.T) {
	r := newTestRegistry(t)
	rec, err := r.LookupByName("IClaustronClusterManagerPort")
	require.NoError(t, err)

	assert.False(t, Applicable(rec, types.KindClusterManager, 0x100000, 0),
		"iclaustron-only parameter must require non-zero extended version")
	assert.True(t, Applicable(rec, types.KindClusterManager, 0x100000, 1))
	assert.False(t, Applicable(rec, types.KindDataServer, 0x100000, 1),
		"kind bit must be checked")
}

func TestFillDefaults(t *testing.T) {
	r := newTestRegistry(t)

	vals := make(map[int]types.Value)
	r.FillDefaults(vals, types.KindDataServer)

	hostRec, err := r.LookupByName("HostName")
	require.NoError(t, err)
	assert.Contains(t, vals, hostRec.Index)

	replRec, err := r.LookupByName("NoOfReplicas")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), vals[replRec.Index].Uint())

	clusterMgrRec, err := r.LookupByName("IClaustronClusterManagerPort")
	require.NoError(t, err)
	assert.NotContains(t, vals, clusterMgrRec.Index,
		"parameter not applicable to data-server must not be defaulted")
}

func TestDuplicateWireIDPanics(t *testing.T) {
	r := New()
	records := []*Record{
		{Name: "A", WireID: 1, Applicable: types.KindSystem.Bit()},
		{Name: "B", WireID: 1, Applicable: types.KindSystem.Bit()},
	}
	assert.Panics(t, func() { r.Init(records) })
}

func TestDuplicateNamePanics(t *testing.T) {
	r := New()
	records := []*Record{
		{Name: "A", WireID: 1, Applicable: types.KindSystem.Bit()},
		{Name: "A", WireID: 2, Applicable: types.KindSystem.Bit()},
	}
	assert.Panics(t, func() { r.Init(records) })
}
