package configwire

import (
	"encoding/base64"
	"testing"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustBase64Decode(t *testing.T, encoded []byte) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(string(encoded))
	require.NoError(t, err)
	return raw
}

func mustBase64Encode(raw []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	r.Init(registry.DefaultRecords())
	return r
}

func buildTestCluster(t *testing.T, reg *registry.Registry) *types.ClusterConfig {
	t.Helper()
	c := types.NewClusterConfig(0, "", "")
	c.System = types.SystemSection{Name: "kalle", Generation: 1, PrimaryClusterCS: 4}

	mkNode := func(id uint32, kind types.NodeKind, hostname string) *types.NodeConfig {
		vals := make(map[int]types.Value)
		reg.FillDefaults(vals, kind)
		if rec, err := reg.LookupByName("HostName"); err == nil {
			v := vals[rec.Index]
			v.S = hostname
			vals[rec.Index] = v
		}
		return &types.NodeConfig{NodeID: id, Kind: kind, Hostname: hostname, Values: vals}
	}

	c.AddNode(mkNode(3, types.KindClient, "h1"))
	c.AddNode(mkNode(4, types.KindClusterServer, "h2"))
	c.AddNode(mkNode(1, types.KindDataServer, "h3"))
	c.AddNode(mkNode(2, types.KindDataServer, "h4"))
	return c
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reg := testRegistry(t)
	c := buildTestCluster(t, reg)

	encoded, err := Encode(reg, c, 0x12345, 1)
	require.NoError(t, err)

	decoded, err := Decode(reg, encoded, 0x12345, 1)
	require.NoError(t, err)

	assert.Equal(t, c.System, decoded.System)
	assert.Equal(t, c.MaxNodeID, decoded.MaxNodeID)
	require.Len(t, decoded.Nodes, len(c.Nodes))
	for id, n := range c.Nodes {
		dn, ok := decoded.Nodes[id]
		require.True(t, ok, "node %d missing after round-trip", id)
		assert.Equal(t, n.Kind, dn.Kind)
		assert.Equal(t, n.Hostname, dn.Hostname)
	}
	// Fully-connected policy: every pair of distinct nodes has exactly one link.
	assert.Len(t, decoded.Links, 6) // C(4,2)
}

func TestEncodeDeterministic(t *testing.T) {
	reg := testRegistry(t)
	c := buildTestCluster(t, reg)

	a, err := Encode(reg, c, 0x12345, 0)
	require.NoError(t, err)
	b, err := Encode(reg, c, 0x12345, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeChecksumRejection(t *testing.T) {
	reg := testRegistry(t)
	c := buildTestCluster(t, reg)

	encoded, err := Encode(reg, c, 0x12345, 0)
	require.NoError(t, err)

	_, err = Decode(reg, flipOneBase64Bit(t, encoded), 0x12345, 0)
	require.Error(t, err)
}

func TestDecodeRejectsBadBase64Length(t *testing.T) {
	reg := testRegistry(t)
	_, err := Decode(reg, []byte("not-valid-base64!!"), 0, 0)
	require.Error(t, err)
	assert.True(t, icerr.Is(err, icerr.ProtocolError))
}

func TestDecodeRejectsMissingVerificationString(t *testing.T) {
	reg := testRegistry(t)
	c := buildTestCluster(t, reg)
	encoded, err := Encode(reg, c, 0x12345, 0)
	require.NoError(t, err)

	// Corrupt the verification string itself (first 8 raw bytes), then
	// re-encode so base64 framing stays valid; checksum will also fail,
	// but the verification-string check must fire first.
	raw := mustBase64Decode(t, encoded)
	raw[0] ^= 0xff
	corrupted := mustBase64Encode(raw)

	_, err = Decode(reg, corrupted, 0x12345, 0)
	require.Error(t, err)
}

// flipOneBase64Bit decodes, flips a single bit in the last byte (the
// checksum word, not the verification string), and re-encodes, to exercise the checksum check in
// isolation from the verification-string check.
func flipOneBase64Bit(t *testing.T, encoded []byte) []byte {
	t.Helper()
	raw := mustBase64Decode(t, encoded)
	raw[len(raw)-1] ^= 0x01
	return mustBase64Encode(raw)
}
