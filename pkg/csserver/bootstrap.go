package csserver

import (
	"github.com/iClaustron/iclaustron-sub000/pkg/configstore"
	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// BootstrapInput is one cluster's INI source plus its grid identity, the
// input to a bootstrap run when no generation files exist yet (spec §4.E).
type BootstrapInput struct {
	Name     string
	ID       uint32
	Password string
	INI      []byte
}

// Bootstrap parses every input cluster via pkg/configstore, verifies the
// grid (every cluster-server and cluster-manager node must carry the same
// node id across every cluster it appears in), and writes generation 1.
// It returns the loaded clusters so the caller can hand them to the
// replication FSM as the initial committed state.
func Bootstrap(dir string, reg *registry.Registry, inputs []BootstrapInput) ([]*types.ClusterConfig, int, error) {
	clusters := make([]*types.ClusterConfig, 0, len(inputs))
	for _, in := range inputs {
		c, err := configstore.LoadClusterFromINI(reg, in.INI)
		if err != nil {
			return nil, 0, err
		}
		c.ID = in.ID
		c.Name = in.Name
		c.Password = in.Password
		clusters = append(clusters, c)
	}

	if err := verifyGrid(clusters); err != nil {
		return nil, 0, err
	}

	version, err := configstore.CommitNewGeneration(dir, clusters, 0, reg)
	if err != nil {
		return nil, 0, err
	}
	return clusters, version, nil
}

// verifyGrid implements spec §4.E's bootstrap-time check: a cluster-server
// or cluster-manager node appearing in more than one cluster must carry
// the same node id everywhere it appears, identified here by hostname
// since node ids are only unique within a single cluster.
func verifyGrid(clusters []*types.ClusterConfig) error {
	seenID := make(map[string]uint32)
	for _, c := range clusters {
		for _, kind := range []types.NodeKind{types.KindClusterServer, types.KindClusterManager} {
			for _, nodeID := range c.ByKind[kind] {
				n := c.Nodes[nodeID]
				if prior, ok := seenID[n.Hostname]; ok && prior != nodeID {
					return icerr.New(icerr.ConflictingIds,
						"host %q has node id %d in cluster %q but %d elsewhere in the grid",
						n.Hostname, nodeID, c.Name, prior)
				}
				seenID[n.Hostname] = nodeID
			}
		}
	}
	return nil
}
