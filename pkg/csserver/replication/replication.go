package replication

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// Group is one cluster server's membership in the grid-wide Raft group
// that replicates commit_new_generation across cluster-server peers
// (spec §4.E). commit_new_generation calls Propose instead of writing the
// generation files directly on a single node.
type Group struct {
	raft    *raft.Raft
	fsm     *FSM
	nodeID  string
	dataDir string
}

// Config configures a Group.
type Config struct {
	// NodeID identifies this cluster server in the Raft configuration.
	// When two cluster servers share a configured hostname, a uuid
	// suffix disambiguates them (spec SPEC_FULL §11).
	NodeID   string
	BindAddr string
	DataDir  string
}

// DisambiguateNodeID appends a short uuid suffix to hostname when it
// collides with another configured cluster-server hostname in the grid.
func DisambiguateNodeID(hostname string, collides bool) string {
	if !collides {
		return hostname
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

// NewGroup constructs the Raft machinery (transport, snapshot store,
// bolt-backed log/stable stores, and the FSM) but does not start or join
// a cluster; call Bootstrap or Join next.
func NewGroup(cfg Config) (*Group, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft data dir: %w", err)
	}

	fsm := NewFSM()

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	return &Group{raft: r, fsm: fsm, nodeID: cfg.NodeID, dataDir: cfg.DataDir}, nil
}

// Bootstrap forms a new Raft cluster whose initial voter set is the full
// list of cluster-server peers from the grid (spec §4.E: "each runtime
// also opens persistent connections to every other cluster server listed
// in the grid").
func (g *Group) Bootstrap(peers []types.ClusterServerPeer, selfAddr string) error {
	servers := make([]raft.Server, 0, len(peers))
	seen := false
	for _, p := range peers {
		addr := fmt.Sprintf("%s:%d", p.Hostname, p.Port)
		servers = append(servers, raft.Server{
			ID:      raft.ServerID(fmt.Sprintf("%d", p.NodeID)),
			Address: raft.ServerAddress(addr),
		})
		if addr == selfAddr {
			seen = true
		}
	}
	if !seen {
		servers = append(servers, raft.Server{ID: raft.ServerID(g.nodeID), Address: raft.ServerAddress(selfAddr)})
	}
	future := g.raft.BootstrapCluster(raft.Configuration{Servers: servers})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return fmt.Errorf("bootstrap raft cluster: %w", err)
	}
	return nil
}

// IsLeader reports whether this group's node currently holds Raft
// leadership for generation commits.
func (g *Group) IsLeader() bool {
	return g.raft.State() == raft.Leader
}

// CurrentState returns the FSM's latest committed version and grid.
func (g *Group) CurrentState() (int, *types.Grid) {
	return g.fsm.CurrentState()
}

// Propose submits a new generation for consensus commit. It must only be
// called on the leader; followers should redirect commit_new_generation
// callers to the current leader address.
func (g *Group) Propose(version int, clusters []*types.ClusterConfig, peers []types.ClusterServerPeer) error {
	payload := CommitGeneration{Version: version, Peers: peers}
	for _, c := range clusters {
		payload.Clusters = append(payload.Clusters, toSnapshot(c))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal commit_generation: %w", err)
	}
	cmd := Command{Op: opCommitGeneration, Data: data}
	cmdData, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command envelope: %w", err)
	}

	future := g.raft.Apply(cmdData, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply commit_generation: %w", err)
	}
	if resp := future.Response(); resp != nil {
		if applyErr, ok := resp.(error); ok && applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// LeaderAddr returns the current Raft leader's address, or "" if unknown.
func (g *Group) LeaderAddr() string {
	addr, _ := g.raft.LeaderWithID()
	return string(addr)
}

// Shutdown stops the Raft node.
func (g *Group) Shutdown() error {
	return g.raft.Shutdown().Error()
}
