package replication

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// Command is the single Raft log entry shape this group ever applies: a
// new configuration generation, which the FSM holds in memory. It does not
// write or step the config.version state file.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const opCommitGeneration = "commit_generation"

// CommitGeneration is the payload of a CommitGeneration command: the new
// version number and the full grid it replaces, resolving spec §4.E's open
// question of a quorum-commit between steps 2 and 3 of commit_new_generation.
type CommitGeneration struct {
	Version  int                        `json:"version"`
	Clusters []*clusterSnapshot         `json:"clusters"`
	Peers    []types.ClusterServerPeer  `json:"peers"`
}

// clusterSnapshot is types.ClusterConfig's JSON-safe wire form: Links is a
// map keyed by a struct (LinkKey), which encoding/json cannot key a map
// with, so it travels as a slice and is rehashed on the way back in.
type clusterSnapshot struct {
	ID        uint32                        `json:"id"`
	Name      string                        `json:"name"`
	Password  string                        `json:"password"`
	System    types.SystemSection           `json:"system"`
	MaxNodeID uint32                        `json:"max_node_id"`
	Nodes     map[uint32]*types.NodeConfig  `json:"nodes"`
	ByKind    map[types.NodeKind][]uint32   `json:"by_kind"`
	Links     []*types.LinkConfig           `json:"links"`
}

func toSnapshot(c *types.ClusterConfig) *clusterSnapshot {
	links := make([]*types.LinkConfig, 0, len(c.Links))
	for _, l := range c.Links {
		links = append(links, l)
	}
	return &clusterSnapshot{
		ID: c.ID, Name: c.Name, Password: c.Password,
		System: c.System, MaxNodeID: c.MaxNodeID,
		Nodes: c.Nodes, ByKind: c.ByKind, Links: links,
	}
}

func fromSnapshot(s *clusterSnapshot) *types.ClusterConfig {
	c := &types.ClusterConfig{
		ID: s.ID, Name: s.Name, Password: s.Password,
		System: s.System, MaxNodeID: s.MaxNodeID,
		Nodes: s.Nodes, ByKind: s.ByKind,
		Links: make(map[types.LinkKey]*types.LinkConfig, len(s.Links)),
	}
	for _, l := range s.Links {
		c.Links[types.NewLinkKey(l.NodeID1, l.NodeID2)] = l
	}
	return c
}

// FSM applies CommitGeneration commands and holds the latest committed
// grid in memory. Reads (CurrentState) take the read lock; writes only
// ever happen inside Apply, called by Raft with log entries already in
// commit order.
type FSM struct {
	mu      sync.RWMutex
	version int
	grid    *types.Grid
}

// NewFSM creates an empty FSM (version 0, no clusters).
func NewFSM() *FSM {
	return &FSM{grid: &types.Grid{}}
}

// Apply implements raft.FSM.
func (f *FSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}
	switch cmd.Op {
	case opCommitGeneration:
		var payload CommitGeneration
		if err := json.Unmarshal(cmd.Data, &payload); err != nil {
			return fmt.Errorf("unmarshal commit_generation: %w", err)
		}
		return f.applyCommitGeneration(payload)
	default:
		return fmt.Errorf("unknown replication command %q", cmd.Op)
	}
}

func (f *FSM) applyCommitGeneration(payload CommitGeneration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if payload.Version <= f.version {
		return fmt.Errorf("stale generation %d, current is %d", payload.Version, f.version)
	}

	clusters := make([]*types.ClusterConfig, 0, len(payload.Clusters))
	for _, s := range payload.Clusters {
		clusters = append(clusters, fromSnapshot(s))
	}
	f.version = payload.Version
	f.grid = &types.Grid{Clusters: clusters, Peers: payload.Peers}
	return nil
}

// CurrentState returns the latest committed version and grid.
func (f *FSM) CurrentState() (int, *types.Grid) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version, f.grid
}

type fsmSnapshot struct {
	version int
	grid    *types.Grid
}

// Snapshot implements raft.FSM.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{version: f.version, grid: f.grid}, nil
}

// Restore implements raft.FSM.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var payload CommitGeneration
	if err := json.NewDecoder(rc).Decode(&payload); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clusters := make([]*types.ClusterConfig, 0, len(payload.Clusters))
	for _, s := range payload.Clusters {
		clusters = append(clusters, fromSnapshot(s))
	}
	f.version = payload.Version
	f.grid = &types.Grid{Clusters: clusters, Peers: payload.Peers}
	return nil
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	payload := CommitGeneration{Version: s.version, Peers: s.grid.Peers}
	for _, c := range s.grid.Clusters {
		payload.Clusters = append(payload.Clusters, toSnapshot(c))
	}
	if err := json.NewEncoder(sink).Encode(payload); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
