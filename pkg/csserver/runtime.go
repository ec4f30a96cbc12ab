package csserver

import (
	"net"
	"sync"

	"github.com/iClaustron/iclaustron-sub000/pkg/configstore"
	"github.com/iClaustron/iclaustron-sub000/pkg/configwire"
	"github.com/iClaustron/iclaustron-sub000/pkg/csproto"
	"github.com/iClaustron/iclaustron-sub000/pkg/csserver/replication"
	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/log"
	"github.com/iClaustron/iclaustron-sub000/pkg/metrics"
	"github.com/iClaustron/iclaustron-sub000/pkg/registry"
	"github.com/iClaustron/iclaustron-sub000/pkg/transport"
	"github.com/iClaustron/iclaustron-sub000/pkg/types"
)

// Config configures a Runtime.
type Config struct {
	Dir         string // configstore directory this process owns
	ListenAddr  string
	NumWorkers  int // bounded worker-pool size (spec §4.E, §5)
	ProcessName string
}

// Runtime is the cluster-server runtime of spec §4.E: one listening
// socket, an accept loop handing connections to a bounded worker pool
// each running pkg/csproto's server driver, and ownership of the version
// file for the lifetime of the process.
type Runtime struct {
	cfg Config
	reg *registry.Registry

	listener net.Listener
	sem      chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup

	// repl is nil for a single cluster-server grid; JoinReplication sets it
	// when ic-csd's cs_connectstring lists more than one cluster-server
	// peer, and commit_new_generation is then replicated through it instead of
	// writing the generation files locally (spec §4.E open question).
	repl *replication.Group

	mu      sync.RWMutex
	version int
	grid    *types.Grid

	connParams map[connParamKey]int

	// xport is nil unless AttachTransport is called; when set,
	// ReceivePagesInUse reports its page pool's live checkout count
	// instead of the zero-value stub (spec §4.F data-node transport).
	xport *transport.Runtime
}

type connParamKey struct {
	cluster, node1, node2, param uint32
}

// New constructs a Runtime. Callers must then call either Bootstrap (no
// generation files exist yet) or LoadExisting (resume ownership of an
// existing generation) before Start.
func New(cfg Config, reg *registry.Registry) *Runtime {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 16
	}
	return &Runtime{
		cfg:        cfg,
		reg:        reg,
		sem:        make(chan struct{}, cfg.NumWorkers),
		stopCh:     make(chan struct{}),
		connParams: make(map[connParamKey]int),
		grid:       &types.Grid{},
	}
}

// JoinReplication wires the runtime to a Raft group replicating
// commit_new_generation across the cluster-server peers. Called once
// after New when cs_connectstring lists more than one cluster-server peer;
// with a single peer it is never called and Runtime stays leader-for-life.
func (rt *Runtime) JoinReplication(g *replication.Group) {
	rt.mu.Lock()
	rt.repl = g
	rt.mu.Unlock()
}

// Bootstrap loads the supplied per-cluster INI inputs (spec §4.E
// start-up with no existing generation) and commits generation 1.
func (rt *Runtime) Bootstrap(inputs []BootstrapInput) error {
	clusters, version, err := Bootstrap(rt.cfg.Dir, rt.reg, inputs)
	if err != nil {
		return err
	}
	rt.mu.Lock()
	rt.version = version
	rt.grid = &types.Grid{Clusters: clusters}
	rt.mu.Unlock()
	return nil
}

// LoadExisting takes ownership of an existing generation via
// configstore.LockAndLoad and loads its clusters.
func (rt *Runtime) LoadExisting() error {
	version, err := configstore.LockAndLoad(rt.cfg.Dir, rt.cfg.ProcessName)
	if err != nil {
		if icerr.Is(err, icerr.CouldNotLockConfiguration) {
			metrics.ConfigstoreLockContentionTotal.Inc()
		}
		return err
	}
	refs, err := configstore.LoadGrid(rt.cfg.Dir, version)
	if err != nil {
		return err
	}
	clusters := make([]*types.ClusterConfig, 0, len(refs))
	for _, ref := range refs {
		c, err := configstore.LoadCluster(rt.reg, configstore.ClusterFilePath(rt.cfg.Dir, ref.Name, version))
		if err != nil {
			return err
		}
		c.ID = ref.ID
		c.Password = ref.Password
		clusters = append(clusters, c)
	}
	rt.mu.Lock()
	rt.version = version
	rt.grid = &types.Grid{Clusters: clusters}
	rt.mu.Unlock()
	return nil
}

// Start opens the listening socket and runs the accept loop until Stop is
// called. It blocks until the accept loop exits.
func (rt *Runtime) Start() error {
	l, err := net.Listen("tcp", rt.cfg.ListenAddr)
	if err != nil {
		return icerr.Wrap(icerr.FailedToOpenFile, err, "listening on %s", rt.cfg.ListenAddr)
	}
	rt.listener = l
	logger := log.WithComponent("csserver")
	logger.Info().Str("addr", rt.cfg.ListenAddr).Msg("accept loop started")

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-rt.stopCh:
				return nil
			default:
				return icerr.Wrap(icerr.ProtocolError, err, "accept")
			}
		}
		rt.dispatch(conn)
	}
}

func (rt *Runtime) dispatch(conn net.Conn) {
	rt.wg.Add(1)
	rt.sem <- struct{}{}
	go func() {
		defer rt.wg.Done()
		defer func() { <-rt.sem }()
		defer conn.Close()

		sess := csproto.NewConn(rt.reg, rt, conn)
		if err := sess.Serve(); err != nil {
			log.WithComponent("csserver").WithPeer(conn.RemoteAddr().String()).
				Error().Err(err).Msg("connection closed on protocol error")
		}
	}()
}

// Stop closes the listening socket, waits for in-flight connections to
// finish, and releases ownership of the version file (spec §4.E shutdown).
func (rt *Runtime) Stop() error {
	close(rt.stopCh)
	if rt.listener != nil {
		rt.listener.Close()
	}
	rt.wg.Wait()

	rt.mu.RLock()
	version := rt.version
	rt.mu.RUnlock()
	return configstore.ReleaseLock(rt.cfg.Dir, version)
}

// --- csproto.ClusterSource ---

func (rt *Runtime) ClusterList() []csproto.ClusterListEntry {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	entries := make([]csproto.ClusterListEntry, 0, len(rt.grid.Clusters))
	for _, c := range rt.grid.Clusters {
		entries = append(entries, csproto.ClusterListEntry{Name: c.Name, ID: c.ID})
	}
	return entries
}

func (rt *Runtime) Cluster(id uint32) (*types.ClusterConfig, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	c, ok := rt.grid.ClusterByID(id)
	if !ok {
		return nil, icerr.New(icerr.NoSuchCluster, "cluster id %d", id)
	}
	return c, nil
}

// AssignNodeID implements spec §4.D's "requested id 0 means any
// compatible id" rule: an explicit nonzero id is validated against the
// cluster's node table; zero returns the first configured node of the
// requested kind.
func (rt *Runtime) AssignNodeID(clusterID uint32, requested, nodeType int) (uint32, error) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	c, ok := rt.grid.ClusterByID(clusterID)
	if !ok {
		return 0, icerr.New(icerr.NoSuchCluster, "cluster id %d", clusterID)
	}
	if requested != 0 {
		if _, ok := c.Nodes[uint32(requested)]; !ok {
			return 0, icerr.New(icerr.NoSuchNode, "node id %d not configured", requested)
		}
		return uint32(requested), nil
	}
	kind := configwire.WireToNodeType(uint32(nodeType))
	for _, id := range c.ByKind[kind] {
		return id, nil
	}
	return 0, icerr.New(icerr.NoSuchNode, "no node of type %d configured", nodeType)
}

func (rt *Runtime) RecordConnectionParameter(clusterID uint32, node1, node2, param, value int) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.connParams[connParamKey{uint32(clusterID), uint32(node1), uint32(node2), uint32(param)}] = value
	return nil
}

func (rt *Runtime) ConnectionParameter(clusterID uint32, node1, node2, param int) (int, bool) {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	v, ok := rt.connParams[connParamKey{uint32(clusterID), uint32(node1), uint32(node2), uint32(param)}]
	return v, ok
}

// CommitGeneration advances the grid to a new generation. With no
// replication group joined it writes the generation files directly
// (single cluster-server grid); otherwise it proposes the generation to
// the Raft group and lets FSM.Apply update local state once committed.
func (rt *Runtime) CommitGeneration(clusters []*types.ClusterConfig) (int, error) {
	rt.mu.RLock()
	repl := rt.repl
	oldVersion := rt.version
	rt.mu.RUnlock()

	if repl == nil {
		newVersion, err := configstore.CommitNewGeneration(rt.cfg.Dir, clusters, oldVersion, rt.reg)
		if err != nil {
			return 0, err
		}
		rt.mu.Lock()
		rt.version = newVersion
		rt.grid = &types.Grid{Clusters: clusters}
		rt.mu.Unlock()
		return newVersion, nil
	}

	if !repl.IsLeader() {
		return 0, icerr.New(icerr.ProtocolError, "not the replication leader; retry against %s", repl.LeaderAddr())
	}
	newVersion := oldVersion + 1
	if err := repl.Propose(newVersion, clusters, rt.grid.Peers); err != nil {
		return 0, err
	}
	version, grid := repl.CurrentState()
	rt.mu.Lock()
	rt.version = version
	rt.grid = grid
	rt.mu.Unlock()
	return version, nil
}

// --- metrics.StatsSource ---

func (rt *Runtime) IsLeader() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.repl == nil {
		return true // single cluster-server grid: this process is always authoritative
	}
	return rt.repl.IsLeader()
}

func (rt *Runtime) ConfigGeneration() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.version
}

// AttachTransport wires a data-node transport runtime to this cluster
// server so ReceivePagesInUse reports real page-pool pressure. Optional:
// a cluster server driving only the configuration protocol never calls
// it and ReceivePagesInUse stays at zero.
func (rt *Runtime) AttachTransport(x *transport.Runtime) {
	rt.mu.Lock()
	rt.xport = x
	rt.mu.Unlock()
}

func (rt *Runtime) ReceivePagesInUse() int {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	if rt.xport == nil {
		return 0
	}
	return rt.xport.PagesInUse()
}
