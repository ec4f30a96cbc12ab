package transport

import (
	"context"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iClaustron/iclaustron-sub000/pkg/log"
)

// Link describes one cluster link this process participates in, the
// input Runtime.Build uses to allocate send-nodes and listen-servers
// (spec §4.F.1).
type Link struct {
	ClusterID   uint32
	MyNodeID    uint32
	OtherNodeID uint32
	Local       Endpoint
	Remote      Endpoint
	ActiveSide  bool
}

// Config configures a Runtime.
type Config struct {
	NdbVersion   uint32
	MysqlVersion uint32
	MaxWaitNanos time.Duration
	Dial         func(addr string) (net.Conn, error)
}

// Runtime supervises every worker role of spec §5 (send, receive,
// listen-server, heartbeat) with an errgroup.Group: an error returned by
// one role does not stop the others; Stop stops every worker and returns
// the first error any of them reported — the idiomatic-Go analogue of the
// original's thread-pool join.
type Runtime struct {
	cfg Config
	pool *Pool

	sendNodes []*SendNode
	listeners map[string]*ListenServer
	receivers []*ReceiveWorker
	heartbeat *HeartbeatWorker
	threads   *globalThreadTable
	adaptive  *adaptiveRegistry

	numReceiveWorkers int

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New constructs a Runtime from a cluster's links (spec §4.F.1: one
// send-node per present-node pair whose local id differs from the
// remote; self-loops get no worker). numReceiveWorkers must be >= 1.
func New(cfg Config, myNodeID uint32, links []Link, numReceiveWorkers int) *Runtime {
	if cfg.Dial == nil {
		cfg.Dial = func(addr string) (net.Conn, error) { return net.Dial("tcp", addr) }
	}
	if cfg.MaxWaitNanos == 0 {
		cfg.MaxWaitNanos = 10 * time.Millisecond
	}
	if numReceiveWorkers < 1 {
		numReceiveWorkers = 1
	}

	rt := &Runtime{
		cfg:               cfg,
		pool:              NewPool(),
		listeners:         make(map[string]*ListenServer),
		threads:           newGlobalThreadTable(),
		adaptive:          newAdaptiveRegistry(),
		heartbeat:         NewHeartbeatWorker(myNodeID, cfg.NdbVersion, cfg.MysqlVersion),
		numReceiveWorkers: numReceiveWorkers,
	}

	for _, l := range links {
		if l.MyNodeID == l.OtherNodeID {
			continue // self-loop: no send worker (spec §4.F.1)
		}
		n := NewSendNode(l.ClusterID, l.MyNodeID, l.OtherNodeID, l.Local, l.Remote, l.ActiveSide, rt.pool, cfg.MaxWaitNanos)
		rt.sendNodes = append(rt.sendNodes, n)
		rt.adaptive.add(n.peerKey, n)

		if !l.ActiveSide {
			key := l.Local.String()
			ls, ok := rt.listeners[key]
			if !ok {
				ls = NewListenServer(l.Local)
				rt.listeners[key] = ls
			}
			ls.Register(n)
		}
	}

	for i := 0; i < numReceiveWorkers; i++ {
		rt.receivers = append(rt.receivers, NewReceiveWorker(rt.pool, rt.adaptive))
	}

	return rt
}

// CreateAPIDConnection registers a new application-thread handle bound to
// a hash bucket on the first receive worker (spec §4.F.7).
func (rt *Runtime) CreateAPIDConnection(clusterMask uint32, bucket int) *APIDConnection {
	conn := rt.threads.CreateAPIDConnection(clusterMask)
	rt.receivers[0].BindBucket(bucket, conn.thread)
	return conn
}

// Start launches every worker goroutine under an errgroup.Group and
// returns immediately; call Stop to stop the workers and collect the first
// error any of them returned.
func (rt *Runtime) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	g, _ := errgroup.WithContext(ctx)
	rt.group = g

	for _, ls := range rt.listeners {
		ls := ls
		g.Go(func() error { return ls.Run() })
	}
	for _, rw := range rt.receivers {
		rw := rw
		g.Go(func() error { rw.RunAdjust(); return nil })
	}
	for _, n := range rt.sendNodes {
		n := n
		g.Go(func() error { n.RunSendWorker(rt.cfg.Dial); return nil })
		if n.ActiveSide {
			rt.assignReceiver(n)
		}
	}
	g.Go(func() error { rt.heartbeat.Run(rt.pool); return nil })

	logger := log.WithComponent("transport")
	logger.Info().Int("send_nodes", len(rt.sendNodes)).Int("listeners", len(rt.listeners)).
		Int("receive_workers", len(rt.receivers)).Msg("transport runtime started")
}

// assignReceiver polls a newly active send-node until it logs in, then
// hands its connection to a receive worker (round-robin) and marks it
// NodeUp, folding spec §4.F.2's "socket handed to a receive worker and
// registered with the heartbeat worker" transition into the startup path
// for the active (dialing) side.
func (rt *Runtime) assignReceiver(n *SendNode) {
	go func() {
		for i := 0; i < 200; i++ {
			if n.State() == StateLoggedIn {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		n.mu.Lock()
		conn := n.conn
		n.mu.Unlock()
		if conn == nil {
			return
		}
		rw := rt.receivers[int(n.OtherNodeID)%len(rt.receivers)]
		rw.Attach(&ReceiveNode{Conn: conn, SendNode: n})
		rt.heartbeat.Attach(n)
		n.MarkNodeUp()
	}()
}

// PagesInUse reports the runtime's page pool's current checkout count.
func (rt *Runtime) PagesInUse() int { return rt.pool.InUse() }

// Stop cancels every worker goroutine and waits for them to exit.
func (rt *Runtime) Stop() error {
	for _, ls := range rt.listeners {
		ls.Stop()
	}
	for _, rw := range rt.receivers {
		rw.Stop()
	}
	for _, n := range rt.sendNodes {
		n.Stop()
	}
	rt.heartbeat.Stop()
	if rt.cancel != nil {
		rt.cancel()
	}
	if rt.group != nil {
		return rt.group.Wait()
	}
	return nil
}

