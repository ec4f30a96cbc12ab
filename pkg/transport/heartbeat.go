package transport

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iClaustron/iclaustron-sub000/pkg/log"
	"github.com/iClaustron/iclaustron-sub000/pkg/metrics"
)

// heartbeatInterval is the nominal tick period of spec §4.F.6.
const heartbeatInterval = 3000 * time.Millisecond

// API_REGREQ message id, per spec §4.F.6.
const messageIDAPIRegReq messageID = 1

// HeartbeatWorker owns the circular walk over every attached send-node,
// sending an API_REGREQ to each on every tick (spec §4.F.6). The doubly
// linked list of the original collapses to a plain slice under a mutex —
// Go has no benefit from a hand-rolled circular list here since the walk
// is already a full sweep every tick.
type HeartbeatWorker struct {
	mu        sync.Mutex
	nodes     []*SendNode
	myNodeID  uint32
	ndbVersion uint32
	mysqlVersion uint32

	tickCh chan struct{}
	stopCh chan struct{}
}

// NewHeartbeatWorker constructs a heartbeat worker stamped with this
// process's node id and the version words it reports in API_REGREQ.
func NewHeartbeatWorker(myNodeID, ndbVersion, mysqlVersion uint32) *HeartbeatWorker {
	return &HeartbeatWorker{
		myNodeID:     myNodeID,
		ndbVersion:   ndbVersion,
		mysqlVersion: mysqlVersion,
		tickCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Attach adds a send-node to the heartbeat walk and wakes the worker if
// this is the first attached node (spec §4.F.6: "or when its condition is
// signalled after the first node attaches").
func (h *HeartbeatWorker) Attach(n *SendNode) {
	h.mu.Lock()
	h.nodes = append(h.nodes, n)
	first := len(h.nodes) == 1
	h.mu.Unlock()
	if first {
		select {
		case h.tickCh <- struct{}{}:
		default:
		}
	}
}

// Detach removes a send-node from the heartbeat walk (node-failure
// handling or explicit stop).
func (h *HeartbeatWorker) Detach(n *SendNode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, cur := range h.nodes {
		if cur == n {
			h.nodes = append(h.nodes[:i], h.nodes[i+1:]...)
			return
		}
	}
}

// Run ticks roughly every heartbeatInterval (or immediately when Attach
// signals a first node) until Stop is called, sending one API_REGREQ per
// attached send-node each tick.
func (h *HeartbeatWorker) Run(pool *Pool) {
	logger := log.WithComponent("transport.heartbeat")
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.tick(pool, logger)
		case <-h.tickCh:
			h.tick(pool, logger)
		case <-h.stopCh:
			return
		}
	}
}

// Stop signals Run to exit.
func (h *HeartbeatWorker) Stop() { close(h.stopCh) }

func (h *HeartbeatWorker) tick(pool *Pool, logger zerolog.Logger) {
	h.mu.Lock()
	nodes := append([]*SendNode(nil), h.nodes...)
	h.mu.Unlock()

	for _, n := range nodes {
		page := pool.Get()
		ref := (uint32(1) << 16) | h.myNodeID
		words, err := EncodeMessage(Header{
			MessageNumber:  uint32(messageIDAPIRegReq),
			SenderModule:   uint16(h.myNodeID),
			ReceiverModule: uint16(n.OtherNodeID),
		}, []uint32{ref, h.ndbVersion, h.mysqlVersion}, nil, false)
		if err != nil {
			pool.Put(page)
			continue
		}
		copy(page.Words[:], words)
		page.Used = len(words)

		if err := n.Enqueue([]*Page{page}, false); err != nil {
			metrics.TransportHeartbeatMissesTotal.WithLabelValues(n.peerKey).Inc()
			logger.Warn().Str("peer", n.peerKey).Err(err).Msg("heartbeat send failed, detaching send-node")
			h.Detach(n)
		}
	}
}
