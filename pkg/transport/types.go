package transport

import (
	"net"
	"strconv"
	"sync"
	"time"
)

// NodeState is a send-node's lifecycle state (spec §4.F.2).
type NodeState int

const (
	StateInit NodeState = iota
	StateConnecting
	StateLoggedIn
	StateNodeUp
	StateNodeDown
)

func (s NodeState) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateLoggedIn:
		return "logged-in"
	case StateNodeUp:
		return "node-up"
	case StateNodeDown:
		return "node-down"
	default:
		return "unknown"
	}
}

// Endpoint identifies one side of a link by hostname and port.
type Endpoint struct {
	Hostname string
	Port     int
}

func (e Endpoint) String() string { return net.JoinHostPort(e.Hostname, strconv.Itoa(e.Port)) }

// SendNode is the per-peer send-node record of spec §3.6: link identity,
// connection, send queue, adaptive-wait state, and lifecycle state. One
// send worker goroutine owns the Init/Connecting states for a send-node
// whose local id differs from the remote; self-loops never get a worker
// (spec §4.F.1).
type SendNode struct {
	mu sync.Mutex

	ClusterID   uint32
	MyNodeID    uint32
	OtherNodeID uint32
	Local       Endpoint
	Remote      Endpoint
	ActiveSide  bool // true if this side dials; false if it accepts

	conn  net.Conn
	state NodeState

	queue       []*Page
	queuedBytes int

	sendActive          bool
	sendThreadIsSending  bool
	messageIDCounter     uint32
	negotiatesMessageID  bool

	adaptive *AdaptiveState

	wakeCh chan struct{}
	stopCh chan struct{}

	pool *Pool

	peerKey string
}

// NewSendNode constructs a send-node in StateInit.
func NewSendNode(clusterID, myNodeID, otherNodeID uint32, local, remote Endpoint, activeSide bool, pool *Pool, maxWait time.Duration) *SendNode {
	return &SendNode{
		ClusterID:   clusterID,
		MyNodeID:    myNodeID,
		OtherNodeID: otherNodeID,
		Local:       local,
		Remote:      remote,
		ActiveSide:  activeSide,
		state:       StateInit,
		adaptive:    NewAdaptiveState(maxWait),
		wakeCh:      make(chan struct{}, 1),
		stopCh:      make(chan struct{}),
		pool:        pool,
		peerKey:     remote.String(),
	}
}

// State returns the send-node's current lifecycle state.
func (n *SendNode) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *SendNode) setState(s NodeState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// ReceiveNode mirrors the per-peer connection on the receive side (spec
// §3.6): the connection handle and a back-pointer to the owning send-node
// for node-down propagation. io.ReadFull blocking reads replace the
// original's explicit partial-page bookkeeping — Go's buffered reads
// already carry a short read's remainder forward.
type ReceiveNode struct {
	Conn     net.Conn
	SendNode *SendNode
}

// ApplicationThread is one APID connection's input queue (spec §3.6,
// §4.F.7): completed-message descriptors posted by receive workers,
// drained by Poll.
type ApplicationThread struct {
	mu          sync.Mutex
	queue       []*Descriptor
	signal      chan struct{}
	clusterMask uint32
}

// NewApplicationThread constructs an empty APID connection.
func NewApplicationThread(clusterMask uint32) *ApplicationThread {
	return &ApplicationThread{clusterMask: clusterMask, signal: make(chan struct{}, 1)}
}

// Descriptor is a decoded-message descriptor (spec §4.F.4 step 3): a
// pointer into the owning receive page plus routing metadata.
type Descriptor struct {
	Page           *Page
	Header         Header
	Main           []uint32
	Segments       [][]uint32
	ClusterID      uint32
	SenderNodeID   uint32
	ReceiverNodeID uint32
	ReceiverModule uint16

	// ReleaseCount is set on the last descriptor in a posted batch to the
	// batch size, telling the draining application thread how many
	// descriptors' worth of page-refcount to release (spec §4.F.4 step 6).
	ReleaseCount int
}

// NDBMessage is the decoded, application-visible form of a Descriptor
// produced by ApplicationThread.Poll (spec §4.F.7).
type NDBMessage struct {
	Header         Header
	Main           []uint32
	Segments       [][]uint32
	ClusterID      uint32
	SenderNodeID   uint32
	ReceiverNodeID uint32
}
