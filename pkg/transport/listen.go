package transport

import (
	"net"
	"sync"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/log"
)

// ListenServer is a bound listening socket shared by every send-node whose
// local (host, port) pair matches it (spec §3.6, §4.F.1): one instance per
// unique local endpoint used as the server side of some link.
type ListenServer struct {
	Local Endpoint

	mu       sync.Mutex
	waiting  map[[2]uint32]*SendNode // (myNodeID, otherNodeID) -> waiting send-node

	listener net.Listener
	stopCh   chan struct{}
}

// NewListenServer constructs a listen-server for local, not yet bound.
func NewListenServer(local Endpoint) *ListenServer {
	return &ListenServer{
		Local:   local,
		waiting: make(map[[2]uint32]*SendNode),
		stopCh:  make(chan struct{}),
	}
}

// Register adds a server-side send-node that the listen-server should
// match an incoming connection to once its NDB-login pair is known.
func (l *ListenServer) Register(n *SendNode) {
	l.mu.Lock()
	l.waiting[[2]uint32{n.MyNodeID, n.OtherNodeID}] = n
	l.mu.Unlock()
}

// Run binds the listening socket and accepts connections until Stop is
// called, handing each one to loginAndAttach for the NDB-login exchange.
func (l *ListenServer) Run() error {
	ln, err := net.Listen("tcp", l.Local.String())
	if err != nil {
		return icerr.Wrap(icerr.ProtocolError, err, "listen on %s", l.Local)
	}
	l.listener = ln
	logger := log.WithComponent("transport.listen").WithPeer(l.Local.String())
	logger.Info().Msg("listen-server worker started")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-l.stopCh:
				return nil
			default:
				return icerr.Wrap(icerr.ProtocolError, err, "accept on %s", l.Local)
			}
		}
		go l.loginAndAttach(conn)
	}
}

// Stop closes the listening socket, unblocking Run.
func (l *ListenServer) Stop() {
	close(l.stopCh)
	if l.listener != nil {
		l.listener.Close()
	}
}

// loginAndAttach performs the NDB-login negotiation (spec §4.F.2) on an
// accepted connection, then attaches it to the matching registered
// send-node and moves it to LoggedIn.
func (l *ListenServer) loginAndAttach(conn net.Conn) {
	myID, otherID, err := serverLogin(conn)
	if err != nil {
		log.WithComponent("transport.listen").Error().Err(err).Msg("login failed on accepted connection")
		conn.Close()
		return
	}

	l.mu.Lock()
	n, ok := l.waiting[[2]uint32{myID, otherID}]
	delete(l.waiting, [2]uint32{myID, otherID})
	l.mu.Unlock()
	if !ok {
		log.WithComponent("transport.listen").Warn().
			Uint32("my_node_id", myID).Uint32("other_node_id", otherID).
			Msg("no send-node registered for accepted login pair")
		conn.Close()
		return
	}

	n.mu.Lock()
	n.conn = conn
	n.state = StateLoggedIn
	n.messageIDCounter = 0
	n.mu.Unlock()
}
