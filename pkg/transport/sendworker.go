package transport

import (
	"net"
	"time"

	"github.com/iClaustron/iclaustron-sub000/pkg/log"
)

// connectBackoff is the pause between reconnect attempts after a
// send-node returns to Init (spec §4.F.2's NodeDown -> Init transition).
const connectBackoff = 2 * time.Second

// RunSendWorker owns a send-node's Init/Connecting states (spec §4.F.2):
// for the active side it repeatedly dials and logs in; once LoggedIn it
// idles, waking on wakeCh to drain whatever Enqueue left queued, until
// stopCh closes. Server-side send-nodes skip the dial-and-login step —
// they're attached by their ListenServer's loginAndAttach instead — and
// use the same drain loop once attached.
func (n *SendNode) RunSendWorker(dial func(addr string) (net.Conn, error)) {
	logger := log.WithComponent("transport.send").WithPeer(n.peerKey)
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		if n.State() == StateInit && n.ActiveSide {
			if err := n.connectActive(dial); err != nil {
				logger.Warn().Err(err).Msg("connect failed, backing off")
				select {
				case <-time.After(connectBackoff):
				case <-n.stopCh:
					return
				}
				continue
			}
		}

		select {
		case <-n.wakeCh:
			n.drainQueued()
		case <-n.stopCh:
			return
		case <-time.After(connectBackoff):
			// periodic wake to notice a passive-side attach or a
			// connection that failed without signalling wakeCh.
		}

		if n.State() == StateNodeDown {
			n.resetForReconnect()
		}
	}
}

func (n *SendNode) connectActive(dial func(addr string) (net.Conn, error)) error {
	n.setState(StateConnecting)
	conn, err := dial(n.Remote.String())
	if err != nil {
		n.setState(StateInit)
		return err
	}
	if err := clientLogin(conn, n.MyNodeID, n.OtherNodeID); err != nil {
		conn.Close()
		n.setState(StateInit)
		return err
	}
	n.mu.Lock()
	n.conn = conn
	n.state = StateLoggedIn
	n.messageIDCounter = 0
	n.mu.Unlock()
	return nil
}

// resetForReconnect moves a NodeDown send-node back to Init after the
// back-off delay elapses (spec §4.F.2).
func (n *SendNode) resetForReconnect() {
	n.mu.Lock()
	if n.state == StateNodeDown {
		n.state = StateInit
		n.conn = nil
	}
	n.mu.Unlock()
}

// MarkNodeUp transitions a logged-in send-node to NodeUp once its socket
// has been handed to a receive worker and registered with the heartbeat
// worker (spec §4.F.2).
func (n *SendNode) MarkNodeUp() {
	n.setState(StateNodeUp)
}

// Stop signals the send worker goroutine to exit.
func (n *SendNode) Stop() {
	close(n.stopCh)
	n.mu.Lock()
	if n.conn != nil {
		n.conn.Close()
	}
	n.mu.Unlock()
}
