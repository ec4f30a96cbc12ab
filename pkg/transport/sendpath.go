package transport

import (
	"io"
	"time"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
	"github.com/iClaustron/iclaustron-sub000/pkg/metrics"
)

// MaxSendBuffers and MaxSendSize bound one vectored write (spec §4.F.3
// step 5).
const (
	MaxSendBuffers = 64
	MaxSendSize    = PageWords * 4 * MaxSendBuffers
)

// Enqueue implements the send path of spec §4.F.3: splice buffers onto
// the send queue, stamp message ids if negotiated, and either perform an
// immediate vectored write or skip it per the adaptive-wait decision.
// forceSend bypasses the adaptive-wait skip (used by the heartbeat worker
// with force_send=false, i.e. it still participates in the decision).
func (n *SendNode) Enqueue(pages []*Page, forceSend bool) error {
	n.mu.Lock()
	if n.state == StateNodeDown {
		n.mu.Unlock()
		return icerr.New(icerr.NodeDown, "send-node %s is down", n.peerKey)
	}

	if n.negotiatesMessageID {
		for _, p := range pages {
			n.messageIDCounter++
			stampMessageID(p, n.messageIDCounter)
		}
	}

	n.queue = append(n.queue, pages...)
	for _, p := range pages {
		n.queuedBytes += p.Used * 4
	}
	metrics.TransportSendQueueBytes.WithLabelValues(n.peerKey).Set(float64(n.queuedBytes))

	var toSend []*Page
	skip := false
	if !n.sendActive {
		n.sendActive = true
		toSend, n.queue = takeUpTo(n.queue, MaxSendBuffers, MaxSendSize)
		if !forceSend {
			skip = n.adaptive.Decide(time.Now())
		}
	}
	n.adaptive.RecordSend(time.Now())
	metrics.TransportAdaptiveMaxNumWaits.WithLabelValues(n.peerKey).Set(float64(n.adaptive.MaxNumWaits()))

	conn := n.conn
	n.mu.Unlock()

	if len(toSend) == 0 {
		return nil
	}
	if skip {
		n.mu.Lock()
		n.requeueFront(toSend)
		n.mu.Unlock()
		return nil
	}

	err := writePages(conn, toSend)
	for _, p := range toSend {
		n.pool.Put(p)
	}

	n.mu.Lock()
	if err != nil {
		n.mu.Unlock()
		n.transitionDown()
		return icerr.Wrap(icerr.ProtocolError, err, "send to %s failed", n.peerKey)
	}
	if len(n.queue) > 0 {
		n.sendThreadIsSending = true
		n.signalWorker()
	} else {
		n.sendActive = false
	}
	n.mu.Unlock()
	return nil
}

// drainQueued is called by the send worker goroutine after being woken:
// it keeps flushing the queue in MaxSendBuffers-sized batches until empty
// or the connection fails.
func (n *SendNode) drainQueued() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.sendActive = false
			n.sendThreadIsSending = false
			n.mu.Unlock()
			return
		}
		batch, rest := takeUpTo(n.queue, MaxSendBuffers, MaxSendSize)
		n.queue = rest
		conn := n.conn
		n.mu.Unlock()

		err := writePages(conn, batch)
		for _, p := range batch {
			n.pool.Put(p)
		}
		if err != nil {
			n.transitionDown()
			return
		}
	}
}

func (n *SendNode) requeueFront(pages []*Page) {
	n.queue = append(pages, n.queue...)
}

func (n *SendNode) signalWorker() {
	select {
	case n.wakeCh <- struct{}{}:
	default:
	}
}

// transitionDown moves the send-node to NodeDown, returning any queued
// pages to the shared pool (spec §4.F.2's NodeDown transition).
func (n *SendNode) transitionDown() {
	n.mu.Lock()
	n.state = StateNodeDown
	queued := n.queue
	n.queue = nil
	n.queuedBytes = 0
	n.sendActive = false
	n.sendThreadIsSending = false
	n.mu.Unlock()

	for _, p := range queued {
		n.pool.Put(p)
	}
	metrics.TransportSendQueueBytes.WithLabelValues(n.peerKey).Set(0)
}

func takeUpTo(queue []*Page, maxBuffers, maxBytes int) (head, rest []*Page) {
	n := 0
	bytes := 0
	for n < len(queue) && n < maxBuffers {
		next := queue[n].Used * 4
		if n > 0 && bytes+next > maxBytes {
			break
		}
		bytes += next
		n++
	}
	return queue[:n], queue[n:]
}

func writePages(conn io.Writer, pages []*Page) error {
	if conn == nil {
		return icerr.New(icerr.ProtocolError, "send-node has no active connection")
	}
	for _, p := range pages {
		buf := wordsToBytes(p.Words[:p.Used])
		if _, err := conn.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func stampMessageID(p *Page, id uint32) {
	if p.Used >= 4 {
		p.Words[3] = id
	}
}

func wordsToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[i*4+0] = byte(w >> 24)
		out[i*4+1] = byte(w >> 16)
		out[i*4+2] = byte(w >> 8)
		out[i*4+3] = byte(w)
	}
	return out
}
