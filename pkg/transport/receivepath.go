package transport

import (
	"io"
	"time"

	"github.com/iClaustron/iclaustron-sub000/pkg/log"
)

// NumHashBuckets is the number of per-hash-bucket posting lists a receive
// worker maintains (spec §4.F.4 step 5: hash = receiver_module_id mod
// number-of-thread-lists), one per registered application thread slot.
const NumHashBuckets = 16

// ReceiveWorker owns a bounded set of attached connections and posts
// completed-message batches to the application threads registered against
// its hash buckets (spec §3.6's receive-thread record). Each attached
// connection gets its own goroutine; Go's netpoller is the poll set spec
// §4.F.4 describes managing by hand.
type ReceiveWorker struct {
	pool    *Pool
	buckets [NumHashBuckets]*ApplicationThread

	adjustInterval time.Duration
	adaptive       *adaptiveRegistry

	stopCh chan struct{}
}

// NewReceiveWorker constructs a receive worker drawing pages from pool and
// periodically running adaptive_send_adjust (spec §4.F.3) on every
// send-node in reg.
func NewReceiveWorker(pool *Pool, reg *adaptiveRegistry) *ReceiveWorker {
	return &ReceiveWorker{
		pool:           pool,
		adaptive:       reg,
		adjustInterval: 500 * time.Millisecond,
		stopCh:         make(chan struct{}),
	}
}

// BindBucket registers an application thread against a hash bucket.
func (w *ReceiveWorker) BindBucket(bucket int, t *ApplicationThread) {
	w.buckets[bucket%NumHashBuckets] = t
}

// Attach starts a read goroutine for rn, decoding messages and posting
// descriptors until the connection closes or Stop is called.
func (w *ReceiveWorker) Attach(rn *ReceiveNode) {
	go w.readLoop(rn)
}

// Stop signals every attached read goroutine and the adjustment ticker to
// exit. Individual connections close as their Read calls return.
func (w *ReceiveWorker) Stop() { close(w.stopCh) }

// RunAdjust periodically walks every known send-node calling Adjust
// (adaptive_send_adjust) and waking its send worker if a queue is present
// but inactive — the receive worker's admin duties of spec §4.F.4.
func (w *ReceiveWorker) RunAdjust() {
	ticker := time.NewTicker(w.adjustInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for _, n := range w.adaptive.snapshot() {
				n.mu.Lock()
				n.adaptive.Adjust()
				needsWake := len(n.queue) > 0 && !n.sendThreadIsSending
				if needsWake {
					n.sendThreadIsSending = true
				}
				n.mu.Unlock()
				if needsWake {
					n.signalWorker()
				}
			}
		case <-w.stopCh:
			return
		}
	}
}

func (w *ReceiveWorker) readLoop(rn *ReceiveNode) {
	logger := log.WithComponent("transport.receive")
	if rn.SendNode != nil {
		logger = log.WithComponent("transport.receive").WithPeer(rn.SendNode.peerKey)
	}
	defer rn.Conn.Close()

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		header := make([]byte, 12)
		if _, err := io.ReadFull(rn.Conn, header); err != nil {
			w.onReadError(rn, err)
			return
		}
		raw := bytesToWords(header)
		total := headerTotal(raw[0])
		if total < 3 {
			logger.Warn().Int("total", total).Msg("rejecting message with implausible size")
			return
		}

		rest := make([]byte, (total-3)*4)
		if len(rest) > 0 {
			if _, err := io.ReadFull(rn.Conn, rest); err != nil {
				w.onReadError(rn, err)
				return
			}
		}
		words := append(raw, bytesToWords(rest)...)

		h, main, segments, err := DecodeMessage(words)
		if err != nil {
			logger.Warn().Err(err).Msg("dropping malformed message")
			continue
		}

		page := w.pool.Get()
		copy(page.Words[:], words)
		page.Used = len(words)
		page.AddRef(1)

		desc := &Descriptor{
			Page:           page,
			Header:         h,
			Main:           main,
			Segments:       segments,
			ReceiverModule: h.ReceiverModule,
			ReleaseCount:   1,
		}
		if rn.SendNode != nil {
			desc.ClusterID = rn.SendNode.ClusterID
			desc.SenderNodeID = rn.SendNode.OtherNodeID
			desc.ReceiverNodeID = rn.SendNode.MyNodeID
		}

		w.post(desc)
	}
}

// post implements spec §4.F.4 step 6: append the descriptor to the target
// bucket's application thread and signal it if waiting.
func (w *ReceiveWorker) post(desc *Descriptor) {
	bucket := int(desc.ReceiverModule) % NumHashBuckets
	t := w.buckets[bucket]
	if t == nil {
		w.pool.Put(desc.Page)
		return
	}
	t.mu.Lock()
	t.queue = append(t.queue, desc)
	t.mu.Unlock()
	select {
	case t.signal <- struct{}{}:
	default:
	}
}

func (w *ReceiveWorker) onReadError(rn *ReceiveNode, err error) {
	logger := log.WithComponent("transport.receive")
	if rn.SendNode != nil {
		logger = logger.WithPeer(rn.SendNode.peerKey)
		rn.SendNode.transitionDown()
	}
	if err != io.EOF {
		logger.Warn().Err(err).Msg("receive connection closed")
	}
}
