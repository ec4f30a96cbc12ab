package transport

import (
	"sync"
	"time"

	"github.com/iClaustron/iclaustron-sub000/pkg/icerr"
)

// Bounds mirrored from original_source/api/ic_apid_int.h's
// IC_MAX_RECEIVE_THREADS / IC_MAX_SERVER_PORTS_LISTEN (SPEC_FULL §13):
// sizing hints for the receive-worker pool and listen-server table, not
// hard caps since Go's slices and maps grow on demand.
const (
	MaxReceiveThreads = 64
	MaxListenServers  = 256
)

// messageID identifies a message kind on the wire (spec §4.F.7's static
// dispatch table key).
type messageID uint16

// Handler processes one decoded NDBMessage.
type Handler func(msg NDBMessage)

// dispatchEntry resolves a (messageID, version) pair to a handler; the
// original's sparse 2-D array collapses to a map keyed by messageID with
// a version range per entry, since most message kinds are handled
// identically across the versions this module targets.
type dispatchEntry struct {
	handler  Handler
	minBase  int
	maxBase  int // 0 means unbounded
}

// APIDConnection is one application thread's registration (spec §4.F.7's
// create_apid_connection / poll). The global thread table's "first free
// slot up to a fixed maximum" becomes a simple mutex-guarded slice here;
// Go has no analogue of the fixed-size global array the original uses,
// and a growable slice under a lock is the idiomatic replacement.
type APIDConnection struct {
	thread *ApplicationThread

	mu       sync.Mutex
	dispatch map[messageID]dispatchEntry
}

// globalThreadTable is the registry create_apid_connection binds into
// (spec §4.F.7); bounded to MaxReceiveThreads as a sizing hint.
type globalThreadTable struct {
	mu      sync.Mutex
	threads []*APIDConnection
}

func newGlobalThreadTable() *globalThreadTable {
	return &globalThreadTable{threads: make([]*APIDConnection, 0, MaxReceiveThreads)}
}

// CreateAPIDConnection registers a new thread record, returning its
// handle (spec §4.F.7: create_apid_connection).
func (g *globalThreadTable) CreateAPIDConnection(clusterMask uint32) *APIDConnection {
	conn := &APIDConnection{
		thread:   NewApplicationThread(clusterMask),
		dispatch: make(map[messageID]dispatchEntry),
	}
	g.mu.Lock()
	g.threads = append(g.threads, conn)
	g.mu.Unlock()
	return conn
}

// RegisterHandler binds a handler to a message id for a base-version
// range; maxBase of 0 means unbounded.
func (c *APIDConnection) RegisterHandler(id messageID, minBase, maxBase int, h Handler) {
	c.mu.Lock()
	c.dispatch[id] = dispatchEntry{handler: h, minBase: minBase, maxBase: maxBase}
	c.mu.Unlock()
}

// Poll implements spec §4.F.7's poll(timeout_ns): detach the thread's
// input-queue head list atomically, decode each descriptor into an
// NDBMessage, dispatch to its registered handler, and release the
// originating page's refcount once the batch is fully processed.
func (c *APIDConnection) Poll(timeout time.Duration, pool *Pool) (processed int, err error) {
	t := c.thread
	deadline := time.Now().Add(timeout)
	var batch []*Descriptor
	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			batch = t.queue
			t.queue = nil
			t.mu.Unlock()
			break
		}
		t.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, nil
		}
		select {
		case <-t.signal:
		case <-time.After(remaining):
			return 0, nil
		}
	}

	for _, desc := range batch {
		msg := NDBMessage{
			Header:         desc.Header,
			Main:           desc.Main,
			Segments:       desc.Segments,
			ClusterID:      desc.ClusterID,
			SenderNodeID:   desc.SenderNodeID,
			ReceiverNodeID: desc.ReceiverNodeID,
		}
		c.dispatchOne(messageID(desc.Header.MessageNumber&0xFFFF), msg)
	}
	// The drained queue can hold several posted batches, each ending in a
	// descriptor that carries its page's release count.
	for _, desc := range batch {
		if desc.ReleaseCount > 0 {
			if desc.Page.Release(desc.ReleaseCount) {
				pool.Put(desc.Page)
			}
		}
	}
	return len(batch), nil
}

func (c *APIDConnection) dispatchOne(id messageID, msg NDBMessage) {
	c.mu.Lock()
	entry, ok := c.dispatch[id]
	c.mu.Unlock()
	if !ok {
		return
	}
	entry.handler(msg)
}

// lookupHandler resolves a handler with the entry's base-version range
// applied; dispatchOne looks handlers up by message id alone.
func (c *APIDConnection) lookupHandler(id messageID, base int) (Handler, error) {
	c.mu.Lock()
	entry, ok := c.dispatch[id]
	c.mu.Unlock()
	if !ok {
		return nil, icerr.New(icerr.ProtocolError, "no handler registered for message id %d", id)
	}
	if base < entry.minBase || (entry.maxBase != 0 && base > entry.maxBase) {
		return nil, icerr.New(icerr.ProtocolError, "message id %d handler not applicable to base version %d", id, base)
	}
	return entry.handler, nil
}
