package transport

import (
	"sync"
	"sync/atomic"

	"github.com/iClaustron/iclaustron-sub000/pkg/metrics"
)

// PageWords is the size of one send/receive page, in 32-bit words: large
// enough to hold several framed messages before a flush.
const PageWords = 1024

// Page is one shared send/receive buffer. RefCount tracks how many
// message descriptors still point into it (spec §4.F.4 step 4); the page
// returns to the pool when the count reaches zero.
type Page struct {
	Words    [PageWords]uint32
	Used     int // words written so far
	refCount int32
}

// AddRef increments the descriptor refcount held against this page.
func (p *Page) AddRef(n int) { atomic.AddInt32(&p.refCount, int32(n)) }

// Release decrements the refcount by n and reports whether it reached
// zero (caller should then return the page to its Pool).
func (p *Page) Release(n int) bool {
	return atomic.AddInt32(&p.refCount, -int32(n)) == 0
}

// Pool is the shared free-list of pages described in spec §3.6's
// listen/receive-thread records; it wraps sync.Pool so idle pages are
// reclaimable under memory pressure while still being reused across
// connections.
type Pool struct {
	pool    sync.Pool
	inUse   int64
}

// NewPool constructs an empty page pool.
func NewPool() *Pool {
	p := &Pool{}
	p.pool.New = func() any { return &Page{} }
	return p
}

// Get checks out a page, zeroing its bookkeeping fields.
func (p *Pool) Get() *Page {
	page := p.pool.Get().(*Page)
	page.Used = 0
	page.refCount = 0
	atomic.AddInt64(&p.inUse, 1)
	metrics.TransportReceivePagesInUse.Set(float64(atomic.LoadInt64(&p.inUse)))
	return page
}

// Put returns a page to the pool.
func (p *Pool) Put(page *Page) {
	p.pool.Put(page)
	atomic.AddInt64(&p.inUse, -1)
	metrics.TransportReceivePagesInUse.Set(float64(atomic.LoadInt64(&p.inUse)))
}

// InUse reports the current number of checked-out pages.
func (p *Pool) InUse() int { return int(atomic.LoadInt64(&p.inUse)) }
