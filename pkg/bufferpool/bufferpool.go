// Package bufferpool implements the bounded, single-threaded resident-page
// cache every docbase engine reads and writes pages through: pin counts, a
// dirty set, and an LRU doubly-linked chain with a recycled node free-list.
package bufferpool

import (
	"strconv"

	"docbase/internal/dberrors"
	"docbase/pkg/dbfile"
	"docbase/pkg/page"
)

// lruNode is one entry of the doubly-linked LRU chain, front = most
// recently used. Nodes are recycled via freeNodes rather than allocated
// fresh on every admission, per the design notes' "recycled via a
// free-list to avoid allocator churn".
type lruNode struct {
	pageID uint64
	frame  *page.Page
	prev   *lruNode
	next   *lruNode
}

// Pool is a bounded cache of resident pages keyed by page id, mediating
// every access to a page on behalf of the storage engine facade.
type Pool struct {
	capacity int
	file     *dbfile.File

	nodes map[uint64]*lruNode
	pins  map[uint64]int
	dirty map[uint64]struct{}

	head *lruNode // sentinel; head.next = most recently used
	tail *lruNode // sentinel; tail.prev = least recently used

	freeNodes []*lruNode

	hits, misses uint64
}

// New creates a Pool of the given capacity, reading pages through file on
// a miss. Capacity must be at least 1.
func New(file *dbfile.File, capacity int) *Pool {
	head := &lruNode{}
	tail := &lruNode{}
	head.next = tail
	tail.prev = head

	return &Pool{
		capacity: capacity,
		file:     file,
		nodes:    make(map[uint64]*lruNode),
		pins:     make(map[uint64]int),
		dirty:    make(map[uint64]struct{}),
		head:     head,
		tail:     tail,
	}
}

// Get returns a read-only view of the page at id, fetching it from the
// file on a miss. Fails ErrPoolNotEnoughSpace if the pool is full and
// every resident page is pinned.
func (p *Pool) Get(id uint64) (*page.Page, error) {
	return p.fetch(id)
}

// Pin is Get plus incrementing id's pin count; a pinned page is never
// evicted. Every successful Pin must be paired with exactly one Unpin.
func (p *Pool) Pin(id uint64) (*page.Page, error) {
	frame, err := p.fetch(id)
	if err != nil {
		return nil, err
	}
	p.pins[id]++
	return frame, nil
}

// Unpin decrements id's pin count and, if dirtyFlag is true, marks id
// dirty. Fails ErrUnknownPage if id is not resident. A pin-count
// underflow is a fatal programming error, not a recoverable condition.
func (p *Pool) Unpin(id uint64, dirtyFlag bool) error {
	if _, ok := p.nodes[id]; !ok {
		return dberrors.ErrUnknownPage.WithDetail("page is not resident")
	}

	count, ok := p.pins[id]
	if !ok || count <= 0 {
		panic("bufferpool: Unpin called with a non-positive pin count for page " + pageIDString(id))
	}
	p.pins[id] = count - 1

	if dirtyFlag {
		p.dirty[id] = struct{}{}
	}
	return nil
}

func (p *Pool) fetch(id uint64) (*page.Page, error) {
	if n, ok := p.nodes[id]; ok {
		p.moveToFront(n)
		p.hits++
		return n.frame, nil
	}

	p.misses++

	if len(p.nodes) >= p.capacity {
		if err := p.evictOne(); err != nil {
			return nil, err
		}
	}

	frame, err := p.file.ReadPage(id)
	if err != nil {
		return nil, err
	}

	n := p.newNode(id, frame)
	p.nodes[id] = n
	p.addToFront(n)
	return frame, nil
}

// evictOne walks the LRU chain from the tail toward the front and evicts
// the first unpinned page it finds, flushing it first if dirty. Fails
// ErrPoolNotEnoughSpace if every resident page is pinned.
func (p *Pool) evictOne() error {
	for n := p.tail.prev; n != p.head; n = n.prev {
		if p.pins[n.pageID] > 0 {
			continue
		}
		if _, isDirty := p.dirty[n.pageID]; isDirty {
			if err := p.file.WritePage(n.pageID, n.frame); err != nil {
				return err
			}
			delete(p.dirty, n.pageID)
		}
		p.removeNode(n)
		delete(p.nodes, n.pageID)
		delete(p.pins, n.pageID)
		p.releaseNode(n)
		return nil
	}
	return dberrors.ErrPoolNotEnoughSpace
}

// Put registers an already-constructed frame as resident at id, evicting
// if the pool is full, and marks it dirty since it has never been written
// to disk. Used by the storage engine facade when it has just allocated a
// new page via the file and wants to skip a redundant through-file read
// to "register it with the pool". Fails if id is already resident.
func (p *Pool) Put(id uint64, frame *page.Page) error {
	if _, ok := p.nodes[id]; ok {
		return dberrors.New(dberrors.CategoryPool, "ALREADY_RESIDENT", "page is already resident").WithDetail(pageIDString(id))
	}

	if len(p.nodes) >= p.capacity {
		if err := p.evictOne(); err != nil {
			return err
		}
	}

	n := p.newNode(id, frame)
	p.nodes[id] = n
	p.addToFront(n)
	p.dirty[id] = struct{}{}
	return nil
}

// DirtyCount returns the number of resident pages with unflushed changes.
func (p *Pool) DirtyCount() int {
	return len(p.dirty)
}

// FlushPage writes id's frame back through the file if dirty and clears
// it from the dirty set.
func (p *Pool) FlushPage(id uint64) error {
	n, ok := p.nodes[id]
	if !ok {
		return dberrors.ErrUnknownPage.WithDetail("page is not resident")
	}
	if _, isDirty := p.dirty[id]; !isDirty {
		return nil
	}
	if err := p.file.WritePage(id, n.frame); err != nil {
		return err
	}
	delete(p.dirty, id)
	return nil
}

// FlushAll flushes every dirty page, in LRU order from least to most
// recently used.
func (p *Pool) FlushAll() error {
	for n := p.tail.prev; n != p.head; n = n.prev {
		if _, isDirty := p.dirty[n.pageID]; !isDirty {
			continue
		}
		if err := p.file.WritePage(n.pageID, n.frame); err != nil {
			return err
		}
		delete(p.dirty, n.pageID)
	}
	return nil
}

// ResizeResult reports the outcome of a Resize call: the pool may not be
// able to shrink all the way to the requested capacity if pinned pages
// are in the way.
type ResizeResult struct {
	ReachedCapacity int
	Requested       int
}

// Resize changes the pool's capacity. Shrinking evicts least-recently-used
// unpinned pages (flushing dirty ones first) until the resident count is
// at or below newCapacity; if pinned pages prevent reaching the target,
// it stops at the smallest reachable size and reports it.
func (p *Pool) Resize(newCapacity int) (ResizeResult, error) {
	for len(p.nodes) > newCapacity {
		if err := p.evictOne(); err != nil {
			p.capacity = newCapacity
			return ResizeResult{ReachedCapacity: len(p.nodes), Requested: newCapacity}, nil
		}
	}
	p.capacity = newCapacity
	return ResizeResult{ReachedCapacity: len(p.nodes), Requested: newCapacity}, nil
}

// ClearResult reports whether Clear was able to drop every resident
// frame, or only the unpinned ones.
type ClearResult struct {
	Dropped  int
	Retained int
}

// Clear flushes every dirty page and drops every unpinned frame; pinned
// frames remain resident and are reported as retained.
func (p *Pool) Clear() (ClearResult, error) {
	if err := p.FlushAll(); err != nil {
		return ClearResult{}, err
	}

	result := ClearResult{}
	for n := p.tail.prev; n != p.head; {
		prev := n.prev
		if p.pins[n.pageID] > 0 {
			result.Retained++
			n = prev
			continue
		}
		p.removeNode(n)
		delete(p.nodes, n.pageID)
		delete(p.pins, n.pageID)
		p.releaseNode(n)
		result.Dropped++
		n = prev
	}
	return result, nil
}

// Hits returns the number of Get/Pin calls served from the resident set.
func (p *Pool) Hits() uint64 { return p.hits }

// Misses returns the number of Get/Pin calls that had to read through the
// file.
func (p *Pool) Misses() uint64 { return p.misses }

// ValidateConsistency recomputes the pool's four indices and asserts they
// mutually agree, for use by tests.
func (p *Pool) ValidateConsistency() error {
	count := 0
	for n := p.head.next; n != p.tail; n = n.next {
		count++
		if _, ok := p.nodes[n.pageID]; !ok {
			return dberrors.New(dberrors.CategoryPool, "INCONSISTENT", "LRU chain contains a page missing from the node index").WithDetail(pageIDString(n.pageID))
		}
	}
	if count != len(p.nodes) {
		return dberrors.New(dberrors.CategoryPool, "INCONSISTENT", "LRU chain length disagrees with node index size")
	}
	if len(p.nodes) > p.capacity {
		return dberrors.New(dberrors.CategoryPool, "INCONSISTENT", "resident set exceeds capacity")
	}
	for id := range p.dirty {
		if _, ok := p.nodes[id]; !ok {
			return dberrors.New(dberrors.CategoryPool, "INCONSISTENT", "dirty set references a non-resident page").WithDetail(pageIDString(id))
		}
	}
	for id := range p.pins {
		if _, ok := p.nodes[id]; !ok {
			return dberrors.New(dberrors.CategoryPool, "INCONSISTENT", "pin-count map references a non-resident page").WithDetail(pageIDString(id))
		}
	}
	return nil
}

func (p *Pool) addToFront(n *lruNode) {
	n.prev = p.head
	n.next = p.head.next
	p.head.next.prev = n
	p.head.next = n
}

func (p *Pool) removeNode(n *lruNode) {
	n.prev.next = n.next
	n.next.prev = n.prev
}

func (p *Pool) moveToFront(n *lruNode) {
	p.removeNode(n)
	p.addToFront(n)
}

func (p *Pool) newNode(id uint64, frame *page.Page) *lruNode {
	if len(p.freeNodes) > 0 {
		n := p.freeNodes[len(p.freeNodes)-1]
		p.freeNodes = p.freeNodes[:len(p.freeNodes)-1]
		n.pageID, n.frame, n.prev, n.next = id, frame, nil, nil
		return n
	}
	return &lruNode{pageID: id, frame: frame}
}

func (p *Pool) releaseNode(n *lruNode) {
	n.frame, n.prev, n.next = nil, nil, nil
	p.freeNodes = append(p.freeNodes, n)
}

func pageIDString(id uint64) string {
	return strconv.FormatUint(id, 10)
}
