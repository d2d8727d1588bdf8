// Package page implements the fixed 8192-byte slotted page the document
// codec's serialized bytes are stored in: a 16-byte header, a slot
// directory growing forward from the header, and a heap of record bytes
// growing backward from the end of the page.
package page

import (
	"encoding/binary"

	"docbase/internal/dberrors"

	"github.com/cespare/xxhash/v2"
)

// PageSize is the fixed size of every page, in bytes.
const PageSize = 8192

// HeaderSize is the fixed size of a page's header, in bytes.
const HeaderSize = 16

// SlotSize is the size of one slot directory entry, in bytes.
const SlotSize = 4

// tombstoneOffset marks a slot whose record has been deleted; DeleteRecord
// writes it at delete time, before any compaction. It is distinct from the
// zero value (which marks a slot that has never been allocated) and is
// larger than any real in-page offset (valid offsets are < PageSize).
const tombstoneOffset = 0xFFFF

// Type identifies what a page's body holds.
type Type byte

const (
	// TypeData holds document records in the slotted layout this package
	// implements.
	TypeData Type = 1
	// TypeIndex is reserved for a future secondary-index page body; no
	// body format is implemented for it.
	TypeIndex Type = 2
	// TypeMeta is reserved for a future metadata page body; no body
	// format is implemented for it.
	TypeMeta Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "Data"
	case TypeIndex:
		return "Index"
	case TypeMeta:
		return "Meta"
	default:
		return "Unknown"
	}
}

const (
	offPageID     = 0
	offChecksum   = 8
	offFreeSpace  = 12
	offPageType   = 14
	offReserved   = 15
	maxSlotsOnPage = (PageSize - HeaderSize) / SlotSize
)

// Page is an in-memory 8192-byte page frame with typed accessors over its
// header, slot directory, and heap regions. slotCount caches the
// directory's entry count: the on-disk format has no count field of its
// own, so this is derived once at load (see deriveSlotCount) and
// maintained incrementally by every mutator from then on.
type Page struct {
	data      [PageSize]byte
	slotCount int
}

type slotEntry struct {
	offset uint16
	length uint16
}

// New creates a fresh page of the given type with an empty slot directory
// and a full heap of free space.
func New(pageID uint64, pageType Type) *Page {
	p := &Page{}
	p.setPageID(pageID)
	p.setPageType(pageType)
	p.setFreeSpaceBytes(PageSize - HeaderSize)
	p.RecomputeChecksum()
	return p
}

// FromBytes reconstructs a Page from exactly PageSize raw bytes, verifying
// its checksum.
func FromBytes(data []byte) (*Page, error) {
	if len(data) != PageSize {
		return nil, dberrors.ErrIOError.WithDetail("page buffer is not PageSize bytes")
	}
	p := &Page{}
	copy(p.data[:], data)
	if !p.VerifyChecksum() {
		return nil, dberrors.ErrChecksumMismatch
	}
	p.slotCount = p.deriveSlotCount()
	return p, nil
}

// Bytes returns a copy of p's PageSize raw bytes.
func (p *Page) Bytes() []byte {
	out := make([]byte, PageSize)
	copy(out, p.data[:])
	return out
}

// PageID returns the page's identifier.
func (p *Page) PageID() uint64 {
	return binary.LittleEndian.Uint64(p.data[offPageID : offPageID+8])
}

func (p *Page) setPageID(id uint64) {
	binary.LittleEndian.PutUint64(p.data[offPageID:offPageID+8], id)
}

// Checksum returns the page's stored checksum field.
func (p *Page) Checksum() uint32 {
	return binary.LittleEndian.Uint32(p.data[offChecksum : offChecksum+4])
}

func (p *Page) setChecksum(c uint32) {
	binary.LittleEndian.PutUint32(p.data[offChecksum:offChecksum+4], c)
}

// FreeSpaceBytes returns the page's stored free-space accounting: the
// total page body minus the slot directory minus every live record's
// bytes. A deleted record's bytes count as free as soon as it is deleted,
// even before Compact reclaims them from the heap.
func (p *Page) FreeSpaceBytes() uint16 {
	return binary.LittleEndian.Uint16(p.data[offFreeSpace : offFreeSpace+2])
}

func (p *Page) setFreeSpaceBytes(n uint16) {
	binary.LittleEndian.PutUint16(p.data[offFreeSpace:offFreeSpace+2], n)
}

// PageType returns the page's type.
func (p *Page) PageType() Type {
	return Type(p.data[offPageType])
}

func (p *Page) setPageType(t Type) {
	p.data[offPageType] = byte(t)
}

func (p *Page) slotAt(i int) slotEntry {
	base := HeaderSize + i*SlotSize
	return slotEntry{
		offset: binary.LittleEndian.Uint16(p.data[base : base+2]),
		length: binary.LittleEndian.Uint16(p.data[base+2 : base+4]),
	}
}

func (p *Page) setSlotAt(i int, s slotEntry) {
	base := HeaderSize + i*SlotSize
	binary.LittleEndian.PutUint16(p.data[base:base+2], s.offset)
	binary.LittleEndian.PutUint16(p.data[base+2:base+4], s.length)
}

// numSlots returns the number of slot directory entries currently
// allocated.
func (p *Page) numSlots() int {
	return p.slotCount
}

// deriveSlotCount recovers the slot count of a page just loaded from
// disk. The directory has no entry count of its own — the header is
// fixed at the 16 bytes the page format mandates, with no room to spare,
// and prefixing the directory with a count would eat into the 8176
// payload bytes the free-space accounting assumes are all slots-or-heap.
// Instead this walks the page's own free-space invariant,
// FreeSpaceBytes() == 8176 − 4·slot_count − Σ(live slot lengths), one
// slot at a time: each slot consumes exactly 4 bytes of directory plus
// its length (0 for a tombstone), so the running total is strictly
// decreasing and hits the FreeSpaceBytes() value the page was last
// persisted with exactly once, at the true slot count, never before and
// never after. Only called from FromBytes, against a FreeSpaceBytes()
// value already known to be correct for the bytes being loaded; it is
// not used to re-derive the count mid-mutation, which would be circular
// with updateFreeSpace's own use of the cached count.
//
// Scanning instead for a (0, 0) "never allocated" sentinel breaks on a
// page filled to within a few bytes of capacity: with little or no gap
// between the directory's true end and the heap, the byte range one slot
// past the last real entry falls inside live record data rather than
// still-zero heap padding, and that data only rarely happens to decode
// as (0, 0).
func (p *Page) deriveSlotCount() int {
	target := int(p.FreeSpaceBytes())
	remaining := PageSize - HeaderSize
	for n := 0; n < maxSlotsOnPage; n++ {
		s := p.slotAt(n)
		remaining -= SlotSize + int(s.length)
		if remaining == target {
			return n + 1
		}
		if remaining < target {
			break
		}
	}
	return 0
}

// LiveSlotCount returns the number of slots holding a live (non-tombstone)
// record.
func (p *Page) LiveSlotCount() int {
	n := p.numSlots()
	count := 0
	for i := 0; i < n; i++ {
		if p.slotAt(i).length > 0 {
			count++
		}
	}
	return count
}

// liveBytes sums the record length of every live slot.
func (p *Page) liveBytes(n int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += int(p.slotAt(i).length)
	}
	return total
}

// physicalHeapStart is the lowest offset occupied by a live record's
// bytes. A deleted record's bytes are not counted (its slot no longer
// holds an offset), so the next append may overwrite them. It is used
// only to decide whether a new record's bytes can be appended without
// compacting first; it is never exposed as a public field.
func (p *Page) physicalHeapStart(n int) int {
	start := PageSize
	for i := 0; i < n; i++ {
		s := p.slotAt(i)
		if s.offset != 0 && s.offset != tombstoneOffset && int(s.offset) < start {
			start = int(s.offset)
		}
	}
	return start
}

func (p *Page) updateFreeSpace() {
	n := p.numSlots()
	used := SlotSize*n + p.liveBytes(n)
	free := (PageSize - HeaderSize) - used
	if free < 0 {
		free = 0
	}
	p.setFreeSpaceBytes(uint16(free))
}

// RecomputeChecksum recomputes and stores the page's checksum over
// everything in the page except the checksum field itself: the rest of
// the header (page_id, free_space_bytes, page_type, reserved) plus the
// 8176-byte slot directory and heap. The database file calls this
// immediately before writing a page back to disk.
func (p *Page) RecomputeChecksum() {
	p.setChecksum(uint32(p.checksumBody()))
}

// VerifyChecksum reports whether the stored checksum matches the page's
// current body.
func (p *Page) VerifyChecksum() bool {
	return p.Checksum() == uint32(p.checksumBody())
}

func (p *Page) checksumBody() uint64 {
	h := xxhash.New()
	h.Write(p.data[:offChecksum])
	h.Write(p.data[offChecksum+4:])
	return h.Sum64()
}
