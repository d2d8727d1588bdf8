package page

import "docbase/internal/dberrors"

// InsertRecord writes data into p's heap and reserves a slot for it,
// reusing the lowest-indexed tombstone if one exists and otherwise
// appending a new slot. It tries a direct append first; if that fails
// because the page is fragmented rather than genuinely full, it compacts
// once and retries.
func (p *Page) InsertRecord(data []byte) (uint32, error) {
	if p.PageType() != TypeData {
		return 0, dberrors.ErrInvalidPageType.WithDetail(p.PageType().String())
	}
	if len(data)+SlotSize > PageSize-HeaderSize {
		return 0, dberrors.ErrNotEnoughSpace.WithDetail("record exceeds page capacity")
	}

	if slot, ok := p.tryInsertDirect(data); ok {
		return slot, nil
	}

	n := p.numSlots()
	live := p.liveBytes(n)
	if live+SlotSize*n > (PageSize-HeaderSize)-len(data)-SlotSize {
		return 0, dberrors.ErrNotEnoughSpace
	}

	p.Compact()
	if slot, ok := p.tryInsertDirect(data); ok {
		return slot, nil
	}
	return 0, dberrors.ErrNotEnoughSpace
}

// tryInsertDirect attempts to place data without compacting: reuse a
// tombstone slot if one is free, otherwise append a new slot, and check
// the contiguous gap between the slot directory and the physically
// lowest-used heap offset is wide enough.
func (p *Page) tryInsertDirect(data []byte) (uint32, bool) {
	n := p.numSlots()

	reuseIdx := -1
	for i := 0; i < n; i++ {
		s := p.slotAt(i)
		if s.length == 0 && s.offset == tombstoneOffset {
			reuseIdx = i
			break
		}
	}

	slotIdx := reuseIdx
	dirEnd := HeaderSize + SlotSize*n
	if reuseIdx < 0 {
		if n >= maxSlotsOnPage {
			return 0, false
		}
		slotIdx = n
		dirEnd += SlotSize
	}

	heapStart := p.physicalHeapStart(n)
	if dirEnd+len(data) > heapStart {
		return 0, false
	}

	newOffset := heapStart - len(data)
	copy(p.data[newOffset:newOffset+len(data)], data)
	p.setSlotAt(slotIdx, slotEntry{offset: uint16(newOffset), length: uint16(len(data))})
	if reuseIdx < 0 {
		p.slotCount = n + 1
	}
	p.updateFreeSpace()
	p.RecomputeChecksum()
	return uint32(slotIdx), true
}

// ReadRecord returns a copy of the live record at slotID.
func (p *Page) ReadRecord(slotID uint32) ([]byte, error) {
	n := p.numSlots()
	if int(slotID) >= n {
		return nil, dberrors.ErrSlotOutOfRange.WithDetail("slot id exceeds slot count")
	}

	s := p.slotAt(int(slotID))
	if s.length == 0 {
		return nil, dberrors.ErrSlotNotFound.WithDetail("slot is a tombstone")
	}

	start, end := int(s.offset), int(s.offset)+int(s.length)
	if start < HeaderSize+SlotSize*n || end > PageSize {
		return nil, dberrors.ErrSlotNotFound.WithDetail("slot references bytes outside the heap region")
	}

	out := make([]byte, s.length)
	copy(out, p.data[start:end])
	return out, nil
}

// DeleteRecord marks slotID as a tombstone. The heap bytes are not
// reclaimed until the next Compact.
func (p *Page) DeleteRecord(slotID uint32) error {
	n := p.numSlots()
	if int(slotID) >= n {
		return dberrors.ErrSlotOutOfRange.WithDetail("slot id exceeds slot count")
	}

	s := p.slotAt(int(slotID))
	if s.length == 0 {
		return dberrors.ErrSlotNotFound.WithDetail("slot is already a tombstone")
	}

	p.setSlotAt(int(slotID), slotEntry{offset: tombstoneOffset, length: 0})
	p.updateFreeSpace()
	p.RecomputeChecksum()
	return nil
}

// OverwriteRecord replaces slotID's live record in place with data, which
// must be no longer than the slot's current length. Used by the storage
// engine facade's in-place update path: when the new encoding fits within
// the old slot's length, it rewrites in place instead of relocating.
func (p *Page) OverwriteRecord(slotID uint32, data []byte) error {
	n := p.numSlots()
	if int(slotID) >= n {
		return dberrors.ErrSlotOutOfRange.WithDetail("slot id exceeds slot count")
	}

	s := p.slotAt(int(slotID))
	if s.length == 0 {
		return dberrors.ErrSlotNotFound.WithDetail("slot is a tombstone")
	}
	if len(data) > int(s.length) {
		return dberrors.ErrNotEnoughSpace.WithDetail("overwrite data longer than the existing record")
	}

	start := int(s.offset)
	copy(p.data[start:start+len(data)], data)
	p.setSlotAt(int(slotID), slotEntry{offset: s.offset, length: uint16(len(data))})
	p.updateFreeSpace()
	p.RecomputeChecksum()
	return nil
}

// Iterate calls fn for every live record on the page in slot order,
// skipping tombstones, stopping early if fn returns false. The byte slice
// passed to fn aliases the page's internal storage and must not be
// retained past the call.
func (p *Page) Iterate(fn func(slotID uint32, data []byte) bool) {
	n := p.numSlots()
	for i := 0; i < n; i++ {
		s := p.slotAt(i)
		if s.length == 0 {
			continue
		}
		start, end := int(s.offset), int(s.offset)+int(s.length)
		if !fn(uint32(i), p.data[start:end]) {
			return
		}
	}
}

// Compact rewrites live records contiguously against the high end of the
// page and rewrites their slot offsets in place; slot indices never
// change. Only a run of tombstones at the very tail of the directory is
// trimmed — interior tombstones are retained so their slot indices stay
// valid for any handle a caller still holds. Compact is idempotent: a
// page already in packed form is rewritten to the same bytes.
func (p *Page) Compact() {
	origN := p.numSlots()

	type liveRecord struct {
		idx  int
		data []byte
	}
	live := make([]liveRecord, 0, origN)
	for i := 0; i < origN; i++ {
		s := p.slotAt(i)
		if s.length == 0 {
			continue
		}
		buf := make([]byte, s.length)
		copy(buf, p.data[s.offset:int(s.offset)+int(s.length)])
		live = append(live, liveRecord{idx: i, data: buf})
	}

	trimmedN := origN
	for trimmedN > 0 {
		s := p.slotAt(trimmedN - 1)
		if s.length == 0 && s.offset == tombstoneOffset {
			trimmedN--
			continue
		}
		break
	}
	for i := trimmedN; i < origN; i++ {
		p.setSlotAt(i, slotEntry{})
	}
	p.slotCount = trimmedN

	offset := PageSize
	for _, r := range live {
		offset -= len(r.data)
		copy(p.data[offset:offset+len(r.data)], r.data)
		p.setSlotAt(r.idx, slotEntry{offset: uint16(offset), length: uint16(len(r.data))})
	}

	p.updateFreeSpace()
	p.RecomputeChecksum()
}
