package engine

import (
	"docbase/pkg/codec"
	"docbase/pkg/document"
	"docbase/pkg/page"
)

// Cursor walks every live document in the database in page_id, slot
// order. It pins the page it is currently reading and unpins on advance
// or Close, so a caller holding a Cursor never races the pool's
// eviction. A Cursor not driven to exhaustion must be Close'd to release
// its pin.
type Cursor struct {
	e       *Engine
	pageID  uint64
	maxPage uint64
	hasPin  bool

	slots []uint32
	data  [][]byte
	idx   int
}

// Scan returns a Cursor positioned before the first live document.
func (e *Engine) Scan() *Cursor {
	return &Cursor{e: e, pageID: 0, maxPage: e.file.PageCount()}
}

// Next advances to the next live document, returning it along with its
// DocumentID. The final ok=false return carries no error on ordinary
// exhaustion; a non-nil error means the scan could not continue.
func (c *Cursor) Next() (doc *document.Document, id DocumentID, ok bool, err error) {
	for {
		if c.idx < len(c.slots) {
			slot, body := c.slots[c.idx], c.data[c.idx]
			c.idx++
			doc, err = codec.DeserializeDocument(body)
			if err != nil {
				return nil, DocumentID{}, false, err
			}
			return doc, DocumentID{PageID: c.pageID, SlotID: slot}, true, nil
		}

		if c.hasPin {
			_ = c.e.pool.Unpin(c.pageID, false)
			c.hasPin = false
		}

		c.pageID++
		if c.pageID >= c.maxPage {
			return nil, DocumentID{}, false, nil
		}

		frame, ferr := c.e.pool.Pin(c.pageID)
		if ferr != nil {
			return nil, DocumentID{}, false, ferr
		}
		c.hasPin = true

		c.slots = c.slots[:0]
		c.data = c.data[:0]
		c.idx = 0
		if frame.PageType() != page.TypeData {
			continue
		}

		frame.Iterate(func(slotID uint32, recordData []byte) bool {
			cp := make([]byte, len(recordData))
			copy(cp, recordData)
			c.slots = append(c.slots, slotID)
			c.data = append(c.data, cp)
			return true
		})
	}
}

// Close releases the Cursor's current pin, if any. Safe to call more than
// once and after Next has already returned ok=false.
func (c *Cursor) Close() {
	if c.hasPin {
		_ = c.e.pool.Unpin(c.pageID, false)
		c.hasPin = false
	}
}
