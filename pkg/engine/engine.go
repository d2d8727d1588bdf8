// Package engine wires the codec, page layout, and buffer pool into the
// storage engine facade: Open/Insert/Get/Update/Delete/Scan/Stats/Flush/
// Close, the only public surface everything outside THE CORE sees.
package engine

import (
	"errors"
	"log/slog"
	"os"

	"docbase/internal/dberrors"
	"docbase/internal/dblog"
	"docbase/pkg/bufferpool"
	"docbase/pkg/codec"
	"docbase/pkg/dbfile"
	"docbase/pkg/document"
	"docbase/pkg/objectid"
	"docbase/pkg/page"
	"docbase/pkg/value"
)

// DocumentID is the handle insert returns and get/update/delete consume:
// a page id plus a slot index, stable across compaction within that page.
type DocumentID struct {
	PageID uint64
	SlotID uint32
}

// EngineOptions configures Open. PoolCapacity is required and must be at
// least 1. SyncOnWrite, when true, fsyncs after every page write; when
// false (the zero value) durability is deferred to explicit Flush calls.
// OpenDefault sets it true. Logger defaults to the internal/dblog package
// logger when nil.
type EngineOptions struct {
	PoolCapacity int
	SyncOnWrite  bool
	Logger       *slog.Logger
}

// EngineStats is a read-only snapshot of the engine's size and cache
// behavior, exposed for operational visibility since there is no query
// layer to surface this any other way.
type EngineStats struct {
	PageCount     uint64
	LiveDocuments int
	DirtyPages    int
	Hits          uint64
	Misses        uint64
}

// Engine is an open docbase database: a locked file, a buffer pool
// mediating every page access, and a per-engine ObjectId generator.
type Engine struct {
	file  *dbfile.File
	pool  *bufferpool.Pool
	idGen *objectid.Generator
	log   *slog.Logger
}

// Open opens the database file at path, creating it if it does not yet
// exist, and wires a buffer pool of the requested capacity over it.
func Open(path string, opts EngineOptions) (*Engine, error) {
	if opts.PoolCapacity < 1 {
		return nil, dberrors.New(dberrors.CategoryFacade, "INVALID_POOL_CAPACITY", "pool capacity must be at least 1")
	}

	f, err := dbfile.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f, err = dbfile.Create(path)
		}
		if err != nil {
			return nil, err
		}
	}
	f.SetSyncOnWrite(opts.SyncOnWrite)

	gen, err := objectid.NewGenerator()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = dblog.Get()
	}

	return &Engine{
		file:  f,
		pool:  bufferpool.New(f, opts.PoolCapacity),
		idGen: gen,
		log:   logger,
	}, nil
}

// OpenDefault opens path with SyncOnWrite enabled, covering the common
// case of the language-neutral open(path, pool_capacity) API.
func OpenDefault(path string, poolCapacity int) (*Engine, error) {
	return Open(path, EngineOptions{PoolCapacity: poolCapacity, SyncOnWrite: true})
}

// Insert serializes fields under a freshly minted ObjectId and stores the
// result, scanning existing data pages in page_id order before allocating
// a new one. Fails DocumentTooLargeForPage if the serialized length plus
// a slot entry exceeds page capacity.
func (e *Engine) Insert(fields *value.Obj) (DocumentID, error) {
	id := e.idGen.Next()
	doc, err := document.New(id, fields)
	if err != nil {
		return DocumentID{}, err
	}
	body, err := codec.SerializeDocument(doc)
	if err != nil {
		return DocumentID{}, err
	}
	return e.insertSerialized(body)
}

// insertSerialized places an already-serialized document body into the
// first data page with room, or a newly allocated one, and is the shared
// tail of both Insert and Update's grow path.
func (e *Engine) insertSerialized(body []byte) (DocumentID, error) {
	if len(body)+page.SlotSize > page.PageSize-page.HeaderSize {
		return DocumentID{}, dberrors.ErrDocumentTooLargeForPage
	}

	for pid := uint64(1); pid < e.file.PageCount(); pid++ {
		frame, err := e.pool.Pin(pid)
		if err != nil {
			return DocumentID{}, err
		}
		if frame.PageType() != page.TypeData {
			_ = e.pool.Unpin(pid, false)
			continue
		}

		slot, err := frame.InsertRecord(body)
		if err != nil {
			_ = e.pool.Unpin(pid, false)
			if errors.Is(err, dberrors.ErrNotEnoughSpace) {
				continue
			}
			return DocumentID{}, err
		}
		if err := e.pool.Unpin(pid, true); err != nil {
			// The record was written but never durably committed via a
			// dirty mark; roll its slot reservation back rather than leave
			// a live handle nobody can account for.
			_ = frame.DeleteRecord(slot)
			return DocumentID{}, err
		}
		e.log.Debug("inserted document", "page_id", pid, "slot_id", slot)
		return DocumentID{PageID: pid, SlotID: slot}, nil
	}

	newID := e.file.AllocatePage()
	frame := page.New(newID, page.TypeData)
	if err := e.pool.Put(newID, frame); err != nil {
		return DocumentID{}, err
	}
	if _, err := e.pool.Pin(newID); err != nil {
		return DocumentID{}, err
	}
	slot, err := frame.InsertRecord(body)
	if err != nil {
		_ = e.pool.Unpin(newID, false)
		return DocumentID{}, err
	}
	if err := e.pool.Unpin(newID, true); err != nil {
		_ = frame.DeleteRecord(slot)
		return DocumentID{}, err
	}
	e.log.Debug("allocated page for insert", "page_id", newID, "slot_id", slot)
	return DocumentID{PageID: newID, SlotID: slot}, nil
}

// Get fetches and deserializes the document at id. Fails
// DocumentNotFound if id's slot is tombstoned or out of range.
func (e *Engine) Get(id DocumentID) (*document.Document, error) {
	frame, err := e.pool.Get(id.PageID)
	if err != nil {
		return nil, err
	}

	body, err := frame.ReadRecord(id.SlotID)
	if err != nil {
		if errors.Is(err, dberrors.ErrSlotNotFound) || errors.Is(err, dberrors.ErrSlotOutOfRange) {
			return nil, dberrors.ErrDocumentNotFound
		}
		return nil, err
	}
	return codec.DeserializeDocument(body)
}

// Update replaces the document at id with fields, preserving its
// ObjectId. If the new serialized length fits within the old record's
// slot, the record is overwritten in place and id is unchanged. Otherwise
// the new document is inserted elsewhere first and the old record is
// deleted only once that insert has succeeded, so a mid-update failure
// never leaves neither copy in place — at worst, briefly, both do. The
// returned DocumentID may differ from id; this is the documented
// contract.
func (e *Engine) Update(id DocumentID, fields *value.Obj) (DocumentID, error) {
	frame, err := e.pool.Pin(id.PageID)
	if err != nil {
		return DocumentID{}, err
	}

	old, err := frame.ReadRecord(id.SlotID)
	if err != nil {
		_ = e.pool.Unpin(id.PageID, false)
		if errors.Is(err, dberrors.ErrSlotNotFound) || errors.Is(err, dberrors.ErrSlotOutOfRange) {
			return DocumentID{}, dberrors.ErrDocumentNotFound
		}
		return DocumentID{}, err
	}

	oldDoc, err := codec.DeserializeDocument(old)
	if err != nil {
		_ = e.pool.Unpin(id.PageID, false)
		return DocumentID{}, err
	}

	newDoc, err := document.New(oldDoc.ID, fields)
	if err != nil {
		_ = e.pool.Unpin(id.PageID, false)
		return DocumentID{}, err
	}
	body, err := codec.SerializeDocument(newDoc)
	if err != nil {
		_ = e.pool.Unpin(id.PageID, false)
		return DocumentID{}, err
	}
	if len(body)+page.SlotSize > page.PageSize-page.HeaderSize {
		_ = e.pool.Unpin(id.PageID, false)
		return DocumentID{}, dberrors.ErrDocumentTooLargeForPage
	}

	if len(body) <= len(old) {
		if err := frame.OverwriteRecord(id.SlotID, body); err != nil {
			_ = e.pool.Unpin(id.PageID, false)
			return DocumentID{}, err
		}
		if err := e.pool.Unpin(id.PageID, true); err != nil {
			return DocumentID{}, err
		}
		return id, nil
	}

	_ = e.pool.Unpin(id.PageID, false)

	newID, err := e.insertSerialized(body)
	if err != nil {
		return DocumentID{}, err
	}
	if err := e.deleteAt(id); err != nil {
		// Roll the new copy back so only the old record remains.
		_ = e.deleteAt(newID)
		return DocumentID{}, err
	}
	return newID, nil
}

// Delete tombstones the record at id. Fails DocumentNotFound if id's slot
// is already a tombstone or out of range.
func (e *Engine) Delete(id DocumentID) error {
	if err := e.deleteAt(id); err != nil {
		if errors.Is(err, dberrors.ErrSlotNotFound) || errors.Is(err, dberrors.ErrSlotOutOfRange) {
			return dberrors.ErrDocumentNotFound
		}
		return err
	}
	return nil
}

func (e *Engine) deleteAt(id DocumentID) error {
	frame, err := e.pool.Pin(id.PageID)
	if err != nil {
		return err
	}
	if err := frame.DeleteRecord(id.SlotID); err != nil {
		_ = e.pool.Unpin(id.PageID, false)
		return err
	}
	return e.pool.Unpin(id.PageID, true)
}

// Stats returns a read-only snapshot of the engine's size and buffer pool
// behavior.
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		PageCount:  e.file.PageCount(),
		DirtyPages: e.pool.DirtyCount(),
		Hits:       e.pool.Hits(),
		Misses:     e.pool.Misses(),
	}
	for pid := uint64(1); pid < e.file.PageCount(); pid++ {
		frame, err := e.pool.Get(pid)
		if err != nil {
			continue
		}
		if frame.PageType() == page.TypeData {
			stats.LiveDocuments += frame.LiveSlotCount()
		}
	}
	return stats
}

// Flush writes every dirty resident page back through the file and
// ensures it reaches stable storage.
func (e *Engine) Flush() error {
	if err := e.pool.FlushAll(); err != nil {
		return err
	}
	return e.file.Flush()
}

// Close flushes all dirty pages, releases the advisory file lock, and
// closes the underlying file handle.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		_ = e.file.Close()
		return err
	}
	return e.file.Close()
}
