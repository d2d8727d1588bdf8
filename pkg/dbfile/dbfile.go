// Package dbfile implements the single regular file a docbase engine
// persists to: a 128-byte header held in page 0, followed by 8192-byte
// data pages, with an exclusive OS-level advisory lock held for the
// lifetime of an open file.
package dbfile

import (
	"encoding/binary"
	"fmt"
	"os"

	"docbase/internal/dberrors"
	"docbase/pkg/page"

	"golang.org/x/sys/unix"
)

// HeaderSize is the size, in bytes, of the file header occupying page 0.
const HeaderSize = 128

// Magic identifies a docbase database file.
var Magic = [8]byte{'R', 'D', 'B', 'E', 0x00, 0x01, 0x00, 0x00}

// CurrentVersion is the file format version this package writes and the
// highest version it reads.
const CurrentVersion = 1

const (
	offMagic     = 0
	offVersion   = 8
	offPageSize  = 12
	offPageCount = 16
	offFlags     = 24
)

// header is the in-memory form of the 128-byte file header.
type header struct {
	magic     [8]byte
	version   uint32
	pageSize  uint32
	pageCount uint64
	flags     uint64
}

func (h *header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[offMagic:], h.magic[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], h.version)
	binary.LittleEndian.PutUint32(buf[offPageSize:], h.pageSize)
	binary.LittleEndian.PutUint64(buf[offPageCount:], h.pageCount)
	binary.LittleEndian.PutUint64(buf[offFlags:], h.flags)
	return buf
}

func decodeHeader(buf []byte) (*header, error) {
	if len(buf) < HeaderSize {
		return nil, dberrors.ErrCorrupt.WithDetail("header buffer too short")
	}
	h := &header{
		version:   binary.LittleEndian.Uint32(buf[offVersion:]),
		pageSize:  binary.LittleEndian.Uint32(buf[offPageSize:]),
		pageCount: binary.LittleEndian.Uint64(buf[offPageCount:]),
		flags:     binary.LittleEndian.Uint64(buf[offFlags:]),
	}
	copy(h.magic[:], buf[offMagic:offMagic+8])
	if h.magic != Magic {
		return nil, dberrors.ErrCorrupt.WithDetail("bad magic")
	}
	if h.pageSize != page.PageSize {
		return nil, dberrors.ErrCorrupt.WithDetail(fmt.Sprintf("page size %d, want %d", h.pageSize, page.PageSize))
	}
	if h.version > CurrentVersion {
		return nil, dberrors.ErrIncompatibleVersion.WithDetail(fmt.Sprintf("file version %d, engine supports up to %d", h.version, CurrentVersion))
	}
	return h, nil
}

// File is an open docbase database file. Page 0 holds the header; data
// pages are numbered from 1, so byte_offset(page_id) = page_id * PageSize
// is the single formula used for every page, header page included.
type File struct {
	path        string
	osFile      *os.File
	header      *header
	syncOnWrite bool
}

// Create initializes a new database file at path with a valid header and
// zero data pages. Fails if a file already exists at path.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, dberrors.Wrap(err, "IO_ERROR", "Create", "dbfile")
	}

	if err := lock(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}

	h := &header{magic: Magic, version: CurrentVersion, pageSize: page.PageSize, pageCount: 1}
	page0 := make([]byte, page.PageSize)
	copy(page0, h.encode())
	if _, err := f.WriteAt(page0, 0); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, dberrors.Wrap(err, "IO_ERROR", "Create", "dbfile")
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, dberrors.Wrap(err, "IO_ERROR", "Create", "dbfile")
	}

	return &File{path: path, osFile: f, header: h, syncOnWrite: true}, nil
}

// Open opens an existing database file at path, taking an exclusive
// advisory lock and validating its header.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, dberrors.Wrap(err, "IO_ERROR", "Open", "dbfile")
	}

	if err := lock(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	buf := make([]byte, page.PageSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		_ = f.Close()
		return nil, dberrors.Wrap(err, "IO_ERROR", "Open", "dbfile")
	}
	h, err := decodeHeader(buf)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &File{path: path, osFile: f, header: h, syncOnWrite: true}, nil
}

// lock takes an exclusive, non-blocking advisory lock on f, failing fast
// with ErrDatabaseLocked if another process already holds one.
func lock(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return dberrors.ErrDatabaseLocked.WithDetail(err.Error())
	}
	return nil
}

func unlock(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// PageCount returns the number of pages currently in the file, including
// the header page.
func (f *File) PageCount() uint64 {
	return f.header.pageCount
}

// AllocatePage bumps the file's page count and returns the new page's id.
// The caller is responsible for initializing the page's contents via
// page.New and writing it back with WritePage.
func (f *File) AllocatePage() uint64 {
	id := f.header.pageCount
	f.header.pageCount++
	return id
}

func byteOffset(pageID uint64) int64 {
	return int64(pageID) * int64(page.PageSize)
}

// ReadPage reads the page at pageID, page-aligned, verifying its checksum.
func (f *File) ReadPage(pageID uint64) (*page.Page, error) {
	buf := make([]byte, page.PageSize)
	if _, err := f.osFile.ReadAt(buf, byteOffset(pageID)); err != nil {
		return nil, dberrors.Wrap(err, "IO_ERROR", "ReadPage", "dbfile")
	}
	return page.FromBytes(buf)
}

// SetSyncOnWrite controls whether WritePage fsyncs immediately after every
// write. Both Create and Open default this to true; an engine opened with
// EngineOptions.SyncOnWrite: false turns it off here, trading
// durability-per-write for throughput and deferring fsync to explicit
// Flush calls.
func (f *File) SetSyncOnWrite(sync bool) {
	f.syncOnWrite = sync
}

// WritePage recomputes p's checksum and writes it back at pageID,
// page-aligned, fsyncing immediately unless SetSyncOnWrite(false) was
// called.
func (f *File) WritePage(pageID uint64, p *page.Page) error {
	p.RecomputeChecksum()
	if _, err := f.osFile.WriteAt(p.Bytes(), byteOffset(pageID)); err != nil {
		return dberrors.Wrap(err, "IO_ERROR", "WritePage", "dbfile")
	}
	if f.syncOnWrite {
		if err := f.osFile.Sync(); err != nil {
			return dberrors.Wrap(err, "IO_ERROR", "WritePage", "dbfile")
		}
	}
	return nil
}

// Flush persists the current header and ensures all previously written
// pages reach stable storage.
func (f *File) Flush() error {
	page0 := make([]byte, page.PageSize)
	copy(page0, f.header.encode())
	if _, err := f.osFile.WriteAt(page0, 0); err != nil {
		return dberrors.Wrap(err, "IO_ERROR", "Flush", "dbfile")
	}
	if err := f.osFile.Sync(); err != nil {
		return dberrors.Wrap(err, "IO_ERROR", "Flush", "dbfile")
	}
	return nil
}

// Close flushes the header, releases the advisory lock, and closes the
// underlying file handle.
func (f *File) Close() error {
	if err := f.Flush(); err != nil {
		return err
	}
	unlock(f.osFile)
	return f.osFile.Close()
}
