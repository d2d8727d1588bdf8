package dbfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"docbase/internal/dberrors"
	"docbase/pkg/page"
)

func TestCreateThenOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if got, want := f.PageCount(), uint64(1); got != want {
		t.Errorf("PageCount() = %d, want %d", got, want)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reopened.Close()

	if got, want := reopened.PageCount(), uint64(1); got != want {
		t.Errorf("PageCount() after reopen = %d, want %d", got, want)
	}
}

func TestOpenFailsWhenAlreadyLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	if _, err := Open(path); !errors.Is(err, dberrors.ErrDatabaseLocked) {
		t.Errorf("Open() on an already-locked file error = %v, want ErrDatabaseLocked", err)
	}
}

func TestAllocateReadWritePage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	id := f.AllocatePage()
	if id != 1 {
		t.Errorf("AllocatePage() = %d, want 1 (page 0 reserved for the header)", id)
	}
	if got, want := f.PageCount(), uint64(2); got != want {
		t.Errorf("PageCount() after allocate = %d, want %d", got, want)
	}

	p := page.New(id, page.TypeData)
	if _, err := p.InsertRecord([]byte("hello")); err != nil {
		t.Fatalf("InsertRecord() error = %v", err)
	}
	if err := f.WritePage(id, p); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	reloaded, err := f.ReadPage(id)
	if err != nil {
		t.Fatalf("ReadPage() error = %v", err)
	}
	got, err := reloaded.ReadRecord(0)
	if err != nil {
		t.Fatalf("ReadRecord() error = %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("ReadRecord() = %q, want %q", got, "hello")
	}
}

func TestReadPageChecksumMismatchFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer f.Close()

	id := f.AllocatePage()
	p := page.New(id, page.TypeData)
	if err := f.WritePage(id, p); err != nil {
		t.Fatalf("WritePage() error = %v", err)
	}

	corrupt := make([]byte, page.PageSize)
	copy(corrupt, p.Bytes())
	corrupt[page.HeaderSize] ^= 0xFF
	if _, err := f.osFile.WriteAt(corrupt, byteOffset(id)); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}

	if _, err := f.ReadPage(id); !errors.Is(err, dberrors.ErrChecksumMismatch) {
		t.Errorf("ReadPage() on corrupted page error = %v, want ErrChecksumMismatch", err)
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	raw, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if _, err := raw.WriteAt([]byte{'X'}, offMagic); err != nil {
		t.Fatalf("WriteAt() error = %v", err)
	}
	if err := raw.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := Open(path); !errors.Is(err, dberrors.ErrCorrupt) {
		t.Errorf("Open() on a bad-magic file error = %v, want ErrCorrupt", err)
	}
}
