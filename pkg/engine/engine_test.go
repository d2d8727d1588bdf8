package engine

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"docbase/internal/dberrors"
	"docbase/pkg/value"
)

func openTestEngine(t *testing.T, capacity int) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := OpenDefault(path, capacity)
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func sampleFields() *value.Obj {
	fields := value.NewObj()
	fields.Set("name", value.MustString("Alice"))
	fields.Set("age", value.NewI32(28))
	fields.Set("active", value.NewBool(true))
	fields.Set("balance", value.NewF64(1250.75))
	return fields
}

// TestInsertGetRoundTrip checks that three inserts of the same
// document shape land in page 1 and each round-trips through Get.
func TestInsertGetRoundTrip(t *testing.T) {
	e := openTestEngine(t, 4)

	var ids []DocumentID
	for i := 0; i < 3; i++ {
		id, err := e.Insert(sampleFields())
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if id.PageID != 1 {
			t.Errorf("Insert() landed on page %d, want 1", id.PageID)
		}
		ids = append(ids, id)
	}

	for _, id := range ids {
		doc, err := e.Get(id)
		if err != nil {
			t.Fatalf("Get(%+v) error = %v", id, err)
		}
		name, _ := doc.Get("name")
		if s, _ := name.AsString(); s != "Alice" {
			t.Errorf("Get(%+v).name = %q, want Alice", id, s)
		}
	}
}

func TestGetMissingDocumentFails(t *testing.T) {
	e := openTestEngine(t, 4)

	id, err := e.Insert(sampleFields())
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := e.Delete(id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := e.Get(id); !errors.Is(err, dberrors.ErrDocumentNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrDocumentNotFound", err)
	}
}

func TestUpdateInPlaceKeepsSameId(t *testing.T) {
	e := openTestEngine(t, 4)

	id, err := e.Insert(sampleFields())
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	original, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	shorter := value.NewObj()
	shorter.Set("name", value.MustString("Al"))
	newID, err := e.Update(id, shorter)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if newID != id {
		t.Errorf("Update() with a shorter document returned %+v, want unchanged %+v", newID, id)
	}

	doc, err := e.Get(newID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if name, _ := doc.Get("name"); mustStr(name) != "Al" {
		t.Errorf("Get() after Update() name = %q, want Al", mustStr(name))
	}
	if doc.ID != original.ID {
		t.Error("Update() changed the document's ObjectId on an in-place overwrite")
	}
}

func TestUpdateGrowRelocates(t *testing.T) {
	e := openTestEngine(t, 4)

	small := value.NewObj()
	small.Set("name", value.MustString("x"))
	id, err := e.Insert(small)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	originalDoc, err := e.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	bigger := value.NewObj()
	bigger.Set("name", value.MustString("a very much longer name than before, by design"))
	newID, err := e.Update(id, bigger)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if newID == id {
		t.Fatal("Update() with a grown document did not relocate; test payload sizing assumption is wrong")
	}

	// The old slot must no longer resolve.
	if _, err := e.Get(id); err == nil {
		t.Error("old DocumentID still resolves after a relocating Update()")
	}

	doc, err := e.Get(newID)
	if err != nil {
		t.Fatalf("Get(newID) error = %v", err)
	}
	if doc.ID != originalDoc.ID {
		t.Error("Update() changed the document's ObjectId; identity must be preserved")
	}
}

func TestInsertOversizeDocumentFails(t *testing.T) {
	e := openTestEngine(t, 4)

	fields := value.NewObj()
	fields.Set("blob", value.NewBinary(0, make([]byte, 9000)))
	if _, err := e.Insert(fields); !errors.Is(err, dberrors.ErrDocumentTooLargeForPage) {
		t.Errorf("Insert() of an over-page-size document error = %v, want ErrDocumentTooLargeForPage", err)
	}
}

func TestInsertAllocatesNewPageWhenFull(t *testing.T) {
	e := openTestEngine(t, 8)

	// A ~1KB payload per document packs roughly 7-8 per page; force a
	// second page allocation well before exhausting the pool.
	payload := make([]byte, 1000)
	sawSecondPage := false
	for i := 0; i < 20; i++ {
		fields := value.NewObj()
		fields.Set("blob", value.NewBinary(0, payload))
		fields.Set("i", value.NewI32(int32(i)))
		id, err := e.Insert(fields)
		if err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
		if id.PageID > 1 {
			sawSecondPage = true
		}
	}
	if !sawSecondPage {
		t.Error("Insert() never allocated a second page despite exceeding one page's capacity")
	}
}

// TestScanAfterDelete checks that a scan skips deleted documents.
func TestScanAfterDelete(t *testing.T) {
	e := openTestEngine(t, 4)

	var ids []DocumentID
	for i := 0; i < 5; i++ {
		fields := value.NewObj()
		fields.Set("i", value.NewI32(int32(i)))
		id, err := e.Insert(fields)
		if err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
		ids = append(ids, id)
	}

	if err := e.Delete(ids[1]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := e.Delete(ids[3]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	cursor := e.Scan()
	defer cursor.Close()

	seen := map[int32]bool{}
	count := 0
	for {
		doc, _, ok, err := cursor.Next()
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if !ok {
			break
		}
		count++
		v, _ := doc.Get("i")
		i, _ := v.AsI32()
		seen[i] = true
	}

	if count != 3 {
		t.Errorf("Scan() yielded %d documents, want 3", count)
	}
	for _, want := range []int32{0, 2, 4} {
		if !seen[want] {
			t.Errorf("Scan() missing document with i=%d", want)
		}
	}
	if seen[1] || seen[3] {
		t.Error("Scan() yielded a deleted document")
	}

	// A scan driven to exhaustion leaves no page pinned.
	cleared, err := e.pool.Clear()
	if err != nil {
		t.Fatalf("pool.Clear() error = %v", err)
	}
	if cleared.Retained != 0 {
		t.Errorf("pool.Clear() retained %d pinned pages after the scan, want 0", cleared.Retained)
	}
}

// TestReopenMidFile closes and reopens the file with a pool capacity
// smaller than the page count, forcing eviction during Get.
func TestReopenMidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := OpenDefault(path, 8)
	if err != nil {
		t.Fatalf("OpenDefault() error = %v", err)
	}

	payload := make([]byte, 1000)
	var ids []DocumentID
	for i := 0; i < 20; i++ {
		fields := value.NewObj()
		fields.Set("blob", value.NewBinary(0, payload))
		fields.Set("i", value.NewI32(int32(i)))
		id, err := e.Insert(fields)
		if err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
		ids = append(ids, id)
	}
	pagesUsed := e.Stats().PageCount
	if pagesUsed < 4 {
		t.Fatalf("test setup did not span multiple pages: PageCount = %d", pagesUsed)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := OpenDefault(path, 2)
	if err != nil {
		t.Fatalf("OpenDefault() on reopen error = %v", err)
	}
	defer reopened.Close()

	for i, id := range ids {
		doc, err := reopened.Get(id)
		if err != nil {
			t.Fatalf("Get(%d) after reopen error = %v", i, err)
		}
		v, _ := doc.Get("i")
		got, _ := v.AsI32()
		if got != int32(i) {
			t.Errorf("Get(%d) after reopen i = %d, want %d", i, got, i)
		}
	}
}

func TestStatsReportsLiveDocumentsAndPoolCounters(t *testing.T) {
	e := openTestEngine(t, 4)

	for i := 0; i < 3; i++ {
		fields := value.NewObj()
		fields.Set("i", value.NewI32(int32(i)))
		if _, err := e.Insert(fields); err != nil {
			t.Fatalf("Insert(%d) error = %v", i, err)
		}
	}

	stats := e.Stats()
	if stats.LiveDocuments != 3 {
		t.Errorf("Stats().LiveDocuments = %d, want 3", stats.LiveDocuments)
	}
	if stats.PageCount < 2 {
		t.Errorf("Stats().PageCount = %d, want at least 2 (header + one data page)", stats.PageCount)
	}
}

func mustStr(v value.Value) string {
	s, _ := v.AsString()
	return s
}

func TestInsertRejectsBadFieldName(t *testing.T) {
	e := openTestEngine(t, 4)
	fields := value.NewObj()
	fields.Set("bad"+strconv.Itoa(0)+"\x00key", value.NewI32(1))
	if _, err := e.Insert(fields); !errors.Is(err, dberrors.ErrInvalidFieldName) {
		t.Errorf("Insert() with an embedded NUL field name error = %v, want ErrInvalidFieldName", err)
	}
}
