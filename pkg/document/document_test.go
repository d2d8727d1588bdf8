package document

import (
	"testing"

	"docbase/pkg/objectid"
	"docbase/pkg/value"
)

func newTestId(t *testing.T) objectid.ObjectId {
	t.Helper()
	g, err := objectid.NewGenerator()
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	return g.Next()
}

func TestNewRejectsReservedIdField(t *testing.T) {
	id := newTestId(t)
	fields := value.NewObj()
	fields.Set(IdField, value.NewI32(1))

	if _, err := New(id, fields); err == nil {
		t.Error("New() with a pre-set _id field expected an error, got nil")
	}
}

func TestNewWithNilFieldsYieldsEmptyObj(t *testing.T) {
	id := newTestId(t)
	doc, err := New(id, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if doc.Fields == nil || doc.Fields.Len() != 0 {
		t.Errorf("Fields = %v, want empty non-nil Obj", doc.Fields)
	}
}

func TestSetIgnoresReservedIdField(t *testing.T) {
	id := newTestId(t)
	doc, err := New(id, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	doc.Set(IdField, value.NewI32(42))

	if _, exists := doc.Fields.Get(IdField); exists {
		t.Error("Set(_id, ...) should be a no-op, but _id was set in Fields")
	}
}

func TestEqualsComparesIdAndFields(t *testing.T) {
	id := newTestId(t)

	f1 := value.NewObj()
	f1.Set("name", value.MustString("a"))
	d1, _ := New(id, f1)

	f2 := value.NewObj()
	f2.Set("name", value.MustString("a"))
	d2, _ := New(id, f2)

	if !d1.Equals(d2) {
		t.Error("Equals() = false for documents with same id and equal fields")
	}

	otherId := newTestId(t)
	f3 := value.NewObj()
	f3.Set("name", value.MustString("a"))
	d3, _ := New(otherId, f3)

	if id != otherId && d1.Equals(d3) {
		t.Error("Equals() = true for documents with different ids")
	}
}
