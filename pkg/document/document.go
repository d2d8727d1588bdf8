// Package document defines the in-memory Document: an ObjectId paired with
// an ordered field tree, the unit the engine inserts, fetches, updates, and
// deletes.
package document

import (
	"docbase/pkg/objectid"
	"docbase/pkg/value"
)

// IdField is the reserved field name the codec uses to carry a Document's
// id inside its serialized Object body. It is not a regular field: Fields
// must not itself contain this key, and New rejects a caller-supplied one
// rather than silently shadowing it.
const IdField = "_id"

// Document is one stored record: an identity distinct from its fields, plus
// the field tree itself.
type Document struct {
	ID     objectid.ObjectId
	Fields *value.Obj
}

// New builds a Document from an id and a field tree. If fields is nil, an
// empty Obj is used. Returns an error if fields already contains the
// reserved _id key, since that would collide with where the codec writes
// the id on the wire.
func New(id objectid.ObjectId, fields *value.Obj) (*Document, error) {
	if fields == nil {
		fields = value.NewObj()
	}
	if _, exists := fields.Get(IdField); exists {
		return nil, &reservedFieldError{field: IdField}
	}
	return &Document{ID: id, Fields: fields}, nil
}

// reservedFieldError reports an attempt to set a field name the engine
// reserves for its own bookkeeping.
type reservedFieldError struct {
	field string
}

func (e *reservedFieldError) Error() string {
	return "document: field \"" + e.field + "\" is reserved"
}

// Get returns the value at key in d's field tree.
func (d *Document) Get(key string) (value.Value, bool) {
	return d.Fields.Get(key)
}

// Set assigns key to v in d's field tree. Setting the reserved _id key is a
// no-op from the caller's perspective: it is ignored, since a Document's id
// is fixed at construction and only the codec writes _id on the wire.
func (d *Document) Set(key string, v value.Value) {
	if key == IdField {
		return
	}
	d.Fields.Set(key, v)
}

// Equals reports whether d and other have the same id and structurally
// equal field trees.
func (d *Document) Equals(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.ID == other.ID && d.Fields.Equals(other.Fields)
}
