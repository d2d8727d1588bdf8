// Package value implements the closed algebraic Value type the document
// model is built from: a tagged union over Null, Bool, I32, I64, F64,
// String, Binary, ObjectId, DateTime, Array, and Object, exactly the
// variant set the codec's grammar encodes.
package value

import (
	"unicode/utf8"

	"docbase/internal/dberrors"
	"docbase/pkg/objectid"
)

// Kind tags which variant a Value holds. The set is closed; every
// operation on Value is expected to switch exhaustively over Kind.
type Kind uint8

const (
	Null Kind = iota
	Bool
	I32
	I64
	F64
	String
	Binary
	ObjectId
	DateTime
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "Null"
	case Bool:
		return "Bool"
	case I32:
		return "I32"
	case I64:
		return "I64"
	case F64:
		return "F64"
	case String:
		return "String"
	case Binary:
		return "Binary"
	case ObjectId:
		return "ObjectId"
	case DateTime:
		return "DateTime"
	case Array:
		return "Array"
	case Object:
		return "Object"
	default:
		return "Unknown"
	}
}

// Value is a single node of a document tree. The zero Value is Null.
type Value struct {
	kind Kind

	b   bool
	i32 int32
	i64 int64
	f64 float64
	str string

	bin        []byte
	binSubtype byte

	oid objectid.ObjectId

	arr []Value
	obj *Obj
}

// Kind returns which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// NewNull returns the Null value.
func NewNull() Value { return Value{kind: Null} }

// NewBool wraps a bool.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewI32 wraps a 32-bit signed integer.
func NewI32(i int32) Value { return Value{kind: I32, i32: i} }

// NewI64 wraps a 64-bit signed integer.
func NewI64(i int64) Value { return Value{kind: I64, i64: i} }

// NewF64 wraps a 64-bit float.
func NewF64(f float64) Value { return Value{kind: F64, f64: f} }

// NewString wraps a UTF-8 string. Returns an error if s is not valid
// UTF-8.
func NewString(s string) (Value, error) {
	if !utf8.ValidString(s) {
		return Value{}, dberrors.ErrInvalidUtf8
	}
	return Value{kind: String, str: s}, nil
}

// MustString is NewString without the error return, for literals known
// to be valid UTF-8 at compile time (tests, constants).
func MustString(s string) Value {
	v, err := NewString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// NewBinary wraps an opaque byte sequence tagged with a subtype byte,
// mirroring the wire format's `len(i32) subtype(u8) bytes` layout.
func NewBinary(subtype byte, data []byte) Value {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Value{kind: Binary, bin: cp, binSubtype: subtype}
}

// NewObjectId wraps an ObjectId.
func NewObjectId(id objectid.ObjectId) Value {
	return Value{kind: ObjectId, oid: id}
}

// NewDateTime wraps a millisecond-since-epoch timestamp.
func NewDateTime(millis int64) Value {
	return Value{kind: DateTime, i64: millis}
}

// NewArray wraps an ordered sequence of Values.
func NewArray(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: Array, arr: cp}
}

// NewObject wraps an Obj (ordered string-keyed map).
func NewObject(o *Obj) Value {
	if o == nil {
		o = NewObj()
	}
	return Value{kind: Object, obj: o}
}

// AsBool returns the Bool payload and whether v holds a Bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == Bool }

// AsI32 returns the I32 payload and whether v holds an I32.
func (v Value) AsI32() (int32, bool) { return v.i32, v.kind == I32 }

// AsI64 returns the I64 payload and whether v holds an I64.
func (v Value) AsI64() (int64, bool) { return v.i64, v.kind == I64 }

// AsF64 returns the F64 payload and whether v holds an F64.
func (v Value) AsF64() (float64, bool) { return v.f64, v.kind == F64 }

// AsString returns the String payload and whether v holds a String.
func (v Value) AsString() (string, bool) { return v.str, v.kind == String }

// AsBinary returns the Binary payload and subtype, and whether v holds
// Binary.
func (v Value) AsBinary() ([]byte, byte, bool) { return v.bin, v.binSubtype, v.kind == Binary }

// AsObjectId returns the ObjectId payload and whether v holds one.
func (v Value) AsObjectId() (objectid.ObjectId, bool) { return v.oid, v.kind == ObjectId }

// AsDateTime returns the millisecond-since-epoch payload and whether v
// holds a DateTime.
func (v Value) AsDateTime() (int64, bool) { return v.i64, v.kind == DateTime }

// AsArray returns the element slice and whether v holds an Array. The
// returned slice aliases v's internal storage and must not be mutated.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == Array }

// AsObject returns the Obj payload and whether v holds an Object.
func (v Value) AsObject() (*Obj, bool) { return v.obj, v.kind == Object }
