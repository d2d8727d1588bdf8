// Package codec implements the binary document format documents are
// persisted in: a length-prefixed, self-describing encoding closely
// modeled on BSON.
//
// Grammar:
//
//	document  := len(i32 LE) field* 0x00
//	field     := type(u8) cstring value
//	value     := (depends on type, see table)
//	cstring   := UTF-8 bytes ... 0x00
//	string    := len(i32 LE, includes trailing NUL) UTF-8 bytes NUL
//
// Type codes and value encodings:
//
//	0x01  F64       8 LE IEEE-754
//	0x02  String    string
//	0x03  Object    embedded document
//	0x04  Array     embedded document, field names are the decimal-string
//	               indices "0","1",… in wire order, not sorted order
//	0x05  Binary    len(i32 LE) subtype(u8) bytes
//	0x07  ObjectId  12 bytes
//	0x08  Bool      0x00 / 0x01
//	0x09  DateTime  8 LE i64 (milliseconds)
//	0x0A  Null      —
//	0x10  I32       4 LE
//	0x12  I64       8 LE
//
// The leading len counts every byte of the document, including itself and
// the trailing NUL. Object field order on the wire is always sorted key
// order; Array field order is always sequential index order, since an
// Obj's keys sort lexicographically and would otherwise scramble an array
// of 10 or more elements ("10" sorts before "2").
package codec

import "docbase/pkg/value"

const (
	typeF64      byte = 0x01
	typeString   byte = 0x02
	typeObject   byte = 0x03
	typeArray    byte = 0x04
	typeBinary   byte = 0x05
	typeObjectId byte = 0x07
	typeBool     byte = 0x08
	typeDateTime byte = 0x09
	typeNull     byte = 0x0A
	typeI32      byte = 0x10
	typeI64      byte = 0x12
)

// MaxDocumentSize is the largest serialized document the codec accepts, in
// bytes, including the length prefix and terminator.
const MaxDocumentSize = 16 * 1024 * 1024

// MaxNestingDepth is the deepest an Object or Array may nest. A flat
// document (no nested Object/Array values) is at depth 1.
const MaxNestingDepth = 100

func kindToTypeCode(k value.Kind) (byte, bool) {
	switch k {
	case value.F64:
		return typeF64, true
	case value.String:
		return typeString, true
	case value.Object:
		return typeObject, true
	case value.Array:
		return typeArray, true
	case value.Binary:
		return typeBinary, true
	case value.ObjectId:
		return typeObjectId, true
	case value.Bool:
		return typeBool, true
	case value.DateTime:
		return typeDateTime, true
	case value.Null:
		return typeNull, true
	case value.I32:
		return typeI32, true
	case value.I64:
		return typeI64, true
	default:
		return 0, false
	}
}
