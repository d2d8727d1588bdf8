package codec

import (
	"bytes"
	"encoding/binary"
	"math"
	"strconv"

	"docbase/internal/dberrors"
	"docbase/pkg/document"
	"docbase/pkg/objectid"
	"docbase/pkg/value"
)

// fieldKV is one decoded field in wire order, before the caller decides
// whether it belongs in a sorted Object or a sequential Array.
type fieldKV struct {
	key string
	val value.Value
}

type decoder struct {
	data []byte
	pos  int
}

// Deserialize parses a top-level document, producing the Object whose
// serialization is data.
func Deserialize(data []byte) (*value.Obj, error) {
	if len(data) < 5 {
		return nil, dberrors.ErrUnexpectedEndOfData
	}

	leadingLen := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	if leadingLen != len(data) {
		return nil, dberrors.ErrInvalidLength.WithDetail(
			"leading length " + strconv.Itoa(leadingLen) + " != buffer size " + strconv.Itoa(len(data)))
	}
	if leadingLen > MaxDocumentSize {
		return nil, dberrors.ErrDocumentTooLarge.WithDetail(strconv.Itoa(leadingLen) + " bytes")
	}

	d := &decoder{data: data}
	return d.readObject(1)
}

// DeserializeDocument parses data and splits out the reserved _id field as
// the Document's identity, leaving the remaining fields.
func DeserializeDocument(data []byte) (*document.Document, error) {
	fields, err := Deserialize(data)
	if err != nil {
		return nil, err
	}

	idVal, ok := fields.Get(document.IdField)
	if !ok {
		return nil, dberrors.ErrInvalidEmbeddedDocument.WithDetail("missing reserved _id field")
	}
	id, ok := idVal.AsObjectId()
	if !ok {
		return nil, dberrors.ErrInvalidEmbeddedDocument.WithDetail("_id field is not an ObjectId")
	}
	fields.Delete(document.IdField)

	return &document.Document{ID: id, Fields: fields}, nil
}

// PartialDeserialize returns only the requested top-level fields of data.
// Fields not in names are skipped by length arithmetic without being
// decoded; names not present in data are silently omitted.
func PartialDeserialize(data []byte, names []string) (*value.Obj, error) {
	if len(data) < 5 {
		return nil, dberrors.ErrUnexpectedEndOfData
	}

	leadingLen := int(int32(binary.LittleEndian.Uint32(data[0:4])))
	if leadingLen != len(data) {
		return nil, dberrors.ErrInvalidLength.WithDetail(
			"leading length " + strconv.Itoa(leadingLen) + " != buffer size " + strconv.Itoa(len(data)))
	}
	if leadingLen > MaxDocumentSize {
		return nil, dberrors.ErrDocumentTooLarge.WithDetail(strconv.Itoa(leadingLen) + " bytes")
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	d := &decoder{data: data, pos: 4}
	out := value.NewObj()

	for {
		if d.pos >= len(d.data) {
			return nil, dberrors.ErrMissingNullTerminator
		}
		if d.data[d.pos] == 0x00 {
			d.pos++
			break
		}

		typeCode := d.data[d.pos]
		d.pos++
		key, err := d.readCString()
		if err != nil {
			return nil, err
		}

		if !wanted[key] {
			if err := d.skipValue(typeCode, 1); err != nil {
				return nil, err
			}
			continue
		}

		v, err := d.readValue(typeCode, 1)
		if err != nil {
			return nil, err
		}
		out.Set(key, v)
	}

	return out, nil
}

// readDocumentBody reads the body of a nested document value (the value
// bytes of an Object or Array field: its own length prefix, fields, and
// terminator) and returns its fields in wire order.
func (d *decoder) readDocumentBody(depth int) ([]fieldKV, error) {
	if depth > MaxNestingDepth {
		return nil, dberrors.ErrMaxNestingDepthExceeded
	}

	if d.pos+4 > len(d.data) {
		return nil, dberrors.ErrUnexpectedEndOfData
	}
	bodyLen := int(int32(binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])))
	if bodyLen < 5 || d.pos+bodyLen > len(d.data) {
		return nil, dberrors.ErrInvalidLength.WithDetail("embedded document length out of range")
	}
	bodyEnd := d.pos + bodyLen
	d.pos += 4

	var fields []fieldKV
	for {
		if d.pos >= bodyEnd {
			return nil, dberrors.ErrMissingNullTerminator
		}
		if d.data[d.pos] == 0x00 {
			d.pos++
			break
		}

		typeCode := d.data[d.pos]
		d.pos++
		key, err := d.readCString()
		if err != nil {
			return nil, err
		}
		v, err := d.readValue(typeCode, depth)
		if err != nil {
			return nil, err
		}
		fields = append(fields, fieldKV{key: key, val: v})
	}

	if d.pos != bodyEnd {
		return nil, dberrors.ErrInvalidEmbeddedDocument.WithDetail("embedded document length does not match its fields")
	}

	return fields, nil
}

func (d *decoder) readObject(depth int) (*value.Obj, error) {
	fields, err := d.readDocumentBody(depth)
	if err != nil {
		return nil, err
	}
	o := value.NewObj()
	for _, f := range fields {
		o.Set(f.key, f.val)
	}
	return o, nil
}

func (d *decoder) readArray(depth int) ([]value.Value, error) {
	fields, err := d.readDocumentBody(depth)
	if err != nil {
		return nil, err
	}
	out := make([]value.Value, len(fields))
	for i, f := range fields {
		if f.key != strconv.Itoa(i) {
			return nil, dberrors.ErrInvalidEmbeddedDocument.WithDetail("array field names must be sequential decimal indices")
		}
		out[i] = f.val
	}
	return out, nil
}

func (d *decoder) readCString() (string, error) {
	end := bytes.IndexByte(d.data[d.pos:], 0x00)
	if end < 0 {
		return "", dberrors.ErrMissingNullTerminator
	}
	s := string(d.data[d.pos : d.pos+end])
	d.pos += end + 1
	return s, nil
}

func (d *decoder) readValue(typeCode byte, depth int) (value.Value, error) {
	switch typeCode {
	case typeNull:
		return value.NewNull(), nil

	case typeBool:
		if d.pos+1 > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		b := d.data[d.pos]
		d.pos++
		return value.NewBool(b != 0), nil

	case typeI32:
		if d.pos+4 > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		i := int32(binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4]))
		d.pos += 4
		return value.NewI32(i), nil

	case typeI64:
		if d.pos+8 > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		i := int64(binary.LittleEndian.Uint64(d.data[d.pos : d.pos+8]))
		d.pos += 8
		return value.NewI64(i), nil

	case typeF64:
		if d.pos+8 > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		bits := binary.LittleEndian.Uint64(d.data[d.pos : d.pos+8])
		d.pos += 8
		return value.NewF64(math.Float64frombits(bits)), nil

	case typeDateTime:
		if d.pos+8 > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		millis := int64(binary.LittleEndian.Uint64(d.data[d.pos : d.pos+8]))
		d.pos += 8
		return value.NewDateTime(millis), nil

	case typeObjectId:
		if d.pos+objectid.Size > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		id, err := objectid.FromBytes(d.data[d.pos : d.pos+objectid.Size])
		if err != nil {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		d.pos += objectid.Size
		return value.NewObjectId(id), nil

	case typeString:
		if d.pos+4 > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		length := int(int32(binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])))
		if length <= 0 {
			return value.Value{}, dberrors.ErrInvalidStringLength
		}
		d.pos += 4
		if d.pos+length > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		if d.data[d.pos+length-1] != 0x00 {
			return value.Value{}, dberrors.ErrMissingNullTerminator
		}
		s := string(d.data[d.pos : d.pos+length-1])
		d.pos += length
		v, err := value.NewString(s)
		if err != nil {
			return value.Value{}, err
		}
		return v, nil

	case typeBinary:
		if d.pos+4 > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		length := int(int32(binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])))
		if length < 0 {
			return value.Value{}, dberrors.ErrInvalidBinaryLength
		}
		d.pos += 4
		if d.pos+1+length > len(d.data) {
			return value.Value{}, dberrors.ErrUnexpectedEndOfData
		}
		subtype := d.data[d.pos]
		d.pos++
		data := d.data[d.pos : d.pos+length]
		d.pos += length
		return value.NewBinary(subtype, data), nil

	case typeObject:
		o, err := d.readObject(depth + 1)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewObject(o), nil

	case typeArray:
		arr, err := d.readArray(depth + 1)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewArray(arr), nil

	default:
		return value.Value{}, dberrors.ErrInvalidType.WithDetail("type code " + strconv.Itoa(int(typeCode)))
	}
}

// skipValue advances past a value without allocating or decoding it,
// following the same length arithmetic readValue uses.
func (d *decoder) skipValue(typeCode byte, depth int) error {
	switch typeCode {
	case typeNull:
		return nil
	case typeBool:
		return d.skip(1)
	case typeI32:
		return d.skip(4)
	case typeI64, typeDateTime, typeF64:
		return d.skip(8)
	case typeObjectId:
		return d.skip(objectid.Size)
	case typeString:
		if d.pos+4 > len(d.data) {
			return dberrors.ErrUnexpectedEndOfData
		}
		length := int(int32(binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])))
		if length <= 0 {
			return dberrors.ErrInvalidStringLength
		}
		return d.skip(4 + length)
	case typeBinary:
		if d.pos+4 > len(d.data) {
			return dberrors.ErrUnexpectedEndOfData
		}
		length := int(int32(binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])))
		if length < 0 {
			return dberrors.ErrInvalidBinaryLength
		}
		return d.skip(4 + 1 + length)
	case typeObject, typeArray:
		if depth+1 > MaxNestingDepth {
			return dberrors.ErrMaxNestingDepthExceeded
		}
		if d.pos+4 > len(d.data) {
			return dberrors.ErrUnexpectedEndOfData
		}
		bodyLen := int(int32(binary.LittleEndian.Uint32(d.data[d.pos : d.pos+4])))
		if bodyLen < 5 {
			return dberrors.ErrInvalidLength
		}
		return d.skip(bodyLen)
	default:
		return dberrors.ErrInvalidType.WithDetail("type code " + strconv.Itoa(int(typeCode)))
	}
}

func (d *decoder) skip(n int) error {
	if d.pos+n > len(d.data) {
		return dberrors.ErrUnexpectedEndOfData
	}
	d.pos += n
	return nil
}
