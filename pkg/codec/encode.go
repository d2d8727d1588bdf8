package codec

import (
	"encoding/binary"
	"io"
	"math"
	"strconv"
	"strings"

	"docbase/internal/dberrors"
	"docbase/pkg/document"
	"docbase/pkg/value"
)

// Serialize encodes o as a top-level document: a sorted-key field list
// bounded by a length prefix and a NUL terminator. Field order is o's
// sorted key order.
func Serialize(o *value.Obj) ([]byte, error) {
	size, err := sizeOfObject(o, 1)
	if err != nil {
		return nil, err
	}
	if size > MaxDocumentSize {
		return nil, dberrors.ErrDocumentTooLarge.WithDetail(strconv.Itoa(size) + " bytes")
	}

	buf := make([]byte, 0, size)
	w := &sliceWriter{buf: buf}
	if err := writeObject(w, o, 1); err != nil {
		return nil, err
	}
	return w.buf, nil
}

// SerializeDocument encodes d by merging its id into its field tree under
// the reserved _id key and serializing the result, per the engine's
// convention of carrying a document's identity inside the wire body.
func SerializeDocument(d *document.Document) ([]byte, error) {
	merged := value.NewObj()
	d.Fields.Range(func(k string, v value.Value) bool {
		merged.Set(k, v)
		return true
	})
	merged.Set(document.IdField, value.NewObjectId(d.ID))
	return Serialize(merged)
}

// StreamingEncoder writes a document's wire bytes to an underlying
// io.Writer, invoking an optional progress callback after each write with
// (bytes_written, total_expected). The callback is purely observational:
// it never influences the bytes produced.
type StreamingEncoder struct {
	w          io.Writer
	onProgress func(written, total int)
}

// NewStreamingEncoder creates a StreamingEncoder writing to w. onProgress
// may be nil.
func NewStreamingEncoder(w io.Writer, onProgress func(written, total int)) *StreamingEncoder {
	return &StreamingEncoder{w: w, onProgress: onProgress}
}

// Encode writes o's document bytes to the encoder's writer.
func (e *StreamingEncoder) Encode(o *value.Obj) error {
	total, err := sizeOfObject(o, 1)
	if err != nil {
		return err
	}
	if total > MaxDocumentSize {
		return dberrors.ErrDocumentTooLarge.WithDetail(strconv.Itoa(total) + " bytes")
	}

	cw := &countingWriter{w: e.w, total: total, onProgress: e.onProgress}
	return writeObject(cw, o, 1)
}

// byteWriter is the minimal surface writeObject/writeField need; both a
// plain in-memory buffer and a progress-reporting io.Writer satisfy it.
type byteWriter interface {
	WriteByte(b byte) error
	Write(p []byte) (int, error)
}

// sliceWriter accumulates into an in-memory byte slice, used by Serialize
// where no progress reporting is needed.
type sliceWriter struct {
	buf []byte
}

func (w *sliceWriter) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// countingWriter wraps an io.Writer, tracking cumulative bytes written and
// invoking onProgress after every write.
type countingWriter struct {
	w          io.Writer
	written    int
	total      int
	onProgress func(written, total int)
}

func (w *countingWriter) WriteByte(b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written += n
	if w.onProgress != nil {
		w.onProgress(w.written, w.total)
	}
	return n, err
}

func writeObject(w byteWriter, o *value.Obj, depth int) error {
	if depth > MaxNestingDepth {
		return dberrors.ErrMaxNestingDepthExceeded
	}

	size, err := sizeOfObject(o, depth)
	if err != nil {
		return err
	}
	if err := writeLenPrefix(w, size); err != nil {
		return err
	}

	var writeErr error
	o.Range(func(k string, v value.Value) bool {
		writeErr = writeField(w, k, v, depth)
		return writeErr == nil
	})
	if writeErr != nil {
		return writeErr
	}

	return w.WriteByte(0x00)
}

func writeArrayBody(w byteWriter, arr []value.Value, depth int) error {
	if depth > MaxNestingDepth {
		return dberrors.ErrMaxNestingDepthExceeded
	}

	size, err := sizeOfArrayBody(arr, depth)
	if err != nil {
		return err
	}
	if err := writeLenPrefix(w, size); err != nil {
		return err
	}

	for i, v := range arr {
		if err := writeField(w, strconv.Itoa(i), v, depth); err != nil {
			return err
		}
	}

	return w.WriteByte(0x00)
}

func writeLenPrefix(w byteWriter, size int) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(size))
	_, err := w.Write(b[:])
	return err
}

func writeField(w byteWriter, key string, v value.Value, depth int) error {
	if strings.ContainsRune(key, 0) {
		return dberrors.ErrInvalidFieldName.WithDetail(key)
	}

	code, ok := kindToTypeCode(v.Kind())
	if !ok {
		return dberrors.ErrInvalidType.WithDetail(v.Kind().String())
	}
	if err := w.WriteByte(code); err != nil {
		return err
	}
	if _, err := w.Write([]byte(key)); err != nil {
		return err
	}
	if err := w.WriteByte(0x00); err != nil {
		return err
	}

	return writeValue(w, v, depth)
}

func writeValue(w byteWriter, v value.Value, depth int) error {
	switch v.Kind() {
	case value.Null:
		return nil
	case value.Bool:
		b, _ := v.AsBool()
		if b {
			return w.WriteByte(0x01)
		}
		return w.WriteByte(0x00)
	case value.I32:
		i, _ := v.AsI32()
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(i))
		_, err := w.Write(b[:])
		return err
	case value.I64:
		i, _ := v.AsI64()
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(i))
		_, err := w.Write(b[:])
		return err
	case value.DateTime:
		millis, _ := v.AsDateTime()
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(millis))
		_, err := w.Write(b[:])
		return err
	case value.F64:
		f, _ := v.AsF64()
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		_, err := w.Write(b[:])
		return err
	case value.String:
		s, _ := v.AsString()
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(s)+1))
		if _, err := w.Write(lb[:]); err != nil {
			return err
		}
		if _, err := w.Write([]byte(s)); err != nil {
			return err
		}
		return w.WriteByte(0x00)
	case value.Binary:
		data, subtype, _ := v.AsBinary()
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(data)))
		if _, err := w.Write(lb[:]); err != nil {
			return err
		}
		if err := w.WriteByte(subtype); err != nil {
			return err
		}
		_, err := w.Write(data)
		return err
	case value.ObjectId:
		id, _ := v.AsObjectId()
		_, err := w.Write(id.Bytes())
		return err
	case value.Object:
		o, _ := v.AsObject()
		return writeObject(w, o, depth+1)
	case value.Array:
		arr, _ := v.AsArray()
		return writeArrayBody(w, arr, depth+1)
	default:
		return dberrors.ErrInvalidType.WithDetail(v.Kind().String())
	}
}

func sizeOfObject(o *value.Obj, depth int) (int, error) {
	if depth > MaxNestingDepth {
		return 0, dberrors.ErrMaxNestingDepthExceeded
	}

	total := 5 // 4-byte length prefix + 1-byte terminator
	var sizeErr error
	o.Range(func(k string, v value.Value) bool {
		n, err := sizeOfField(k, v, depth)
		if err != nil {
			sizeErr = err
			return false
		}
		total += n
		return true
	})
	if sizeErr != nil {
		return 0, sizeErr
	}
	return total, nil
}

func sizeOfArrayBody(arr []value.Value, depth int) (int, error) {
	if depth > MaxNestingDepth {
		return 0, dberrors.ErrMaxNestingDepthExceeded
	}

	total := 5
	for i, v := range arr {
		n, err := sizeOfField(strconv.Itoa(i), v, depth)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func sizeOfField(key string, v value.Value, depth int) (int, error) {
	if strings.ContainsRune(key, 0) {
		return 0, dberrors.ErrInvalidFieldName.WithDetail(key)
	}
	valSize, err := sizeOfValue(v, depth)
	if err != nil {
		return 0, err
	}
	return 1 + len(key) + 1 + valSize, nil // type(1) + cstring(key+NUL) + value
}

func sizeOfValue(v value.Value, depth int) (int, error) {
	switch v.Kind() {
	case value.Null:
		return 0, nil
	case value.Bool:
		return 1, nil
	case value.I32:
		return 4, nil
	case value.I64, value.DateTime, value.F64:
		return 8, nil
	case value.String:
		s, _ := v.AsString()
		return 4 + len(s) + 1, nil
	case value.Binary:
		data, _, _ := v.AsBinary()
		return 4 + 1 + len(data), nil
	case value.ObjectId:
		return 12, nil
	case value.Object:
		o, _ := v.AsObject()
		return sizeOfObject(o, depth+1)
	case value.Array:
		arr, _ := v.AsArray()
		return sizeOfArrayBody(arr, depth+1)
	default:
		return 0, dberrors.ErrInvalidType.WithDetail(v.Kind().String())
	}
}
