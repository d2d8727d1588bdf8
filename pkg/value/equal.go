package value

// Equal reports whether a and b are structurally equal: same Kind and
// equal payloads, recursively for Array and Object. This is the equality
// the codec's round-trip law is checked against.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}

	switch a.kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case I32:
		return a.i32 == b.i32
	case I64:
		return a.i64 == b.i64
	case F64:
		return a.f64 == b.f64
	case String:
		return a.str == b.str
	case Binary:
		if a.binSubtype != b.binSubtype || len(a.bin) != len(b.bin) {
			return false
		}
		for i := range a.bin {
			if a.bin[i] != b.bin[i] {
				return false
			}
		}
		return true
	case ObjectId:
		return a.oid == b.oid
	case DateTime:
		return a.i64 == b.i64
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !Equal(a.arr[i], b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		return a.obj.Equals(b.obj)
	default:
		return false
	}
}
