package value

import "sort"

// Obj is an ordered, string-keyed mapping from field name to Value. Keys
// are kept sorted at all times so that serialization is a linear scan
// rather than a sort-then-scan, per the design notes on ordered object
// representation.
type Obj struct {
	keys   []string
	values map[string]Value
}

// NewObj creates an empty Obj.
func NewObj() *Obj {
	return &Obj{values: make(map[string]Value)}
}

// Len returns the number of fields in o.
func (o *Obj) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Set inserts or replaces the value at key, keeping keys in sorted order.
func (o *Obj) Set(key string, v Value) {
	if _, exists := o.values[key]; exists {
		o.values[key] = v
		return
	}

	idx := sort.SearchStrings(o.keys, key)
	o.keys = append(o.keys, "")
	copy(o.keys[idx+1:], o.keys[idx:])
	o.keys[idx] = key
	o.values[key] = v
}

// Get returns the value at key and whether it is present.
func (o *Obj) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.values[key]
	return v, ok
}

// Delete removes key from o, if present.
func (o *Obj) Delete(key string) {
	if _, exists := o.values[key]; !exists {
		return
	}
	delete(o.values, key)
	idx := sort.SearchStrings(o.keys, key)
	o.keys = append(o.keys[:idx], o.keys[idx+1:]...)
}

// Keys returns the field names in sorted order. The returned slice must
// not be mutated.
func (o *Obj) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Range calls fn for each field in sorted key order, stopping early if fn
// returns false.
func (o *Obj) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.values[k]) {
			return
		}
	}
}

// Equals reports whether o and other hold the same keys mapped to equal
// values, used by the round-trip property tests.
func (o *Obj) Equals(other *Obj) bool {
	if o.Len() != other.Len() {
		return false
	}
	equal := true
	o.Range(func(k string, v Value) bool {
		ov, ok := other.Get(k)
		if !ok || !Equal(v, ov) {
			equal = false
			return false
		}
		return true
	})
	return equal
}
