package value

import "testing"

func TestNewStringRejectsInvalidUtf8(t *testing.T) {
	tests := []struct {
		name          string
		input         string
		expectedError bool
	}{
		{"valid ascii", "hello", false},
		{"valid multibyte", "héllo wörld", false},
		{"invalid byte sequence", string([]byte{0xff, 0xfe, 0x80}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewString(tt.input)
			if (err != nil) != tt.expectedError {
				t.Errorf("NewString(%q) error = %v, expectedError %v", tt.input, err, tt.expectedError)
			}
		})
	}
}

func TestObjKeysStayInsertedInSortedOrder(t *testing.T) {
	o := NewObj()
	o.Set("name", MustString("Alice"))
	o.Set("active", NewBool(true))
	o.Set("balance", NewF64(1250.75))
	o.Set("age", NewI32(28))

	want := []string{"active", "age", "balance", "name"}
	got := o.Keys()

	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestObjSetReplacesExistingKeyWithoutDuplicating(t *testing.T) {
	o := NewObj()
	o.Set("x", NewI32(1))
	o.Set("x", NewI32(2))

	if o.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", o.Len())
	}
	v, ok := o.Get("x")
	if !ok {
		t.Fatal("Get(\"x\") not found")
	}
	got, _ := v.AsI32()
	if got != 2 {
		t.Errorf("Get(\"x\") = %d, want 2", got)
	}
}

func TestObjDeleteRemovesKeyAndPreservesOrder(t *testing.T) {
	o := NewObj()
	o.Set("a", NewI32(1))
	o.Set("b", NewI32(2))
	o.Set("c", NewI32(3))

	o.Delete("b")

	want := []string{"a", "c"}
	got := o.Keys()
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEqualRecursesThroughContainers(t *testing.T) {
	buildDoc := func() Value {
		inner := NewObj()
		inner.Set("tag", MustString("x"))
		arr := NewArray([]Value{NewI32(1), NewI32(2), NewObject(inner)})
		outer := NewObj()
		outer.Set("items", arr)
		return NewObject(outer)
	}

	a := buildDoc()
	b := buildDoc()

	if !Equal(a, b) {
		t.Error("Equal() = false for two independently-built but structurally identical documents")
	}

	innerB, _ := b.AsObject()
	itemsB, _ := innerB.Get("items")
	arrB, _ := itemsB.AsArray()
	arrB[0] = NewI32(99)

	if Equal(a, b) {
		t.Error("Equal() = true after mutating a nested array element in b")
	}
}
