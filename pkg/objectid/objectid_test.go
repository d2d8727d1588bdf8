package objectid

import (
	"bytes"
	"testing"
)

func TestGeneratorMonotonicWithinSecond(t *testing.T) {
	g, err := NewGenerator()
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}

	first := g.Next()
	second := g.Next()

	if first.Timestamp().Unix() != second.Timestamp().Unix() {
		t.Skip("clock ticked over a second boundary mid-test")
	}

	if second.Counter() <= first.Counter() {
		t.Errorf("Counter() not strictly increasing: first=%d second=%d", first.Counter(), second.Counter())
	}

	if !bytes.Equal(first[4:9], second[4:9]) {
		t.Errorf("process token changed between mints: %x vs %x", first[4:9], second[4:9])
	}
}

func TestFromBytesRoundTrip(t *testing.T) {
	g, err := NewGenerator()
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	id := g.Next()

	got, err := FromBytes(id.Bytes())
	if err != nil {
		t.Fatalf("FromBytes() error = %v", err)
	}
	if got != id {
		t.Errorf("FromBytes(Bytes()) = %v, want %v", got, id)
	}
}

func TestFromBytesWrongLength(t *testing.T) {
	cases := []struct {
		name string
		n    int
	}{
		{"too short", 11},
		{"too long", 13},
		{"empty", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := FromBytes(make([]byte, tc.n)); err == nil {
				t.Errorf("FromBytes(%d bytes) expected error, got nil", tc.n)
			}
		})
	}
}

func TestZeroIsZero(t *testing.T) {
	var id ObjectId
	if !id.IsZero() {
		t.Error("zero-value ObjectId should report IsZero() == true")
	}

	g, _ := NewGenerator()
	minted := g.Next()
	if minted.IsZero() {
		t.Error("minted ObjectId should not be zero")
	}
}
