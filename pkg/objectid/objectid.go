// Package objectid implements the 12-byte document identifier described in
// the storage engine's data model: a big-endian seconds timestamp, a
// per-process random token, and a monotonically increasing counter.
package objectid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Size is the fixed wire length of an ObjectId.
const Size = 12

// ObjectId is a 12-byte globally-unique document identifier: 4 bytes of
// big-endian seconds-since-epoch, 5 bytes of per-process random token, and
// 3 bytes of big-endian counter.
type ObjectId [Size]byte

// Zero is the all-zero ObjectId, used as a sentinel "unassigned" value.
var Zero ObjectId

// IsZero reports whether id is the all-zero sentinel.
func (id ObjectId) IsZero() bool {
	return id == Zero
}

// Timestamp returns the seconds-since-epoch component of id.
func (id ObjectId) Timestamp() time.Time {
	secs := binary.BigEndian.Uint32(id[0:4])
	return time.Unix(int64(secs), 0).UTC()
}

// Counter returns the 3-byte monotonic counter component of id.
func (id ObjectId) Counter() uint32 {
	return uint32(id[9])<<16 | uint32(id[10])<<8 | uint32(id[11])
}

// String renders id as lowercase hex, the conventional ObjectId text form.
func (id ObjectId) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the 12 underlying bytes of id.
func (id ObjectId) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, id[:])
	return out
}

// FromBytes reconstructs an ObjectId from exactly 12 bytes.
func FromBytes(b []byte) (ObjectId, error) {
	var id ObjectId
	if len(b) != Size {
		return id, fmt.Errorf("objectid: want %d bytes, got %d", Size, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Generator mints ObjectIds for a single process. Two ids minted by the
// same Generator within the same second have strictly increasing Counter
// values.
type Generator struct {
	token      [5]byte
	lastSecond int64
	counter    uint32 // guarded by the CompareAndSwap loop in Next
}

// NewGenerator creates a Generator with a fresh random 5-byte process
// token. One Generator is expected per open engine (or per process),
// matching §9's "no global state... explicitly threaded through the
// engine instance" design note.
func NewGenerator() (*Generator, error) {
	var token [5]byte
	if _, err := rand.Read(token[:]); err != nil {
		return nil, fmt.Errorf("objectid: failed to seed process token: %w", err)
	}
	return &Generator{token: token}, nil
}

// Next mints a new ObjectId using the current wall-clock second. If the
// previous mint happened in the same second, the counter strictly
// increases; otherwise it resets to zero for the new second.
func (g *Generator) Next() ObjectId {
	now := time.Now().Unix()

	for {
		prevSecond := atomic.LoadInt64(&g.lastSecond)
		var next uint32
		if now == prevSecond {
			next = atomic.AddUint32(&g.counter, 1)
		} else if atomic.CompareAndSwapInt64(&g.lastSecond, prevSecond, now) {
			atomic.StoreUint32(&g.counter, 0)
			next = 0
		} else {
			// Lost the race to another call observing a new second; retry.
			continue
		}

		var id ObjectId
		binary.BigEndian.PutUint32(id[0:4], uint32(now))
		copy(id[4:9], g.token[:])
		id[9] = byte(next >> 16)
		id[10] = byte(next >> 8)
		id[11] = byte(next)
		return id
	}
}
