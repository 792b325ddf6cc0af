package lottery

import (
	crand "crypto/rand"
	"encoding/binary"
	"sync"
)

// Rand is the random source the engine draws from. Tests inject a seeded
// XorShift32 to make selections reproducible.
type Rand interface {
	Float64() float64
}

type XorShift32 struct {
	state uint32
}

func NewXorShift32(seed uint32) *XorShift32 {
	if seed == 0 {
		seed = 0x12345678
	}
	return &XorShift32{state: seed}
}

func (x *XorShift32) Next() uint32 {
	s := x.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	x.state = s
	return s
}

func (x *XorShift32) Float64() float64 {
	const maxUint32 = float64(^uint32(0))
	return float64(x.Next()) / maxUint32
}

// NewRand returns a XorShift32 seeded from crypto/rand.
func NewRand() *XorShift32 {
	var buf [4]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return NewXorShift32(0)
	}
	return NewXorShift32(binary.LittleEndian.Uint32(buf[:]))
}

// LockedRand makes a Rand safe for concurrent draws.
type LockedRand struct {
	mu    sync.Mutex
	inner Rand
}

func NewLockedRand(inner Rand) *LockedRand {
	return &LockedRand{inner: inner}
}

func (r *LockedRand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inner.Float64()
}
