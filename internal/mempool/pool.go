// Package mempool provides sized sync.Pool buckets for the scratch buffers
// used by the detectors: input tensors, grayscale planes and pixel masks.
package mempool

import "sync"

const step = 1024

// sizeClass rounds n up to a multiple of 1024 so nearby sizes share a pool.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

type sized[T any] struct {
	pools sync.Map // size class -> *sync.Pool
}

func (s *sized[T]) pool(cls int) *sync.Pool {
	p, _ := s.pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return p.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// get returns a zeroed slice of length n.
func (s *sized[T]) get(n int) []T {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	bp, ok := s.pool(cls).Get().(*[]T)
	if !ok || cap(*bp) < n {
		return make([]T, n)
	}
	buf := (*bp)[:n]
	clear(buf)
	return buf
}

func (s *sized[T]) put(buf []T) {
	if cap(buf) < step {
		return
	}
	buf = buf[:cap(buf)]
	// Only full buckets go back, so every pooled slice satisfies its class.
	cls := cap(buf) / step * step
	s.pool(cls).Put(&buf)
}

var (
	float32s sized[float32]
	uint8s   sized[uint8]
	bools    sized[bool]
	ints     sized[int32]
)

// GetFloat32 returns a zeroed []float32 of length n. Return it with PutFloat32.
func GetFloat32(n int) []float32 { return float32s.get(n) }

// PutFloat32 returns a buffer to the pool. Nil is accepted.
func PutFloat32(buf []float32) { float32s.put(buf) }

// GetUint8 returns a zeroed []uint8 of length n, used for grayscale planes.
func GetUint8(n int) []uint8 { return uint8s.get(n) }

// PutUint8 returns a buffer to the pool.
func PutUint8(buf []uint8) { uint8s.put(buf) }

// GetBool returns a zeroed []bool of length n, used for masks and visited sets.
func GetBool(n int) []bool { return bools.get(n) }

// PutBool returns a buffer to the pool.
func PutBool(buf []bool) { bools.put(buf) }

// GetInt32 returns a zeroed []int32 of length n, used for BFS queues and labels.
func GetInt32(n int) []int32 { return ints.get(n) }

// PutInt32 returns a buffer to the pool.
func PutInt32(buf []int32) { ints.put(buf) }
