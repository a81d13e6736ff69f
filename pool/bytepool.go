// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// Stats counts pool traffic since creation.
type Stats struct {
	Allocated int // buffers created because the free list was empty
	Reused    int // buffers served from the free list
	InUse     int // buffers handed out and not yet returned
	Retained  int // buffers parked on the free list
}

// BytePool recycles fixed-size buffers.
type BytePool struct {
	size  int
	limit int
	free  [][]byte
	stats Stats
}

// NewBytePool creates a pool of size-byte buffers keeping at most limit
// idle ones.
func NewBytePool(size, limit int) *BytePool {
	if limit < 0 {
		limit = 0
	}
	return &BytePool{size: size, limit: limit}
}

// Size returns the buffer length served by the pool.
func (b *BytePool) Size() int { return b.size }

// GetBuffer returns a buffer of Size bytes. Its contents are undefined.
func (b *BytePool) GetBuffer() []byte {
	b.stats.InUse++
	if n := len(b.free); n > 0 {
		buf := b.free[n-1]
		b.free[n-1] = nil
		b.free = b.free[:n-1]
		b.stats.Reused++
		b.stats.Retained--
		return buf[:b.size]
	}
	b.stats.Allocated++
	return make([]byte, b.size)
}

// PutBuffer returns buf to the pool. Foreign buffers and buffers beyond the
// retention limit are left to the GC.
func (b *BytePool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	if b.stats.InUse > 0 {
		b.stats.InUse--
	}
	if cap(buf) != b.size || len(b.free) >= b.limit {
		return
	}
	b.free = append(b.free, buf[:b.size])
	b.stats.Retained++
}

// Stats returns a snapshot of the counters.
func (b *BytePool) Stats() Stats { return b.stats }
