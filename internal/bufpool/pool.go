// Package bufpool provides reusable byte-slice buffers for frame assembly,
// sized for the class of allocation this engine actually makes (RTP
// fragment payloads and whole-frame assembly buffers). Adapted from
// alxayo-rtmp-go's internal/bufpool, whose size classes were tuned for RTMP
// chunking; here they are tuned for RTP fragments and tiled video frames.
package bufpool

import "sync"

// sizeClasses cover a typical RTP fragment (≤ 1500 bytes), a large
// jumbogram fragment, and a single 4K-tile assembly buffer.
var sizeClasses = []int{2048, 16384, 8 << 20}

type classPool struct {
	size int
	pool *sync.Pool
}

// Pool hands out byte slices backed by a small number of fixed size
// classes, to cut GC churn on the ingest hot path.
type Pool struct {
	pools []classPool
}

var defaultPool = New()

// Get acquires a buffer of the given length from the package-level pool.
func Get(size int) []byte { return defaultPool.Get(size) }

// Put releases a buffer back to the package-level pool.
func Put(buf []byte) { defaultPool.Put(buf) }

// New creates a buffer pool with the predefined size classes.
func New() *Pool {
	pools := make([]classPool, len(sizeClasses))
	for i, classSize := range sizeClasses {
		size := classSize
		pools[i] = classPool{
			size: size,
			pool: &sync.Pool{
				New: func() any { return make([]byte, size) },
			},
		}
	}
	return &Pool{pools: pools}
}

// Get returns a slice of exactly size bytes, backed by the smallest size
// class that fits. Requests larger than the largest class allocate fresh.
func (p *Pool) Get(size int) []byte {
	if p == nil || size <= 0 {
		return nil
	}
	for i := range p.pools {
		class := &p.pools[i]
		if size <= class.size {
			buf := class.pool.Get().([]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to the pool if its capacity matches a size class exactly.
func (p *Pool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}
	capBuf := cap(buf)
	for i := range p.pools {
		class := &p.pools[i]
		if capBuf == class.size {
			full := buf[:class.size]
			clear(full)
			class.pool.Put(full)
			return
		}
	}
}
