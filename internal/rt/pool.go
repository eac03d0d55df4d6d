package rt

// poolFirstChunk is the size of a pool's first chunk. Each further
// chunk doubles, so a unit with n values lives in O(log n) chunks.
const poolFirstChunk = 64

// Pool hands out values of T for the lifetime of one compilation unit
// and recycles the backing memory on Reset, keeping the hot compile
// path free of per-unit allocation churn. Values stay addressable at
// their index for the pool's lifetime.
type Pool[T any] struct {
	chunks [][]T
	n      int
}

// NewPool returns an empty Pool.
func NewPool[T any]() Pool[T] {
	return Pool[T]{}
}

// Allocated returns the number of values handed out since the last
// Reset.
func (p *Pool[T]) Allocated() int {
	return p.n
}

// Allocate returns a pointer to a zeroed T owned by the pool.
func (p *Pool[T]) Allocate() *T {
	c, i := locate(p.n)
	if c == len(p.chunks) {
		p.chunks = append(p.chunks, make([]T, poolFirstChunk<<c))
	}
	p.n++
	return &p.chunks[c][i]
}

// View returns the pointer to the i-th allocated value.
func (p *Pool[T]) View(i int) *T {
	c, j := locate(i)
	return &p.chunks[c][j]
}

// Reset zeroes the used values and rewinds the pool for the next unit.
// The chunks themselves are kept.
func (p *Pool[T]) Reset() {
	var zero T
	left := p.n
	for _, chunk := range p.chunks {
		if left <= 0 {
			break
		}
		used := chunk
		if left < len(chunk) {
			used = chunk[:left]
		}
		for i := range used {
			used[i] = zero
		}
		left -= len(used)
	}
	p.n = 0
}

// locate maps a value index to its chunk and the offset within it.
func locate(n int) (chunk, offset int) {
	size := poolFirstChunk
	for n >= size {
		n -= size
		chunk++
		size <<= 1
	}
	return chunk, n
}
