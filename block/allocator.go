package block

import (
	"fmt"
	"sync"

	"github.com/gorillaseg/gorillaseg/endian"
	"github.com/gorillaseg/gorillaseg/errs"
)

// Address is an opaque handle to a memory block. The zero value means
// "no block" and is never returned by Malloc.
type Address uint64

// AllocatorOption configures an Allocator at construction time.
type AllocatorOption func(*Allocator)

// WithMaxBlocks caps the number of live (non-freed) blocks the allocator
// will hand out. A Malloc call past the cap returns errs.ErrAllocationFailed,
// mirroring the underlying off-heap allocator returning null when the
// process is out of memory. A cap of 0 (the default) means unbounded.
func WithMaxBlocks(n int) AllocatorOption {
	return func(a *Allocator) {
		a.maxBlocks = n
	}
}

// Allocator owns a growable arena of fixed-size byte slabs and the free
// list of retired slab indices. It is safe for concurrent use by multiple
// segments, per the single-writer/single-reader-per-segment model: the
// allocator itself is the one shared resource and must be thread-safe.
type Allocator struct {
	mu sync.Mutex

	blockSize int
	engine    endian.EndianEngine

	slabs       [][]byte
	free        []Address
	outstanding int
	maxBlocks   int
}

// NewAllocator creates an Allocator whose blocks are all blockSize bytes.
// blockSize must be a positive multiple of 8 (it must hold at least the
// 8-byte next-block pointer every block reserves).
func NewAllocator(blockSize int, engine endian.EndianEngine, opts ...AllocatorOption) (*Allocator, error) {
	if blockSize <= 0 || blockSize%8 != 0 {
		return nil, fmt.Errorf("%w: %d", errs.ErrInvalidBlockSize, blockSize)
	}

	a := &Allocator{
		blockSize: blockSize,
		engine:    engine,
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// BlockSize returns the fixed size, in bytes, of every block this allocator
// hands out.
func (a *Allocator) BlockSize() int {
	return a.blockSize
}

// Engine returns the byte-order engine used to interpret block contents.
func (a *Allocator) Engine() endian.EndianEngine {
	return a.engine
}

// Outstanding returns the number of currently allocated (non-freed) blocks.
// Tests use this to assert that free() returns the allocator to its
// pre-test state.
func (a *Allocator) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.outstanding
}

// Malloc returns a new zero-filled block and its address. It returns
// errs.ErrAllocationFailed if the allocator was constructed with
// WithMaxBlocks and the cap has been reached.
func (a *Allocator) Malloc() (Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxBlocks > 0 && a.outstanding >= a.maxBlocks {
		return 0, errs.ErrAllocationFailed
	}

	if n := len(a.free); n > 0 {
		addr := a.free[n-1]
		a.free = a.free[:n-1]
		clear(a.slabs[addr-1])
		a.outstanding++

		return addr, nil
	}

	a.slabs = append(a.slabs, make([]byte, a.blockSize))
	a.outstanding++

	return Address(len(a.slabs)), nil
}

// Free returns a block to the allocator for reuse. Freeing an invalid or
// already-free address returns errs.ErrInvalidAddress.
func (a *Allocator) Free(addr Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkLocked(addr); err != nil {
		return err
	}

	a.free = append(a.free, addr)
	a.outstanding--

	return nil
}

// Bytes returns the raw byte slab for addr. The returned slice aliases the
// allocator's storage and must not be retained past the block's next Free.
func (a *Allocator) Bytes(addr Address) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkLocked(addr); err != nil {
		return nil, err
	}

	return a.slabs[addr-1], nil
}

func (a *Allocator) checkLocked(addr Address) error {
	if addr == 0 || int(addr) > len(a.slabs) {
		return fmt.Errorf("%w: %d", errs.ErrInvalidAddress, addr)
	}
	for _, f := range a.free {
		if f == addr {
			return fmt.Errorf("%w: %d (already free)", errs.ErrInvalidAddress, addr)
		}
	}

	return nil
}
