package block

import (
	"fmt"

	"github.com/gorillaseg/gorillaseg/errs"
)

// ByteView is a re-bindable byte-offset accessor over a single block.
// Rebind is allocation-free; it just swaps the backing slice.
type ByteView struct {
	alloc *Allocator
	addr  Address
	buf   []byte
}

// NewByteView creates a ByteView bound to addr.
func NewByteView(alloc *Allocator, addr Address) (*ByteView, error) {
	v := &ByteView{alloc: alloc}
	if err := v.Rebind(addr); err != nil {
		return nil, err
	}

	return v, nil
}

// Rebind repoints the view at a different block, without allocating.
func (v *ByteView) Rebind(addr Address) error {
	buf, err := v.alloc.Bytes(addr)
	if err != nil {
		return err
	}

	v.addr = addr
	v.buf = buf

	return nil
}

// Address returns the block this view is currently bound to.
func (v *ByteView) Address() Address {
	return v.addr
}

func (v *ByteView) checkBounds(offset, width int) error {
	if offset < 0 || offset+width > len(v.buf) {
		return fmt.Errorf("%w: byte offset %d width %d exceeds block size %d", errs.ErrInvalidOffset, offset, width, len(v.buf))
	}

	return nil
}

func (v *ByteView) GetByte(offset int) (byte, error) {
	if err := v.checkBounds(offset, 1); err != nil {
		return 0, err
	}

	return v.buf[offset], nil
}

func (v *ByteView) SetByte(offset int, value byte) error {
	if err := v.checkBounds(offset, 1); err != nil {
		return err
	}

	v.buf[offset] = value

	return nil
}

func (v *ByteView) GetShort(offset int) (uint16, error) {
	if err := v.checkBounds(offset, 2); err != nil {
		return 0, err
	}

	return v.alloc.engine.Uint16(v.buf[offset : offset+2]), nil
}

func (v *ByteView) SetShort(offset int, value uint16) error {
	if err := v.checkBounds(offset, 2); err != nil {
		return err
	}

	v.alloc.engine.PutUint16(v.buf[offset:offset+2], value)

	return nil
}

func (v *ByteView) GetInt(offset int) (uint32, error) {
	if err := v.checkBounds(offset, 4); err != nil {
		return 0, err
	}

	return v.alloc.engine.Uint32(v.buf[offset : offset+4]), nil
}

func (v *ByteView) SetInt(offset int, value uint32) error {
	if err := v.checkBounds(offset, 4); err != nil {
		return err
	}

	v.alloc.engine.PutUint32(v.buf[offset:offset+4], value)

	return nil
}

func (v *ByteView) GetLong(offset int) (uint64, error) {
	if err := v.checkBounds(offset, 8); err != nil {
		return 0, err
	}

	return v.alloc.engine.Uint64(v.buf[offset : offset+8]), nil
}

func (v *ByteView) SetLong(offset int, value uint64) error {
	if err := v.checkBounds(offset, 8); err != nil {
		return err
	}

	v.alloc.engine.PutUint64(v.buf[offset:offset+8], value)

	return nil
}

// LongView is a re-bindable view over a block as an array of 64-bit words,
// used by the segment's bit-stream cursor which always reads and writes at
// 8-byte granularity.
type LongView struct {
	alloc *Allocator
	addr  Address
	buf   []byte
}

// NewLongView creates a LongView bound to addr.
func NewLongView(alloc *Allocator, addr Address) (*LongView, error) {
	v := &LongView{alloc: alloc}
	if err := v.Rebind(addr); err != nil {
		return nil, err
	}

	return v, nil
}

// Rebind repoints the view at a different block, without allocating.
func (v *LongView) Rebind(addr Address) error {
	buf, err := v.alloc.Bytes(addr)
	if err != nil {
		return err
	}

	v.addr = addr
	v.buf = buf

	return nil
}

// Address returns the block this view is currently bound to.
func (v *LongView) Address() Address {
	return v.addr
}

// Len returns the number of 64-bit words in the bound block.
func (v *LongView) Len() int {
	return len(v.buf) / 8
}

func (v *LongView) checkIndex(index int) error {
	if index < 0 || index >= v.Len() {
		return fmt.Errorf("%w: word index %d exceeds block length %d", errs.ErrInvalidOffset, index, v.Len())
	}

	return nil
}

// Get returns the index-th 64-bit word of the bound block.
func (v *LongView) Get(index int) (uint64, error) {
	if err := v.checkIndex(index); err != nil {
		return 0, err
	}

	off := index * 8

	return v.alloc.engine.Uint64(v.buf[off : off+8]), nil
}

// Set writes the index-th 64-bit word of the bound block.
func (v *LongView) Set(index int, value uint64) error {
	if err := v.checkIndex(index); err != nil {
		return err
	}

	off := index * 8
	v.alloc.engine.PutUint64(v.buf[off:off+8], value)

	return nil
}
