// Package segment implements the bit-accurate block-chain codec that the
// gorilla package layers its compression scheme on top of.
//
// A Segment owns a singly linked chain of fixed-size block.Allocator blocks.
// The first block additionally carries a 40-byte header (segment base time,
// tail-block address, last-sample bookkeeping, bit cursor, and the packed
// dirty/out-of-order flags). WriteData and ReadData append or consume a
// caller-specified number of bits at the current cursor, transparently
// crossing block boundaries and allocating new blocks as needed.
//
// A Segment is a mode machine, not a duplex stream: it is in Write mode
// after CreateSegment/OpenSegment and switches to Read mode only via
// ResetCursor. Calling a write method in Read mode, or a read method in
// Write mode, returns an error rather than panicking — see the errs
// package.
package segment
