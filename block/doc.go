// Package block provides the fixed-size memory-block allocator that stands
// in for the off-heap malloc/free pair the original segment store used.
//
// A real off-heap allocator hands back raw addresses into process memory;
// Go offers no safe equivalent, so Allocator instead owns a growable arena
// of fixed-size byte slabs and hands back opaque 1-based Address values.
// Address 0 is reserved and always means "no block" — the same sentinel the
// on-disk next-block pointer uses for chain termination, so it round-trips
// through the wire format unchanged.
//
// ByteView and LongView are cheap, re-bindable handles over a slab: Rebind
// swaps the address without allocating, matching the original design's
// requirement that views cost nothing to redirect.
package block
