// Package gorillaseg provides an in-memory, off-heap-style time-series
// segment store using Gorilla compression (delta-of-delta timestamps, XOR
// value encoding) over a fixed-size block chain.
//
// A segment is a single metric's append-only window of (timestamp, value)
// samples, written through a block.Allocator-backed chain of fixed-size
// blocks rather than per-point heap allocations. The gorilla package
// implements the encode/decode contract; block and segment implement the
// underlying storage and bit-stream mechanics; collector defers segment
// frees; flush frames a segment's serialized bytes for handoff to colder
// storage.
//
// # Basic usage
//
//	alloc, err := block.NewAllocator(4096, endian.GetLittleEndianEngine())
//	factory := gorilla.NewFactory(alloc, gorilla.WithSegmentSeconds(7200))
//
//	enc, err := factory.Create(segmentStartUnixSeconds)
//	for _, p := range points {
//	    err = enc.AddDataPoint(p.Ts, p.Value)
//	}
//
//	err = enc.Read(func(ts int32, v float64) error {
//	    fmt.Println(ts, v)
//	    return nil
//	})
//
// # Package structure
//
// This file provides thin convenience wrappers around the block and gorilla
// packages for the most common setup. For fine-grained control, and for the
// collector and flush packages, use those packages directly.
package gorillaseg

import (
	"github.com/gorillaseg/gorillaseg/block"
	"github.com/gorillaseg/gorillaseg/endian"
	"github.com/gorillaseg/gorillaseg/gorilla"
)

// NewAllocator creates a block allocator with the given fixed block size
// (in bytes, must be a positive multiple of 8) using little-endian byte
// order, whatever the platform's native order.
func NewAllocator(blockSize int, opts ...block.AllocatorOption) (*block.Allocator, error) {
	return block.NewAllocator(blockSize, endian.GetLittleEndianEngine(), opts...)
}

// NewFactory creates a gorilla.Factory bound to alloc with recommended
// default settings: lossless encoding, a 7200-second (two-hour) window, no
// collector (frees happen immediately), and a no-op metric sink.
//
// opts are passed through to gorilla.NewFactory unchanged, so WithLossy,
// WithCollector, or WithMetricSink override those defaults.
func NewFactory(alloc *block.Allocator, opts ...gorilla.FactoryOption) *gorilla.Factory {
	return gorilla.NewFactory(alloc, opts...)
}
