// Package gorilla implements the delta-of-delta timestamp and XOR value
// compression scheme (the "Gorilla" encoding) on top of a segment.Segment's
// bit-accurate block chain.
//
// Encoder wraps a single segment and exposes the append/read/serialize
// operations a shard writer needs. Factory constructs encoders with an
// injected metrics.Sink and collector.Queue, mirroring how the original
// system wired a segment factory, a metric registry, and a retirement
// queue into each encoder instance.
package gorilla
