package gorilla

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/gorillaseg/gorillaseg/block"
	"github.com/gorillaseg/gorillaseg/collector"
	"github.com/gorillaseg/gorillaseg/errs"
	"github.com/gorillaseg/gorillaseg/metrics"
	"github.com/gorillaseg/gorillaseg/segment"
)

// firstTimestampBits is the width used to encode the very first sample's
// offset from the segment's base time. 14 bits covers a full two-hour,
// one-second-granularity segment (2^14 = 16384 > 7200).
const firstTimestampBits = 14

// lossyMantissaMask clears the low 13 bits of a float64's 52-bit mantissa,
// which occupy the low 13 bits of the raw 64-bit pattern.
const lossyMantissaMask = ^uint64(0x1FFF)

// Encoder compresses (timestamp, value) samples into a segment using
// delta-of-delta timestamp bit-packing and XOR value encoding with a
// leading/trailing-zero reuse window.
//
// An Encoder is bound to the one segment it was created or opened with;
// Factory.Create and Factory.Open each return a new Encoder. It is not safe
// for concurrent use — see
// segment.Segment's own concurrency contract, which Encoder inherits
// unchanged.
type Encoder struct {
	alloc          *block.Allocator
	seg            *segment.Segment
	lossy          bool
	segmentSeconds int
	collector      *collector.Queue
	sink           metrics.Sink
}

// AddDataPoint appends a single sample to the segment, emitting the
// timestamp as delta-of-delta bits and the value as an XOR-compressed
// float64, per the standard Gorilla control-bit tables.
func (e *Encoder) AddDataPoint(ts int32, v float64) error {
	seg := e.seg

	numDP, err := seg.GetNumDataPoints()
	if err != nil {
		return err
	}

	raw := math.Float64bits(v)
	if e.lossy {
		raw &= lossyMantissaMask
	}

	if numDP == 0 {
		if err := e.writeFirstDataPoint(seg, ts, raw); err != nil {
			return err
		}

		return seg.UpdateHeader()
	}

	prevT, err := seg.GetLastTimestamp()
	if err != nil {
		return err
	}
	prevDelta, err := seg.GetLastTimestampDelta()
	if err != nil {
		return err
	}
	prevRaw, err := seg.GetLastValue()
	if err != nil {
		return err
	}
	prevLZ, err := seg.GetLastValueLeadingZeros()
	if err != nil {
		return err
	}
	prevTZ, err := seg.GetLastValueTrailingZeros()
	if err != nil {
		return err
	}

	// SetLastTimestamp's setter side effect latches the out-of-order flag
	// when ts is at or before the previous timestamp.
	if err := seg.SetLastTimestamp(ts); err != nil {
		return err
	}

	delta := int64(ts) - int64(prevT)
	dod := delta - int64(prevDelta)
	if err := writeTimestampDoD(seg, dod); err != nil {
		return err
	}

	xor := raw ^ prevRaw
	lz, tz := int(prevLZ), int(prevTZ)

	switch {
	case xor == 0:
		if err := seg.WriteData(0, 1); err != nil {
			return err
		}
	case int(prevLZ) != 64 && bits.LeadingZeros64(xor) >= int(prevLZ) && bits.TrailingZeros64(xor) >= int(prevTZ):
		if err := seg.WriteData(1, 1); err != nil {
			return err
		}
		if err := seg.WriteData(0, 1); err != nil {
			return err
		}
		meaningful := 64 - int(prevLZ) - int(prevTZ)
		if err := seg.WriteData(xor>>uint(prevTZ), meaningful); err != nil {
			return err
		}
	default:
		curLZ := bits.LeadingZeros64(xor)
		// The leading-zero count is written in 5 bits, so counts above 31 are
		// stored as 31 and the extra zeros travel in the meaningful block.
		if curLZ > 31 {
			curLZ = 31
		}
		curTZ := bits.TrailingZeros64(xor)
		blockSize := 64 - curLZ - curTZ

		if err := seg.WriteData(1, 1); err != nil {
			return err
		}
		if err := seg.WriteData(1, 1); err != nil {
			return err
		}
		if err := seg.WriteData(uint64(curLZ), 5); err != nil {
			return err
		}
		if err := seg.WriteData(uint64(blockSize-1), 6); err != nil {
			return err
		}
		if err := seg.WriteData(xor>>uint(curTZ), blockSize); err != nil {
			return err
		}

		lz, tz = curLZ, curTZ
	}

	// The reuse window's decision inputs (lz, tz) only change in the new-window
	// branch above, per the encoding rules; the header byte is rewritten
	// unconditionally regardless so the packed out-of-order flag (sharing byte
	// 39 with the trailing-zero count) never goes stale for OpenSegment.
	if err := seg.SetLastValueLeadingZeros(byte(lz)); err != nil {
		return err
	}
	if err := seg.SetLastValueTrailingZeros(byte(tz)); err != nil {
		return err
	}
	if err := seg.SetLastTimestampDelta(int16(delta)); err != nil {
		return err
	}
	if err := seg.SetLastValue(raw); err != nil {
		return err
	}

	if err := seg.SetNumDataPoints(numDP + 1); err != nil {
		return err
	}

	// Persist the bit cursor so a later Factory.Open resumes at the tail.
	return seg.UpdateHeader()
}

func (e *Encoder) writeFirstDataPoint(seg *segment.Segment, ts int32, raw uint64) error {
	t0, err := seg.GetSegmentTime()
	if err != nil {
		return err
	}

	delta := ts - t0
	if err := seg.WriteData(uint64(delta)&(1<<firstTimestampBits-1), firstTimestampBits); err != nil {
		return err
	}
	if err := seg.WriteData(raw, 64); err != nil {
		return err
	}

	if err := seg.SetLastTimestamp(ts); err != nil {
		return err
	}
	if err := seg.SetLastValue(raw); err != nil {
		return err
	}
	if err := seg.SetLastTimestampDelta(int16(delta)); err != nil {
		return err
	}
	// 64 is the sentinel meaning "no reuse window established yet".
	if err := seg.SetLastValueLeadingZeros(64); err != nil {
		return err
	}
	if err := seg.SetLastValueTrailingZeros(0); err != nil {
		return err
	}

	return seg.SetNumDataPoints(1)
}

func writeTimestampDoD(seg *segment.Segment, dod int64) error {
	switch {
	case dod == 0:
		return seg.WriteData(0, 1)
	case dod >= -63 && dod <= 64:
		if err := seg.WriteData(0b10, 2); err != nil {
			return err
		}

		return seg.WriteData(uint64(dod)&0x7F, 7)
	case dod >= -255 && dod <= 256:
		if err := seg.WriteData(0b110, 3); err != nil {
			return err
		}

		return seg.WriteData(uint64(dod)&0x1FF, 9)
	case dod >= -2047 && dod <= 2048:
		if err := seg.WriteData(0b1110, 4); err != nil {
			return err
		}

		return seg.WriteData(uint64(dod)&0xFFF, 12)
	default:
		if err := seg.WriteData(0b1111, 4); err != nil {
			return err
		}

		return seg.WriteData(uint64(dod)&0xFFFFFFFF, 32)
	}
}

func readTimestampDoD(seg *segment.Segment) (int64, error) {
	b0, err := seg.ReadData(1)
	if err != nil {
		return 0, err
	}
	if b0 == 0 {
		return 0, nil
	}

	b1, err := seg.ReadData(1)
	if err != nil {
		return 0, err
	}
	if b1 == 0 {
		v, err := seg.ReadData(7)

		return bucketDoD(v, 7), err
	}

	b2, err := seg.ReadData(1)
	if err != nil {
		return 0, err
	}
	if b2 == 0 {
		v, err := seg.ReadData(9)

		return bucketDoD(v, 9), err
	}

	b3, err := seg.ReadData(1)
	if err != nil {
		return 0, err
	}
	if b3 == 0 {
		v, err := seg.ReadData(12)

		return bucketDoD(v, 12), err
	}

	v, err := seg.ReadData(32)

	return signExtend(v, 32), err
}

func signExtend(v uint64, width int) int64 {
	shift := uint(64 - width)

	return int64(v<<shift) >> shift
}

// bucketDoD decodes a width-bit delta-of-delta payload. Each bounded bucket
// spans -(2^(width-1)-1) to 2^(width-1), so the one pattern that
// sign-extends to -2^(width-1) stands for +2^(width-1).
func bucketDoD(v uint64, width int) int64 {
	d := signExtend(v, width)
	if d == -(int64(1) << uint(width-1)) {
		return -d
	}

	return d
}

// Read decodes every sample in emission order, calling consumer for each
// one. It reinitializes the leading/trailing-zero reuse window at the
// sentinel (64, 0) the encoder itself starts from — not from the header's
// bookkeeping fields, which hold the *last written* sample's window rather
// than the window decoding must start from.
func (e *Encoder) Read(consumer func(ts int32, v float64) error) error {
	seg := e.seg
	if err := seg.ResetCursor(); err != nil {
		return err
	}

	n, err := seg.GetNumDataPoints()
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	t0, err := seg.GetSegmentTime()
	if err != nil {
		return err
	}

	deltaRaw, err := seg.ReadData(firstTimestampBits)
	if err != nil {
		return err
	}
	delta := int64(int32(deltaRaw))
	ts := t0 + int32(delta)

	rawV, err := seg.ReadData(64)
	if err != nil {
		return err
	}

	if err := consumer(ts, math.Float64frombits(rawV)); err != nil {
		return err
	}

	prevT := ts
	prevDelta := delta
	prevRaw := rawV
	prevLZ, prevTZ := 64, 0

	for i := uint16(1); i < n; i++ {
		dod, err := readTimestampDoD(seg)
		if err != nil {
			return err
		}

		newDelta := prevDelta + dod
		newTs := prevT + int32(newDelta)

		bit0, err := seg.ReadData(1)
		if err != nil {
			return err
		}

		var xor uint64
		if bit0 != 0 {
			bit1, err := seg.ReadData(1)
			if err != nil {
				return err
			}

			if bit1 == 0 {
				meaningful := 64 - prevLZ - prevTZ
				v, err := seg.ReadData(meaningful)
				if err != nil {
					return err
				}
				xor = v << uint(prevTZ)
			} else {
				lzv, err := seg.ReadData(5)
				if err != nil {
					return err
				}
				lenv, err := seg.ReadData(6)
				if err != nil {
					return err
				}
				blockSize := int(lenv) + 1
				v, err := seg.ReadData(blockSize)
				if err != nil {
					return err
				}

				lz := int(lzv)
				tz := 64 - lz - blockSize
				xor = v << uint(tz)
				prevLZ, prevTZ = lz, tz
			}
		}

		raw := prevRaw ^ xor
		if err := consumer(newTs, math.Float64frombits(raw)); err != nil {
			return err
		}

		prevT, prevDelta, prevRaw = newTs, newDelta, raw
	}

	return nil
}

// ReadAndDedupe decodes every sample, writing buf[ts-segmentTime] = value
// for each one (last writer wins at a given timestamp) and returns the
// count of distinct timestamps written. len(buf) must equal the Encoder's
// configured segment window length in seconds.
func (e *Encoder) ReadAndDedupe(buf []float64) (int, error) {
	if len(buf) != e.segmentSeconds {
		return 0, fmt.Errorf("%w: got %d, want %d", errs.ErrDedupeBufferSize, len(buf), e.segmentSeconds)
	}

	t0, err := e.seg.GetSegmentTime()
	if err != nil {
		return 0, err
	}

	seen := make([]bool, len(buf))
	count := 0

	err = e.Read(func(ts int32, v float64) error {
		idx := int(ts - t0)
		if idx < 0 || idx >= len(buf) {
			return nil
		}
		if !seen[idx] {
			seen[idx] = true
			count++
		}
		buf[idx] = v

		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, nil
}

// GetSegmentTime returns the segment's base timestamp, in seconds.
func (e *Encoder) GetSegmentTime() (int32, error) { return e.seg.GetSegmentTime() }

// GetNumDataPoints returns the count of samples written so far.
func (e *Encoder) GetNumDataPoints() (uint16, error) { return e.seg.GetNumDataPoints() }

// SegmentIsDirty reports whether the segment has unflushed writes.
func (e *Encoder) SegmentIsDirty() bool { return e.seg.IsDirty() }

// SegmentHasOutOfOrderOrDuplicates reports whether any sample was written
// out of order or as a duplicate timestamp.
func (e *Encoder) SegmentHasOutOfOrderOrDuplicates() bool { return e.seg.HasDupesOrOutOfOrderData() }

// MarkSegmentFlushed clears the dirty flag.
func (e *Encoder) MarkSegmentFlushed() error { return e.seg.MarkFlushed() }

// FreeSegment releases every block owned by the currently bound segment.
func (e *Encoder) FreeSegment() error { return e.seg.Free() }

// Address returns the currently bound segment's handle.
func (e *Encoder) Address() block.Address { return e.seg.Address() }

// CollectSegment enqueues addr into the encoder's retirement queue for a
// deferred Free, rather than freeing it immediately.
func (e *Encoder) CollectSegment(addr block.Address) error {
	if e.collector == nil {
		return segment.FreeChain(e.alloc, addr)
	}

	return e.collector.Collect(addr)
}

// FreeCollectedSegments frees every retirement-queue entry old enough to
// have passed the collector's configured delay.
func (e *Encoder) FreeCollectedSegments() error {
	if e.collector == nil {
		return nil
	}

	return e.collector.FreeCollected()
}

// SerializationLength returns the number of bytes Serialize would write.
func (e *Encoder) SerializationLength() (int, error) { return e.seg.SerializationLength() }

// Serialize writes the segment's wire-format bytes into
// buf[offset:offset+length], using the encoder's configured lossy mode for
// the type byte.
func (e *Encoder) Serialize(buf []byte, offset, length int) error {
	return e.seg.Serialize(buf, offset, length, e.lossy)
}

// CollectMetrics reports the segment's current block count to the
// configured metrics.Sink, mirroring the original system's periodic gauge
// update.
func (e *Encoder) CollectMetrics(tags ...string) error {
	blocks, err := e.seg.BlockCount()
	if err != nil {
		return err
	}

	e.sink.Gauge("memory.block.count").Set(float64(blocks), tags...)
	e.sink.Gauge("segment.length").Set(float64(blocks*e.alloc.BlockSize()), tags...)

	return nil
}
