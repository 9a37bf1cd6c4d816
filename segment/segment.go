package segment

import (
	"fmt"
	"math"

	"github.com/gorillaseg/gorillaseg/block"
	"github.com/gorillaseg/gorillaseg/errs"
)

// Header byte offsets, matching the original off-heap layout exactly so a
// segment address and its header bytes remain meaningful if ever persisted
// and re-parsed within the same process.
const (
	HeaderSize = 40
	headerLongs = HeaderSize / 8

	offsetNextBlock         = 0  // 8B, shared with the chain's next-block pointer
	offsetSegmentTime       = 8  // 4B
	offsetCurrentBlock      = 12 // 8B
	offsetLastTimestamp     = 20 // 4B
	offsetLastValue         = 24 // 8B
	offsetNumDataPoints     = 32 // 2B
	offsetBitIndex          = 34 // 2B
	offsetLastDelta         = 36 // 2B
	offsetLastLeadingZeros  = 38 // 1B, high bit = dirty
	offsetLastTrailingZeros = 39 // 1B, high bit = ooo
)

const (
	zerosFlag = 0x80
	zerosMask = 0x7F

	// TwoByteFlag marks the first byte of a 2-byte point count in the wire
	// format (see Serialize).
	TwoByteFlag = 0x80
)

// Wire-format type bytes (spec §6.2).
const (
	TypeGorillaLosslessSeconds = 0x01
	TypeGorillaLossySeconds    = 0x02
)

// Segment owns a chain of blocks: block 0 carries the 40-byte header
// overlaid on its payload, and WriteData/ReadData maintain a bit cursor
// that crosses block boundaries transparently.
//
// A Segment is not safe for concurrent use; it is owned by exactly one
// writer during a write session and exactly one reader during a read
// session (see the block/allocator for the one piece of shared state that
// does need to be concurrency-safe).
type Segment struct {
	alloc *block.Allocator
	addr  block.Address

	header *block.ByteView
	data   *block.LongView

	blockSizeLongs int
	blockSizeBits  int

	bitIndex int
	dirty    bool
	ooo      bool
	readMode bool
}

// CreateSegment allocates block 0 and writes the initial header for a new
// segment whose base time is segmentTime (unix seconds). The returned
// Address is the opaque handle passed to OpenSegment/CollectSegment later.
func CreateSegment(alloc *block.Allocator, segmentTime int32) (*Segment, error) {
	addr, err := alloc.Malloc()
	if err != nil {
		return nil, err
	}

	header, err := block.NewByteView(alloc, addr)
	if err != nil {
		return nil, err
	}

	data, err := block.NewLongView(alloc, addr)
	if err != nil {
		return nil, err
	}

	s := &Segment{
		alloc:          alloc,
		addr:           addr,
		header:         header,
		data:           data,
		blockSizeLongs: alloc.BlockSize() / 8,
		blockSizeBits:  alloc.BlockSize() * 8,
		bitIndex:       headerLongs * 64,
	}

	if err := s.header.SetInt(offsetSegmentTime, uint32(segmentTime)); err != nil {
		return nil, err
	}
	if err := s.header.SetInt(offsetLastTimestamp, uint32(segmentTime)); err != nil {
		return nil, err
	}
	if err := s.header.SetLong(offsetCurrentBlock, uint64(addr)); err != nil {
		return nil, err
	}
	if err := s.UpdateHeader(); err != nil {
		return nil, err
	}

	return s, nil
}

// OpenSegment binds a Segment to a previously created, possibly persisted,
// address: it restores the bit cursor and the dirty/out-of-order flags
// exactly from the header bytes, per the invariant that OpenSegment must
// reproduce pre-close state.
func OpenSegment(alloc *block.Allocator, addr block.Address) (*Segment, error) {
	header, err := block.NewByteView(alloc, addr)
	if err != nil {
		return nil, err
	}

	lz, err := header.GetByte(offsetLastLeadingZeros)
	if err != nil {
		return nil, err
	}
	tz, err := header.GetByte(offsetLastTrailingZeros)
	if err != nil {
		return nil, err
	}

	curBlock, err := header.GetLong(offsetCurrentBlock)
	if err != nil {
		return nil, err
	}

	data, err := block.NewLongView(alloc, block.Address(curBlock))
	if err != nil {
		return nil, err
	}

	bitIndex, err := header.GetShort(offsetBitIndex)
	if err != nil {
		return nil, err
	}

	return &Segment{
		alloc:          alloc,
		addr:           addr,
		header:         header,
		data:           data,
		blockSizeLongs: alloc.BlockSize() / 8,
		blockSizeBits:  alloc.BlockSize() * 8,
		bitIndex:       int(bitIndex),
		dirty:          lz&zerosFlag != 0,
		ooo:            tz&zerosFlag != 0,
	}, nil
}

// Address returns the segment's block-0 handle.
func (s *Segment) Address() block.Address { return s.addr }

// String implements fmt.Stringer for compact diagnostic logging.
func (s *Segment) String() string {
	n, _ := s.GetNumDataPoints()
	t, _ := s.GetSegmentTime()

	return fmt.Sprintf("segment{time=%d points=%d dirty=%t ooo=%t}", t, n, s.dirty, s.ooo)
}

// WriteData appends the low nBits of value, most-significant bit first, at
// the current cursor, allocating a new block if the write would cross the
// end of the current one.
func (s *Segment) WriteData(value uint64, nBits int) error {
	if s.readMode {
		return errs.ErrNotInWriteMode
	}
	if nBits < 1 || nBits > 64 {
		return fmt.Errorf("%w: %d", errs.ErrInvalidBitWidth, nBits)
	}

	if !s.dirty {
		lz, err := s.getLastValueLeadingZerosMasked()
		if err != nil {
			return err
		}
		if err := s.header.SetByte(offsetLastLeadingZeros, lz|zerosFlag); err != nil {
			return err
		}
		s.dirty = true
	}

	longIx := s.bitIndex / 64
	shift := s.bitIndex % 64

	v1 := (value << uint(64-nBits)) >> uint(shift)
	cur, err := s.data.Get(longIx)
	if err != nil {
		return err
	}
	if err := s.data.Set(longIx, cur|v1); err != nil {
		return err
	}

	shiftPrime := shift + nBits
	if shiftPrime < 64 {
		s.bitIndex += nBits

		return nil
	}

	blockAdded := false
	if s.bitIndex+nBits >= s.blockSizeBits {
		blockAdded = true

		newAddr, err := s.alloc.Malloc()
		if err != nil {
			return err
		}
		if err := s.data.Set(0, uint64(newAddr)); err != nil {
			return err
		}
		if err := s.data.Rebind(newAddr); err != nil {
			return err
		}
		if err := s.header.SetLong(offsetCurrentBlock, uint64(newAddr)); err != nil {
			return err
		}
		s.bitIndex = 64
		longIx = 0
	}

	shiftPrime -= 64
	longIx++

	if shiftPrime != 0 {
		v2 := value << uint(64-shiftPrime)
		cur2, err := s.data.Get(longIx)
		if err != nil {
			return err
		}
		if err := s.data.Set(longIx, cur2|v2); err != nil {
			return err
		}
	}

	s.bitIndex += shiftPrime
	if !blockAdded {
		s.bitIndex += nBits - shiftPrime
	}

	return nil
}

// ReadData consumes nBits from the cursor, most-significant bit first,
// zero-extended into the returned uint64.
func (s *Segment) ReadData(nBits int) (uint64, error) {
	if !s.readMode {
		return 0, errs.ErrNotInReadMode
	}
	if nBits < 0 || nBits > 64 {
		return 0, fmt.Errorf("%w: %d", errs.ErrInvalidBitWidth, nBits)
	}

	longIx := s.bitIndex / 64
	shift := s.bitIndex % 64

	word, err := s.data.Get(longIx)
	if err != nil {
		return 0, err
	}

	if 64-shift > nBits {
		result := (word << uint(shift)) >> uint(64-nBits)
		s.bitIndex += nBits

		return result, nil
	}

	result := (word << uint(shift)) >> uint(shift)
	shiftPrime := shift + nBits

	if shiftPrime < 64 {
		s.bitIndex += nBits

		return result, nil
	}

	movedToNextBlock := false
	if s.bitIndex+nBits >= s.blockSizeBits {
		movedToNextBlock = true

		nextAddr, err := s.data.Get(0)
		if err != nil {
			return 0, err
		}
		if nextAddr == 0 {
			return 0, errs.ErrUnexpectedEndOfStream
		}
		if err := s.data.Rebind(block.Address(nextAddr)); err != nil {
			return 0, err
		}
		s.bitIndex = 64
		longIx = 0
	}

	shiftPrime -= 64
	longIx++

	if shiftPrime != 0 {
		word2, err := s.data.Get(longIx)
		if err != nil {
			return 0, err
		}
		result = (result << uint(shiftPrime)) | (word2 >> uint(64-shiftPrime))
	}

	s.bitIndex += shiftPrime
	if !movedToNextBlock {
		s.bitIndex += nBits - shiftPrime
	}

	return result, nil
}

// ResetCursor rebinds the data view to block 0, positions the cursor at the
// first payload bit, and enters Read mode.
func (s *Segment) ResetCursor() error {
	if err := s.data.Rebind(s.addr); err != nil {
		return err
	}
	s.bitIndex = headerLongs * 64
	s.readMode = true

	return nil
}

// Reset rewinds the cursor and rewrites the tail-block pointer back to
// block 0, as used before re-reading a segment during serialization.
func (s *Segment) Reset() error {
	if err := s.ResetCursor(); err != nil {
		return err
	}

	return s.header.SetLong(offsetCurrentBlock, uint64(s.addr))
}

// UpdateHeader persists the in-memory bit cursor into the header.
func (s *Segment) UpdateHeader() error {
	return s.header.SetShort(offsetBitIndex, uint16(s.bitIndex))
}

// Free walks the chain from block 0, releasing every block back to the
// allocator, including block 0 itself. The chain is guaranteed acyclic by
// construction, so Free always terminates.
func (s *Segment) Free() error {
	if err := s.ResetCursor(); err != nil {
		return err
	}

	next, err := s.data.Get(0)
	if err != nil {
		return err
	}

	for next != 0 {
		addr := block.Address(next)
		if err := s.data.Rebind(addr); err != nil {
			return err
		}

		next, err = s.data.Get(0)
		if err != nil {
			return err
		}

		if err := s.alloc.Free(addr); err != nil {
			return err
		}
	}

	return s.alloc.Free(s.addr)
}

// IsDirty reports whether bits have been written since the last MarkFlushed.
func (s *Segment) IsDirty() bool { return s.dirty }

// HasDupesOrOutOfOrderData reports whether any sample was written with a
// timestamp at or before the previous last timestamp.
func (s *Segment) HasDupesOrOutOfOrderData() bool { return s.ooo }

// MarkFlushed clears the dirty flag, in memory and in the header byte.
func (s *Segment) MarkFlushed() error {
	s.dirty = false
	lz, err := s.getLastValueLeadingZerosMasked()
	if err != nil {
		return err
	}

	return s.header.SetByte(offsetLastLeadingZeros, lz)
}

// GetSegmentTime returns the segment's base timestamp, in seconds.
func (s *Segment) GetSegmentTime() (int32, error) {
	v, err := s.header.GetInt(offsetSegmentTime)

	return int32(v), err
}

// GetNumDataPoints returns the count of samples written so far.
func (s *Segment) GetNumDataPoints() (uint16, error) {
	return s.header.GetShort(offsetNumDataPoints)
}

// SetNumDataPoints overwrites the sample count.
func (s *Segment) SetNumDataPoints(n uint16) error {
	return s.header.SetShort(offsetNumDataPoints, n)
}

// GetLastTimestamp returns the most recently written sample's timestamp.
func (s *Segment) GetLastTimestamp() (int32, error) {
	v, err := s.header.GetInt(offsetLastTimestamp)

	return int32(v), err
}

// SetLastTimestamp records ts as the most recent sample timestamp. If ts is
// at or before the previously recorded timestamp (and at least one sample
// already exists), the out-of-order flag is set and latched for the life of
// the segment.
func (s *Segment) SetLastTimestamp(ts int32) error {
	n, err := s.GetNumDataPoints()
	if err != nil {
		return err
	}

	if !s.ooo && n >= 1 {
		last, err := s.GetLastTimestamp()
		if err != nil {
			return err
		}
		if ts <= last {
			s.ooo = true
			tz, err := s.GetLastValueTrailingZeros()
			if err != nil {
				return err
			}
			if err := s.SetLastValueTrailingZeros(tz); err != nil {
				return err
			}
		}
	}

	return s.header.SetInt(offsetLastTimestamp, uint32(ts))
}

// GetLastValue returns the raw 64-bit pattern of the most recently written
// sample's value.
func (s *Segment) GetLastValue() (uint64, error) {
	return s.header.GetLong(offsetLastValue)
}

// SetLastValue records the raw 64-bit pattern of the most recent value.
func (s *Segment) SetLastValue(raw uint64) error {
	return s.header.SetLong(offsetLastValue, raw)
}

// GetLastTimestampDelta returns the delta used to encode the most recent
// timestamp.
func (s *Segment) GetLastTimestampDelta() (int16, error) {
	v, err := s.header.GetShort(offsetLastDelta)

	return int16(v), err
}

// SetLastTimestampDelta records the delta used to encode the most recent
// timestamp.
func (s *Segment) SetLastTimestampDelta(delta int16) error {
	return s.header.SetShort(offsetLastDelta, uint16(delta))
}

// GetLastValueLeadingZeros returns the leading-zero count of the most
// recent value's XOR, with the dirty flag bit masked off.
func (s *Segment) GetLastValueLeadingZeros() (byte, error) {
	return s.getLastValueLeadingZerosMasked()
}

// SetLastValueLeadingZeros records the leading-zero count, always setting
// the dirty bit — mirroring the packed header byte, which is cleared
// explicitly (and only) by MarkFlushed.
func (s *Segment) SetLastValueLeadingZeros(lz byte) error {
	return s.header.SetByte(offsetLastLeadingZeros, (lz&zerosMask)|zerosFlag)
}

// GetLastValueTrailingZeros returns the trailing-zero count of the most
// recent value's XOR, with the out-of-order flag bit masked off.
func (s *Segment) GetLastValueTrailingZeros() (byte, error) {
	b, err := s.header.GetByte(offsetLastTrailingZeros)

	return b & zerosMask, err
}

// SetLastValueTrailingZeros records the trailing-zero count, packing in the
// current out-of-order flag's high bit.
func (s *Segment) SetLastValueTrailingZeros(tz byte) error {
	encoded := tz & zerosMask
	if s.ooo {
		encoded |= zerosFlag
	}

	return s.header.SetByte(offsetLastTrailingZeros, encoded)
}

func (s *Segment) getLastValueLeadingZerosMasked() (byte, error) {
	b, err := s.header.GetByte(offsetLastLeadingZeros)

	return b & zerosMask, err
}

// SerializationLength returns the number of bytes Serialize would write for
// the segment's current contents.
func (s *Segment) SerializationLength() (int, error) {
	numDP, err := s.GetNumDataPoints()
	if err != nil {
		return 0, err
	}

	total := 1
	if numDP <= 127 {
		total++
	} else {
		total += 2
	}

	headerRemaining := s.alloc.BlockSize() - HeaderSize
	finalBytes := int(math.Ceil(float64(s.bitIndex) / 8.0))

	walker, err := block.NewLongView(s.alloc, s.addr)
	if err != nil {
		return 0, err
	}

	nextAddress := uint64(s.addr)
	for nextAddress != 0 {
		if err := walker.Rebind(block.Address(nextAddress)); err != nil {
			return 0, err
		}

		nextAddress, err = walker.Get(0)
		if err != nil {
			return 0, err
		}

		switch {
		case nextAddress == 0:
			total += finalBytes
			if walker.Address() == s.addr {
				total -= HeaderSize
			} else {
				total -= 8
			}

			return total, nil
		case walker.Address() == s.addr:
			total += headerRemaining + 1

			continue
		default:
			total += s.alloc.BlockSize() - 8
		}
	}

	return total, nil
}

// BlockCount walks the chain from block 0 and returns the number of blocks
// currently owned by the segment. It is intended for diagnostics (e.g.
// feeding a metrics.Sink gauge), not the hot write/read path.
func (s *Segment) BlockCount() (int, error) {
	walker, err := block.NewLongView(s.alloc, s.addr)
	if err != nil {
		return 0, err
	}

	count := 1
	next, err := walker.Get(0)
	if err != nil {
		return 0, err
	}

	for next != 0 {
		if err := walker.Rebind(block.Address(next)); err != nil {
			return 0, err
		}

		next, err = walker.Get(0)
		if err != nil {
			return 0, err
		}

		count++
	}

	return count, nil
}

// FreeChain releases every block of the chain rooted at addr, without
// requiring a bound Segment. It is used by the collector to retire a
// segment that was enqueued by address only.
func FreeChain(alloc *block.Allocator, addr block.Address) error {
	data, err := block.NewLongView(alloc, addr)
	if err != nil {
		return err
	}

	next, err := data.Get(0)
	if err != nil {
		return err
	}

	for next != 0 {
		cur := block.Address(next)
		if err := data.Rebind(cur); err != nil {
			return err
		}

		next, err = data.Get(0)
		if err != nil {
			return err
		}

		if err := alloc.Free(cur); err != nil {
			return err
		}
	}

	return alloc.Free(addr)
}

// Serialize writes the segment's wire-format representation (type byte,
// variable-length point count, then the compressed bitstream with
// next-pointers stripped) into buf[offset:offset+length]. If length is less
// than SerializationLength, the bitstream is truncated at the byte
// boundary closest to length, matching the documented streaming/partial
// write behavior; callers that require a complete serialization must size
// the buffer using SerializationLength first.
func (s *Segment) Serialize(buf []byte, offset, length int, lossy bool) error {
	if offset < 0 || length < 0 || offset+length > len(buf) {
		return fmt.Errorf("%w: buffer len %d, offset %d, length %d", errs.ErrBufferTooSmall, len(buf), offset, length)
	}

	savedBitIndex := s.bitIndex
	if err := s.ResetCursor(); err != nil {
		return err
	}

	end := offset + length
	index := offset

	typeByte := byte(TypeGorillaLosslessSeconds)
	if lossy {
		typeByte = TypeGorillaLossySeconds
	}
	buf[index] = typeByte
	index++

	numDP, err := s.GetNumDataPoints()
	if err != nil {
		return err
	}

	if numDP <= 127 {
		buf[index] = byte(numDP)
		index++
	} else {
		buf[index] = byte(numDP>>8) | TwoByteFlag
		index++
		buf[index] = byte(numDP)
		index++
	}

	blockIndex := headerLongs
	walker, err := block.NewLongView(s.alloc, s.addr)
	if err != nil {
		return err
	}

	nextAddress, err := walker.Get(0)
	if err != nil {
		return err
	}

	// ceil(bits/8) bytes, then floor-divided into 8-byte words — matches the
	// original's own accounting for the final block's word count.
	finalWords := int(math.Ceil(float64(savedBitIndex)/8.0)) / 8
	engine := s.alloc.Engine()

	for blockIndex < s.blockSizeLongs {
		if nextAddress == 0 && blockIndex > finalWords {
			break
		}

		lv, err := walker.Get(blockIndex)
		if err != nil {
			return err
		}
		blockIndex++

		if index+8 >= end {
			shift := 56
			for index < end {
				buf[index] = byte(lv >> uint(shift))
				index++
				shift -= 8
			}
		} else {
			engine.PutUint64(buf[index:index+8], lv)
			index += 8
		}

		if blockIndex >= s.blockSizeLongs {
			if nextAddress == 0 {
				break
			}
			if err := walker.Rebind(block.Address(nextAddress)); err != nil {
				return err
			}
			nextAddress, err = walker.Get(0)
			if err != nil {
				return err
			}
			blockIndex = 1
		}
	}

	return nil
}
