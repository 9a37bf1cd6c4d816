package flush

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/gorillaseg/gorillaseg/endian"
	"github.com/gorillaseg/gorillaseg/errs"
	"github.com/gorillaseg/gorillaseg/internal/pool"
)

// envelopeHeaderSize is the fixed prefix before the compressed payload:
// one byte identifying the codec, eight bytes of little-endian xxhash64
// over the uncompressed payload.
const envelopeHeaderSize = 1 + 8

// engine is the byte order used for the envelope's checksum field, matching
// the little-endian convention block and segment use for header fields.
var engine = endian.GetLittleEndianEngine()

// Wrap compresses data with codec and frames it as
// [1B CompressionType][8B xxhash64(data), little-endian][compressed data].
// The checksum covers the uncompressed payload so Open can detect bit rot
// in either the envelope or the compressed body.
func Wrap(t CompressionType, data []byte) ([]byte, error) {
	codec, err := GetCodec(t)
	if err != nil {
		return nil, err
	}

	compressed, err := codec.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("flush: compress with %s: %w", t, err)
	}

	sum := xxhash.Sum64(data)

	bb := pool.GetBlobBuffer()
	defer pool.PutBlobBuffer(bb)

	var header [envelopeHeaderSize]byte
	header[0] = byte(t)
	engine.PutUint64(header[1:9], sum)
	bb.MustWrite(header[:])
	bb.MustWrite(compressed)

	out := make([]byte, bb.Len())
	copy(out, bb.Bytes())

	return out, nil
}

// Open reverses Wrap, returning the original uncompressed payload after
// verifying its checksum.
func Open(envelope []byte) ([]byte, error) {
	if len(envelope) < envelopeHeaderSize {
		return nil, errs.ErrEnvelopeTooShort
	}

	t := CompressionType(envelope[0])
	wantSum := engine.Uint64(envelope[1:9])

	codec, err := GetCodec(t)
	if err != nil {
		return nil, err
	}

	data, err := codec.Decompress(envelope[envelopeHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("flush: decompress with %s: %w", t, err)
	}

	if gotSum := xxhash.Sum64(data); gotSum != wantSum {
		return nil, fmt.Errorf("%w: want %x got %x", errs.ErrChecksumMismatch, wantSum, gotSum)
	}

	return data, nil
}
