// Package errs defines the sentinel errors returned by the block, segment,
// gorilla, collector, and flush packages.
//
// Callers compare against these with errors.Is; wrapped occurrences carry
// additional context via fmt.Errorf("%w: ...", errs.ErrXxx).
package errs

import "errors"

var (
	// ErrAllocationFailed is returned when the block allocator cannot satisfy
	// a Malloc request (capacity exhausted).
	ErrAllocationFailed = errors.New("block: allocation failed")

	// ErrInvalidOffset is returned when a view is accessed with an out-of-range
	// byte offset or word index.
	ErrInvalidOffset = errors.New("block: invalid offset")

	// ErrInvalidBlockSize is returned when an allocator is configured with a
	// block size that is not a positive multiple of 8.
	ErrInvalidBlockSize = errors.New("block: invalid block size")

	// ErrUnexpectedEndOfStream is returned when a read encounters a zero
	// next-block pointer where a successor block was expected.
	ErrUnexpectedEndOfStream = errors.New("segment: unexpected end of stream")

	// ErrInvalidBitWidth is returned when writeData/readData is called with a
	// bit width outside the permitted range.
	ErrInvalidBitWidth = errors.New("segment: invalid bit width")

	// ErrNotInReadMode is returned when readData is called before resetCursor.
	ErrNotInReadMode = errors.New("segment: not in read mode, call ResetCursor first")

	// ErrNotInWriteMode is returned when writeData is called after resetCursor
	// without re-opening the segment.
	ErrNotInWriteMode = errors.New("segment: not in write mode, re-open the segment")

	// ErrBufferTooSmall is returned by Serialize when it is asked to write more
	// bytes than the supplied buffer region can hold at the given offset.
	ErrBufferTooSmall = errors.New("segment: buffer too small for serialize")

	// ErrInvalidAddress is returned when OpenSegment/CollectSegment/FreeSegment
	// is called with the zero address or an address the allocator never issued.
	ErrInvalidAddress = errors.New("block: invalid address")

	// ErrDedupeBufferSize is returned by ReadAndDedupe when the supplied buffer
	// length does not match the segment's configured window length.
	ErrDedupeBufferSize = errors.New("gorilla: dedupe buffer size mismatch")

	// ErrUnknownCodec is returned by flush.GetCodec for an unregistered
	// compression type.
	ErrUnknownCodec = errors.New("flush: unknown codec")

	// ErrChecksumMismatch is returned by flush.Open when the envelope's stored
	// checksum does not match the decompressed payload.
	ErrChecksumMismatch = errors.New("flush: checksum mismatch")

	// ErrEnvelopeTooShort is returned by flush.Open when the input is smaller
	// than the fixed envelope header.
	ErrEnvelopeTooShort = errors.New("flush: envelope too short")
)
