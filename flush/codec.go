package flush

import (
	"fmt"

	"github.com/gorillaseg/gorillaseg/errs"
)

// Compressor compresses an envelope payload before it leaves the process.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Decompressor reverses a Compressor.
type Decompressor interface {
	Decompress(data []byte) ([]byte, error)
}

// Codec combines both directions of a single compression algorithm.
type Codec interface {
	Compressor
	Decompressor
}

// CompressionType identifies the codec an envelope was written with. It is
// stored as the envelope's leading byte, so values must stay stable once
// released.
type CompressionType byte

const (
	CompressionNone CompressionType = 0x01
	CompressionZstd CompressionType = 0x02
	CompressionS2   CompressionType = 0x03
	CompressionLZ4  CompressionType = 0x04
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

var builtinCodecs = map[CompressionType]Codec{
	CompressionNone: NewNoopCodec(),
	CompressionZstd: NewZstdCodec(),
	CompressionS2:   NewS2Codec(),
	CompressionLZ4:  NewLZ4Codec(),
}

// GetCodec retrieves the built-in Codec for t.
func GetCodec(t CompressionType) (Codec, error) {
	codec, ok := builtinCodecs[t]
	if !ok {
		return nil, fmt.Errorf("%w: 0x%02x", errs.ErrUnknownCodec, byte(t))
	}

	return codec, nil
}
