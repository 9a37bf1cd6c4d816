//go:build nobuild

package flush

import "github.com/valyala/gozstd"

// This file mirrors the pure-Go zstd codec with a cgo-backed one. It is kept
// behind a build tag that no real build configuration satisfies, the same
// way the compress package keeps its gozstd path — present for anyone who
// wires a cgo toolchain in, dead otherwise.

func (c ZstdCodec) Compress(data []byte) ([]byte, error) {
	return gozstd.CompressLevel(nil, data, 3), nil
}

func (c ZstdCodec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return gozstd.Decompress(nil, data)
}
