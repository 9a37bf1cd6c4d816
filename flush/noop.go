package flush

// NoopCodec passes envelope payloads through unchanged. It exists so an
// envelope can carry a checksum without paying a compression cost, or so
// flush can be exercised in tests without linking a real codec.
type NoopCodec struct{}

var _ Codec = NoopCodec{}

func NewNoopCodec() NoopCodec { return NoopCodec{} }

func (NoopCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (NoopCodec) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
