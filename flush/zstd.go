package flush

// ZstdCodec compresses envelopes with Zstandard, favoring ratio over speed.
// It is the codec a flush caller reaches for when handing a retired segment
// to cold storage, where decompression is rare and bandwidth or disk is the
// scarce resource.
type ZstdCodec struct{}

var _ Codec = ZstdCodec{}

func NewZstdCodec() ZstdCodec { return ZstdCodec{} }
