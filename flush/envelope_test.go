package flush

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gorillaseg/gorillaseg/errs"
)

func TestWrapOpen_RoundTripsForEveryCodec(t *testing.T) {
	payload := bytes.Repeat([]byte("gorilla-segment-payload"), 64)

	for _, ct := range []CompressionType{CompressionNone, CompressionZstd, CompressionS2, CompressionLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			wrapped, err := Wrap(ct, payload)
			require.NoError(t, err)
			require.Equal(t, byte(ct), wrapped[0])

			got, err := Open(wrapped)
			require.NoError(t, err)
			require.Equal(t, payload, got)
		})
	}
}

func TestWrap_EmptyPayloadRoundTrips(t *testing.T) {
	wrapped, err := Wrap(CompressionNone, nil)
	require.NoError(t, err)

	got, err := Open(wrapped)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestOpen_TooShortEnvelopeRejected(t *testing.T) {
	_, err := Open([]byte{0x01, 0x02})
	require.ErrorIs(t, err, errs.ErrEnvelopeTooShort)
}

func TestOpen_UnknownCodecRejected(t *testing.T) {
	wrapped, err := Wrap(CompressionNone, []byte("hello"))
	require.NoError(t, err)

	wrapped[0] = 0xFE
	_, err = Open(wrapped)
	require.ErrorIs(t, err, errs.ErrUnknownCodec)
}

func TestOpen_CorruptedPayloadFailsChecksum(t *testing.T) {
	wrapped, err := Wrap(CompressionNone, []byte("hello world"))
	require.NoError(t, err)

	// NoopCodec passes the payload through unchanged, so flipping a body
	// byte corrupts the checksummed content directly.
	wrapped[len(wrapped)-1] ^= 0xFF

	_, err = Open(wrapped)
	require.ErrorIs(t, err, errs.ErrChecksumMismatch)
}

func TestGetCodec_UnknownTypeRejected(t *testing.T) {
	_, err := GetCodec(CompressionType(0xEE))
	require.ErrorIs(t, err, errs.ErrUnknownCodec)
}
