package segment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gorillaseg/gorillaseg/block"
	"github.com/gorillaseg/gorillaseg/endian"
	"github.com/gorillaseg/gorillaseg/errs"
)

func newTestAllocator(t *testing.T, blockSize int) *block.Allocator {
	t.Helper()

	a, err := block.NewAllocator(blockSize, endian.GetLittleEndianEngine())
	require.NoError(t, err)

	return a
}

// Scenario 1: an empty segment serializes to exactly [typeByte, 0].
func TestSegment_EmptySegmentSerializesToTwoBytes(t *testing.T) {
	alloc := newTestAllocator(t, 256)

	seg, err := CreateSegment(alloc, 1_700_000_000)
	require.NoError(t, err)
	require.NoError(t, seg.UpdateHeader())

	n, err := seg.SerializationLength()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	buf := make([]byte, n)
	require.NoError(t, seg.Serialize(buf, 0, n, false))
	require.Equal(t, []byte{TypeGorillaLosslessSeconds, 0x00}, buf)
}

// Reset is part of the segment's external interface (spec §4.2 reset()) even
// though, internally, Serialize only ever calls the narrower ResetCursor
// (matching the Java original): it must rewind the cursor into read mode
// *and* rewrite the tail-block pointer back to block 0, so a caller that
// used Reset can safely re-derive the chain's tail by writing again later.
func TestSegment_ResetRewindsCursorAndTailPointer(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, seg.WriteData(uint64(i%2), 1))
	}
	require.NoError(t, seg.UpdateHeader())

	tailBefore, err := seg.header.GetLong(offsetCurrentBlock)
	require.NoError(t, err)
	require.NotEqual(t, uint64(seg.addr), tailBefore, "writes must have advanced the tail block")

	require.NoError(t, seg.Reset())
	require.True(t, seg.readMode)
	require.Equal(t, headerLongs*64, seg.bitIndex)

	tailAfter, err := seg.header.GetLong(offsetCurrentBlock)
	require.NoError(t, err)
	require.Equal(t, uint64(seg.addr), tailAfter)

	got, err := seg.ReadData(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), got, "first written bit should be readable again from block 0")
}

func TestSegment_WriteDataThenReadDataRoundTrips(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	values := []struct {
		v     uint64
		width int
	}{
		{1, 1},
		{0, 1},
		{0x3F, 6},
		{0x1FF, 9},
		{0xDEADBEEF, 32},
		{0x0123456789ABCDEF, 64},
	}

	for _, tc := range values {
		require.NoError(t, seg.WriteData(tc.v, tc.width))
	}
	require.NoError(t, seg.UpdateHeader())

	require.NoError(t, seg.ResetCursor())
	for _, tc := range values {
		got, err := seg.ReadData(tc.width)
		require.NoError(t, err)
		require.Equal(t, tc.v, got, "width=%d", tc.width)
	}
}

func TestSegment_WriteDataCrossesBlockBoundary(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, seg.WriteData(uint64(i%2), 1))
	}
	require.NoError(t, seg.UpdateHeader())
	require.Greater(t, alloc.Outstanding(), 1, "write should have allocated more than one block")

	require.NoError(t, seg.ResetCursor())
	for i := 0; i < n; i++ {
		got, err := seg.ReadData(1)
		require.NoError(t, err)
		require.Equal(t, uint64(i%2), got)
	}
}

func TestSegment_ReadPastEndOfChainErrors(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)
	require.NoError(t, seg.WriteData(1, 1))
	require.NoError(t, seg.UpdateHeader())

	require.NoError(t, seg.ResetCursor())
	_, err = seg.ReadData(1)
	require.NoError(t, err)

	// Force the cursor to the very end of the chain's only block so that the
	// next read must follow a next-pointer that was never set.
	for {
		_, err = seg.ReadData(1)
		if err != nil {
			break
		}
	}
	require.ErrorIs(t, err, errs.ErrUnexpectedEndOfStream)
}

func TestSegment_WriteInReadModeRejected(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)
	require.NoError(t, seg.ResetCursor())

	err = seg.WriteData(1, 1)
	require.ErrorIs(t, err, errs.ErrNotInWriteMode)
}

func TestSegment_ReadBeforeResetCursorRejected(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	_, err = seg.ReadData(1)
	require.ErrorIs(t, err, errs.ErrNotInReadMode)
}

func TestSegment_InvalidBitWidthRejected(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	err = seg.WriteData(1, 0)
	require.ErrorIs(t, err, errs.ErrInvalidBitWidth)

	err = seg.WriteData(1, 65)
	require.ErrorIs(t, err, errs.ErrInvalidBitWidth)
}

func TestSegment_DirtyFlagLifecycle(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	require.False(t, seg.IsDirty())
	require.NoError(t, seg.WriteData(1, 1))
	require.True(t, seg.IsDirty())

	require.NoError(t, seg.MarkFlushed())
	require.False(t, seg.IsDirty())
}

func TestSegment_OutOfOrderFlagLatches(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 1000)
	require.NoError(t, err)

	require.NoError(t, seg.SetNumDataPoints(1))
	require.NoError(t, seg.SetLastTimestamp(1010))
	require.False(t, seg.HasDupesOrOutOfOrderData())

	// Same timestamp again: out of order / duplicate.
	require.NoError(t, seg.SetLastTimestamp(1010))
	require.True(t, seg.HasDupesOrOutOfOrderData())

	// Flag must latch even once later writes are monotonic again.
	require.NoError(t, seg.SetLastTimestamp(1020))
	require.True(t, seg.HasDupesOrOutOfOrderData())
}

func TestSegment_OpenSegmentRestoresCursorAndFlags(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 500)
	require.NoError(t, err)

	require.NoError(t, seg.WriteData(0b101, 3))
	require.NoError(t, seg.SetNumDataPoints(1))
	require.NoError(t, seg.SetLastTimestamp(500))
	require.NoError(t, seg.SetLastTimestamp(500)) // latch ooo
	require.NoError(t, seg.UpdateHeader())

	addr := seg.Address()

	reopened, err := OpenSegment(alloc, addr)
	require.NoError(t, err)
	require.True(t, reopened.HasDupesOrOutOfOrderData())
	require.True(t, reopened.IsDirty())

	require.NoError(t, reopened.ResetCursor())
	got, err := reopened.ReadData(3)
	require.NoError(t, err)
	require.Equal(t, uint64(0b101), got)
}

func TestSegment_FreeReturnsAllBlocksAndTerminates(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, seg.WriteData(uint64(i), 8))
	}
	require.NoError(t, seg.UpdateHeader())

	before := alloc.Outstanding()
	require.Greater(t, before, 1)

	require.NoError(t, seg.Free())
	require.Equal(t, 0, alloc.Outstanding())
}

func TestSegment_SerializeUsesTwoByteCountAbove127(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		require.NoError(t, seg.WriteData(uint64(i%7), 3))
	}
	require.NoError(t, seg.SetNumDataPoints(300))
	require.NoError(t, seg.UpdateHeader())

	n, err := seg.SerializationLength()
	require.NoError(t, err)
	require.Greater(t, n, 0)

	buf := make([]byte, n)
	require.NoError(t, seg.Serialize(buf, 0, n, false))
	// 300 > 127 so the point count must use the two-byte form.
	require.NotZero(t, buf[1]&TwoByteFlag)
}

func TestSegment_SerializeTruncatesToSuppliedLength(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		require.NoError(t, seg.WriteData(uint64(i%7), 3))
	}
	require.NoError(t, seg.SetNumDataPoints(300))
	require.NoError(t, seg.UpdateHeader())

	full, err := seg.SerializationLength()
	require.NoError(t, err)

	short := make([]byte, full-5)
	require.NoError(t, seg.Serialize(short, 0, len(short), false))
}

func TestSegment_SerializeRejectsOversizedRegion(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)
	require.NoError(t, seg.UpdateHeader())

	buf := make([]byte, 1)
	err = seg.Serialize(buf, 0, 10, false)
	require.ErrorIs(t, err, errs.ErrBufferTooSmall)
}

func TestSegment_BlockCountTracksChainGrowth(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	n, err := seg.BlockCount()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	for i := 0; i < 500; i++ {
		require.NoError(t, seg.WriteData(1, 8))
	}

	n, err = seg.BlockCount()
	require.NoError(t, err)
	require.Greater(t, n, 1)
}

func TestFreeChain_FreesWithoutBoundSegment(t *testing.T) {
	alloc := newTestAllocator(t, 64)
	seg, err := CreateSegment(alloc, 0)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		require.NoError(t, seg.WriteData(1, 8))
	}
	require.NoError(t, seg.UpdateHeader())

	addr := seg.Address()
	require.Greater(t, alloc.Outstanding(), 1)

	require.NoError(t, FreeChain(alloc, addr))
	require.Equal(t, 0, alloc.Outstanding())
}
