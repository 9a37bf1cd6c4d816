package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gorillaseg/gorillaseg/block"
)

func TestQueue_FreeCollectedRespectsDelay(t *testing.T) {
	var freed []block.Address
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	q := NewQueue(10, 5*time.Second, func(a block.Address) error {
		freed = append(freed, a)
		return nil
	}, WithClock(func() time.Time { return clock() }))

	require.NoError(t, q.Collect(1))
	now = now.Add(2 * time.Second)
	require.NoError(t, q.Collect(2))

	require.NoError(t, q.FreeCollected())
	require.Empty(t, freed, "nothing should age past the delay yet")

	now = now.Add(4 * time.Second) // addr 1 is now 6s old, addr 2 is 4s old
	require.NoError(t, q.FreeCollected())
	require.Equal(t, []block.Address{1}, freed)
	require.Equal(t, 1, q.Len())

	now = now.Add(2 * time.Second)
	require.NoError(t, q.FreeCollected())
	require.Equal(t, []block.Address{1, 2}, freed)
	require.Equal(t, 0, q.Len())
}

func TestQueue_CollectOverflowFreesOldestSynchronously(t *testing.T) {
	var freed []block.Address
	q := NewQueue(2, time.Hour, func(a block.Address) error {
		freed = append(freed, a)
		return nil
	})

	require.NoError(t, q.Collect(1))
	require.NoError(t, q.Collect(2))
	require.Empty(t, freed)

	require.NoError(t, q.Collect(3))
	require.Equal(t, []block.Address{1}, freed, "oldest entry must be freed on overflow")
	require.Equal(t, 2, q.Len())
}

func TestQueue_UnboundedCapacityNeverOverflows(t *testing.T) {
	var freed []block.Address
	q := NewQueue(0, time.Hour, func(a block.Address) error {
		freed = append(freed, a)
		return nil
	})

	for i := 1; i <= 100; i++ {
		require.NoError(t, q.Collect(block.Address(i)))
	}
	require.Empty(t, freed)
	require.Equal(t, 100, q.Len())
}
