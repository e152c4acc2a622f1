package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingEvictsOldestFirst(t *testing.T) {
	r := NewRing[int](5)
	for i := 1; i <= 12; i++ {
		r.Append(i)
	}

	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []int{8, 9, 10, 11, 12}, r.Snapshot())
	assert.Equal(t, uint64(7), r.Evicted())

	latest, ok := r.Latest()
	require.True(t, ok)
	assert.Equal(t, 12, latest)
}

func TestRingLast(t *testing.T) {
	r := NewRing[int](4)

	_, ok := r.Latest()
	assert.False(t, ok)
	assert.Empty(t, r.Last(3))

	r.Append(1)
	r.Append(2)
	assert.Equal(t, []int{1, 2}, r.Last(10))
	assert.Equal(t, []int{2}, r.Last(1))

	for i := 3; i <= 6; i++ {
		r.Append(i)
	}
	assert.Equal(t, []int{4, 5, 6}, r.Last(3))
	assert.Equal(t, []int{3, 4, 5, 6}, r.Last(-1))
}

func TestRingSnapshotIsACopy(t *testing.T) {
	r := NewRing[int](3)
	r.Append(1)
	r.Append(2)

	snap := r.Snapshot()
	snap[0] = 100
	r.Append(3)
	r.Append(4)

	assert.Equal(t, []int{100, 2}, snap)
	assert.Equal(t, []int{2, 3, 4}, r.Snapshot())
}

func TestRingCapacityExactlyC(t *testing.T) {
	const capacity = EventCapacity
	r := NewRing[int](capacity)
	for i := 0; i < capacity+250; i++ {
		r.Append(i)
	}

	snap := r.Snapshot()
	require.Len(t, snap, capacity)
	assert.Equal(t, 250, snap[0])
	assert.Equal(t, capacity+249, snap[len(snap)-1])
}

func TestRingConcurrentAppendAndRead(t *testing.T) {
	r := NewRing[int](MetricsCapacity)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				r.Append(i)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			last := r.Last(10)
			assert.LessOrEqual(t, len(last), 10)
		}
	}()
	wg.Wait()

	assert.Equal(t, MetricsCapacity, r.Len())
}
