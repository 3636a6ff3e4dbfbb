package bitalloc //nolint:testpackage // it's OK to be just bitalloc

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

const workers = 8

// TestConcurrentUnique drains the allocator from several goroutines and
// checks every index was handed out exactly once
func TestConcurrentUnique(t *testing.T) {
	for _, w := range allWidths {
		t.Run(fmt.Sprintf("word%d", w), func(t *testing.T) {
			a := New(4096, WithWordWidth(w))
			got := make([][]uint64, workers)

			var g errgroup.Group
			for i := range workers {
				g.Go(func() error {
					for {
						idx, ok := a.AllocBit()
						if !ok {
							return nil
						}
						got[i] = append(got[i], idx)
					}
				})
			}
			require.NoError(t, g.Wait())

			seen := make(map[uint64]struct{}, a.Len())
			for _, idxs := range got {
				for _, idx := range idxs {
					_, dup := seen[idx]
					require.False(t, dup, "index %d allocated twice", idx)
					seen[idx] = struct{}{}
				}
			}
			assert.Len(t, seen, int(a.Len()))
			assert.Equal(t, a.Len(), a.Count())

			_, ok := a.AllocBit()
			assert.False(t, ok)
		})
	}
}

// TestConcurrentChurn allocates and releases from many goroutines and checks
// no bit is ever owned twice
func TestConcurrentChurn(t *testing.T) {
	for _, w := range allWidths {
		t.Run(fmt.Sprintf("word%d", w), func(t *testing.T) {
			a := New(uint64(w), WithWordWidth(w), WithYieldAfter(4))
			owners := make([]atomic.Int32, a.Len())

			var g errgroup.Group
			for i := range workers {
				g.Go(func() error {
					for range 2000 {
						idx, ok := a.AllocBit()
						if !ok {
							return fmt.Errorf("worker %d: allocator unexpectedly full", i)
						}
						if !owners[idx].CompareAndSwap(0, int32(i+1)) {
							return fmt.Errorf("worker %d: index %d already owned", i, idx)
						}
						if !a.GetBit(idx) {
							return fmt.Errorf("worker %d: index %d not set", i, idx)
						}
						owners[idx].Store(0)
						if err := a.ClearBit(idx); err != nil {
							return fmt.Errorf("worker %d: %w", i, err)
						}
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			assert.Zero(t, a.Count())
			s := a.Stats()
			assert.Equal(t, uint64(workers*2000), s.Allocs)
			assert.Equal(t, uint64(workers*2000), s.Clears)
			assert.Zero(t, s.Exhausted)
		})
	}
}

// TestConcurrentDoubleRelease ensures exactly one of two racing releases wins
func TestConcurrentDoubleRelease(t *testing.T) {
	a := New(64)
	for range 100 {
		idx, ok := a.AllocBit()
		require.True(t, ok)

		var wins, rejected atomic.Int32
		var g errgroup.Group
		for range 2 {
			g.Go(func() error {
				err := a.ClearBit(idx)
				switch {
				case err == nil:
					wins.Add(1)
				case assert.ErrorIs(t, err, ErrNotAllocated):
					rejected.Add(1)
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(1), rejected.Load())
	}
	assert.Zero(t, a.Count())
}

// TestConcurrentReleaseDuringScan checks that bits released while other
// goroutines allocate are never lost to the search hint
func TestConcurrentReleaseDuringScan(t *testing.T) {
	a := New(64 * 64)
	for range a.Len() {
		_, ok := a.AllocBit()
		require.True(t, ok)
	}

	// Free every other word's first bit while allocators drain them
	var released atomic.Int64
	var claimed atomic.Int64
	var g errgroup.Group
	g.Go(func() error {
		for w := uint64(0); w < 64; w += 2 {
			if err := a.ClearBit(w * 64); err != nil {
				return err
			}
			released.Add(1)
		}
		return nil
	})
	for range workers {
		g.Go(func() error {
			for range 64 {
				if _, ok := a.AllocBit(); ok {
					claimed.Add(1)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Whatever was not claimed concurrently must still be reachable
	for claimed.Load() < released.Load() {
		_, ok := a.AllocBit()
		require.True(t, ok, "released bit lost: claimed %d of %d", claimed.Load(), released.Load())
		claimed.Add(1)
	}
	assert.Equal(t, a.Len(), a.Count())
}
