package services

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSample_DistinctAndFromPool(t *testing.T) {
	pool := roster(20)
	src := seededSource(1)

	for k := 0; k <= len(pool); k++ {
		got, err := Sample(pool, k, src)
		require.NoError(t, err)
		require.Len(t, got, k)

		seen := map[string]bool{}
		for _, p := range got {
			require.False(t, seen[p.ID], "duplicate %s", p.ID)
			require.True(t, strings.HasPrefix(p.ID, "p"))
			seen[p.ID] = true
		}
	}
}

func TestSample_DoesNotModifyPool(t *testing.T) {
	pool := roster(5)
	before := append(pool[:0:0], pool...)

	_, err := Sample(pool, 5, seededSource(3))
	require.NoError(t, err)
	assert.Equal(t, before, pool)
}

func TestSample_RejectsOversizedDraw(t *testing.T) {
	_, err := Sample(roster(2), 3, seededSource(1))
	require.Error(t, err)
	_, err = Sample(roster(2), -1, seededSource(1))
	require.Error(t, err)
}

func TestSample_PerPersonFrequency(t *testing.T) {
	const (
		m      = 10
		k      = 3
		trials = 30000
	)
	pool := roster(m)
	src := seededSource(42)
	counts := map[string]int{}

	for i := 0; i < trials; i++ {
		got, err := Sample(pool, k, src)
		require.NoError(t, err)
		for _, p := range got {
			counts[p.ID]++
		}
	}

	want := float64(k) / float64(m)
	for _, p := range pool {
		freq := float64(counts[p.ID]) / trials
		assert.InDelta(t, want, freq, 0.02, "person %s drawn with frequency %.4f", p.ID, freq)
	}
}

func TestSample_SubsetUniformity(t *testing.T) {
	const trials = 60000
	pool := roster(4)
	src := seededSource(99)
	counts := map[string]int{}

	for i := 0; i < trials; i++ {
		got, err := Sample(pool, 2, src)
		require.NoError(t, err)
		ids := []string{got[0].ID, got[1].ID}
		sort.Strings(ids)
		counts[strings.Join(ids, ",")]++
	}

	require.Len(t, counts, 6)
	for subset, n := range counts {
		assert.InDelta(t, trials/6, n, 600, "subset %s drawn %d times", subset, n)
	}
}

func TestNewRandomSource(t *testing.T) {
	src, err := NewRandomSource()
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		n := src.Intn(5)
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 5)
	}
}

func TestShuffle_IsPermutation(t *testing.T) {
	pool := roster(8)
	got := Shuffle(pool, seededSource(5))
	require.Len(t, got, 8)
	assert.ElementsMatch(t, pool, got)
}
