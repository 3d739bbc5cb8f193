package sim

import (
	mathrand "math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightedSampleNoDuplicates(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(42))
	pool := []int{1, 2, 3, 4, 5, 6, 7, 8}

	for trial := 0; trial < 50; trial++ {
		got := WeightedSample(rng, pool, func(n int) float64 { return float64(n) }, 4)
		require.Len(t, got, 4)
		seen := map[int]bool{}
		for _, n := range got {
			require.False(t, seen[n], "duplicate %d in %v", n, got)
			seen[n] = true
		}
	}
}

func TestWeightedSampleSmallPool(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(1))

	got := WeightedSample(rng, []int{7, 9}, func(int) float64 { return 1 }, 5)
	assert.ElementsMatch(t, []int{7, 9}, got, "asking for more than the pool holds returns everything")

	assert.Nil(t, WeightedSample(rng, nil, func(int) float64 { return 1 }, 3))
	assert.Nil(t, WeightedSample(rng, []int{1, 2}, func(int) float64 { return 1 }, 0))
}

func TestWeightedSampleSkipsNonPositive(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(7))
	pool := []int{-1, 0, 3, 5}

	for trial := 0; trial < 50; trial++ {
		got := WeightedSample(rng, pool, func(n int) float64 { return float64(n) }, 4)
		require.Len(t, got, 2)
		assert.ElementsMatch(t, []int{3, 5}, got)
	}
}

func TestWeightedSampleFollowsWeights(t *testing.T) {
	rng := mathrand.New(mathrand.NewSource(99))
	pool := []string{"heavy", "light"}
	weights := map[string]float64{"heavy": 100, "light": 1}

	heavyFirst := 0
	const trials = 1000
	for i := 0; i < trials; i++ {
		got := WeightedSample(rng, pool, func(s string) float64 { return weights[s] }, 1)
		require.Len(t, got, 1)
		if got[0] == "heavy" {
			heavyFirst++
		}
	}
	assert.Greater(t, heavyFirst, trials*9/10, "the 100x weight should win almost every draw")
}
