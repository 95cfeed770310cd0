package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSeeds_Deterministic(t *testing.T) {
	assert.Equal(t, DeriveSeeds(42, 5), DeriveSeeds(42, 5))
	assert.NotEqual(t, DeriveSeeds(42, 5), DeriveSeeds(43, 5))
	assert.Len(t, DeriveSeeds(1, 0), 0)
}

func TestDeriveSeeds_Distinct(t *testing.T) {
	seen := map[int64]bool{}
	for _, s := range DeriveSeeds(7, 1000) {
		assert.False(t, seen[s])
		seen[s] = true
	}
}

func TestSeedOrNow(t *testing.T) {
	assert.Equal(t, int64(12), SeedOrNow(12))
	assert.NotZero(t, SeedOrNow(0))
}

func TestNewThreadsafeRand_ConcurrentUse(t *testing.T) {
	r := NewThreadsafeRand(1)
	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				v := r.Float64()
				assert.True(t, v >= 0 && v < 1)
			}
		}()
	}
	wg.Wait()
}
