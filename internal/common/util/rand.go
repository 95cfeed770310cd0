package util

import (
	"math/rand"
	"sync"
	"time"
)

// LockedSource is a random source that uses a mutex to ensure it is threadsafe
type LockedSource struct {
	lk  sync.Mutex
	src rand.Source
}

func (r *LockedSource) Int63() (n int64) {
	r.lk.Lock()
	n = r.src.Int63()
	r.lk.Unlock()
	return
}

func (r *LockedSource) Seed(seed int64) {
	r.lk.Lock()
	r.src.Seed(seed)
	r.lk.Unlock()
}

// NewThreadsafeRand Returns a *rand.Rand that is safe to share across multiple goroutines.
// Only the methods that draw from the source (Int63, Intn, Float64 etc.) are safe; Read is not.
func NewThreadsafeRand(seed int64) *rand.Rand {
	return rand.New(&LockedSource{
		lk:  sync.Mutex{},
		src: rand.NewSource(seed),
	})
}

// SeedOrNow returns seed unless it is zero, in which case a time derived seed is returned.
func SeedOrNow(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}

// DeriveSeeds draws n independent seeds from a master stream seeded with master.
// The same master seed always produces the same seeds.
func DeriveSeeds(master int64, n int) []int64 {
	r := rand.New(rand.NewSource(master))
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = r.Int63()
	}
	return seeds
}
