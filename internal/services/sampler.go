package services

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"prizedraw/internal/models"
)

// RandomSource is the only randomness the sampler consumes.
// Intn returns a uniform integer in [0, n). *rand.Rand satisfies it.
type RandomSource interface {
	Intn(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// NewRandomSource returns a goroutine-safe math/rand source seeded from crypto/rand.
func NewRandomSource() (RandomSource, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	seed := int64(binary.LittleEndian.Uint64(b[:]))
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}, nil
}

// Sample draws k distinct persons from pool with a partial Fisher-Yates
// shuffle over a copy, so every k-subset is equally likely. pool is not modified.
func Sample(pool []models.Person, k int, src RandomSource) ([]models.Person, error) {
	if k < 0 || k > len(pool) {
		return nil, fmt.Errorf("sample %d from a pool of %d", k, len(pool))
	}

	tmp := make([]models.Person, len(pool))
	copy(tmp, pool)

	for i := 0; i < k; i++ {
		j := i + src.Intn(len(tmp)-i)
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}

	out := make([]models.Person, k)
	copy(out, tmp[:k])
	return out, nil
}

// Shuffle returns a shuffled copy of pool, for display only.
func Shuffle(pool []models.Person, src RandomSource) []models.Person {
	out, _ := Sample(pool, len(pool), src)
	return out
}
