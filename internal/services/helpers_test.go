package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"prizedraw/internal/models"
	"prizedraw/internal/storage"
)

// flakyKV wraps a Memory KV and fails Set while broken is true.
type flakyKV struct {
	*storage.Memory
	mu     sync.Mutex
	broken bool
}

func (f *flakyKV) setBroken(b bool) {
	f.mu.Lock()
	f.broken = b
	f.mu.Unlock()
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	broken := f.broken
	f.mu.Unlock()
	if broken {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func testClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 30, 19, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func testIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestStore(t *testing.T, kv storage.KV) *Store {
	t.Helper()
	if kv == nil {
		kv = storage.NewMemory()
	}
	s, err := Open(context.Background(), kv, WithClock(testClock()), WithIDGenerator(testIDs("id")))
	require.NoError(t, err)
	return s
}

func seededSource(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}

func roster(n int) []models.Person {
	out := make([]models.Person, n)
	for i := range out {
		out[i] = models.Person{
			ID:         fmt.Sprintf("p%03d", i),
			EmployeeID: fmt.Sprintf("E%03d", i),
			Name:       fmt.Sprintf("Person %d", i),
		}
	}
	return out
}

func addPrize(t *testing.T, s *Store, name string, quota int) models.Prize {
	t.Helper()
	p, err := s.AddPrize(context.Background(), models.Prize{Name: name, Quota: quota, Enabled: true})
	require.NoError(t, err)
	return p
}
