package dailyquiz

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// ErrPoolExhausted is returned when the pool holds fewer questions than requested.
var ErrPoolExhausted = errors.New("question pool exhausted")

// Shuffler permutes n elements through swap. *rand.Rand satisfies it.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// Sampler draws questions from the pool uniformly at random, without replacement.
type Sampler struct {
	mu  sync.Mutex
	rng Shuffler
}

// NewSampler returns a sampler using rng, or a time-seeded source when rng is nil.
func NewSampler(rng Shuffler) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Sampler{rng: rng}
}

// Sample returns n distinct ids picked from ids. The input slice is not modified.
func (s *Sampler) Sample(ids []int64, n int) ([]int64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample size must be positive, got %d", n)
	}

	pool := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		pool = append(pool, id)
	}

	if len(pool) < n {
		return nil, fmt.Errorf("%w: %d available, %d needed", ErrPoolExhausted, len(pool), n)
	}

	s.mu.Lock()
	s.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	s.mu.Unlock()

	return pool[:n:n], nil
}
