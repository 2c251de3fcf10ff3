package slots

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"
)

// Spinner draws three symbols independently, with replacement.
type Spinner interface {
	Spin(t Table) [3]Symbol
}

// SpinnerFunc adapts a function to Spinner.
type SpinnerFunc func(t Table) [3]Symbol

// Spin calls f(t).
func (f SpinnerFunc) Spin(t Table) [3]Symbol { return f(t) }

// RandomSpinner draws from a seeded math/rand source guarded by a mutex.
type RandomSpinner struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewRandomSpinner returns a spinner seeded with seed. Equal seeds replay equal draws.
func NewRandomSpinner(seed int64) *RandomSpinner {
	//nolint:gosec // G404: game outcomes, not key material
	return &RandomSpinner{rand: rand.New(rand.NewSource(seed))}
}

// NewSeed generates a seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Spin draws three weighted symbols.
func (s *RandomSpinner) Spin(t Table) [3]Symbol {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out [3]Symbol
	for i := range out {
		out[i] = t.pick(s.rand.Intn(t.total))
	}
	return out
}
