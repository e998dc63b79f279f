// Package ids provides identifier generators for ledger entities.
//
// Generators never hand out the same identifier twice for a given prefix, so
// an id freed by a deletion is not reused.
package ids

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"taxihub/internal/types"
)

// Generator produces a fresh identifier carrying the given prefix.
type Generator interface {
	Next(prefix string) types.ID
}

// Counter issues "{prefix}_{n}" ids from a per-prefix monotonic counter,
// e.g. "d_000001".
type Counter struct {
	mu   sync.Mutex
	next map[string]uint64
}

func NewCounter() *Counter {
	return &Counter{next: make(map[string]uint64)}
}

func (c *Counter) Next(prefix string) types.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next[prefix]++
	return types.ID(fmt.Sprintf("%s_%06d", prefix, c.next[prefix]))
}

// UUID issues "{prefix}_{uuid-v4}" ids.
type UUID struct{}

func (UUID) Next(prefix string) types.ID {
	return types.ID(prefix + "_" + uuid.NewString())
}

// New returns the generator for a configured scheme name. Unknown schemes fall
// back to the counter.
func New(scheme string) Generator {
	if scheme == "uuid" {
		return UUID{}
	}
	return NewCounter()
}
