package parallel

import (
	"sync"
	"testing"
)

// coverage collects the ranges fn was called with and checks every item
// is visited exactly once.
type coverage struct {
	mu   sync.Mutex
	seen []int
}

func newCoverage(items int) *coverage {
	return &coverage{seen: make([]int, items)}
}

func (c *coverage) fn(start, end int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := start; i < end; i++ {
		c.seen[i]++
	}
}

func (c *coverage) check(t *testing.T) {
	t.Helper()
	for i, n := range c.seen {
		if n != 1 {
			t.Errorf("item %d visited %d times", i, n)
		}
	}
}

func TestParallelizeWithWorkers(t *testing.T) {
	tests := []struct {
		name    string
		items   int
		workers int
	}{
		{"even", 100, 4},
		{"uneven", 103, 4},
		{"more workers than items", 3, 8},
		{"single worker", 50, 1},
		{"single item", 1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCoverage(tt.items)
			ParallelizeWithWorkers(tt.items, tt.workers, c.fn)
			c.check(t)
		})
	}
}

func TestParallelizeZeroItems(t *testing.T) {
	called := false
	ParallelizeWithWorkers(0, 4, func(start, end int) { called = true })
	if called {
		t.Error("fn called for zero items")
	}
}

func TestParallelizeWithThreshold(t *testing.T) {
	c := newCoverage(10)
	ParallelizeWithThreshold(10, 100, c.fn)
	c.check(t)

	c = newCoverage(200)
	ParallelizeWithThreshold(200, 100, c.fn)
	c.check(t)
}
