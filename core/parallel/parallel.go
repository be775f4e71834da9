// Package parallel provides chunked data parallelism for numeric loops
// inside model families. The stack builder's candidate-level parallelism
// lives elsewhere; this package only splits row ranges across workers.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize splits items into contiguous ranges and runs fn on each
// range concurrently. The worker count defaults to the CPU count and
// never exceeds items.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeWithWorkers(items, runtime.NumCPU(), fn)
}

// ParallelizeWithWorkers is Parallelize with an explicit worker bound.
// Callers holding a capacity snapshot from the resource tracker pass its
// core count here so family-internal loops respect the same limit as the
// builder.
func ParallelizeWithWorkers(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if workers > items {
		workers = items
	}
	if workers <= 1 {
		fn(0, items)
		return
	}

	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs sequentially below the threshold, where
// goroutine overhead outweighs the win on small row counts.
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}
