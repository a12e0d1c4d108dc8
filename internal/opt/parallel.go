package opt

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

func workerLimit(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// shardRoutes runs search once per route index, at most workers at a time,
// and returns the per-route results in index order.
func shardRoutes(n, workers int, search func(ri int) candidate) []candidate {
	out := make([]candidate, n)
	if workers == 1 || n <= 1 {
		for i := 0; i < n; i++ {
			out[i] = search(i)
		}
		return out
	}
	var g errgroup.Group
	g.SetLimit(workerLimit(workers))
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			out[i] = search(i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
