package testutil

import "sync"

// FixedIntn returns an Intn-shaped function that replays the given
// values in order, wrapping around when exhausted. Each value is clamped
// into [0, n) so a scripted sequence can never panic the caller.
//
// Thread-safe, matching the concurrency contract of rand.Intn.
func FixedIntn(values ...int) func(n int) int {
	var (
		mu  sync.Mutex
		idx int
	)
	return func(n int) int {
		mu.Lock()
		defer mu.Unlock()
		v := values[idx%len(values)]
		idx++
		if v < 0 {
			v = 0
		}
		return v % n
	}
}
