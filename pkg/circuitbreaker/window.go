package circuitbreaker

import "sync"

// slidingWindow keeps the outcomes of the last size calls in a ring.
type slidingWindow struct {
	mu       sync.Mutex
	outcomes []bool // true = failure
	next     int
	count    int
	failures int
}

func newSlidingWindow(size int) *slidingWindow {
	if size < 1 {
		size = 1
	}
	return &slidingWindow{outcomes: make([]bool, size)}
}

func (w *slidingWindow) record(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.count == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *slidingWindow) snapshot() (calls, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count, w.failures
}

func (w *slidingWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.outcomes)
	w.next, w.count, w.failures = 0, 0, 0
}
