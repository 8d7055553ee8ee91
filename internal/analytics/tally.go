package analytics

import "sync"

// Tally counts consumed events by name.
type Tally struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewTally() *Tally {
	return &Tally{counts: make(map[string]int)}
}

// Record counts evt and returns the running total for its name.
func (t *Tally) Record(evt Event) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[evt.Name]++
	return t.counts[evt.Name]
}

// Snapshot returns a copy of the current counts.
func (t *Tally) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for name, n := range t.counts {
		out[name] = n
	}
	return out
}
