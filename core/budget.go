package core

import "sync"

// Budget hands out 1-based iteration numbers up to a maximum.
type Budget struct {
	max  int
	used int
	mu   sync.Mutex
}

// NewBudget creates a budget with max iterations. If max <= 0 the budget is unlimited.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Take consumes one iteration and returns its number. ok is false once the
// budget is exhausted; the counter is not advanced in that case.
func (b *Budget) Take() (iteration int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.used >= b.max {
		return b.used, false
	}

	b.used++

	return b.used, true
}

// Used returns the number of iterations taken so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.used
}

// Remaining returns how many iterations are left, or -1 when unlimited.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max <= 0 {
		return -1
	}

	return b.max - b.used
}
