package resilience

import "sync"

// DefaultFailureThreshold trips a class after a single failure. Challenge
// failures are usually systemic (bad credentials, provider outage) rather
// than per-race, so retrying the rest of the card wastes money and time.
const DefaultFailureThreshold = 1

// ClassBreaker counts consecutive failures per named operation class and
// halts that class for the remainder of a run once a threshold is reached.
// Tripping is sticky: a success resets the counter but never un-trips.
// Construct a fresh breaker per session; state is never shared across runs.
type ClassBreaker struct {
	mu        sync.Mutex
	threshold int
	failures  map[string]int
	tripped   map[string]bool

	// onTrip is called once per class, at the moment it trips.
	onTrip func(class string)
}

// BreakerOption configures a ClassBreaker.
type BreakerOption func(*ClassBreaker)

// WithOnTrip registers a callback invoked when a class trips.
func WithOnTrip(fn func(class string)) BreakerOption {
	return func(b *ClassBreaker) { b.onTrip = fn }
}

// NewClassBreaker creates a breaker with the given threshold.
// A threshold <= 0 falls back to DefaultFailureThreshold.
func NewClassBreaker(threshold int, opts ...BreakerOption) *ClassBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	b := &ClassBreaker{
		threshold: threshold,
		failures:  make(map[string]int),
		tripped:   make(map[string]bool),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// RecordFailure increments the consecutive-failure counter for class and
// trips it when the threshold is reached. Returns true if class is now
// tripped.
func (b *ClassBreaker) RecordFailure(class string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tripped[class] {
		return true
	}
	b.failures[class]++
	if b.failures[class] >= b.threshold {
		b.tripped[class] = true
		if b.onTrip != nil {
			b.onTrip(class)
		}
	}
	return b.tripped[class]
}

// RecordSuccess resets the consecutive-failure counter for class. It does
// not un-trip an already-tripped class.
func (b *ClassBreaker) RecordSuccess(class string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[class] = 0
}

// IsTripped reports whether class has been halted for this run. Callers
// must check this before attempting the operation.
func (b *ClassBreaker) IsTripped(class string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped[class]
}

// Counters returns the current consecutive-failure count and trip state
// for class, for observability.
func (b *ClassBreaker) Counters(class string) (failures int, tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures[class], b.tripped[class]
}
