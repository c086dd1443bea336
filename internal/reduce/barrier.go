// Package reduce factors the "count down to zero, then fire" pattern
// spec §9 calls out as a generic building block: the mapper's queried
// and responded rendezvous (§4.2), and the coordinator's
// contribute-boxes, grid-done, narrow-phase-done-per-dest and
// narrow-phase-done-global reductions (§4.5) are all instances of the
// same shape — N expected contributions, each carrying a payload,
// fired exactly once when the Nth arrives.
package reduce

import "sync"

// Barrier collects exactly Expected contributions of type T, calling
// onComplete once with every contribution gathered so far. It is safe
// for concurrent use by multiple goroutines contributing at once — the
// teacher's pattern of protecting small pieces of shared bookkeeping
// with a plain sync.Mutex rather than channels, since contributions
// arrive from many actors rather than from one FIFO source.
type Barrier[T any] struct {
	mu         sync.Mutex
	expected   int
	got        []T
	fired      bool
	onComplete func([]T)
}

// New creates a Barrier expecting exactly `expected` contributions.
// onComplete is invoked synchronously, from whichever goroutine's
// Contribute call is the last one needed, so it must not block.
func New[T any](expected int, onComplete func([]T)) *Barrier[T] {
	return &Barrier[T]{
		expected:   expected,
		got:        make([]T, 0, expected),
		onComplete: onComplete,
	}
}

// Contribute adds one payload. Once Expected contributions have
// arrived, onComplete fires exactly once; further Contribute calls
// after firing are no-ops (guards against a duplicate or late
// message rather than panicking, since spec §5 ordering does not
// promise a message cannot arrive twice across a restart path).
func (b *Barrier[T]) Contribute(payload T) {
	b.mu.Lock()
	if b.fired {
		b.mu.Unlock()
		return
	}
	b.got = append(b.got, payload)
	fire := len(b.got) >= b.expected
	var snapshot []T
	if fire {
		b.fired = true
		snapshot = make([]T, len(b.got))
		copy(snapshot, b.got)
	}
	b.mu.Unlock()

	if fire {
		b.onComplete(snapshot)
	}
}

// Pending returns how many contributions are still outstanding.
func (b *Barrier[T]) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expected - len(b.got)
}

// Fired reports whether onComplete has already run.
func (b *Barrier[T]) Fired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fired
}

// Counter is the special case of a Barrier with no payload: it fires
// once Expected signals have been received. Used for the mapper's
// queried/responded rendezvous points, which only need to know "did
// everyone finish", not what each chunk sent.
type Counter struct {
	barrier *Barrier[struct{}]
}

// NewCounter creates a Counter expecting exactly `expected` signals.
func NewCounter(expected int, onComplete func()) *Counter {
	return &Counter{barrier: New[struct{}](expected, func([]struct{}) {
		onComplete()
	})}
}

// Signal records one contribution toward the count.
func (c *Counter) Signal() { c.barrier.Contribute(struct{}{}) }

// Pending returns the number of signals still outstanding.
func (c *Counter) Pending() int { return c.barrier.Pending() }

// Fired reports whether onComplete has already run.
func (c *Counter) Fired() bool { return c.barrier.Fired() }
