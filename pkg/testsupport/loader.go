package testsupport

import (
	"context"
	"sync"
)

// CountingLoader is an in-memory primary store that records every lookup.
// Its Load method matches the cache loader signature.
type CountingLoader[K comparable, T any] struct {
	mu       sync.Mutex
	records  map[K]T
	calls    map[K]int
	total    int
	notFound error
	err      error
	panicMsg string
	gate     chan struct{}
	entered  chan K
}

// NewCountingLoader returns an empty loader that reports absent ids with notFound.
func NewCountingLoader[K comparable, T any](notFound error) *CountingLoader[K, T] {
	return &CountingLoader[K, T]{
		records:  make(map[K]T),
		calls:    make(map[K]int),
		notFound: notFound,
		entered:  make(chan K, 64),
	}
}

// Put stores rec under id.
func (l *CountingLoader[K, T]) Put(id K, rec T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[id] = rec
}

// Remove deletes id.
func (l *CountingLoader[K, T]) Remove(id K) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, id)
}

// FailWith makes every following Load return err. Pass nil to clear.
func (l *CountingLoader[K, T]) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// PanicWith makes every following Load panic with msg. Pass "" to clear.
func (l *CountingLoader[K, T]) PanicWith(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.panicMsg = msg
}

// Hold makes Load block until the returned release func is called or the
// caller's context is done.
func (l *CountingLoader[K, T]) Hold() (release func()) {
	gate := make(chan struct{})
	l.mu.Lock()
	l.gate = gate
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.gate == gate {
				l.gate = nil
			}
			l.mu.Unlock()
			close(gate)
		})
	}
}

// Entered receives the id of every Load as it starts.
func (l *CountingLoader[K, T]) Entered() <-chan K {
	return l.entered
}

// Load looks id up.
func (l *CountingLoader[K, T]) Load(ctx context.Context, id K) (T, error) {
	var zero T

	l.mu.Lock()
	l.calls[id]++
	l.total++
	gate := l.gate
	panicMsg := l.panicMsg
	l.mu.Unlock()

	select {
	case l.entered <- id:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}

	if panicMsg != "" {
		panic(panicMsg)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.err != nil {
		return zero, l.err
	}
	rec, ok := l.records[id]
	if !ok {
		return zero, l.notFound
	}
	return rec, nil
}

// Calls returns how many times id was loaded.
func (l *CountingLoader[K, T]) Calls(id K) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[id]
}

// Total returns the number of loads across all ids.
func (l *CountingLoader[K, T]) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
