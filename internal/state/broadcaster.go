package state

import "sync"

// Observer receives a status transition together with the last error message
// (empty unless the status carries one). Callbacks are invoked synchronously
// and in registration order; a callback is never re-entered for a later
// transition before its previous invocation has returned.
type Observer func(status Status, lastError string)

// Broadcaster maintains an ordered observer list with typed
// subscribe/unsubscribe. It deliberately does not queue: Notify blocks until
// every observer has returned, which gives subscribers strict ordering.
type Broadcaster struct {
	mu     sync.Mutex
	nextID int
	order  []int
	obs    map[int]Observer
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{obs: make(map[int]Observer)}
}

// Subscribe registers fn and returns its disposer. The disposer is
// idempotent: removing an already-removed observer is a no-op.
func (b *Broadcaster) Subscribe(fn Observer) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.obs[id] = fn
	b.order = append(b.order, id)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if _, ok := b.obs[id]; ok {
			delete(b.obs, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		}
		b.mu.Unlock()
	}
}

// Notify invokes all observers in registration order. Callbacks run outside
// the registry lock so an observer may unsubscribe itself.
func (b *Broadcaster) Notify(status Status, lastError string) {
	b.mu.Lock()
	fns := make([]Observer, 0, len(b.order))
	for _, id := range b.order {
		fns = append(fns, b.obs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(status, lastError)
	}
}

// Len reports the number of registered observers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	n := len(b.obs)
	b.mu.Unlock()
	return n
}
