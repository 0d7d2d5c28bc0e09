package tokenstore

import "sync"

// Change describes one mutation observed through a Notifier.
type Change struct {
	Key     string
	Value   string
	Removed bool
}

// Notifier is a Store that publishes every mutation to its subscribers.
// Several sessions sharing one Notifier converge on logout and refresh.
type Notifier struct {
	Store

	mu     sync.Mutex
	nextID int
	subs   map[int]func(Change)
}

func NewNotifier(s Store) *Notifier {
	return &Notifier{Store: s, subs: make(map[int]func(Change))}
}

// Subscribe registers fn and returns a function that removes it. fn runs
// synchronously on the mutating goroutine, after the write has landed.
func (n *Notifier) Subscribe(fn func(Change)) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

func (n *Notifier) Set(key, value string) {
	n.Store.Set(key, value)
	n.publish(Change{Key: key, Value: value})
}

func (n *Notifier) Remove(key string) {
	n.Store.Remove(key)
	n.publish(Change{Key: key, Removed: true})
}

func (n *Notifier) publish(c Change) {
	n.mu.Lock()
	fns := make([]func(Change), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
