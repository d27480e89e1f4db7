package handlers

import (
	"fmt"
	"sync"
)

type listener[T any] struct {
	id string
	ch chan T
}

// broker fans out the events of a single source to many listeners.
type broker[T any] struct {
	lock      *sync.Mutex
	listeners []*listener[T]
}

func newBroker[T any]() *broker[T] {
	return &broker[T]{
		lock:      &sync.Mutex{},
		listeners: make([]*listener[T], 0),
	}
}

func (h *broker[T]) pushListener(l *listener[T]) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.listeners = append(h.listeners, l)
}

func (h *broker[T]) removeListener(id string) {
	h.lock.Lock()
	defer h.lock.Unlock()

	for i, listener := range h.listeners {
		if listener.id == id {
			close(listener.ch)
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

func (h *broker[T]) getListenerChannel(id string) (chan T, error) {
	h.lock.Lock()
	defer h.lock.Unlock()

	for _, listener := range h.listeners {
		if listener.id == id {
			return listener.ch, nil
		}
	}

	return nil, fmt.Errorf("subscription %s not found", id)
}

// publish never blocks, slow listeners miss the events they can't buffer.
func (h *broker[T]) publish(event T) int {
	h.lock.Lock()
	defer h.lock.Unlock()

	dropped := 0
	for _, l := range h.listeners {
		select {
		case l.ch <- event:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *broker[T]) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()

	for _, l := range h.listeners {
		close(l.ch)
	}
	h.listeners = make([]*listener[T], 0)
}
