package voice

import (
	"sort"
	"sync"
)

// Emitter is a listener registry shared by Session implementations
type Emitter struct {
	mu       sync.Mutex
	nextID   ListenerID
	handlers map[EventKind]map[ListenerID]Handler
}

// On registers a handler for kind
func (e *Emitter) On(kind EventKind, h Handler) ListenerID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handlers == nil {
		e.handlers = make(map[EventKind]map[ListenerID]Handler)
	}
	if e.handlers[kind] == nil {
		e.handlers[kind] = make(map[ListenerID]Handler)
	}
	e.nextID++
	e.handlers[kind][e.nextID] = h
	return e.nextID
}

// Off removes a handler. Unknown ids are ignored.
func (e *Emitter) Off(kind EventKind, id ListenerID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers[kind], id)
}

// Emit calls every handler for the event's kind in registration order.
// Handlers run outside the registry lock and may call On or Off.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	ids := make([]ListenerID, 0, len(e.handlers[ev.Kind]))
	for id := range e.handlers[ev.Kind] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, e.handlers[ev.Kind][id])
	}
	e.mu.Unlock()

	for _, h := range hs {
		h(ev)
	}
}

// Count returns the number of handlers registered for kind
func (e *Emitter) Count(kind EventKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[kind])
}
