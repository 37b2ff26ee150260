// Package eventbus implements the core's single-threaded cooperative
// dispatcher: the concrete post/post_queue/post_relay/add_handler
// mechanism the concurrency model (design doc §5) describes as a
// process-wide singleton, plus the named delay scheduler it shares that
// model with.
package eventbus

import (
	"container/list"
	"sort"
	"sync"

	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

type handlerEntry struct {
	key      int
	name     string
	priority int
	seq      int
	callback func(map[string]any)
}

type queuedItem struct {
	name      string
	payload   map[string]any
	onDrained func()
}

// Bus is the concrete, in-process EventBus implementation. A Bus is not
// safe for concurrent use by design: the whole point of the cooperative
// model is that exactly one goroutine drives it.
type Bus struct {
	handlers map[string][]*handlerEntry
	nextKey  int
	nextSeq  int

	queue    *list.List
	draining bool

	mu sync.Mutex // guards handler registration only, for tests that add handlers from callbacks
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[string][]*handlerEntry),
		queue:    list.New(),
	}
}

// AddHandler registers callback for name, returning a key for later
// removal. Handlers fire in descending priority order; among equal
// priorities, in registration order.
func (b *Bus) AddHandler(name string, priority int, callback func(map[string]any)) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextKey++
	b.nextSeq++
	entry := &handlerEntry{key: b.nextKey, name: name, priority: priority, seq: b.nextSeq, callback: callback}
	b.handlers[name] = append(b.handlers[name], entry)
	sortHandlers(b.handlers[name])
	return entry.key
}

func sortHandlers(entries []*handlerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].priority != entries[j].priority {
			return entries[i].priority > entries[j].priority
		}
		return entries[i].seq < entries[j].seq
	})
}

// RemoveHandler removes the handler registered under key, if any.
func (b *Bus) RemoveHandler(key int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, entries := range b.handlers {
		for i, e := range entries {
			if e.key == key {
				b.handlers[name] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// RemoveHandlersByKeys removes each key in keys, ignoring unknown keys.
func (b *Bus) RemoveHandlersByKeys(keys []int) {
	for _, k := range keys {
		b.RemoveHandler(k)
	}
}

func (b *Bus) handlersFor(name string) []*handlerEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.handlers[name]
	out := make([]*handlerEntry, len(entries))
	copy(out, entries)
	return out
}

// Post fires name immediately: every registered handler runs synchronously
// in priority order, then Post returns. This is fire-and-forget — there
// is no completion callback and payload mutation is not observed by the
// caller.
func (b *Bus) Post(name string, payload map[string]any) {
	for _, e := range b.handlersFor(name) {
		e.callback(payload)
	}
}

// PostRelay dispatches name to handlers in descending-priority order,
// passing the same payload map so each handler observes mutations made
// by higher-priority handlers before it. onDrained, if non-nil, receives
// the final payload once every handler has run.
func (b *Bus) PostRelay(name string, payload map[string]any, onDrained func(map[string]any)) {
	if payload == nil {
		payload = make(map[string]any)
	}
	for _, e := range b.handlersFor(name) {
		e.callback(payload)
	}
	if onDrained != nil {
		onDrained(payload)
	}
}

// PostQueue enqueues name for delivery behind any bus work already
// enqueued, then, if nothing else is currently draining the queue, drains
// it to completion. Because the model is single-threaded cooperative,
// "enqueue, then drain if not already draining" gives handlers the
// post-commit guarantee: a handler that calls PostQueue while the bus is
// already draining another item sees its event delivered only after the
// current item (and anything it enqueued) finishes, never interleaved.
func (b *Bus) PostQueue(name string, payload map[string]any, onDrained func()) {
	b.queue.PushBack(&queuedItem{name: name, payload: payload, onDrained: onDrained})
	if b.draining {
		return
	}
	b.drain()
}

func (b *Bus) drain() {
	b.draining = true
	defer func() { b.draining = false }()

	for b.queue.Len() > 0 {
		front := b.queue.Front()
		b.queue.Remove(front)
		item := front.Value.(*queuedItem)
		for _, e := range b.handlersFor(item.name) {
			e.callback(item.payload)
		}
		if item.onDrained != nil {
			item.onDrained()
		}
	}
}

var _ interfaces.EventBus = (*Bus)(nil)
