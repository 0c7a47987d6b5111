// Package events is the node's in-process notification bus.
package events

import (
	"log"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit      EventType = "block_commit"
	EventTxExecuted       EventType = "tx_executed"
	EventTokenTransfer    EventType = "token_transfer"
	EventKittyCreated     EventType = "kitty_created"
	EventKittyTransferred EventType = "kitty_transferred"
	EventKittyPriceSet    EventType = "kitty_price_set"
	EventKittySold        EventType = "kitty_sold"
	EventTokenApproval    EventType = "token_approval"
	EventClaimCreated     EventType = "claim_created"
	EventClaimRevoked     EventType = "claim_revoked"
	EventClaimTransferred EventType = "claim_transferred"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Sink accepts events. Emit must not fail and its result is never consumed.
type Sink interface {
	Emit(ev Event)
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a synchronous pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to every subscriber of ev.Type in registration order.
// A panicking subscriber is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[events] handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}

// Buffer collects events until Flush hands them to a downstream sink. The
// executor uses one per transaction so a rolled-back transaction never
// notifies anybody.
type Buffer struct {
	events []Event
}

// Emit queues ev.
func (b *Buffer) Emit(ev Event) { b.events = append(b.events, ev) }

// Len returns the number of queued events.
func (b *Buffer) Len() int { return len(b.events) }

// Flush delivers every queued event to sink in order and empties the buffer.
func (b *Buffer) Flush(sink Sink) {
	if sink != nil {
		for _, ev := range b.events {
			sink.Emit(ev)
		}
	}
	b.events = nil
}

// Discard drops every queued event.
func (b *Buffer) Discard() { b.events = nil }
