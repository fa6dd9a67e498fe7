// Package core provides the building blocks of the smartrecord engine.
// This file defines the event system, which lets callers observe
// persistence operations after they complete.
package core

import "sync"

// Event represents a lifecycle event emitted by the engine.
type Event string

const (
	// EventInsert is emitted after an instance is inserted.
	EventInsert Event = "insert"
	// EventUpdate is emitted after an instance is updated.
	EventUpdate Event = "update"
	// EventDelete is emitted after an instance is deleted.
	EventDelete Event = "delete"
	// EventFind is emitted after a fetch completes.
	EventFind Event = "find"
)

// EventHandler defines the callback signature for event listeners.
// The payload argument varies by event (SavePayload, DeletePayload,
// FetchPayload).
type EventHandler func(payload any)

// EventDispatcher manages a list of event handlers and dispatches them
// when the corresponding events are emitted.
type EventDispatcher struct {
	mutex       sync.RWMutex
	handlerList map[Event][]EventHandler
}

// globalDispatcher is the shared event dispatcher used by the engine.
var globalDispatcher = &EventDispatcher{
	handlerList: make(map[Event][]EventHandler),
}

// On registers an EventHandler for a specific Event.
//
// Example:
//
//	core.On(core.EventInsert, func(payload any) {
//		if p, ok := payload.(core.SavePayload); ok {
//			log.Printf("%s saved: %v", p.Model.Name, p.Values)
//		}
//	})
func On(event Event, handler EventHandler) {
	globalDispatcher.mutex.Lock()
	defer globalDispatcher.mutex.Unlock()
	globalDispatcher.handlerList[event] = append(globalDispatcher.handlerList[event], handler)
}

// Emit triggers all registered handlers for the given Event.
//
// Handlers are executed asynchronously in separate goroutines and must
// not assume they still run within the emitting call's session.
func Emit(event Event, payload any) {
	globalDispatcher.mutex.RLock()
	defer globalDispatcher.mutex.RUnlock()
	if hs, ok := globalDispatcher.handlerList[event]; ok {
		for _, h := range hs {
			go h(payload)
		}
	}
}

// SavePayload is passed to EventInsert and EventUpdate handlers.
type SavePayload struct {
	Model    *ModelMeta
	Instance any
	Values   Row
}

// DeletePayload is passed to EventDelete handlers.
type DeletePayload struct {
	Model      *ModelMeta
	PrimaryKey any
}

// FetchPayload is passed to EventFind handlers after a fetch completes.
type FetchPayload struct {
	Query *AssembledQuery
	Count int
}
