// Package shell is the window and tray glue. The host runtime (the system
// tray) owns the event loop and emits named events; the application
// registers plain handler funcs against them.
package shell

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/stevecastle/vdr/logging"
)

// Event names. Menu item ids double as event names.
type Event string

const (
	EventReady          Event = "ready"
	EventShow           Event = "show"
	EventHide           Event = "hide"
	EventQuit           Event = "quit"
	EventTrayClick      Event = "tray-click"
	EventCloseRequested Event = "close-requested"
)

// Handler reacts to one event.
type Handler func()

// Dispatcher maps events to handlers. Handlers run synchronously on the
// emitting goroutine, in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
	log      zerolog.Logger
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Event][]Handler),
		log:      logging.Component("shell"),
	}
}

// On registers h for e.
func (d *Dispatcher) On(e Event, h Handler) {
	d.mu.Lock()
	d.handlers[e] = append(d.handlers[e], h)
	d.mu.Unlock()
}

// Emit runs every handler for e and returns how many ran.
func (d *Dispatcher) Emit(e Event) int {
	d.mu.RLock()
	hs := append([]Handler(nil), d.handlers[e]...)
	d.mu.RUnlock()

	if len(hs) == 0 {
		d.log.Debug().Str("event", string(e)).Msg("no handler registered")
		return 0
	}
	d.log.Debug().Str("event", string(e)).Int("handlers", len(hs)).Msg("dispatch")
	for _, h := range hs {
		h()
	}
	return len(hs)
}
