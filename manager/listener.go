package manager

import (
	"github.com/franksops/gridq/engine"
)

// Listener receives every item and terminal event of every record the
// manager processes. Events of one record arrive in item completion order
// with the terminal event last.
type Listener interface {
	OnStatus(ev engine.StatusEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev engine.StatusEvent)

func (f ListenerFunc) OnStatus(ev engine.StatusEvent) { f(ev) }

// AddListener registers l for all subsequent events.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

// emit queues ev for the dispatcher. It blocks while the buffer is full, so
// a slow listener slows the worker instead of losing or reordering events.
func (m *Manager) emit(ev engine.StatusEvent) {
	m.events <- ev
}

// dispatch delivers events to listeners until the event channel is closed.
func (m *Manager) dispatch() {
	defer close(m.dispatchDone)
	for ev := range m.events {
		m.listenersMu.RLock()
		listeners := m.listeners
		m.listenersMu.RUnlock()

		for _, l := range listeners {
			m.deliver(l, ev)
		}
	}
}

func (m *Manager) deliver(l Listener, ev engine.StatusEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("record", ev.RecordID).Msg("status listener panicked")
		}
	}()
	l.OnStatus(ev)
}
