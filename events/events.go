package events

// Event is a structured state change emitted by the staking ledger for
// downstream indexers and auditors.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default for components whose callers did not wire an emitter.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// Capture records emitted events in order. Intended for tests.
type Capture struct {
	Events []*Event
}

// Emit implements the Emitter interface.
func (c *Capture) Emit(evt *Event) {
	if evt == nil {
		return
	}
	c.Events = append(c.Events, evt)
}

// ByType returns the captured events matching the provided type.
func (c *Capture) ByType(eventType string) []*Event {
	var matched []*Event
	for _, evt := range c.Events {
		if evt.Type == eventType {
			matched = append(matched, evt)
		}
	}
	return matched
}
