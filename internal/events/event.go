// Package events defines the structured event contract emitted by the native
// engines. It mirrors the host's event log capability from spec.md §6:
// topics are (name, version) tuples and payloads are flat attribute maps so
// off-chain indexers can consume them without a schema registry.
package events

import "strconv"

// Event is anything that can report the topic it was published under.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (dispatch, indexers,
// tests). It is deliberately narrow so every engine can depend on it without
// pulling in a transport.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event. It is the default for engines constructed
// without an explicit emitter, matching the teacher's zero-value-safe style.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}

// Record is the concrete Event implementation used by every native package.
// Topic and Version together form the (name, version) tuple from spec.md §6;
// Attributes carries the flattened, string-keyed payload.
type Record struct {
	Topic      string
	Version    string
	Attributes map[string]string
}

// EventType satisfies the Event interface as "<topic>/<version>".
func (r Record) EventType() string {
	if r.Version == "" {
		return r.Topic
	}
	return r.Topic + "/" + r.Version
}

// NewRecord constructs a v1 Record with a freshly allocated attribute map.
func NewRecord(topic string) Record {
	return Record{Topic: topic, Version: "v1", Attributes: map[string]string{}}
}

// FormatUint64 is a small helper so callers don't need to import strconv for
// every attribute assignment.
func FormatUint64(v uint64) string { return strconv.FormatUint(v, 10) }

// FormatBool is a small helper mirroring FormatUint64 for boolean attributes.
func FormatBool(v bool) string { return strconv.FormatBool(v) }

// CollectingEmitter is an in-memory Emitter used by tests and the CLI demo to
// inspect everything an engine published during a call.
type CollectingEmitter struct {
	Events []Event
}

// Emit appends the event to the in-memory log.
func (c *CollectingEmitter) Emit(e Event) {
	if c == nil || e == nil {
		return
	}
	c.Events = append(c.Events, e)
}
