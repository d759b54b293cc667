// Package events defines the event taxonomy the pool manager and
// orchestrator publish. Events are the sole observability channel of the
// core; no logging is part of the core contract, though subscribers may
// forward events to a logger.
package events

import "time"

// Kind identifies an event type.
type Kind string

const (
	PoolInitialized      Kind = "pool.initialized"
	PoolInitFailed       Kind = "pool.init.failed"
	PoolReplenished      Kind = "pool.replenished"
	PoolReplenishFailed  Kind = "pool.replenish.failed"
	ProxyReleaseFailed   Kind = "proxy.release.failed"
	SourceFailed         Kind = "source.failed"
	SourceReleaseFailed  Kind = "source.release.failed"
)

// Event carries a kind, a timestamp, and an optional error message payload.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Source    string // optional: source tag, when the event is source-scoped
	Error     string // optional: error.message payload
	Fields    map[string]any
}

// New builds an Event of the given kind stamped with the current time.
func New(kind Kind) Event {
	return Event{Kind: kind, Timestamp: time.Now()}
}

// WithError attaches an error message payload.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// WithSource attaches a source tag.
func (e Event) WithSource(tag string) Event {
	e.Source = tag
	return e
}

// WithField attaches an arbitrary key/value to the event payload.
func (e Event) WithField(key string, value any) Event {
	if e.Fields == nil {
		e.Fields = make(map[string]any, 1)
	}
	e.Fields[key] = value
	return e
}
