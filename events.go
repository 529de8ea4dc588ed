package checkout

import "time"

// EventType identifies a session lifecycle event.
type EventType string

const (
	// EventClientSessionWillUpdate is emitted before a client session actions round trip.
	EventClientSessionWillUpdate EventType = "client_session.will_update"

	// EventClientSessionDidUpdate is emitted after a successful actions round trip.
	EventClientSessionDidUpdate EventType = "client_session.did_update"

	// EventStateChanged is emitted on every flow state transition.
	EventStateChanged EventType = "session.state_changed"

	// EventWillPresent is emitted when a resume attempt starts presenting a
	// pending action (status URL or redirect URL).
	EventWillPresent EventType = "resume.will_present"

	// EventTokenized is emitted when the backend returned a payment method token.
	EventTokenized EventType = "payment_method.tokenized"
)

// Event represents a session lifecycle event.
// Callbacks are invoked synchronously on the goroutine driving the session,
// so they should be fast.
type Event struct {
	// Type is the event type.
	Type EventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// SessionID identifies the session that emitted the event.
	SessionID string

	// State and Previous are set for state changes.
	State    FlowState
	Previous FlowState

	// PaymentMethod is the method involved, when known.
	PaymentMethod PaymentMethodType

	// Actions are the client session actions of an update round trip.
	Actions []Action

	// Configuration is the configuration after a client session update.
	Configuration *SessionConfiguration

	// Target is the status or redirect URL being presented.
	Target string

	// Error is set when the event reports a failure.
	Error error
}

// EventCallback handles session events.
type EventCallback func(Event)

type emitter struct {
	sessionID func() string
	clock     func() time.Time
	callbacks []EventCallback
}

func (e *emitter) emit(ev Event) {
	if e == nil || len(e.callbacks) == 0 {
		return
	}
	if e.sessionID != nil {
		ev.SessionID = e.sessionID()
	}
	ev.Timestamp = e.clock()
	for _, cb := range e.callbacks {
		cb(ev)
	}
}
