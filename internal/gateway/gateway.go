package gateway

import "context"

// EventKind classifies an inbound event.
type EventKind string

const (
	KindCommand EventKind = "command"
	KindButton  EventKind = "button"
	KindText    EventKind = "text"
)

// Event is one inbound update normalized away from the transport: the acting
// identity plus the raw payload (command name, button data or message text).
type Event struct {
	ID          string
	ActorID     int64
	ActorHandle string // "@name", empty when the account has no username
	Kind        EventKind
	Payload     string
}

// Button is one inline keyboard button; Data carries the callback payload,
// URL buttons carry no callback.
type Button struct {
	Text string
	Data string
	URL  string
}

// Sender delivers outbound messages to arbitrary recipients. Delivery
// failures are per-recipient and independent.
type Sender interface {
	SendText(ctx context.Context, recipient int64, text string) error
	SendDocument(ctx context.Context, recipient int64, data []byte, filename string) error
}

// Responder replies in the context of the event being handled.
type Responder interface {
	// Reply sends a new message to the actor.
	Reply(text string, rows ...[]Button) error
	// Edit rewrites the message the pressed button was attached to, falling
	// back to a plain reply when there is nothing to edit.
	Edit(text string, rows ...[]Button) error
}
