package interfaces

// EventPublisher emits lifecycle events (transfer completed, order
// released) to an external broker. Publishing is best-effort: the engine
// logs failures but never rolls back a ledger mutation over one.
type EventPublisher interface {
	Publish(topic string, event any) error
}
