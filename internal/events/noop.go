package events

import "github.com/sheikh-saqib/p2p-escrow-engine/internal/interfaces"

// NopPublisher discards events. Used in tests and in broker-less runs.
type NopPublisher struct{}

func (NopPublisher) Publish(topic string, event any) error { return nil }

var _ interfaces.EventPublisher = NopPublisher{}
