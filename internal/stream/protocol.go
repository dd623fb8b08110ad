package stream

import (
	"github.com/slidecast/backend/internal/feedback"
)

type EventType string

const (
	// EventFeedback carries one newly appended feedback item.
	EventFeedback EventType = "feedback"
	// EventKeepalive is a content-free marker on a fixed cadence so
	// intermediaries don't reap the connection as idle. Consumers must
	// ignore it.
	EventKeepalive EventType = "keepalive"
)

type Event struct {
	Type    EventType      `json:"type"`
	Payload *feedback.Item `json:"payload,omitempty"`
}

// Sink receives events for one connection. Send must be safe for concurrent
// calls: the keepalive and poll loops write independently. A Send error is
// treated as a transport failure and closes the connection.
type Sink interface {
	Send(Event) error
}
