// Package notifications turns contract activity into events pushed to websocket subscribers.
package notifications

import "time"

// EventType names an event on the /ws feed
type EventType string

const (
	EventTxSubmitted        EventType = "tx.submitted"
	EventClaimCreated       EventType = "claim.created"
	EventClaimStatusChanged EventType = "claim.status_changed"
	// EventConnected is sent once to each new subscriber
	EventConnected EventType = "connected"
)

// Event is one message on the feed
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent stamps an event with the current time
func NewEvent(eventType EventType, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events to subscribers
type Publisher interface {
	Publish(event Event) error
}
