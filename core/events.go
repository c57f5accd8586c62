package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeOrderCreatedEvent parses a broker payload. Any failure is a
// MalformedEventError; the relay drops such messages instead of retrying.
func DecodeOrderCreatedEvent(data []byte) (OrderCreatedEvent, error) {
	var event OrderCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return OrderCreatedEvent{}, MalformedEventError(err, "decode order event")
	}
	event.Event = strings.TrimSpace(event.Event)
	event.OrderID = strings.TrimSpace(event.OrderID)
	if event.Event != EventOrderCreated {
		return OrderCreatedEvent{}, MalformedEventError(
			fmt.Errorf("unsupported event %q", event.Event),
			"decode order event",
		)
	}
	if event.OrderID == "" {
		return OrderCreatedEvent{}, MalformedEventError(
			fmt.Errorf("order_id is required"),
			"decode order event",
		)
	}
	return event, nil
}

// Attributes are the message attributes published alongside the event body.
func (e OrderCreatedEvent) Attributes() map[string]string {
	return map[string]string{
		"event":    e.Event,
		"order_id": e.OrderID,
	}
}
