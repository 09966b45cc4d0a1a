// Package queue defines message payloads exchanged over the message broker
// and the consumer that mirrors saved events into the legacy spreadsheet.
package queue

import "github.com/allure/event-admin/internal/model"

// EventSavedQueue is the durable queue carrying EventSaved messages.
const EventSavedQueue = "event.saved"

// Actions carried by EventSaved.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// EventSaved is published after every successful write to the events
// table.  It carries the full event so the consumer does not need to query
// the primary database.
type EventSaved struct {
	Action  string      `json:"action"`
	EventID uint64      `json:"event_id"`
	Event   model.Event `json:"event"`
	Usuario string      `json:"usuario"`
	SavedAt string      `json:"saved_at"`
}
