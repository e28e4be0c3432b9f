// Package events records order lifecycle events in the store outbox and
// drains them to Kafka. Events survive a crash between the state change
// and the publish; the drainer retries pending rows until they ack.
package events

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"hubcore/store"
)

// Envelope is the published event payload.
type Envelope struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	OrderID   string `json:"order_id"`
	HubID     string `json:"hub_id,omitempty"`
	Status    string `json:"status"`
}

// OutboxEmitter writes lifecycle events into the outbox table. It
// satisfies the orders package's Emitter interface.
type OutboxEmitter struct {
	db    *store.DB
	topic string
}

func NewOutboxEmitter(db *store.DB, topic string) *OutboxEmitter {
	return &OutboxEmitter{db: db, topic: topic}
}

func (e *OutboxEmitter) OrderEvent(event, orderID, hubID, status string) {
	env := Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().Format(time.RFC3339),
		Event:     event,
		OrderID:   orderID,
		HubID:     hubID,
		Status:    status,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		log.Printf("events: marshal %s for %s: %v", event, orderID, err)
		return
	}
	if err := e.db.EnqueueOutbox(e.topic, payload, event, orderID); err != nil {
		log.Printf("events: enqueue %s for %s: %v", event, orderID, err)
	}
}
