package chat

import (
	"context"
	"time"
)

// Direction tells the view which side of the conversation a message is on.
// It is derived from the author on every snapshot and never stored.
type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Message is one entry of the reconciled list.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Direction Direction `json:"direction,omitempty"`
}

// Document is a message as persisted by a Store.
type Document struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the payload of a create request. The store assigns the id.
type Draft struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// EventKind is the realtime notification type.
type EventKind string

const (
	EventCreated EventKind = "created"
	EventDeleted EventKind = "deleted"
)

// Event is a realtime change notification. Text and Author are only set for
// EventCreated.
type Event struct {
	Kind   EventKind `json:"kind"`
	ID     string    `json:"id"`
	Text   string    `json:"text,omitempty"`
	Author string    `json:"author,omitempty"`
}

// Store is the remote document store. Any call may fail.
type Store interface {
	// List returns every document in store order.
	List(ctx context.Context) ([]Document, error)
	// Create persists a draft and returns it with its assigned id.
	Create(ctx context.Context, draft Draft) (Document, error)
	// Delete removes the document with id.
	Delete(ctx context.Context, id string) error
}

// Unsubscribe stops a subscription opened by EventSource.Subscribe.
type Unsubscribe func() error

// EventSource delivers realtime events for the shared collection. Delivery
// is at least once with no ordering guarantee relative to Store round trips.
// onEvent and onError may be called from any goroutine. ctx bounds only the
// setup; the subscription runs until Unsubscribe is called.
type EventSource interface {
	Subscribe(ctx context.Context, onEvent func(Event), onError func(error)) (Unsubscribe, error)
}
