package redisbus

import (
	"context"
	"log/slog"

	"github.com/c360/semchat/chat"
)

// Publisher sends chat events to other processes.
type Publisher interface {
	Publish(ctx context.Context, ev chat.Event) error
}

// PublishingStore announces every successful Create and Delete of the wrapped
// store on a Publisher. It is paired with a Bus as the event source when the
// backing store has no change feed of its own.
type PublishingStore struct {
	store  chat.Store
	pub    Publisher
	logger *slog.Logger
}

// NewPublishingStore wraps store.
func NewPublishingStore(store chat.Store, pub Publisher, logger *slog.Logger) *PublishingStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishingStore{store: store, pub: pub, logger: logger.With("component", "redisbus")}
}

// List delegates to the wrapped store.
func (p *PublishingStore) List(ctx context.Context) ([]chat.Document, error) {
	return p.store.List(ctx)
}

// Create delegates and then publishes a created event. A publish failure is
// logged; the document was stored and is returned.
func (p *PublishingStore) Create(ctx context.Context, draft chat.Draft) (chat.Document, error) {
	doc, err := p.store.Create(ctx, draft)
	if err != nil {
		return doc, err
	}
	p.publish(ctx, chat.Event{Kind: chat.EventCreated, ID: doc.ID, Text: doc.Text, Author: doc.Author})
	return doc, nil
}

// Delete delegates and then publishes a deleted event.
func (p *PublishingStore) Delete(ctx context.Context, id string) error {
	if err := p.store.Delete(ctx, id); err != nil {
		return err
	}
	p.publish(ctx, chat.Event{Kind: chat.EventDeleted, ID: id})
	return nil
}

func (p *PublishingStore) publish(ctx context.Context, ev chat.Event) {
	if err := p.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		p.logger.Warn("Event publish failed", "kind", ev.Kind, "id", ev.ID, "error", err)
	}
}
