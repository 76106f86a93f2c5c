// Package memstore is an in-process chat.Store and chat.EventSource. It backs
// the "memory" store driver and gives other packages a realistic adapter to
// test against, including fault injection.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
)

type subscriber struct {
	onEvent func(chat.Event)
	onError func(error)
}

// Store keeps documents in insertion order and fans every change out to
// subscribers synchronously, after its own lock is released.
type Store struct {
	mu     sync.Mutex
	docs   []chat.Document
	subs   map[uint64]subscriber
	nextID uint64
	now    func() time.Time

	listErr   error
	createErr error
	deleteErr error
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		subs: make(map[uint64]subscriber),
		now:  time.Now,
	}
}

// Seed appends documents without emitting events. Missing ids are generated.
func (s *Store) Seed(docs ...chat.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.CreatedAt.IsZero() {
			d.CreatedAt = s.now()
		}
		s.docs = append(s.docs, d)
	}
}

// FailList makes List return err until cleared with nil.
func (s *Store) FailList(err error) {
	s.mu.Lock()
	s.listErr = err
	s.mu.Unlock()
}

// FailCreate makes Create return err until cleared with nil.
func (s *Store) FailCreate(err error) {
	s.mu.Lock()
	s.createErr = err
	s.mu.Unlock()
}

// FailDelete makes Delete return err until cleared with nil.
func (s *Store) FailDelete(err error) {
	s.mu.Lock()
	s.deleteErr = err
	s.mu.Unlock()
}

// List implements chat.Store.
func (s *Store) List(ctx context.Context) ([]chat.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "MemStore", "List", "context check")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, errors.WrapTransient(s.listErr, "MemStore", "List", "document listing")
	}
	return append([]chat.Document(nil), s.docs...), nil
}

// Create implements chat.Store.
func (s *Store) Create(ctx context.Context, draft chat.Draft) (chat.Document, error) {
	if err := ctx.Err(); err != nil {
		return chat.Document{}, errors.WrapTransient(err, "MemStore", "Create", "context check")
	}

	s.mu.Lock()
	if s.createErr != nil {
		err := s.createErr
		s.mu.Unlock()
		return chat.Document{}, errors.WrapTransient(err, "MemStore", "Create", "document insert")
	}
	doc := chat.Document{
		ID:        uuid.NewString(),
		Text:      draft.Text,
		Author:    draft.Author,
		CreatedAt: s.now(),
	}
	s.docs = append(s.docs, doc)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	ev := chat.Event{Kind: chat.EventCreated, ID: doc.ID, Text: doc.Text, Author: doc.Author}
	for _, sub := range subs {
		sub.onEvent(ev)
	}
	return doc, nil
}

// Delete implements chat.Store. Deleting an absent id succeeds and emits
// nothing.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return errors.WrapTransient(err, "MemStore", "Delete", "context check")
	}

	s.mu.Lock()
	if s.deleteErr != nil {
		err := s.deleteErr
		s.mu.Unlock()
		return errors.WrapTransient(err, "MemStore", "Delete", "document delete")
	}
	found := false
	for i, d := range s.docs {
		if d.ID == id {
			s.docs = append(s.docs[:i], s.docs[i+1:]...)
			found = true
			break
		}
	}
	var subs []subscriber
	if found {
		subs = s.subscribersLocked()
	}
	s.mu.Unlock()

	ev := chat.Event{Kind: chat.EventDeleted, ID: id}
	for _, sub := range subs {
		sub.onEvent(ev)
	}
	return nil
}

// Subscribe implements chat.EventSource.
func (s *Store) Subscribe(_ context.Context, onEvent func(chat.Event), onError func(error)) (chat.Unsubscribe, error) {
	if onEvent == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "MemStore", "Subscribe", "handler check")
	}
	if onError == nil {
		onError = func(error) {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = subscriber{onEvent: onEvent, onError: onError}
	s.mu.Unlock()

	var once sync.Once
	return func() error {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
		return nil
	}, nil
}

// Publish delivers ev to every subscriber without touching the documents,
// simulating a change made by another client.
func (s *Store) Publish(ev chat.Event) {
	s.mu.Lock()
	subs := s.subscribersLocked()
	s.mu.Unlock()
	for _, sub := range subs {
		sub.onEvent(ev)
	}
}

// CloseStream reports err to every subscriber and drops them.
func (s *Store) CloseStream(err error) {
	s.mu.Lock()
	subs := s.subscribersLocked()
	s.subs = make(map[uint64]subscriber)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.onError(err)
	}
}

// Subscribers returns the number of open subscriptions.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) subscribersLocked() []subscriber {
	out := make([]subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out
}
