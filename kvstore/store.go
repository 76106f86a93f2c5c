package kvstore

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/natsclient"
)

// DefaultBucket is the KV bucket holding chat documents.
const DefaultBucket = "semchat_messages"

// Store implements chat.Store and chat.EventSource over one NATS KV bucket.
type Store struct {
	bucket jetstream.KeyValue
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the CreatedAt timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore opens bucketName on client, creating it if needed.
func NewStore(ctx context.Context, client *natsclient.Client, bucketName string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "KVStore", "NewStore", "client check")
	}
	if bucketName == "" {
		bucketName = DefaultBucket
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      bucketName,
		Description: "SemChat room messages",
		History:     1,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewStore", "bucket open")
	}
	return New(bucket, opts...), nil
}

// New wraps an already opened bucket.
func New(bucket jetstream.KeyValue, opts ...Option) *Store {
	s := &Store{
		bucket: bucket,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "kvstore", "bucket", bucket.Bucket())
	return s
}

// List returns every live document ordered by KV revision, which is the order
// they were created in.
func (s *Store) List(ctx context.Context) ([]chat.Document, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		if stderrors.Is(err, jetstream.ErrNoKeysFound) {
			return []chat.Document{}, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "List", "key listing")
	}

	type revisioned struct {
		doc chat.Document
		rev uint64
	}
	found := make([]revisioned, 0, len(keys))
	for _, key := range keys {
		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			if stderrors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, errors.WrapTransient(err, "KVStore", "List", fmt.Sprintf("get key %s", key))
		}
		doc, err := decodeDocument(entry)
		if err != nil {
			s.logger.Warn("Skipping undecodable document", "key", key, "error", err)
			continue
		}
		found = append(found, revisioned{doc: doc, rev: entry.Revision()})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].rev < found[j].rev })

	docs := make([]chat.Document, len(found))
	for i, r := range found {
		docs[i] = r.doc
	}
	return docs, nil
}

// Create stores draft under a new uuid key.
func (s *Store) Create(ctx context.Context, draft chat.Draft) (chat.Document, error) {
	doc := chat.Document{
		ID:        uuid.NewString(),
		Text:      draft.Text,
		Author:    draft.Author,
		CreatedAt: s.now().UTC(),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return chat.Document{}, errors.WrapInvalid(err, "KVStore", "Create", "document marshal")
	}

	if _, err := s.bucket.Create(ctx, doc.ID, data); err != nil {
		if stderrors.Is(err, jetstream.ErrKeyExists) {
			return chat.Document{}, errors.WrapInvalid(err, "KVStore", "Create",
				fmt.Sprintf("document %s already exists", doc.ID))
		}
		return chat.Document{}, errors.WrapTransient(err, "KVStore", "Create", "document put")
	}
	return doc, nil
}

// Delete writes a delete marker for id.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "KVStore", "Delete", "id check")
	}
	if err := s.bucket.Delete(ctx, id); err != nil {
		if stderrors.Is(err, jetstream.ErrKeyNotFound) {
			return nil
		}
		return errors.WrapTransient(err, "KVStore", "Delete", "document delete")
	}
	return nil
}

// Subscribe watches the bucket for changes made after the call. Puts become
// created events and delete or purge markers become deleted events. If the
// watcher closes before Unsubscribe, onError receives a connection-lost error.
func (s *Store) Subscribe(ctx context.Context, onEvent func(chat.Event), onError func(error)) (chat.Unsubscribe, error) {
	if onEvent == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "KVStore", "Subscribe", "handler check")
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	watcher, err := s.bucket.WatchAll(watchCtx, jetstream.UpdatesOnly())
	if err != nil {
		cancel()
		return nil, errors.WrapTransient(err, "KVStore", "Subscribe", "bucket watch")
	}

	stopped := make(chan struct{})
	go s.forward(watcher, stopped, onEvent, onError)

	var once sync.Once
	return func() error {
		var stopErr error
		once.Do(func() {
			close(stopped)
			stopErr = watcher.Stop()
			cancel()
		})
		if stopErr != nil {
			return errors.WrapTransient(stopErr, "KVStore", "Unsubscribe", "watcher stop")
		}
		return nil
	}, nil
}

func (s *Store) forward(watcher jetstream.KeyWatcher, stopped <-chan struct{}, onEvent func(chat.Event), onError func(error)) {
	for {
		select {
		case <-stopped:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				select {
				case <-stopped:
				default:
					s.logger.Error("KV watcher closed unexpectedly")
					if onError != nil {
						onError(errors.WrapTransient(errors.ErrConnectionLost, "KVStore", "Subscribe", "watch updates"))
					}
				}
				return
			}
			if entry == nil {
				continue
			}
			ev, ok := s.entryToEvent(entry)
			if !ok {
				continue
			}
			onEvent(ev)
		}
	}
}

func (s *Store) entryToEvent(entry jetstream.KeyValueEntry) (chat.Event, bool) {
	switch entry.Operation() {
	case jetstream.KeyValuePut:
		doc, err := decodeDocument(entry)
		if err != nil {
			s.logger.Warn("Ignoring undecodable put", "key", entry.Key(), "error", err)
			return chat.Event{}, false
		}
		return chat.Event{Kind: chat.EventCreated, ID: doc.ID, Text: doc.Text, Author: doc.Author}, true
	case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
		return chat.Event{Kind: chat.EventDeleted, ID: entry.Key()}, true
	default:
		return chat.Event{}, false
	}
}

func decodeDocument(entry jetstream.KeyValueEntry) (chat.Document, error) {
	var doc chat.Document
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return chat.Document{}, err
	}
	// the key is authoritative
	doc.ID = entry.Key()
	return doc, nil
}
