package mongostore

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
)

// Default names used when the configuration leaves them empty.
const (
	DefaultDatabase   = "semchat"
	DefaultCollection = "messages"
)

// document is the BSON shape of a stored message. Seq breaks ties between
// documents created in the same millisecond.
type document struct {
	ID        string             `bson:"_id"`
	Text      string             `bson:"text"`
	Author    string             `bson:"author"`
	CreatedAt time.Time          `bson:"created_at"`
	Seq       primitive.ObjectID `bson:"seq"`
}

// listOrder is the sort List applies and EnsureIndexes backs.
var listOrder = bson.D{{Key: "created_at", Value: 1}, {Key: "seq", Value: 1}}

func (d document) toChat() chat.Document {
	return chat.Document{ID: d.ID, Text: d.Text, Author: d.Author, CreatedAt: d.CreatedAt}
}

// Store implements chat.Store and chat.EventSource over a MongoDB collection.
// The event source is a change stream and needs a replica set.
type Store struct {
	coll   *mongo.Collection
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

// Connect dials uri and pings the primary.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "MongoStore", "Connect", "uri check")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.WrapTransient(err, "MongoStore", "Connect", "client connect")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, errors.WrapTransient(err, "MongoStore", "Connect", "ping")
	}
	return client, nil
}

// New returns a store over database.collection on client.
func New(client *mongo.Client, database, collection string, opts ...Option) *Store {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	s := &Store{
		coll:   client.Database(database).Collection(collection),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mongostore", "collection", database+"."+collection)
	return s
}

// EnsureIndexes creates the created_at index used by List.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: listOrder,
	})
	if err != nil {
		return errors.WrapTransient(err, "MongoStore", "EnsureIndexes", "index create")
	}
	return nil
}

// List returns every document oldest first.
func (s *Store) List(ctx context.Context) ([]chat.Document, error) {
	cur, err := s.coll.Find(ctx, bson.D{},
		options.Find().SetSort(listOrder))
	if err != nil {
		return nil, errors.WrapTransient(err, "MongoStore", "List", "find")
	}
	defer cur.Close(ctx)

	docs := []chat.Document{}
	for cur.Next(ctx) {
		var d document
		if err := cur.Decode(&d); err != nil {
			s.logger.Warn("Skipping undecodable document", "error", err)
			continue
		}
		docs = append(docs, d.toChat())
	}
	if err := cur.Err(); err != nil {
		return nil, errors.WrapTransient(err, "MongoStore", "List", "cursor")
	}
	return docs, nil
}

func (s *Store) newDocument(draft chat.Draft) document {
	return document{
		ID:        uuid.NewString(),
		Text:      draft.Text,
		Author:    draft.Author,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		Seq:       primitive.NewObjectID(),
	}
}

// Create inserts draft with a new uuid _id.
func (s *Store) Create(ctx context.Context, draft chat.Draft) (chat.Document, error) {
	d := s.newDocument(draft)
	if _, err := s.coll.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.Document{}, errors.WrapInvalid(err, "MongoStore", "Create", "duplicate id")
		}
		return chat.Document{}, errors.WrapTransient(err, "MongoStore", "Create", "insert")
	}
	return d.toChat(), nil
}

// Delete removes id. Deleting an absent document succeeds.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "MongoStore", "Delete", "id check")
	}
	if _, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}}); err != nil {
		return errors.WrapTransient(err, "MongoStore", "Delete", "delete")
	}
	return nil
}

// changeEvent is the subset of a change stream document the store reads.
type changeEvent struct {
	OperationType string   `bson:"operationType"`
	FullDocument  document `bson:"fullDocument"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

func (c changeEvent) toEvent() (chat.Event, bool) {
	switch c.OperationType {
	case "insert":
		d := c.FullDocument
		return chat.Event{Kind: chat.EventCreated, ID: d.ID, Text: d.Text, Author: d.Author}, d.ID != ""
	case "delete":
		return chat.Event{Kind: chat.EventDeleted, ID: c.DocumentKey.ID}, c.DocumentKey.ID != ""
	default:
		return chat.Event{}, false
	}
}

// Subscribe opens a change stream on the collection filtered to inserts and
// deletes. Stream failures other than Unsubscribe are passed to onError.
func (s *Store) Subscribe(ctx context.Context, onEvent func(chat.Event), onError func(error)) (chat.Unsubscribe, error) {
	if onEvent == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "MongoStore", "Subscribe", "handler check")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "delete"}}}}}}},
	}
	stream, err := s.coll.Watch(ctx, pipeline)
	if err != nil {
		return nil, errors.WrapTransient(err, "MongoStore", "Subscribe", "change stream open")
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	go s.forward(streamCtx, stream, onEvent, onError)

	var once sync.Once
	return func() error {
		once.Do(cancel)
		return nil
	}, nil
}

func (s *Store) forward(ctx context.Context, stream *mongo.ChangeStream, onEvent func(chat.Event), onError func(error)) {
	defer func() {
		if err := stream.Close(context.Background()); err != nil {
			s.logger.Debug("Change stream close failed", "error", err)
		}
	}()

	for stream.Next(ctx) {
		var ce changeEvent
		if err := stream.Decode(&ce); err != nil {
			s.logger.Warn("Ignoring undecodable change event", "error", err)
			continue
		}
		if ev, ok := ce.toEvent(); ok {
			onEvent(ev)
		}
	}

	if ctx.Err() != nil {
		return
	}
	err := stream.Err()
	if err == nil || stderrors.Is(err, context.Canceled) {
		err = errors.ErrConnectionLost
	}
	s.logger.Error("Change stream ended", "error", err)
	if onError != nil {
		onError(errors.WrapTransient(err, "MongoStore", "Subscribe", "change stream"))
	}
}
