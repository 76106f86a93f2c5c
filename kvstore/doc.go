// Package kvstore stores chat messages in a NATS JetStream KV bucket and
// turns the bucket's watch stream into realtime chat events.
//
// # Architecture
//
// Each message is one key in bucket "semchat_messages" (configurable). The key
// is a random uuid and the value is the JSON document:
//
//	{"id":"6f1c...","text":"hello","author":"silent_moon","created_at":"2026-10-14T09:00:00Z"}
//
// Messages are never updated, so a key's revision is its creation sequence
// and List orders by revision to recover insertion order.
//
// # Realtime
//
// Subscribe opens a WatchAll with UpdatesOnly. Puts map to created events,
// delete and purge markers map to deleted events. The same Store value
// therefore serves as both chat.Store and chat.EventSource:
//
//	store, err := kvstore.NewStore(ctx, natsClient, cfg.NATS.Bucket)
//	session, err := chat.NewSession(id, store, store)
//
// # Error Classification
//
//   - Create of an existing key: errors.WrapInvalid
//   - Network and JetStream failures: errors.WrapTransient
//   - Watcher closed before Unsubscribe: errors.ErrConnectionLost via onError
package kvstore
