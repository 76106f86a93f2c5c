// Package semchat is an anonymous group chat room: every participant gets a
// generated name, sends and deletes messages, and sees everyone else's
// messages in near real time.
//
// # Architecture
//
//	┌──────────────────────────────┐
//	│   gateway (HTTP, WebSocket)  │  browsers, curl
//	└──────────────┬───────────────┘
//	               ↓ Submit, Delete, Snapshot, Refresh
//	┌──────────────────────────────┐
//	│         chat.Session         │  reconciled message list
//	└──────┬────────────────┬──────┘
//	       ↓ chat.Store     ↑ chat.EventSource
//	┌──────────────┐  ┌───────────────────┐
//	│ kvstore      │  │ kvstore watch     │
//	│ mongostore   │  │ mongo change feed │
//	│ memstore     │  │ redisbus pub/sub  │
//	└──────────────┘  └───────────────────┘
//
// chat.Session keeps one list per participant. Local sends are added
// optimistically once the store assigns an id, remote events are merged in
// arrival order, and the participant's own echoes are suppressed by author.
//
// # Packages
//
//   - identity: generated display names ("silent_moon")
//   - chat: the reconciliation core and the store and event contracts
//   - kvstore, natsclient: NATS JetStream KV backend
//   - mongostore: MongoDB backend with change streams
//   - redisbus: Redis pub/sub realtime for any store
//   - memstore: in-process backend for demos and tests
//   - breaker: circuit breaker in front of any remote store
//   - gateway: HTTP and WebSocket binding for one session
//   - health: aggregated health statuses for the gateway
//   - metric: Prometheus registry and chat metrics
//   - config: layered JSON or YAML files plus environment configuration
//   - errors: classified errors and the chat error taxonomy
//   - pkg/retry: backoff for connecting to backends
//
// The binary lives in cmd/semchat.
package semchat
