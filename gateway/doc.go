// Package gateway exposes a chat.Session over HTTP and WebSocket.
//
// # Routes
//
//	GET    /api/identity       {"identity": "silent_moon"}
//	GET    /api/messages       current list with direction
//	POST   /api/messages       {"text": "..."} -> 201 message | 400 | 429 | 502
//	DELETE /api/messages/{id}  204, the removal is optimistic | 429
//	POST   /api/refresh        200 list | 502
//	GET    /ws                 WebSocket
//	GET    /health             aggregate health.Status, 200 when healthy, else 503
//	GET    /metrics            Prometheus exposition (WithMetricsRegistry)
//
// Error bodies are {"code","message"} where code is one of the Code*
// constants. A failed send leaves text on the client so it can retry.
//
// WithWriteRateLimit caps sends and deletes. HTTP writes share one limiter,
// each WebSocket connection has its own and gets a rate_limited error frame.
//
// # WebSocket
//
// The server pushes {"type":"snapshot","messages":[...]} on connect and after
// every change. Changes are coalesced: a burst of events results in one push
// carrying the newest list. Clients send
//
//	{"type":"send","text":"hello"}
//	{"type":"delete","id":"..."}
//	{"type":"refresh"}
//
// and receive {"type":"error","code","message"} when an action fails.
//
// # Wiring
//
//	notifier := gateway.NewNotifier()
//	session, _ := chat.NewSession(id, store, events,
//	    chat.WithChangeHandler(notifier.ChangeHandler()))
//	srv, _ := gateway.NewServer(session, gateway.WithNotifier(notifier))
//	_ = srv.Start(ctx, ":8080")
package gateway
