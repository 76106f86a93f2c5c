// Package health models the health of a running chat room process.
//
// A Status is healthy, degraded or unhealthy. The gateway builds one Status
// per concern (the session snapshot, the realtime stream) and folds them with
// Aggregate:
//
//	status := health.Aggregate("semchat", []health.Status{
//		health.NewHealthy("session", "snapshot loaded"),
//		health.FromError("stream", session.StreamErr(), "subscribed"),
//	})
//
// Messages derived from errors pass through Sanitize, which removes
// connection strings, file paths, addresses and credentials.
package health
