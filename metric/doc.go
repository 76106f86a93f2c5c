// Package metric exposes SemChat reconciliation metrics through Prometheus.
//
// NewMetricsRegistry builds a private prometheus.Registry with the chat
// metrics plus Go runtime and process collectors. Sessions record into
// registry.Chat; the gateway serves registry.Handler() on /metrics.
//
// Metrics, all under the "semchat" namespace:
//
//	semchat_session_submits_total{status}          ok | failed | rejected
//	semchat_session_deletes_total{status}          ok | failed
//	semchat_session_messages                       current list size
//	semchat_realtime_events_total{kind,outcome}    applied | duplicate | echo | ignored | buffered
//	semchat_realtime_stream_errors_total
//	semchat_store_duration_seconds{operation,status}
//	semchat_nats_connected
//
// Backends can add their own collectors with Register.
package metric
