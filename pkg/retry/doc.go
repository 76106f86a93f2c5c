// Package retry provides exponential backoff for the backend connections
// SemChat opens at startup.
//
// Chat operations themselves are never retried: a failed submit is reported
// to the caller and a failed snapshot is retried only when the view asks for a
// refresh. Retry is for NATS, MongoDB and Redis dials.
//
//	cfg := retry.Startup()
//	cfg.Retryable = errors.IsTransient
//	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
//	    logger.Warn("connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
//	}
//	err := retry.Do(ctx, cfg, func() error { return client.Connect(ctx) })
//
// Wrap an error with NonRetryable to stop the loop early regardless of
// Retryable.
package retry
