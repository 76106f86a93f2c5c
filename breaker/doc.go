// Package breaker wraps a chat.Store in a sony/gobreaker circuit breaker.
//
// After DefaultMaxFailures consecutive backend failures the circuit opens
// and calls fail fast with errors.ErrStorageUnavailable until
// DefaultOpenTimeout passes and a single probe succeeds. Invalid-input
// errors do not count as failures.
package breaker
