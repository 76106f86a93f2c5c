// Package chat provides the message reconciliation core of SemChat.
//
// # Overview
//
// A Session holds one client's view of a single shared chat room. It merges
// three sources of change into one ordered, de-duplicated message list:
//
//   - a full snapshot loaded from the Store when the session starts
//   - optimistic local submits and deletes
//   - realtime events delivered by the EventSource
//
// # Key Concepts
//
// Message:
//   - ID: assigned by the store, the merge key
//   - Text: trimmed, never empty
//   - Author: the local identity or a remote peer's
//   - Direction: sent or received, computed on every Snapshot
//
// Echo suppression:
//   - A created event whose author equals the session identity is the echo of
//     a local submit and is dropped. The local copy is added when Create
//     returns, so a submit and its echo yield one message whichever lands first.
//
// Merge rules:
//   - created: append unless echo or the id is already present
//   - deleted: remove if present, otherwise no-op
//   - anything else: ignored
//
// # Initialization
//
// Initialize subscribes before it lists, so there is no gap in which a remote
// change could be missed. Events that arrive while List is pending are
// buffered and replayed on top of the snapshot in arrival order. Local
// submits and deletes made during the load are replayed too, so the snapshot
// cannot resurrect a deleted message or hide a new one.
//
// # Error Classification
//
//   - Submit of blank text: errors.ErrInvalidInput, no store call
//   - Submit store failure: errors.ErrRemoteWriteFailed, list unchanged
//   - Initialize/Refresh list failure: errors.ErrRemoteReadFailed
//   - Subscription failure: errors.ErrStreamError, via Initialize or the
//     stream error handler
//   - Delete never reports remote failures to the caller; they go to the
//     delete error handler and the local removal stands
//
// # Example Usage
//
//	session, err := chat.NewSession(identity.Generate(), store, store,
//	    chat.WithLogger(logger),
//	    chat.WithMetrics(registry.Chat),
//	    chat.WithChangeHandler(func(msgs []chat.Message) { render(msgs) }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	if err := session.Initialize(ctx); errors.Is(err, semerrors.ErrRemoteReadFailed) {
//	    // show a retry control wired to session.Refresh
//	}
//
//	if _, err := session.Submit(ctx, input); err != nil {
//	    // keep the input so the user can resend
//	}
//
// # Concurrency
//
// All list mutations happen under one mutex that is never held across a store
// call. Store calls run on the caller's goroutine with the caller's context.
// Change handlers run outside the lock.
package chat
