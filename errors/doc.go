// Package errors provides the SemChat error taxonomy on top of a three-class
// classification: Transient (retry may help), Invalid (caller error, do not
// retry) and Fatal (stop, escalate).
//
// # Chat Taxonomy
//
// A chat.Session only ever surfaces these sentinels, each with a fixed class:
//
//   - ErrInvalidInput: empty submission after trimming (invalid)
//   - ErrRemoteWriteFailed: store create or delete failed (transient)
//   - ErrRemoteReadFailed: snapshot load failed (transient)
//   - ErrStreamError: realtime subscription failed or dropped (fatal for the stream)
//   - ErrSessionClosed: operation after Close (fatal)
//
// WrapKind attaches a sentinel to the underlying adapter error so both can be
// matched:
//
//	err := errors.WrapKind(errors.ErrRemoteWriteFailed, cause, "Session", "Submit", "store create")
//	stderrors.Is(err, errors.ErrRemoteWriteFailed) // true
//	stderrors.Is(err, cause)                       // true
//
// # Error Wrapping Pattern
//
// All wrapping follows "component.method: action failed: cause":
//
//	return errors.WrapTransient(err, "KVStore", "List", "key listing")
//
// Infrastructure packages use WrapTransient for network and storage failures,
// WrapInvalid for malformed input and configuration, and WrapFatal for states
// that cannot recover without operator action.
package errors
