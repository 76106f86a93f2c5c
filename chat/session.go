package chat

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/identity"
	"github.com/c360/semchat/metric"
)

const component = "Session"

// pendingOp is a mutation recorded while a snapshot load is in flight.
// Local ops bypass echo suppression on replay.
type pendingOp struct {
	event Event
	local bool
}

// Session reconciles one client's optimistic message list with the remote
// store and its realtime stream.
type Session struct {
	identity identity.Identity
	store    Store
	events   EventSource

	logger        *slog.Logger
	metrics       *metric.ChatMetrics
	onChange      func([]Message)
	onStreamError func(error)
	onDeleteError func(id string, err error)

	mu          sync.Mutex
	messages    []Message
	ids         map[string]struct{}
	loading     bool
	loadGen     uint64
	pending     []pendingOp
	ready       bool
	closed      bool
	streamErr   error
	unsubscribe Unsubscribe
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics records reconciliation metrics into m.
func WithMetrics(m *metric.ChatMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithChangeHandler registers fn to receive a fresh snapshot after every
// change to the list. fn may be called concurrently from store and stream
// goroutines and must not call back into the session synchronously with a
// lock of its own held.
func WithChangeHandler(fn func([]Message)) Option {
	return func(s *Session) { s.onChange = fn }
}

// WithStreamErrorHandler registers fn to receive realtime subscription
// failures. The session does not reconnect.
func WithStreamErrorHandler(fn func(error)) Option {
	return func(s *Session) { s.onStreamError = fn }
}

// WithDeleteErrorHandler registers fn to receive remote delete failures.
// The local removal is never rolled back.
func WithDeleteErrorHandler(fn func(id string, err error)) Option {
	return func(s *Session) { s.onDeleteError = fn }
}

// NewSession creates a session posting as id. store and events are the
// adapters for the shared collection; they may be the same value.
func NewSession(id identity.Identity, store Store, events EventSource, opts ...Option) (*Session, error) {
	switch {
	case id == "":
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "NewSession", "identity check")
	case store == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "NewSession", "store check")
	case events == nil:
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, component, "NewSession", "event source check")
	}

	s := &Session{
		identity: id,
		store:    store,
		events:   events,
		logger:   slog.Default(),
		ids:      make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat", "identity", id.String())
	return s, nil
}

// Identity returns the local author name.
func (s *Session) Identity() identity.Identity {
	return s.identity
}

// Initialize clears the list, opens the realtime subscription and loads a
// full snapshot. Events arriving before the snapshot is applied are merged
// after it in arrival order.
//
// A failed snapshot returns ErrRemoteReadFailed with the subscription left
// open and buffered events applied to the empty list; call Refresh to retry.
// A failed subscription returns ErrStreamError after the snapshot is loaded.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.WrapKind(errors.ErrSessionClosed, nil, component, "Initialize", "state check")
	}
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.pending = nil
	s.ready = false
	s.streamErr = nil
	gen := s.beginLoadLocked()
	needSubscribe := s.unsubscribe == nil
	s.mu.Unlock()

	s.logger.Info("Initializing chat session")

	var subErr error
	if needSubscribe {
		subErr = s.subscribe(ctx)
	}
	loadErr := s.load(ctx, gen, "Initialize")

	switch {
	case loadErr != nil && subErr != nil:
		return stderrors.Join(loadErr, subErr)
	case loadErr != nil:
		return loadErr
	default:
		return subErr
	}
}

// Refresh reloads the snapshot, replacing the list. It is the retry path
// after ErrRemoteReadFailed. On failure the current list is kept.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.WrapKind(errors.ErrSessionClosed, nil, component, "Refresh", "state check")
	}
	gen := s.beginLoadLocked()
	s.mu.Unlock()

	return s.load(ctx, gen, "Refresh")
}

func (s *Session) beginLoadLocked() uint64 {
	s.loading = true
	s.loadGen++
	return s.loadGen
}

func (s *Session) subscribe(ctx context.Context) error {
	unsub, err := s.events.Subscribe(ctx, s.HandleEvent, s.HandleStreamError)
	if err != nil {
		wrapped := errors.WrapKind(errors.ErrStreamError, err, component, "Initialize", "realtime subscribe")
		s.mu.Lock()
		s.streamErr = wrapped
		s.mu.Unlock()
		s.metrics.RecordStreamError()
		s.logger.Error("Realtime subscription failed", "error", err)
		return wrapped
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if uerr := unsub(); uerr != nil {
			s.logger.Warn("Unsubscribe after close failed", "error", uerr)
		}
		return errors.WrapKind(errors.ErrSessionClosed, nil, component, "Initialize", "realtime subscribe")
	}
	s.unsubscribe = unsub
	s.mu.Unlock()
	return nil
}

func (s *Session) load(ctx context.Context, gen uint64, method string) error {
	start := time.Now()
	docs, err := s.store.List(ctx)
	s.metrics.ObserveStore("list", err, time.Since(start))

	var readErr error
	if err != nil {
		readErr = errors.WrapKind(errors.ErrRemoteReadFailed, err, component, method, "snapshot list")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.WrapKind(errors.ErrSessionClosed, nil, component, method, "snapshot apply")
	}
	if gen != s.loadGen {
		// A newer load owns the buffer and will apply it.
		s.mu.Unlock()
		return readErr
	}

	if err == nil {
		s.replaceLocked(docs)
		s.ready = true
	}
	for _, op := range s.pending {
		_, outcome := s.applyLocked(op)
		if !op.local {
			s.metrics.RecordEvent(kindLabel(op.event.Kind), outcome)
		}
	}
	replayed := len(s.pending)
	s.pending = nil
	s.loading = false
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("Snapshot load failed", "method", method, "replayed", replayed, "error", err)
	} else {
		s.logger.Info("Snapshot loaded", "method", method, "messages", len(docs), "replayed", replayed)
	}
	s.notify(snap)
	return readErr
}

// Submit trims text, creates it remotely and appends it on success. Blank text
// fails with ErrInvalidInput without a store call. A store failure returns
// ErrRemoteWriteFailed and leaves the list unchanged.
func (s *Session) Submit(ctx context.Context, text string) (Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		s.metrics.RecordSubmit(metric.StatusRejected)
		return Message{}, errors.WrapKind(errors.ErrInvalidInput, nil, component, "Submit", "input validation")
	}
	if s.isClosed() {
		return Message{}, errors.WrapKind(errors.ErrSessionClosed, nil, component, "Submit", "state check")
	}

	draft := Draft{Text: trimmed, Author: s.identity.String()}
	start := time.Now()
	doc, err := s.store.Create(ctx, draft)
	s.metrics.ObserveStore("create", err, time.Since(start))
	if err == nil && doc.ID == "" {
		err = fmt.Errorf("store returned a document without id")
	}
	if err != nil {
		s.metrics.RecordSubmit(metric.StatusFailed)
		s.logger.Warn("Message submit failed", "error", err)
		return Message{}, errors.WrapKind(errors.ErrRemoteWriteFailed, err, component, "Submit", "store create")
	}
	s.metrics.RecordSubmit(metric.StatusOK)

	msg := Message{ID: doc.ID, Text: trimmed, Author: draft.Author, Direction: DirectionSent}
	op := pendingOp{
		event: Event{Kind: EventCreated, ID: msg.ID, Text: msg.Text, Author: msg.Author},
		local: true,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Discarding submit result after close", "id", msg.ID)
		return msg, errors.WrapKind(errors.ErrSessionClosed, nil, component, "Submit", "result apply")
	}
	if s.loading {
		s.pending = append(s.pending, op)
	}
	changed, _ := s.applyLocked(op)
	var snap []Message
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return msg, nil
}

// Delete removes the message locally, then asks the store to delete it.
// Remote failures are logged and reported to the delete error handler but
// never returned, and the message is not restored. The only error is
// ErrSessionClosed.
func (s *Session) Delete(ctx context.Context, id string) error {
	op := pendingOp{event: Event{Kind: EventDeleted, ID: id}, local: true}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.WrapKind(errors.ErrSessionClosed, nil, component, "Delete", "state check")
	}
	if s.loading {
		s.pending = append(s.pending, op)
	}
	changed, _ := s.applyLocked(op)
	var snap []Message
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}

	start := time.Now()
	err := s.store.Delete(ctx, id)
	s.metrics.ObserveStore("delete", err, time.Since(start))
	if err != nil {
		s.metrics.RecordDelete(metric.StatusFailed)
		wrapped := errors.WrapKind(errors.ErrRemoteWriteFailed, err, component, "Delete", "store delete")
		s.logger.Warn("Remote delete failed, local removal kept", "id", id, "error", err)
		if s.onDeleteError != nil && !s.isClosed() {
			s.onDeleteError(id, wrapped)
		}
		return nil
	}
	s.metrics.RecordDelete(metric.StatusOK)
	return nil
}

// HandleEvent merges one realtime event. It never fails: echoes of local
// creates, duplicates, deletes of absent ids and unknown kinds are dropped.
// While a snapshot is loading the event is buffered instead.
func (s *Session) HandleEvent(ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.loading {
		s.pending = append(s.pending, pendingOp{event: ev})
		s.mu.Unlock()
		s.metrics.RecordEvent(kindLabel(ev.Kind), metric.EventBuffered)
		return
	}

	changed, outcome := s.applyLocked(pendingOp{event: ev})
	var snap []Message
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	s.metrics.RecordEvent(kindLabel(ev.Kind), outcome)
	if outcome != metric.EventApplied {
		s.logger.Debug("Realtime event dropped", "kind", ev.Kind, "id", ev.ID, "outcome", outcome)
	}
	if changed {
		s.notify(snap)
	}
}

// HandleStreamError records a realtime subscription failure. The list stays
// as it is and no reconnect is attempted.
func (s *Session) HandleStreamError(err error) {
	if err == nil {
		return
	}
	wrapped := errors.WrapKind(errors.ErrStreamError, err, component, "HandleStreamError", "realtime stream")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.streamErr = wrapped
	s.mu.Unlock()

	s.metrics.RecordStreamError()
	s.logger.Error("Realtime stream failed", "error", err)
	if s.onStreamError != nil {
		s.onStreamError(wrapped)
	}
}

// Snapshot returns a copy of the list with Direction set.
func (s *Session) Snapshot() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Ready reports whether a snapshot has been applied since Initialize.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.closed
}

// StreamErr returns the last realtime failure, or nil while the stream is
// healthy.
func (s *Session) StreamErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamErr
}

// Close cancels the subscription. Store calls already in flight finish
// remotely but their results are discarded, and later Submit, Delete,
// Initialize and Refresh calls return ErrSessionClosed. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.loading = false
	s.pending = nil
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.logger.Info("Chat session closed")
	if unsub == nil {
		return nil
	}
	if err := unsub(); err != nil {
		return errors.WrapTransient(err, component, "Close", "realtime unsubscribe")
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// isEcho reports whether ev is the realtime echo of this session's own
// create. Any created event authored by the local identity counts.
func (s *Session) isEcho(ev Event) bool {
	return ev.Author == s.identity.String()
}

func (s *Session) applyLocked(op pendingOp) (bool, string) {
	ev := op.event
	switch ev.Kind {
	case EventCreated:
		if !op.local && s.isEcho(ev) {
			return false, metric.EventEcho
		}
		if ev.ID == "" {
			return false, metric.EventIgnored
		}
		if _, ok := s.ids[ev.ID]; ok {
			return false, metric.EventDuplicate
		}
		s.appendLocked(Message{ID: ev.ID, Text: ev.Text, Author: ev.Author})
		return true, metric.EventApplied
	case EventDeleted:
		if s.removeLocked(ev.ID) {
			return true, metric.EventApplied
		}
		return false, metric.EventIgnored
	default:
		return false, metric.EventIgnored
	}
}

func (s *Session) replaceLocked(docs []Document) {
	s.messages = make([]Message, 0, len(docs))
	s.ids = make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if doc.ID == "" {
			continue
		}
		s.appendLocked(Message{ID: doc.ID, Text: doc.Text, Author: doc.Author})
	}
}

func (s *Session) appendLocked(m Message) {
	if _, ok := s.ids[m.ID]; ok {
		return
	}
	m.Direction = ""
	s.messages = append(s.messages, m)
	s.ids[m.ID] = struct{}{}
	s.metrics.SetMessageCount(len(s.messages))
}

func (s *Session) removeLocked(id string) bool {
	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	s.messages = slices.DeleteFunc(s.messages, func(m Message) bool { return m.ID == id })
	s.metrics.SetMessageCount(len(s.messages))
	return true
}

func (s *Session) snapshotLocked() []Message {
	out := make([]Message, len(s.messages))
	local := s.identity.String()
	for i, m := range s.messages {
		m.Direction = DirectionReceived
		if m.Author == local {
			m.Direction = DirectionSent
		}
		out[i] = m
	}
	return out
}

func (s *Session) notify(snap []Message) {
	if s.onChange != nil {
		s.onChange(snap)
	}
}

func kindLabel(k EventKind) string {
	switch k {
	case EventCreated, EventDeleted:
		return string(k)
	default:
		return "unknown"
	}
}
