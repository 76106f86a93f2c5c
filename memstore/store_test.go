package memstore

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/identity"
)

type recorder struct {
	mu     sync.Mutex
	events []chat.Event
	errs   []error
}

func (r *recorder) onEvent(ev chat.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) onError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestStore_CRUDAndEvents(t *testing.T) {
	ctx := context.Background()
	store := New()
	rec := &recorder{}

	unsub, err := store.Subscribe(ctx, rec.onEvent, rec.onError)
	require.NoError(t, err)

	a, err := store.Create(ctx, chat.Draft{Text: "a", Author: "bob"})
	require.NoError(t, err)
	b, err := store.Create(ctx, chat.Draft{Text: "b", Author: "amy"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.CreatedAt.IsZero())

	docs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Text)
	assert.Equal(t, "b", docs[1].Text)

	require.NoError(t, store.Delete(ctx, a.ID))
	require.NoError(t, store.Delete(ctx, "missing"))

	assert.Equal(t, []chat.Event{
		{Kind: chat.EventCreated, ID: a.ID, Text: "a", Author: "bob"},
		{Kind: chat.EventCreated, ID: b.ID, Text: "b", Author: "amy"},
		{Kind: chat.EventDeleted, ID: a.ID},
	}, rec.events)

	require.NoError(t, unsub())
	require.NoError(t, unsub())
	assert.Equal(t, 0, store.Subscribers())

	_, err = store.Create(ctx, chat.Draft{Text: "c", Author: "bob"})
	require.NoError(t, err)
	assert.Len(t, rec.events, 3)
}

func TestStore_FaultInjection(t *testing.T) {
	ctx := context.Background()
	store := New()
	boom := stderrors.New("boom")

	store.FailList(boom)
	_, err := store.List(ctx)
	assert.ErrorIs(t, err, boom)
	assert.True(t, errors.IsTransient(err))
	store.FailList(nil)

	store.FailCreate(boom)
	_, err = store.Create(ctx, chat.Draft{Text: "x", Author: "y"})
	assert.ErrorIs(t, err, boom)
	store.FailCreate(nil)

	store.FailDelete(boom)
	assert.ErrorIs(t, store.Delete(ctx, "x"), boom)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := New()
	_, err := store.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_CloseStream(t *testing.T) {
	store := New()
	rec := &recorder{}
	_, err := store.Subscribe(context.Background(), rec.onEvent, rec.onError)
	require.NoError(t, err)

	dropped := stderrors.New("dropped")
	store.CloseStream(dropped)

	assert.Equal(t, []error{dropped}, rec.errs)
	assert.Equal(t, 0, store.Subscribers())
}

func TestStore_SubscribeRequiresHandler(t *testing.T) {
	_, err := New().Subscribe(context.Background(), nil, nil)
	assert.True(t, errors.IsInvalid(err))
}

// Two sessions sharing one store see each other's messages exactly once and
// their own without duplication.
func TestStore_TwoSessions(t *testing.T) {
	ctx := context.Background()
	store := New()
	store.Seed(chat.Document{Text: "welcome", Author: "system"})

	alice, err := chat.NewSession(identity.Identity("alice"), store, store)
	require.NoError(t, err)
	bob, err := chat.NewSession(identity.Identity("bob"), store, store)
	require.NoError(t, err)
	defer alice.Close()
	defer bob.Close()

	require.NoError(t, alice.Initialize(ctx))
	require.NoError(t, bob.Initialize(ctx))

	hello, err := alice.Submit(ctx, "hello bob")
	require.NoError(t, err)
	_, err = bob.Submit(ctx, "hi alice")
	require.NoError(t, err)

	aliceView := alice.Snapshot()
	bobView := bob.Snapshot()
	require.Len(t, aliceView, 3)
	require.Len(t, bobView, 3)

	assert.Equal(t, chat.DirectionSent, aliceView[1].Direction)
	assert.Equal(t, chat.DirectionReceived, aliceView[2].Direction)
	assert.Equal(t, chat.DirectionReceived, bobView[1].Direction)
	assert.Equal(t, chat.DirectionSent, bobView[2].Direction)

	require.NoError(t, bob.Delete(ctx, hello.ID))
	assert.Len(t, alice.Snapshot(), 2)
	assert.Len(t, bob.Snapshot(), 2)

	store.CloseStream(stderrors.New("gone"))
	assert.ErrorIs(t, alice.StreamErr(), errors.ErrStreamError)
}
