package breaker

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/memstore"
	"github.com/c360/semchat/metric"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStorePassesThrough(t *testing.T) {
	mem := memstore.New()
	s := NewStore(mem, WithLogger(quietLogger()))
	ctx := context.Background()

	doc, err := s.Create(ctx, chat.Draft{Text: "hi", Author: "Red Fox"})
	require.NoError(t, err)

	docs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)

	require.NoError(t, s.Delete(ctx, doc.ID))
	docs, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, "closed", s.State())
}

func TestStoreOpensAfterConsecutiveFailures(t *testing.T) {
	mem := memstore.New()
	m := metric.NewChatMetrics()
	s := NewStore(mem, WithMaxFailures(2), WithOpenTimeout(time.Hour), WithLogger(quietLogger()), WithMetrics(m))
	ctx := context.Background()

	boom := stderrors.New("backend down")
	mem.FailCreate(boom)
	for i := 0; i < 2; i++ {
		_, err := s.Create(ctx, chat.Draft{Text: "x", Author: "a"})
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", s.State())
	assert.Equal(t, float64(metric.BreakerOpen), testutil.ToFloat64(m.BreakerState))

	// healthy backend is not consulted while open
	mem.FailCreate(nil)
	_, err := s.Create(ctx, chat.Draft{Text: "x", Author: "a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.True(t, errors.IsTransient(err))

	docs, err := mem.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStoreHalfOpenProbeCloses(t *testing.T) {
	mem := memstore.New()
	s := NewStore(mem, WithMaxFailures(1), WithOpenTimeout(20*time.Millisecond), WithLogger(quietLogger()))
	ctx := context.Background()

	mem.FailList(stderrors.New("down"))
	_, err := s.List(ctx)
	require.Error(t, err)
	assert.Equal(t, "open", s.State())

	mem.FailList(nil)
	require.Eventually(t, func() bool {
		_, err := s.List(ctx)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "closed", s.State())
}

type rejectingStore struct{ chat.Store }

func (rejectingStore) Delete(context.Context, string) error {
	return errors.WrapInvalid(stderrors.New("empty id"), "Test", "Delete", "id check")
}

func TestInvalidErrorsDoNotTrip(t *testing.T) {
	s := NewStore(rejectingStore{Store: memstore.New()}, WithMaxFailures(1), WithLogger(quietLogger()))
	for i := 0; i < 3; i++ {
		err := s.Delete(context.Background(), "")
		require.Error(t, err)
		assert.True(t, errors.IsInvalid(err))
	}
	assert.Equal(t, "closed", s.State())
}
