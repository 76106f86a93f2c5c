package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/health"
	"github.com/c360/semchat/identity"
	"github.com/c360/semchat/memstore"
	"github.com/c360/semchat/metric"
)

type fixture struct {
	store    *memstore.Store
	session  *chat.Session
	notifier *Notifier
	registry *metric.MetricsRegistry
	server   *Server
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, seed ...chat.Document) *fixture {
	t.Helper()

	store := memstore.New()
	store.Seed(seed...)
	notifier := NewNotifier()
	registry := metric.NewMetricsRegistry()

	session, err := chat.NewSession(identity.Identity("me"), store, store,
		chat.WithLogger(quietLogger()),
		chat.WithMetrics(registry.Chat),
		chat.WithChangeHandler(notifier.ChangeHandler()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	srv, err := NewServer(session,
		WithLogger(quietLogger()),
		WithNotifier(notifier),
		WithMetricsRegistry(registry),
	)
	require.NoError(t, err)

	return &fixture{store: store, session: session, notifier: notifier, registry: registry, server: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestNewServer_RequiresSession(t *testing.T) {
	_, err := NewServer(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestIdentityRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/identity", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"identity":"me"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDPassthrough(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/api/identity", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc123", rec.Header().Get("X-Request-ID"))
}

func TestListRoute(t *testing.T) {
	f := newFixture(t,
		chat.Document{ID: "1", Text: "hello", Author: "me"},
		chat.Document{ID: "2", Text: "hi", Author: "other"},
	)
	require.NoError(t, f.session.Initialize(context.Background()))

	rec := f.do(t, http.MethodGet, "/api/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)

	msgs := decode[[]chat.Message](t, rec)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.DirectionSent, msgs[0].Direction)
	assert.Equal(t, chat.DirectionReceived, msgs[1].Direction)
}

func TestListRoute_EmptyIsArray(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/messages", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSendRoute(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fail     error
		wantCode int
		wantErr  string
	}{
		{name: "created", body: `{"text":"  hello  "}`, wantCode: http.StatusCreated},
		{name: "blank", body: `{"text":"   "}`, wantCode: http.StatusBadRequest, wantErr: CodeInvalidInput},
		{name: "malformed", body: `{"text":`, wantCode: http.StatusBadRequest, wantErr: CodeBadRequest},
		{name: "store down", body: `{"text":"hi"}`, fail: stderrors.New("boom"), wantCode: http.StatusBadGateway, wantErr: CodeRemoteWriteFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.session.Initialize(context.Background()))
			if tt.fail != nil {
				f.store.FailCreate(tt.fail)
			}

			rec := f.do(t, http.MethodPost, "/api/messages", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)

			if tt.wantErr != "" {
				body := decode[errorBody](t, rec)
				assert.Equal(t, tt.wantErr, body.Code)
				assert.NotContains(t, body.Message, "boom")
				assert.Empty(t, f.session.Snapshot())
				return
			}

			msg := decode[chat.Message](t, rec)
			assert.Equal(t, "hello", msg.Text)
			assert.Equal(t, "me", msg.Author)
			assert.Equal(t, chat.DirectionSent, msg.Direction)
			assert.Len(t, f.session.Snapshot(), 1)
		})
	}
}

func TestDeleteRoute(t *testing.T) {
	f := newFixture(t, chat.Document{ID: "1", Text: "hello", Author: "other"})
	require.NoError(t, f.session.Initialize(context.Background()))
	f.store.FailDelete(stderrors.New("boom"))

	rec := f.do(t, http.MethodDelete, "/api/messages/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.session.Snapshot())

	rec = f.do(t, http.MethodDelete, "/api/messages/unknown", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRefreshRoute(t *testing.T) {
	f := newFixture(t)
	f.store.FailList(stderrors.New("down"))
	require.Error(t, f.session.Initialize(context.Background()))

	rec := f.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, CodeRemoteReadFailed, decode[errorBody](t, rec).Code)

	f.store.FailList(nil)
	f.store.Seed(chat.Document{ID: "1", Text: "back", Author: "other"})
	rec = f.do(t, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]chat.Message](t, rec), 1)
}

func TestClosedSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Close())

	rec := f.do(t, http.MethodPost, "/api/messages", `{"text":"late"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeSessionClosed, decode[errorBody](t, rec).Code)
}

func TestHealthRoute(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decode[healthBody](t, rec).Ready)

	require.NoError(t, f.session.Initialize(context.Background()))
	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, health.StatusHealthy, decode[healthBody](t, rec).Status.Status)

	f.store.CloseStream(stderrors.New("stream gone"))
	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[healthBody](t, rec)
	assert.Equal(t, health.StatusUnhealthy, body.Status.Status)
	require.Len(t, body.SubStatuses, 2)
	assert.Equal(t, "stream", body.SubStatuses[1].Component)
	assert.Contains(t, body.SubStatuses[1].Message, "stream gone")
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPut, "/api/messages", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Initialize(context.Background()))
	f.do(t, http.MethodPost, "/api/messages", `{"text":"hi"}`)
	f.do(t, http.MethodPost, "/api/messages", `{"text":""}`)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.requests.WithLabelValues("send", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.requests.WithLabelValues("send", "400")))

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "semchat_gateway_requests_total")
	assert.Contains(t, rec.Body.String(), "semchat_gateway_websocket_clients")
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{errors.WrapKind(errors.ErrInvalidInput, nil, "S", "m", "a"), CodeInvalidInput, http.StatusBadRequest},
		{errors.WrapKind(errors.ErrRemoteWriteFailed, stderrors.New("x"), "S", "m", "a"), CodeRemoteWriteFailed, http.StatusBadGateway},
		{errors.WrapKind(errors.ErrRemoteReadFailed, stderrors.New("x"), "S", "m", "a"), CodeRemoteReadFailed, http.StatusBadGateway},
		{errors.WrapKind(errors.ErrSessionClosed, nil, "S", "m", "a"), CodeSessionClosed, http.StatusServiceUnavailable},
		{errors.WrapInvalid(stderrors.New("x"), "S", "m", "a"), CodeBadRequest, http.StatusBadRequest},
		{stderrors.New("mystery"), CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			code, status := errorCode(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestNotifierCoalesces(t *testing.T) {
	n := NewNotifier()
	n.Notify()
	n.Notify()
	n.ChangeHandler()(nil)

	<-n.C()
	select {
	case <-n.C():
		t.Fatal("signals should coalesce")
	default:
	}
}

func TestWriteRateLimit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Initialize(context.Background()))

	srv, err := NewServer(f.session, WithLogger(quietLogger()), WithNotifier(f.notifier), WithWriteRateLimit(0.001, 1))
	require.NoError(t, err)
	f.server = srv

	rec := f.do(t, http.MethodPost, "/api/messages", `{"text":"first"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/messages", `{"text":"second"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, CodeRateLimited, decode[errorBody](t, rec).Code)

	rec = f.do(t, http.MethodDelete, "/api/messages/anything", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// reads are never limited
	rec = f.do(t, http.MethodGet, "/api/messages", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]chat.Message](t, rec), 1)
}
