package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/c360/semchat/chat"
	"github.com/c360/semchat/errors"
	"github.com/c360/semchat/health"
)

// Error codes carried in JSON error bodies and WebSocket error frames.
const (
	CodeInvalidInput      = "invalid_input"
	CodeRemoteWriteFailed = "remote_write_failed"
	CodeRemoteReadFailed  = "remote_read_failed"
	CodeSessionClosed     = "session_closed"
	CodeBadRequest        = "bad_request"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sendRequest struct {
	Text string `json:"text"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /api/identity", s.instrument("identity", s.handleIdentity))
	mux.Handle("GET /api/messages", s.instrument("list", s.handleList))
	mux.Handle("POST /api/messages", s.instrument("send", s.handleSend))
	mux.Handle("DELETE /api/messages/{id}", s.instrument("delete", s.handleDelete))
	mux.Handle("POST /api/refresh", s.instrument("refresh", s.handleRefresh))
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", s.registry.Handler())
	}
	return mux
}

// getOrGenerateRequestID extracts the request ID header or creates one
func getOrGenerateRequestID(r *http.Request) string {
	if reqID := r.Header.Get("X-Request-ID"); reqID != "" {
		return reqID
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := getOrGenerateRequestID(r)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.logger.Debug("API request", "route", route, "status", rec.status, "request_id", requestID)
	})
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.requestTimeout)
}

func (s *Server) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"identity": s.session.Identity().String()})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// allowWrite answers 429 when the shared HTTP write limiter is exhausted.
func (s *Server) allowWrite(w http.ResponseWriter) bool {
	if s.httpWrites.Allow() {
		return true
	}
	writeJSON(w, http.StatusTooManyRequests, errorBody{Code: CodeRateLimited, Message: publicMessage(CodeRateLimited)})
	return false
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite(w) {
		return
	}
	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: CodeBadRequest, Message: "request body must be {\"text\": \"...\"}"})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	msg, err := s.session.Submit(ctx, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.allowWrite(w) {
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.session.Delete(ctx, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.session.Refresh(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type healthBody struct {
	health.Status
	Identity string `json:"identity"`
	Ready    bool   `json:"ready"`
	Messages int    `json:"messages"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snapshot := health.NewHealthy("session", "snapshot loaded")
	if !s.session.Ready() {
		snapshot = health.NewDegraded("session", "snapshot not loaded")
	}
	stream := health.FromError("stream", s.session.StreamErr(), "subscribed")

	body := healthBody{
		Status:   health.Aggregate("semchat", []health.Status{snapshot, stream}),
		Identity: s.session.Identity().String(),
		Ready:    s.session.Ready(),
		Messages: len(s.session.Snapshot()),
	}
	code := http.StatusOK
	if !body.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

// errorCode maps a session error onto its public code and HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case stderrors.Is(err, errors.ErrInvalidInput):
		return CodeInvalidInput, http.StatusBadRequest
	case stderrors.Is(err, errors.ErrRemoteWriteFailed):
		return CodeRemoteWriteFailed, http.StatusBadGateway
	case stderrors.Is(err, errors.ErrRemoteReadFailed):
		return CodeRemoteReadFailed, http.StatusBadGateway
	case stderrors.Is(err, errors.ErrSessionClosed):
		return CodeSessionClosed, http.StatusServiceUnavailable
	case errors.IsInvalid(err):
		return CodeBadRequest, http.StatusBadRequest
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	writeJSON(w, status, errorBody{Code: code, Message: publicMessage(code)})
}

// publicMessage keeps backend details out of client responses.
func publicMessage(code string) string {
	switch code {
	case CodeInvalidInput:
		return "message text is empty"
	case CodeRemoteWriteFailed:
		return "message could not be stored, try again"
	case CodeRemoteReadFailed:
		return "messages could not be loaded, try refreshing"
	case CodeSessionClosed:
		return "chat session is closed"
	case CodeBadRequest:
		return "invalid request"
	case CodeRateLimited:
		return "too many writes, slow down"
	default:
		return "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// compile-time check that chat.Session satisfies Session
var _ Session = (*chat.Session)(nil)
