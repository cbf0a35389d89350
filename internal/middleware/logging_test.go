package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockStatusRecorder はHTTPStatusRecorderのモック実装。
type mockStatusRecorder struct {
	statuses []int
}

func (m *mockStatusRecorder) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func TestLoggingMiddleware_LogsRequestFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := NewLoggingMiddleware(logger, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/applications", nil)
	req = req.WithContext(ContextWithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}

	if entry["method"] != "POST" {
		t.Errorf("method = %v, want POST", entry["method"])
	}
	if entry["path"] != "/api/applications" {
		t.Errorf("path = %v, want /api/applications", entry["path"])
	}
	if entry["status"] != float64(http.StatusCreated) {
		t.Errorf("status = %v, want %d", entry["status"], http.StatusCreated)
	}
	if entry["user_id"] != "user-1" {
		t.Errorf("user_id = %v, want user-1", entry["user_id"])
	}
	if _, ok := entry["duration_ms"]; !ok {
		t.Error("duration_ms should be logged")
	}
}

func TestLoggingMiddleware_ServerErrorLoggedAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	mw := NewLoggingMiddleware(logger, nil)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry: %v", err)
	}
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
}

func TestLoggingMiddleware_RecordsStatusMetric(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	recorder := &mockStatusRecorder{}

	mw := NewLoggingMiddleware(logger, recorder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusNotFound {
		t.Errorf("recorded statuses = %v, want [404]", recorder.statuses)
	}
}

func TestLoggingMiddleware_DefaultStatusIs200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	recorder := &mockStatusRecorder{}

	mw := NewLoggingMiddleware(logger, recorder)
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok")) // WriteHeaderを明示的に呼ばない
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(recorder.statuses) != 1 || recorder.statuses[0] != http.StatusOK {
		t.Errorf("recorded statuses = %v, want [200]", recorder.statuses)
	}
}
