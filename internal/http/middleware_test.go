package http

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var sawLogger bool
	handler := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
		if rec.Code != http.StatusTeapot {
			t.Fatalf("unexpected status %d", rec.Code)
		}
	}

	if !sawLogger {
		t.Fatalf("expected request logger in context")
	}
	out := buf.String()
	for _, want := range []string{`"msg":"request started"`, `"msg":"request completed"`, `"status":418`, `"request_id":2`, `"path":"/events"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in logs:\n%s", want, out)
		}
	}
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handler := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms", nil))

	expectStatus(t, rec, http.StatusInternalServerError)
	if resp := decodeBody[errorResponse](t, rec); resp.Message != localizedStatusMessage(http.StatusInternalServerError) {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if !strings.Contains(buf.String(), "handler panicked") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}

func TestNilHandlersAnswer500(t *testing.T) {
	router := NewRouter(RouterConfig{
		Events:   &EventHandler{},
		Rooms:    &RoomHandler{},
		Accounts: &AccountHandler{},
	})
	for _, target := range []string{"/events", "/rooms", "/accounts", "/events/e1"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", target, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/participants/p1/schedule", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unconfigured participant routes must not be mounted, got %d", rec.Code)
	}
}
