package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

func TestHandlerLoggerTagsRouteTemplate(t *testing.T) {
	var buf bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&buf, nil))

	router := mux.NewRouter()
	router.HandleFunc("/teams/{slug}/users/{userId}", func(w http.ResponseWriter, r *http.Request) {
		handlerLogger(r, fallback, "TeamHandler", "GetUser", "user_id", "bob").Info("looked up")
	})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teams/robotics/users/bob", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]string{
		"handler":   "TeamHandler",
		"operation": "GetUser",
		"route":     "/teams/{slug}/users/{userId}",
		"user_id":   "bob",
	}
	for key, value := range want {
		if line[key] != value {
			t.Fatalf("expected %s=%q, got %v", key, value, line[key])
		}
	}
}

func TestHandlerLoggerWithoutRoute(t *testing.T) {
	var buf bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&buf, nil))

	handlerLogger(httptest.NewRequest(http.MethodGet, "/", nil), fallback, "StatsHandler", "CombinedHours").Info("served")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if _, ok := line["route"]; ok {
		t.Fatalf("unrouted request should carry no route, got %v", line["route"])
	}
	if line["handler"] != "StatsHandler" {
		t.Fatalf("expected handler attribute, got %v", line["handler"])
	}
}
