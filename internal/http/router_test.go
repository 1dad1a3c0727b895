package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/example/team-hours/internal/authz"
	apphttp "github.com/example/team-hours/internal/http"
	"github.com/example/team-hours/internal/persistence/memory"
	"github.com/example/team-hours/internal/testfixtures"
)

type apiHarness struct {
	t        *testing.T
	clock    *testfixtures.Clock
	verifier *authz.TokenVerifier
	handler  http.Handler
	notifier *testfixtures.RecordingNotifier
}

func newAPIHarness(t *testing.T, health apphttp.HealthChecker) *apiHarness {
	t.Helper()

	store := memory.New()
	clock := testfixtures.NewClock(time.Time{})
	factory := testfixtures.NewServiceFactory(
		testfixtures.WithClock(clock),
		testfixtures.WithGate(authz.NewRoleGate(store)),
	)
	verifier, err := authz.NewTokenVerifier([]byte("test-secret"), "teamhours-test", clock.Now)
	if err != nil {
		t.Fatalf("unexpected verifier error: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	attendance := factory.NewAttendanceService(store)
	handler := apphttp.NewRouter(apphttp.RouterConfig{
		Teams:      apphttp.NewTeamHandler(factory.NewTeamService(store), logger),
		Members:    apphttp.NewMemberHandler(factory.NewMemberService(store), attendance, logger),
		Attendance: apphttp.NewAttendanceHandler(attendance, logger),
		Stats:      apphttp.NewStatsHandler(factory.NewStatsService(store), logger),
		Health:     health,
		Auth:       apphttp.RequireBearer(verifier, logger),
		Middleware: []func(http.Handler) http.Handler{apphttp.Recoverer(logger), apphttp.RequestLogger(logger)},
		Logger:     logger,
	})

	return &apiHarness{t: t, clock: clock, verifier: verifier, handler: handler, notifier: factory.Notifier}
}

func (h *apiHarness) do(user, method, target string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if user != "" {
		token, err := h.verifier.Issue(user, time.Hour)
		if err != nil {
			h.t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d (body %s)", want, rec.Code, rec.Body.String())
	}
}

type memberBody struct {
	Member struct {
		ID         string  `json:"id"`
		Name       string  `json:"name"`
		Archived   bool    `json:"archived"`
		AtMeeting  bool    `json:"atMeeting"`
		SignedInAt *string `json:"signedInAt"`
	} `json:"member"`
}

func (h *apiHarness) setupTeam(owner, slug string) {
	h.t.Helper()
	rec := h.do(owner, http.MethodPost, "/api/teams", map[string]string{"slug": slug, "displayName": "Robotics"})
	expectStatus(h.t, rec, http.StatusCreated)
}

func (h *apiHarness) createMember(user, slug, name string) string {
	h.t.Helper()
	rec := h.do(user, http.MethodPost, "/api/teams/"+slug+"/members", map[string]string{"name": name})
	expectStatus(h.t, rec, http.StatusCreated)
	return decode[memberBody](h.t, rec).Member.ID
}

func TestHealthz(t *testing.T) {
	t.Run("reports ok without credentials", func(t *testing.T) {
		h := newAPIHarness(t, nil)
		rec := h.do("", http.MethodGet, "/healthz", nil)
		expectStatus(t, rec, http.StatusOK)
	})

	t.Run("reports unavailable when the store is down", func(t *testing.T) {
		h := newAPIHarness(t, pingFunc(func(context.Context) error { return errors.New("database is closed") }))
		rec := h.do("", http.MethodGet, "/healthz", nil)
		expectStatus(t, rec, http.StatusServiceUnavailable)
	})
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestBearerAuthentication(t *testing.T) {
	h := newAPIHarness(t, nil)

	rec := h.do("", http.MethodPost, "/api/teams", map[string]string{"slug": "robotics", "displayName": "Robotics"})
	expectStatus(t, rec, http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/teams/robotics/members", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized)
	if got := decode[map[string]any](t, rec)["error_code"]; got != "AUTH_INVALID_TOKEN" {
		t.Fatalf("expected AUTH_INVALID_TOKEN, got %v", got)
	}
}

func TestAttendanceLifecycle(t *testing.T) {
	h := newAPIHarness(t, nil)
	h.setupTeam("alice", "robotics")
	start := h.clock.Now()

	memberID := h.createMember("alice", "robotics", "  Ada  ")

	rec := h.do("alice", http.MethodPut, "/api/members/"+memberID+"/attendance", map[string]bool{"atMeeting": true})
	expectStatus(t, rec, http.StatusOK)
	if !decode[map[string]bool](t, rec)["changed"] {
		t.Fatalf("expected sign in to change state")
	}

	rec = h.do("alice", http.MethodPut, "/api/members/"+memberID+"/attendance", map[string]bool{"atMeeting": true})
	expectStatus(t, rec, http.StatusOK)
	if decode[map[string]bool](t, rec)["changed"] {
		t.Fatalf("expected repeated sign in to be a no-op")
	}

	rec = h.do("alice", http.MethodGet, "/api/teams/robotics/members", nil)
	expectStatus(t, rec, http.StatusOK)
	listed := decode[struct {
		Members []struct {
			Name      string `json:"name"`
			AtMeeting bool   `json:"atMeeting"`
		} `json:"members"`
	}](t, rec)
	if len(listed.Members) != 1 || listed.Members[0].Name != "Ada" || !listed.Members[0].AtMeeting {
		t.Fatalf("expected Ada at meeting, got %+v", listed.Members)
	}

	h.clock.Advance(2 * time.Hour)
	rec = h.do("alice", http.MethodPut, "/api/members/"+memberID+"/attendance", map[string]bool{"atMeeting": false})
	expectStatus(t, rec, http.StatusOK)

	rec = h.do("alice", http.MethodGet, "/api/members/"+memberID+"/sessions", nil)
	expectStatus(t, rec, http.StatusOK)
	sessions := decode[struct {
		Sessions []struct {
			Hours float64 `json:"hours"`
		} `json:"sessions"`
	}](t, rec)
	if len(sessions.Sessions) != 1 || sessions.Sessions[0].Hours != 2 {
		t.Fatalf("expected one 2 hour session, got %+v", sessions.Sessions)
	}

	query := url.Values{}
	query.Set("start", start.Add(-time.Hour).Format(time.RFC3339))
	query.Set("end", start.Add(3*time.Hour).Format(time.RFC3339))

	rec = h.do("alice", http.MethodGet, "/api/teams/robotics/stats/combined-hours?"+query.Encode(), nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]float64](t, rec)["hours"]; got != 2 {
		t.Fatalf("expected 2 combined hours, got %v", got)
	}

	rec = h.do("alice", http.MethodGet, "/api/teams/robotics/stats/unique-members?"+query.Encode(), nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]float64](t, rec)["count"]; got != 1 {
		t.Fatalf("expected 1 unique member, got %v", got)
	}

	query.Set("series", "1")
	query.Set("tz", "Asia/Tokyo")
	rec = h.do("alice", http.MethodGet, "/api/teams/robotics/stats/unique-members?"+query.Encode(), nil)
	expectStatus(t, rec, http.StatusOK)
	series := decode[struct {
		Period   string `json:"period"`
		Timezone string `json:"timezone"`
		Points   []struct {
			Start string  `json:"start"`
			Value float64 `json:"value"`
		} `json:"points"`
	}](t, rec)
	if series.Period != "daily" || series.Timezone != "Asia/Tokyo" || len(series.Points) == 0 {
		t.Fatalf("unexpected series %+v", series)
	}

	if got := len(h.notifier.Events()); got != 3 {
		t.Fatalf("expected 3 events (created, signed in, signed out), got %d", got)
	}
}

func TestServiceErrorMapping(t *testing.T) {
	h := newAPIHarness(t, nil)
	h.setupTeam("alice", "robotics")
	memberID := h.createMember("alice", "robotics", "Ada")

	rec := h.do("alice", http.MethodPost, "/api/teams/robotics/users", map[string]string{"userId": "bob", "role": "viewer"})
	expectStatus(t, rec, http.StatusNoContent)

	t.Run("viewer cannot create members", func(t *testing.T) {
		rec := h.do("bob", http.MethodPost, "/api/teams/robotics/members", map[string]string{"name": "Grace"})
		expectStatus(t, rec, http.StatusForbidden)
	})

	t.Run("viewer can list members", func(t *testing.T) {
		rec := h.do("bob", http.MethodGet, "/api/teams/robotics/members?view=full", nil)
		expectStatus(t, rec, http.StatusOK)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		rec := h.do("alice", http.MethodPost, "/api/teams/robotics/members", map[string]string{"name": "Ada"})
		expectStatus(t, rec, http.StatusConflict)
		if got := decode[map[string]any](t, rec)["error_code"]; got != "CONFLICT" {
			t.Fatalf("expected CONFLICT error code, got %v", got)
		}
	})

	t.Run("blank name is a validation error", func(t *testing.T) {
		rec := h.do("alice", http.MethodPost, "/api/teams/robotics/members", map[string]string{"name": "   "})
		expectStatus(t, rec, http.StatusUnprocessableEntity)
		body := decode[struct {
			Errors map[string]string `json:"errors"`
		}](t, rec)
		if _, ok := body.Errors["name"]; !ok {
			t.Fatalf("expected a name field error, got %v", body.Errors)
		}
	})

	t.Run("archiving a signed in member conflicts", func(t *testing.T) {
		rec := h.do("alice", http.MethodPut, "/api/members/"+memberID+"/attendance", map[string]bool{"atMeeting": true})
		expectStatus(t, rec, http.StatusOK)
		rec = h.do("alice", http.MethodPatch, "/api/members/"+memberID, map[string]bool{"archived": true})
		expectStatus(t, rec, http.StatusConflict)
	})

	t.Run("rejected archive leaves the rename unapplied", func(t *testing.T) {
		rec := h.do("alice", http.MethodPatch, "/api/members/"+memberID, map[string]any{"name": "Ada L", "archived": true})
		expectStatus(t, rec, http.StatusConflict)
		rec = h.do("alice", http.MethodGet, "/api/teams/robotics/members", nil)
		expectStatus(t, rec, http.StatusOK)
		listed := decode[struct {
			Members []struct {
				Name string `json:"name"`
			} `json:"members"`
		}](t, rec)
		if len(listed.Members) != 1 || listed.Members[0].Name != "Ada" {
			t.Fatalf("expected the name to stay Ada, got %+v", listed.Members)
		}
	})

	t.Run("end meeting then archive and rename", func(t *testing.T) {
		rec := h.do("alice", http.MethodPost, "/api/teams/robotics/end-meeting", nil)
		expectStatus(t, rec, http.StatusOK)
		if got := decode[map[string]int](t, rec)["sessionsClosed"]; got != 1 {
			t.Fatalf("expected 1 closed session, got %d", got)
		}
		rec = h.do("alice", http.MethodPatch, "/api/members/"+memberID, map[string]any{"name": "Ada L", "archived": true})
		expectStatus(t, rec, http.StatusOK)
		body := decode[memberBody](t, rec)
		if body.Member.Name != "Ada L" || !body.Member.Archived {
			t.Fatalf("expected renamed archived member, got %+v", body.Member)
		}

		rec = h.do("bob", http.MethodGet, "/api/teams/robotics/sessions", nil)
		expectStatus(t, rec, http.StatusOK)
		sessions := decode[struct {
			Sessions []struct {
				MemberID string `json:"memberId"`
			} `json:"sessions"`
		}](t, rec)
		if len(sessions.Sessions) != 1 || sessions.Sessions[0].MemberID != memberID {
			t.Fatalf("expected the closed session in the team list, got %+v", sessions.Sessions)
		}
	})

	t.Run("empty patch is a bad request", func(t *testing.T) {
		rec := h.do("alice", http.MethodPatch, "/api/members/"+memberID, map[string]any{})
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("malformed stats range is a bad request", func(t *testing.T) {
		rec := h.do("alice", http.MethodGet, "/api/teams/robotics/stats/average-hours?start=yesterday&end=today", nil)
		expectStatus(t, rec, http.StatusBadRequest)
	})

	t.Run("missing stats range is a validation error", func(t *testing.T) {
		rec := h.do("alice", http.MethodGet, "/api/teams/robotics/stats/average-hours", nil)
		expectStatus(t, rec, http.StatusUnprocessableEntity)
	})

	t.Run("unknown timezone is a validation error", func(t *testing.T) {
		q := url.Values{}
		q.Set("start", testfixtures.ReferenceTime().Format(time.RFC3339))
		q.Set("end", testfixtures.ReferenceTime().Add(time.Hour).Format(time.RFC3339))
		q.Set("tz", "Mars/Olympus_Mons")
		rec := h.do("alice", http.MethodGet, "/api/teams/robotics/stats/average-hours?"+q.Encode(), nil)
		expectStatus(t, rec, http.StatusUnprocessableEntity)
	})

	t.Run("deleting removes the member and hides it afterwards", func(t *testing.T) {
		rec := h.do("alice", http.MethodDelete, "/api/members/"+memberID, nil)
		expectStatus(t, rec, http.StatusNoContent)
		// The role gate cannot resolve a team for an unknown member.
		rec = h.do("alice", http.MethodDelete, "/api/members/"+memberID, nil)
		expectStatus(t, rec, http.StatusForbidden)
	})

	t.Run("wrong method is rejected", func(t *testing.T) {
		rec := h.do("alice", http.MethodPut, "/api/teams", nil)
		expectStatus(t, rec, http.StatusMethodNotAllowed)
	})
}

func TestTeamUsers(t *testing.T) {
	h := newAPIHarness(t, nil)
	h.setupTeam("alice", "robotics")
	h.setupTeam("bob", "chess")

	rec := h.do("alice", http.MethodPost, "/api/teams/robotics/users", map[string]string{"userId": "bob", "role": "editor"})
	expectStatus(t, rec, http.StatusNoContent)

	rec = h.do("bob", http.MethodGet, "/api/teams", nil)
	expectStatus(t, rec, http.StatusOK)
	teams := decode[struct {
		Teams []struct {
			Slug string `json:"slug"`
			Role string `json:"role"`
		} `json:"teams"`
	}](t, rec)
	if len(teams.Teams) != 2 {
		t.Fatalf("expected bob in two teams, got %+v", teams.Teams)
	}
	roles := map[string]string{}
	for _, team := range teams.Teams {
		roles[team.Slug] = team.Role
	}
	if roles["robotics"] != "editor" || roles["chess"] != "owner" {
		t.Fatalf("unexpected roles %v", roles)
	}

	rec = h.do("bob", http.MethodGet, "/api/teams/robotics/users/alice", nil)
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec)["role"]; got != "owner" {
		t.Fatalf("expected alice to be owner, got %q", got)
	}

	rec = h.do("alice", http.MethodGet, "/api/teams/robotics/users/carol", nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = h.do("alice", http.MethodDelete, "/api/teams/robotics/users/alice", nil)
	expectStatus(t, rec, http.StatusConflict)

	rec = h.do("alice", http.MethodDelete, "/api/teams/robotics/users/bob", nil)
	expectStatus(t, rec, http.StatusNoContent)

	rec = h.do("bob", http.MethodGet, "/api/teams/robotics/members", nil)
	expectStatus(t, rec, http.StatusForbidden)

	rec = h.do("alice", http.MethodDelete, "/api/teams/robotics/users/bob", nil)
	expectStatus(t, rec, http.StatusNotFound)
}
