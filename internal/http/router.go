package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// HealthChecker reports whether backing dependencies are reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Teams      *TeamHandler
	Members    *MemberHandler
	Attendance *AttendanceHandler
	Stats      *StatsHandler
	Health     HealthChecker
	// Auth wraps every /api route. Nil leaves the API unauthenticated.
	Auth       func(http.Handler) http.Handler
	Middleware []func(http.Handler) http.Handler
	Logger     *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	router := mux.NewRouter()
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	router.HandleFunc("/healthz", healthHandler(cfg.Health, cfg.Logger)).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	if cfg.Auth != nil {
		api.Use(cfg.Auth)
	}

	if cfg.Teams != nil {
		api.HandleFunc("/teams", cfg.Teams.List).Methods(http.MethodGet)
		api.HandleFunc("/teams", cfg.Teams.Create).Methods(http.MethodPost)
		api.HandleFunc("/teams/{slug}/users", cfg.Teams.AddUser).Methods(http.MethodPost)
		api.HandleFunc("/teams/{slug}/users/{userId}", cfg.Teams.GetUser).Methods(http.MethodGet)
		api.HandleFunc("/teams/{slug}/users/{userId}", cfg.Teams.RemoveUser).Methods(http.MethodDelete)
	}

	if cfg.Members != nil {
		api.HandleFunc("/teams/{slug}/members", cfg.Members.List).Methods(http.MethodGet)
		api.HandleFunc("/teams/{slug}/members", cfg.Members.Create).Methods(http.MethodPost)
		api.HandleFunc("/members/{id}", cfg.Members.Update).Methods(http.MethodPatch)
		api.HandleFunc("/members/{id}", cfg.Members.Delete).Methods(http.MethodDelete)
		api.HandleFunc("/members/{id}/sessions", cfg.Members.ListSessions).Methods(http.MethodGet)
		api.HandleFunc("/teams/{slug}/sessions", cfg.Members.ListTeamSessions).Methods(http.MethodGet)
	}

	if cfg.Attendance != nil {
		api.HandleFunc("/members/{id}/attendance", cfg.Attendance.Update).Methods(http.MethodPut)
		api.HandleFunc("/teams/{slug}/end-meeting", cfg.Attendance.EndMeeting).Methods(http.MethodPost)
	}

	if cfg.Stats != nil {
		stats := api.PathPrefix("/teams/{slug}/stats").Subrouter()
		stats.HandleFunc("/combined-hours", cfg.Stats.CombinedHours).Methods(http.MethodGet)
		stats.HandleFunc("/unique-members", cfg.Stats.UniqueMembers).Methods(http.MethodGet)
		stats.HandleFunc("/average-hours", cfg.Stats.AverageHours).Methods(http.MethodGet)
	}

	var handler http.Handler = router
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	responder := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(r.Context()); err != nil {
				responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
