package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/persistence"
)

type teamService interface {
	CreateTeam(ctx context.Context, params application.CreateTeamParams) (application.Team, error)
	ListTeams(ctx context.Context, principal application.Principal) ([]application.UserTeam, error)
	AddTeamUser(ctx context.Context, params application.AddTeamUserParams) error
	RemoveTeamUser(ctx context.Context, params application.RemoveTeamUserParams) error
	GetTeamUserRole(ctx context.Context, principal application.Principal, teamSlug, userID string) (persistence.Role, error)
}

type TeamHandler struct {
	service   teamService
	responder responder
	logger    *slog.Logger
}

func NewTeamHandler(service teamService, logger *slog.Logger) *TeamHandler {
	base := defaultLogger(logger)
	return &TeamHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *TeamHandler) log(r *http.Request, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(r, h.logger, "TeamHandler", operation, attrs...)
}

func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r, "Create", "principal_id", principal.UserID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode team request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r, "Create", "principal_id", principal.UserID)

	team, err := h.service.CreateTeam(r.Context(), application.CreateTeamParams{
		Principal:   principal,
		Slug:        strings.TrimSpace(req.Slug),
		DisplayName: req.DisplayName,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "team creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("team_id", team.ID).InfoContext(r.Context(), "team created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, teamResponse{Team: toTeamDTO(team)})
}

func (h *TeamHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, ok := teamSlugFromRequest(r)
	if !ok {
		h.log(r, "AddUser", "error_kind", "bad_request").ErrorContext(r.Context(), "missing team slug")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeam)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req addTeamUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r, "AddUser", "principal_id", principal.UserID, "team_slug", slug, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode team user request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r, "AddUser", "principal_id", principal.UserID, "team_slug", slug, "user_id", req.UserID)
	err := h.service.AddTeamUser(r.Context(), application.AddTeamUserParams{
		Principal: principal,
		TeamSlug:  slug,
		UserID:    strings.TrimSpace(req.UserID),
		Role:      persistence.Role(strings.ToLower(strings.TrimSpace(req.Role))),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "adding team user failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "team user added")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// List returns the teams the caller belongs to.
func (h *TeamHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "List", "principal_id", principal.UserID)

	teams, err := h.service.ListTeams(r.Context(), principal)
	if err != nil {
		logger.ErrorContext(r.Context(), "team list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(teams)).InfoContext(r.Context(), "teams listed")
	resp := listTeamsResponse{Teams: make([]userTeamDTO, 0, len(teams))}
	for _, team := range teams {
		resp.Teams = append(resp.Teams, userTeamDTO{teamDTO: toTeamDTO(team.Team), Role: string(team.Role)})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// GetUser reports the role a user holds in the team.
func (h *TeamHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, userID, ok := h.teamUserFromRequest(w, r, "GetUser")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "GetUser", "principal_id", principal.UserID, "team_slug", slug, "user_id", userID)

	role, err := h.service.GetTeamUserRole(r.Context(), principal, slug, userID)
	if err != nil {
		logger.ErrorContext(r.Context(), "team user lookup failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "team user found")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, teamUserDTO{UserID: userID, Role: string(role)})
}

// RemoveUser revokes a user's access to the team.
func (h *TeamHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, userID, ok := h.teamUserFromRequest(w, r, "RemoveUser")
	if !ok {
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "RemoveUser", "principal_id", principal.UserID, "team_slug", slug, "user_id", userID)

	err := h.service.RemoveTeamUser(r.Context(), application.RemoveTeamUserParams{
		Principal: principal,
		TeamSlug:  slug,
		UserID:    userID,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "removing team user failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "team user removed")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *TeamHandler) teamUserFromRequest(w http.ResponseWriter, r *http.Request, operation string) (string, string, bool) {
	slug, ok := teamSlugFromRequest(r)
	if !ok {
		h.log(r, operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing team slug")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeam)
		return "", "", false
	}
	userID := strings.TrimSpace(mux.Vars(r)["userId"])
	if userID == "" {
		h.log(r, operation, "team_slug", slug, "error_kind", "bad_request").ErrorContext(r.Context(), "missing user id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidUser)
		return "", "", false
	}
	return slug, userID, true
}

func teamSlugFromRequest(r *http.Request) (string, bool) {
	slug := strings.TrimSpace(mux.Vars(r)["slug"])
	return slug, slug != ""
}

type createTeamRequest struct {
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
}

type addTeamUserRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type teamResponse struct {
	Team teamDTO `json:"team"`
}

type listTeamsResponse struct {
	Teams []userTeamDTO `json:"teams"`
}

type userTeamDTO struct {
	teamDTO
	Role string `json:"role"`
}

type teamUserDTO struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type teamDTO struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	DisplayName string `json:"displayName"`
	CreatedAt   string `json:"createdAt"`
}

func toTeamDTO(team application.Team) teamDTO {
	return teamDTO{
		ID:          team.ID,
		Slug:        team.Slug,
		DisplayName: team.DisplayName,
		CreatedAt:   team.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
