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
	"github.com/example/team-hours/internal/timeseries"
)

type memberService interface {
	CreateMember(ctx context.Context, params application.CreateMemberParams) (application.Member, error)
	UpdateMember(ctx context.Context, params application.UpdateMemberParams) (application.Member, error)
	ListMembers(ctx context.Context, principal application.Principal, teamSlug string) ([]application.Member, error)
	ListMembersFull(ctx context.Context, principal application.Principal, teamSlug string) ([]application.Member, error)
	ListSessions(ctx context.Context, principal application.Principal, memberID string, r *timeseries.Range) ([]application.Session, error)
	ListTeamSessions(ctx context.Context, principal application.Principal, teamSlug string, r *timeseries.Range) ([]application.Session, error)
}

type memberLifecycle interface {
	Delete(ctx context.Context, principal application.Principal, memberID string) error
}

type MemberHandler struct {
	service   memberService
	lifecycle memberLifecycle
	responder responder
	logger    *slog.Logger
}

func NewMemberHandler(service memberService, lifecycle memberLifecycle, logger *slog.Logger) *MemberHandler {
	base := defaultLogger(logger)
	return &MemberHandler{service: service, lifecycle: lifecycle, responder: newResponder(base), logger: base}
}

func (h *MemberHandler) log(r *http.Request, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(r, h.logger, "MemberHandler", operation, attrs...)
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, ok := teamSlugFromRequest(r)
	if !ok {
		h.log(r, "List", "error_kind", "bad_request").ErrorContext(r.Context(), "missing team slug")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeam)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	full := r.URL.Query().Get("view") == "full"
	logger := h.log(r, "List", "principal_id", principal.UserID, "team_slug", slug, "full", full)

	var (
		members []application.Member
		err     error
	)
	if full {
		members, err = h.service.ListMembersFull(r.Context(), principal, slug)
	} else {
		members, err = h.service.ListMembers(r.Context(), principal, slug)
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "member list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(members)).InfoContext(r.Context(), "members listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listMembersResponse{Members: toMemberDTOs(members)})
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, ok := teamSlugFromRequest(r)
	if !ok {
		h.log(r, "Create", "error_kind", "bad_request").ErrorContext(r.Context(), "missing team slug")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeam)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req createMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r, "Create", "principal_id", principal.UserID, "team_slug", slug, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode member request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r, "Create", "principal_id", principal.UserID, "team_slug", slug)
	member, err := h.service.CreateMember(r.Context(), application.CreateMemberParams{
		Principal: principal,
		TeamSlug:  slug,
		Name:      req.Name,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "member creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("member_id", member.ID).InfoContext(r.Context(), "member created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, memberResponse{Member: toMemberDTO(member)})
}

// Update applies a rename and/or an archive change atomically.
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	memberID, ok := memberIDFromRequest(r)
	if !ok {
		h.log(r, "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing member id for update")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMember)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req updateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Name == nil && req.Archived == nil) {
		h.log(r, "Update", "principal_id", principal.UserID, "member_id", memberID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode member update", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r, "Update", "principal_id", principal.UserID, "member_id", memberID)

	member, err := h.service.UpdateMember(r.Context(), application.UpdateMemberParams{
		Principal: principal,
		MemberID:  memberID,
		Name:      req.Name,
		Archived:  req.Archived,
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "member update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, memberResponse{Member: toMemberDTO(member)})
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.lifecycle == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	memberID, ok := memberIDFromRequest(r)
	if !ok {
		h.log(r, "Delete", "error_kind", "bad_request").ErrorContext(r.Context(), "missing member id for delete")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMember)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "Delete", "principal_id", principal.UserID, "member_id", memberID)
	if err := h.lifecycle.Delete(r.Context(), principal, memberID); err != nil {
		logger.ErrorContext(r.Context(), "member delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "member deleted")
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *MemberHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	memberID, ok := memberIDFromRequest(r)
	if !ok {
		h.log(r, "ListSessions", "error_kind", "bad_request").ErrorContext(r.Context(), "missing member id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMember)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "ListSessions", "principal_id", principal.UserID, "member_id", memberID)

	window, err := optionalRange(r)
	if err != nil {
		logger.With("error_kind", "bad_request").ErrorContext(r.Context(), "invalid session range", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRange)
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), principal, memberID, window)
	if err != nil {
		logger.ErrorContext(r.Context(), "session list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(sessions)).InfoContext(r.Context(), "sessions listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions)})
}

// ListTeamSessions lists finished sessions across the whole team.
func (h *MemberHandler) ListTeamSessions(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, ok := teamSlugFromRequest(r)
	if !ok {
		h.log(r, "ListTeamSessions", "error_kind", "bad_request").ErrorContext(r.Context(), "missing team slug")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeam)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "ListTeamSessions", "principal_id", principal.UserID, "team_slug", slug)

	window, err := optionalRange(r)
	if err != nil {
		logger.With("error_kind", "bad_request").ErrorContext(r.Context(), "invalid session range", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRange)
		return
	}

	sessions, err := h.service.ListTeamSessions(r.Context(), principal, slug, window)
	if err != nil {
		logger.ErrorContext(r.Context(), "team session list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("result_count", len(sessions)).InfoContext(r.Context(), "team sessions listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: toSessionDTOs(sessions)})
}

// optionalRange parses start/end when either is present.
func optionalRange(r *http.Request) (*timeseries.Range, error) {
	query := r.URL.Query()
	if query.Get("start") == "" && query.Get("end") == "" {
		return nil, nil
	}
	rng, err := parseRange(query)
	if err != nil {
		return nil, err
	}
	return &rng, nil
}

func memberIDFromRequest(r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	return id, id != ""
}

type createMemberRequest struct {
	Name string `json:"name"`
}

type updateMemberRequest struct {
	Name     *string `json:"name"`
	Archived *bool   `json:"archived"`
}

type memberResponse struct {
	Member memberDTO `json:"member"`
}

type listMembersResponse struct {
	Members []memberDTO `json:"members"`
}

type memberDTO struct {
	ID         string  `json:"id"`
	TeamID     string  `json:"teamId"`
	Name       string  `json:"name"`
	Archived   bool    `json:"archived"`
	AtMeeting  bool    `json:"atMeeting"`
	SignedInAt *string `json:"signedInAt,omitempty"`
	LastSeenAt *string `json:"lastSeenAt,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

func toMemberDTO(member application.Member) memberDTO {
	return memberDTO{
		ID:         member.ID,
		TeamID:     member.TeamID,
		Name:       member.Name,
		Archived:   member.Archived,
		AtMeeting:  member.AtMeeting,
		SignedInAt: formatOptionalTime(member.SignedInAt),
		LastSeenAt: formatOptionalTime(member.LastSeenAt),
		CreatedAt:  member.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toMemberDTOs(members []application.Member) []memberDTO {
	out := make([]memberDTO, 0, len(members))
	for _, member := range members {
		out = append(out, toMemberDTO(member))
	}
	return out
}

type listSessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type sessionDTO struct {
	ID        string  `json:"id"`
	MemberID  string  `json:"memberId"`
	StartedAt string  `json:"startedAt"`
	EndedAt   string  `json:"endedAt"`
	Hours     float64 `json:"hours"`
}

func toSessionDTOs(sessions []application.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionDTO{
			ID:        s.ID,
			MemberID:  s.MemberID,
			StartedAt: s.StartedAt.UTC().Format(time.RFC3339Nano),
			EndedAt:   s.EndedAt.UTC().Format(time.RFC3339Nano),
			Hours:     s.Hours(),
		})
	}
	return out
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	formatted := t.UTC().Format(time.RFC3339Nano)
	return &formatted
}
