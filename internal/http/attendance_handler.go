package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/team-hours/internal/application"
)

type attendanceService interface {
	UpdateAttendance(ctx context.Context, principal application.Principal, memberID string, atMeeting bool) (bool, error)
	EndMeeting(ctx context.Context, principal application.Principal, teamSlug string) (int, error)
}

type AttendanceHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	base := defaultLogger(logger)
	return &AttendanceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(r *http.Request, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(r, h.logger, "AttendanceHandler", operation, attrs...)
}

// Update signs the member in or out. Repeating the current state is not an
// error; the response reports whether anything changed.
func (h *AttendanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	memberID, ok := memberIDFromRequest(r)
	if !ok {
		h.log(r, "Update", "error_kind", "bad_request").ErrorContext(r.Context(), "missing member id")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidMember)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())

	var req attendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AtMeeting == nil {
		h.log(r, "Update", "principal_id", principal.UserID, "member_id", memberID, "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode attendance request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r, "Update", "principal_id", principal.UserID, "member_id", memberID, "at_meeting", *req.AtMeeting)
	changed, err := h.service.UpdateAttendance(r.Context(), principal, memberID, *req.AtMeeting)
	if err != nil {
		logger.ErrorContext(r.Context(), "attendance update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("changed", changed).InfoContext(r.Context(), "attendance updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, attendanceResponse{Changed: changed})
}

func (h *AttendanceHandler) EndMeeting(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	slug, ok := teamSlugFromRequest(r)
	if !ok {
		h.log(r, "EndMeeting", "error_kind", "bad_request").ErrorContext(r.Context(), "missing team slug")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeam)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r, "EndMeeting", "principal_id", principal.UserID, "team_slug", slug)
	closed, err := h.service.EndMeeting(r.Context(), principal, slug)
	if err != nil {
		logger.ErrorContext(r.Context(), "end meeting failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("sessions_closed", closed).InfoContext(r.Context(), "meeting ended")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, endMeetingResponse{SessionsClosed: closed})
}

type attendanceRequest struct {
	AtMeeting *bool `json:"atMeeting"`
}

type attendanceResponse struct {
	Changed bool `json:"changed"`
}

type endMeetingResponse struct {
	SessionsClosed int `json:"sessionsClosed"`
}
