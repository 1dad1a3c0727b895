package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/team-hours/internal/application"
	"github.com/example/team-hours/internal/timeseries"
)

var errInvalidRange = errors.New("start と end は RFC 3339 形式で指定してください。")

type statsService interface {
	CombinedHours(ctx context.Context, q application.StatsQuery) (float64, error)
	CombinedHoursTimeSeries(ctx context.Context, q application.StatsQuery) (application.Series, error)
	UniqueMembers(ctx context.Context, q application.StatsQuery) (int, error)
	UniqueMembersTimeSeries(ctx context.Context, q application.StatsQuery) (application.Series, error)
	AverageHoursTimeSeries(ctx context.Context, q application.StatsQuery) (application.Series, error)
}

type StatsHandler struct {
	service   statsService
	responder responder
	logger    *slog.Logger
}

func NewStatsHandler(service statsService, logger *slog.Logger) *StatsHandler {
	base := defaultLogger(logger)
	return &StatsHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *StatsHandler) log(r *http.Request, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(r, h.logger, "StatsHandler", operation, attrs...)
}

func (h *StatsHandler) CombinedHours(w http.ResponseWriter, r *http.Request) {
	q, series, logger, ok := h.prepare(w, r, "CombinedHours")
	if !ok {
		return
	}

	if series {
		result, err := h.service.CombinedHoursTimeSeries(r.Context(), q)
		h.finishSeries(w, r, logger, result, err)
		return
	}

	hours, err := h.service.CombinedHours(r.Context(), q)
	if err != nil {
		logger.ErrorContext(r.Context(), "combined hours failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "combined hours computed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, combinedHoursResponse{Hours: hours})
}

func (h *StatsHandler) UniqueMembers(w http.ResponseWriter, r *http.Request) {
	q, series, logger, ok := h.prepare(w, r, "UniqueMembers")
	if !ok {
		return
	}

	if series {
		result, err := h.service.UniqueMembersTimeSeries(r.Context(), q)
		h.finishSeries(w, r, logger, result, err)
		return
	}

	count, err := h.service.UniqueMembers(r.Context(), q)
	if err != nil {
		logger.ErrorContext(r.Context(), "unique members failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.InfoContext(r.Context(), "unique members computed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, uniqueMembersResponse{Count: count})
}

// AverageHours is only available as a series.
func (h *StatsHandler) AverageHours(w http.ResponseWriter, r *http.Request) {
	q, _, logger, ok := h.prepare(w, r, "AverageHours")
	if !ok {
		return
	}
	result, err := h.service.AverageHoursTimeSeries(r.Context(), q)
	h.finishSeries(w, r, logger, result, err)
}

func (h *StatsHandler) prepare(w http.ResponseWriter, r *http.Request, operation string) (application.StatsQuery, bool, *slog.Logger, bool) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return application.StatsQuery{}, false, nil, false
	}

	slug, ok := teamSlugFromRequest(r)
	if !ok {
		h.log(r, operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing team slug")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidTeam)
		return application.StatsQuery{}, false, nil, false
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	logger := h.log(r, operation, "principal_id", principal.UserID, "team_slug", slug)

	rng, err := parseRange(query)
	if err != nil {
		logger.With("error_kind", "bad_request").ErrorContext(r.Context(), "invalid stats range", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidRange)
		return application.StatsQuery{}, false, nil, false
	}

	q := application.StatsQuery{
		Principal: principal,
		TeamSlug:  slug,
		Range:     rng,
		Timezone:  strings.TrimSpace(query.Get("tz")),
	}
	return q, isTruthy(query.Get("series")), logger, true
}

func (h *StatsHandler) finishSeries(w http.ResponseWriter, r *http.Request, logger *slog.Logger, series application.Series, err error) {
	if err != nil {
		logger.ErrorContext(r.Context(), "series computation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("period", series.Period.String(), "points", len(series.Points)).InfoContext(r.Context(), "series computed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toSeriesDTO(series))
}

// parseRange reads RFC 3339 start and end parameters. Missing values stay
// zero and are rejected by the service as a validation error.
func parseRange(query url.Values) (timeseries.Range, error) {
	var rng timeseries.Range
	for _, p := range []struct {
		name   string
		target *time.Time
	}{{"start", &rng.Start}, {"end", &rng.End}} {
		raw := strings.TrimSpace(query.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return timeseries.Range{}, fmt.Errorf("parse %s: %w", p.name, err)
		}
		*p.target = t
	}
	return rng, nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

type combinedHoursResponse struct {
	Hours float64 `json:"hours"`
}

type uniqueMembersResponse struct {
	Count int `json:"count"`
}

type seriesDTO struct {
	Period   string           `json:"period"`
	Timezone string           `json:"timezone"`
	Points   []seriesPointDTO `json:"points"`
}

type seriesPointDTO struct {
	Start string  `json:"start"`
	Value float64 `json:"value"`
}

func toSeriesDTO(series application.Series) seriesDTO {
	points := make([]seriesPointDTO, 0, len(series.Points))
	for _, p := range series.Points {
		points = append(points, seriesPointDTO{Start: p.Start.Format(time.RFC3339), Value: p.Value})
	}
	return seriesDTO{Period: series.Period.String(), Timezone: series.Timezone, Points: points}
}
