package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/example/team-hours/internal/persistence"
	"github.com/example/team-hours/internal/timeseries"
)

// StatsService answers attendance analytics over a time range. Results are
// computed from the store on every call.
type StatsService struct {
	store           persistence.Store
	gate            Gate
	now             func() time.Time
	defaultLocation *time.Location
	logger          *slog.Logger
}

// NewStatsService constructs a stats service. A nil defaultLocation means UTC.
func NewStatsService(store persistence.Store, gate Gate, now func() time.Time, defaultLocation *time.Location) *StatsService {
	return NewStatsServiceWithLogger(store, gate, now, defaultLocation, nil)
}

// NewStatsServiceWithLogger constructs a stats service with a specified logger.
func NewStatsServiceWithLogger(store persistence.Store, gate Gate, now func() time.Time, defaultLocation *time.Location, logger *slog.Logger) *StatsService {
	if now == nil {
		now = time.Now
	}
	if defaultLocation == nil {
		defaultLocation = time.UTC
	}
	return &StatsService{store: store, gate: gate, now: now, defaultLocation: defaultLocation, logger: defaultLogger(logger)}
}

func (s *StatsService) loggerWith(ctx context.Context, operation string, q StatsQuery) *slog.Logger {
	var base *slog.Logger
	if s != nil {
		base = s.logger
	}
	return serviceLogger(ctx, base, "StatsService", operation,
		"principal_id", q.Principal.UserID,
		"team_slug", q.TeamSlug,
		"range_start", q.Range.Start,
		"range_end", q.Range.End,
	)
}

// snapshot is the merged attendance of a team over a query range.
type snapshot struct {
	intervals []timeseries.Interval
	engine    *timeseries.Engine
}

// load authorizes the read, validates the query and merges the team's open
// and closed sessions for the range.
func (s *StatsService) load(ctx context.Context, q StatsQuery) (snap snapshot, err error) {
	if s == nil {
		err = fmt.Errorf("StatsService is nil")
		return
	}
	if s.store == nil {
		err = fmt.Errorf("%w: store not configured", ErrInternal)
		return
	}

	if err = authorize(ctx, s.gate, q.Principal, ActionTeamRead, TeamResource(q.TeamSlug)); err != nil {
		return
	}

	vErr := &ValidationError{}
	if rErr := q.Range.Validate(); rErr != nil {
		vErr.add("range", rErr.Error())
	}
	loc, lErr := s.location(q.Timezone)
	if lErr != nil {
		vErr.add("timezone", lErr.Error())
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	ctx, span := startSpan(ctx, "StatsService.load", attribute.String("team.slug", q.TeamSlug))
	defer func() { endSpan(span, err) }()

	now := s.now()
	start, end := q.Range.Start, q.Range.End
	var (
		open   []persistence.Member
		closed []persistence.ClosedSession
	)
	err = s.store.WithinReadTx(ctx, func(ctx context.Context, tx persistence.Repositories) error {
		team, err := tx.GetTeamBySlug(ctx, q.TeamSlug)
		if err != nil {
			return err
		}
		if open, err = tx.ListOpenSessions(ctx, persistence.OpenSessionFilter{TeamID: team.ID, StartedAfter: &start}); err != nil {
			return err
		}
		closed, err = tx.ListClosedSessions(ctx, persistence.SessionFilter{TeamID: team.ID, StartedAfter: &start, EndedBefore: &end})
		return err
	})
	if err != nil {
		err = mapStoreError(err, "")
		return
	}

	openSessions := make([]timeseries.OpenSession, 0, len(open))
	for _, m := range open {
		openSessions = append(openSessions, timeseries.OpenSession{MemberID: m.ID, Start: *m.PendingSignIn})
	}
	closedSessions := make([]timeseries.ClosedSession, 0, len(closed))
	for _, c := range closed {
		closedSessions = append(closedSessions, timeseries.ClosedSession{MemberID: c.MemberID, Start: c.StartedAt, End: c.EndedAt})
	}

	span.SetAttributes(attribute.Int("sessions.open", len(openSessions)), attribute.Int("sessions.closed", len(closedSessions)))
	snap = snapshot{
		intervals: timeseries.Merge(q.Range, now, openSessions, closedSessions),
		engine:    timeseries.NewEngine(loc),
	}
	return
}

func (s *StatsService) location(name string) (*time.Location, error) {
	if name == "" {
		return s.defaultLocation, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q", name)
	}
	return loc, nil
}

func (s *StatsService) buckets(snap snapshot, q StatsQuery) ([]timeseries.Bucket, timeseries.Period, error) {
	period := timeseries.PeriodForRange(q.Range)
	buckets, err := snap.engine.Buckets(q.Range, period)
	if errors.Is(err, timeseries.ErrTooManyBuckets) || errors.Is(err, timeseries.ErrInvalidRange) {
		return nil, period, newValidationError("range", err.Error())
	}
	return buckets, period, err
}

// CombinedHours returns the total hours of open and closed sessions inside the range.
func (s *StatsService) CombinedHours(ctx context.Context, q StatsQuery) (hours float64, err error) {
	logger := s.loggerWith(ctx, "CombinedHours", q)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to compute combined hours", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "combined hours computed", "hours", hours)
	}()

	snap, err := s.load(ctx, q)
	if err != nil {
		return 0, err
	}
	return timeseries.Hours(timeseries.TotalDuration(snap.intervals)), nil
}

// CombinedHoursTimeSeries returns the summed hours of sessions starting in each bucket.
func (s *StatsService) CombinedHoursTimeSeries(ctx context.Context, q StatsQuery) (series Series, err error) {
	logger := s.loggerWith(ctx, "CombinedHoursTimeSeries", q)
	defer s.logSeries(ctx, logger, &series, &err)

	snap, err := s.load(ctx, q)
	if err != nil {
		return Series{}, err
	}
	buckets, period, err := s.buckets(snap, q)
	if err != nil {
		return Series{}, err
	}
	points := snap.engine.TotalHoursSeries(buckets, snap.intervals)
	series = newSeries(period, snap.engine.Location())
	for _, p := range points {
		series.Points = append(series.Points, SeriesPoint{Start: p.Start, Value: p.Hours})
	}
	return series, nil
}

// UniqueMembers counts the distinct members with a finished session inside the range.
func (s *StatsService) UniqueMembers(ctx context.Context, q StatsQuery) (count int, err error) {
	logger := s.loggerWith(ctx, "UniqueMembers", q)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to count unique members", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "unique members counted", "count", count)
	}()

	snap, err := s.load(ctx, q)
	if err != nil {
		return 0, err
	}
	return timeseries.DistinctMembers(timeseries.ClosedOnly(snap.intervals)), nil
}

// UniqueMembersTimeSeries counts distinct members per bucket. A member with
// sessions in several buckets is counted in each of them.
func (s *StatsService) UniqueMembersTimeSeries(ctx context.Context, q StatsQuery) (series Series, err error) {
	logger := s.loggerWith(ctx, "UniqueMembersTimeSeries", q)
	defer s.logSeries(ctx, logger, &series, &err)

	snap, err := s.load(ctx, q)
	if err != nil {
		return Series{}, err
	}
	buckets, period, err := s.buckets(snap, q)
	if err != nil {
		return Series{}, err
	}
	points := snap.engine.UniqueMembersSeries(buckets, timeseries.ClosedOnly(snap.intervals))
	series = newSeries(period, snap.engine.Location())
	for _, p := range points {
		series.Points = append(series.Points, SeriesPoint{Start: p.Start, Value: float64(p.Count)})
	}
	return series, nil
}

// AverageHoursTimeSeries returns the mean finished session length per bucket.
func (s *StatsService) AverageHoursTimeSeries(ctx context.Context, q StatsQuery) (series Series, err error) {
	logger := s.loggerWith(ctx, "AverageHoursTimeSeries", q)
	defer s.logSeries(ctx, logger, &series, &err)

	snap, err := s.load(ctx, q)
	if err != nil {
		return Series{}, err
	}
	buckets, period, err := s.buckets(snap, q)
	if err != nil {
		return Series{}, err
	}
	points := snap.engine.AverageHoursSeries(buckets, timeseries.ClosedOnly(snap.intervals))
	series = newSeries(period, snap.engine.Location())
	for _, p := range points {
		series.Points = append(series.Points, SeriesPoint{Start: p.Start, Value: p.Hours})
	}
	return series, nil
}

func (s *StatsService) logSeries(ctx context.Context, logger *slog.Logger, series *Series, err *error) {
	if *err != nil {
		logger.ErrorContext(ctx, "failed to compute series", "error", *err, "error_kind", ErrorKind(*err))
		return
	}
	logger.DebugContext(ctx, "series computed", "period", series.Period.String(), "points", len(series.Points))
}

func newSeries(period timeseries.Period, loc *time.Location) Series {
	return Series{Period: period, Timezone: loc.String(), Points: make([]SeriesPoint, 0)}
}
