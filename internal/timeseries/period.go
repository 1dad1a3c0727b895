package timeseries

import (
	"errors"
	"fmt"
	"time"
)

// Period is the calendar unit a bucket spans.
type Period int

const (
	// PeriodDaily buckets by local calendar day.
	PeriodDaily Period = iota + 1
	// PeriodWeekly buckets by local calendar week starting on Monday.
	PeriodWeekly
	// PeriodMonthly buckets by local calendar month.
	PeriodMonthly
)

// Span thresholds used by PeriodForRange. A range up to DailyMaxSpan long is
// bucketed daily, up to WeeklyMaxSpan weekly, and monthly beyond that.
const (
	DailyMaxSpan  = 31 * 24 * time.Hour
	WeeklyMaxSpan = 183 * 24 * time.Hour
)

// String returns the lower case name used on the wire.
func (p Period) String() string {
	switch p {
	case PeriodDaily:
		return "daily"
	case PeriodWeekly:
		return "weekly"
	case PeriodMonthly:
		return "monthly"
	default:
		return fmt.Sprintf("period(%d)", int(p))
	}
}

// ParsePeriod is the inverse of Period.String.
func ParsePeriod(s string) (Period, error) {
	switch s {
	case "daily":
		return PeriodDaily, nil
	case "weekly":
		return PeriodWeekly, nil
	case "monthly":
		return PeriodMonthly, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// ErrInvalidPeriod indicates an unsupported period value.
var ErrInvalidPeriod = errors.New("timeseries: invalid period")

// ErrInvalidRange indicates a range whose start is after its end or that has a zero bound.
var ErrInvalidRange = errors.New("timeseries: invalid range")

// Range is a caller supplied window of absolute instants.
type Range struct {
	Start time.Time
	End   time.Time
}

// Validate reports ErrInvalidRange for zero bounds or a start after the end.
func (r Range) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
	}
	return nil
}

// Span returns End - Start.
func (r Range) Span() time.Duration {
	return r.End.Sub(r.Start)
}

// PeriodForRange picks the bucket period for a range from its span.
func PeriodForRange(r Range) Period {
	span := r.Span()
	switch {
	case span <= DailyMaxSpan:
		return PeriodDaily
	case span <= WeeklyMaxSpan:
		return PeriodWeekly
	default:
		return PeriodMonthly
	}
}
