package timeseries

import (
	"errors"
	"fmt"
	"time"
)

// MaxBuckets caps the number of buckets a single call may generate.
const MaxBuckets = 5000

// ErrTooManyBuckets indicates the range would produce more than MaxBuckets buckets.
var ErrTooManyBuckets = errors.New("timeseries: too many buckets")

// Bucket is one calendar aligned slot. Start is expressed in the engine's location.
type Bucket struct {
	Start  time.Time
	Period Period
}

// Engine aligns buckets to the calendar of a display location.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine for loc. A nil loc means UTC.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

// Location returns the display location.
func (e *Engine) Location() *time.Location {
	if e == nil || e.location == nil {
		return time.UTC
	}
	return e.location
}

// Truncate returns the start of the period containing t, in local calendar terms.
func (e *Engine) Truncate(t time.Time, p Period) time.Time {
	loc := e.Location()
	local := t.In(loc)
	y, m, d := local.Date()
	switch p {
	case PeriodWeekly:
		offset := (int(local.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	case PeriodMonthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// Next returns the start of the period following the one starting at start.
// The step is derived from the calendar so days across a DST change are 23
// or 25 hours long.
func (e *Engine) Next(start time.Time, p Period) time.Time {
	loc := e.Location()
	y, m, d := start.In(loc).Date()
	switch p {
	case PeriodWeekly:
		return time.Date(y, m, d+7, 0, 0, 0, 0, loc)
	case PeriodMonthly:
		return time.Date(y, m+1, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	}
}

// Buckets returns the ordered, gap free buckets covering r: the first starts
// at the period boundary at or before r.Start and the last is the final
// boundary not after r.End.
func (e *Engine) Buckets(r Range, p Period) ([]Bucket, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPeriod, int(p))
	}

	buckets := make([]Bucket, 0, estimateBuckets(r, p))
	for current := e.Truncate(r.Start, p); !current.After(r.End); current = e.Next(current, p) {
		if len(buckets) == MaxBuckets {
			return nil, fmt.Errorf("%w: range %s to %s at %s", ErrTooManyBuckets, r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339), p)
		}
		buckets = append(buckets, Bucket{Start: current, Period: p})
	}
	return buckets, nil
}

func estimateBuckets(r Range, p Period) int {
	var unit time.Duration
	switch p {
	case PeriodWeekly:
		unit = 7 * 24 * time.Hour
	case PeriodMonthly:
		unit = 28 * 24 * time.Hour
	default:
		unit = 24 * time.Hour
	}
	n := int(r.Span()/unit) + 2
	if n > MaxBuckets {
		return MaxBuckets
	}
	return n
}
