package timeseries

import (
	"sort"
	"time"
)

// EndTolerance extends the range end when filtering open sessions, so a
// session whose effective end is the query time is not dropped by query latency.
const EndTolerance = time.Minute

// OpenSession is a session that has started but not ended.
type OpenSession struct {
	MemberID string
	Start    time.Time
}

// ClosedSession is a session with both bounds recorded.
type ClosedSession struct {
	MemberID string
	Start    time.Time
	End      time.Time
}

// Interval is one attendance span that falls inside a query range.
type Interval struct {
	MemberID string
	Start    time.Time
	End      time.Time
	Open     bool
}

// Duration returns End - Start, never negative.
func (i Interval) Duration() time.Duration {
	d := i.End.Sub(i.Start)
	if d < 0 {
		return 0
	}
	return d
}

// Merge combines open and closed sessions into the intervals that count
// toward r. Only sessions fully contained in r are kept; sessions that cross
// either bound are dropped rather than clipped. An open session ends at now
// and is kept while now is before r.End plus EndTolerance.
func Merge(r Range, now time.Time, open []OpenSession, closed []ClosedSession) []Interval {
	intervals := make([]Interval, 0, len(open)+len(closed))
	for _, s := range closed {
		if s.Start.After(r.Start) && s.End.Before(r.End) {
			intervals = append(intervals, Interval{MemberID: s.MemberID, Start: s.Start, End: s.End})
		}
	}
	openLimit := r.End.Add(EndTolerance)
	if now.Before(openLimit) {
		for _, s := range open {
			if s.Start.After(r.Start) {
				intervals = append(intervals, Interval{MemberID: s.MemberID, Start: s.Start, End: now, Open: true})
			}
		}
	}
	sortIntervals(intervals)
	return intervals
}

// ClosedOnly returns the intervals that were recorded as closed sessions.
func ClosedOnly(intervals []Interval) []Interval {
	out := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if !iv.Open {
			out = append(out, iv)
		}
	}
	return out
}

func sortIntervals(intervals []Interval) {
	sort.SliceStable(intervals, func(i, j int) bool {
		if intervals[i].Start.Equal(intervals[j].Start) {
			return intervals[i].MemberID < intervals[j].MemberID
		}
		return intervals[i].Start.Before(intervals[j].Start)
	})
}
