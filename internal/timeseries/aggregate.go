package timeseries

import "time"

// Hours converts a duration to fractional hours as seconds / 3600.
func Hours(d time.Duration) float64 {
	return d.Seconds() / 3600
}

// TotalDuration sums the durations of intervals.
func TotalDuration(intervals []Interval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}

// DistinctMembers counts the distinct member ids among intervals.
func DistinctMembers(intervals []Interval) int {
	seen := make(map[string]struct{}, len(intervals))
	for _, iv := range intervals {
		seen[iv.MemberID] = struct{}{}
	}
	return len(seen)
}

// CountPoint is a per bucket integer aggregate.
type CountPoint struct {
	Start time.Time
	Count int
}

// HoursPoint is a per bucket duration aggregate in hours.
type HoursPoint struct {
	Start time.Time
	Hours float64
}

// group assigns each interval to the bucket its start truncates to.
// Intervals whose bucket is not in buckets are dropped.
func (e *Engine) group(buckets []Bucket, intervals []Interval) [][]Interval {
	index := make(map[int64]int, len(buckets))
	for i, b := range buckets {
		index[b.Start.UnixNano()] = i
	}
	groups := make([][]Interval, len(buckets))
	for _, iv := range intervals {
		if len(buckets) == 0 {
			break
		}
		start := e.Truncate(iv.Start, buckets[0].Period)
		if i, ok := index[start.UnixNano()]; ok {
			groups[i] = append(groups[i], iv)
		}
	}
	return groups
}

// UniqueMembersSeries returns the distinct member count for each bucket. Empty buckets report 0.
func (e *Engine) UniqueMembersSeries(buckets []Bucket, intervals []Interval) []CountPoint {
	groups := e.group(buckets, intervals)
	points := make([]CountPoint, len(buckets))
	for i, b := range buckets {
		points[i] = CountPoint{Start: b.Start, Count: DistinctMembers(groups[i])}
	}
	return points
}

// AverageHoursSeries returns the mean interval duration in hours for each bucket. Empty buckets report 0.
func (e *Engine) AverageHoursSeries(buckets []Bucket, intervals []Interval) []HoursPoint {
	groups := e.group(buckets, intervals)
	points := make([]HoursPoint, len(buckets))
	for i, b := range buckets {
		points[i] = HoursPoint{Start: b.Start}
		if n := len(groups[i]); n > 0 {
			points[i].Hours = Hours(TotalDuration(groups[i])) / float64(n)
		}
	}
	return points
}

// TotalHoursSeries returns the summed hours for each bucket. Empty buckets report 0.
func (e *Engine) TotalHoursSeries(buckets []Bucket, intervals []Interval) []HoursPoint {
	groups := e.group(buckets, intervals)
	points := make([]HoursPoint, len(buckets))
	for i, b := range buckets {
		points[i] = HoursPoint{Start: b.Start, Hours: Hours(TotalDuration(groups[i]))}
	}
	return points
}
