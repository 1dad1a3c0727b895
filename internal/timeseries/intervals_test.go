package timeseries

import (
	"testing"
	"time"
)

func TestMerge(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, time.June, 3, 18, 0, 0, 0, time.UTC)

	t.Run("open session counts up to now", func(t *testing.T) {
		t.Parallel()

		r := Range{Start: t0.Add(-time.Hour), End: t0.Add(2 * time.Hour)}
		now := t0.Add(time.Hour)
		intervals := Merge(r, now, []OpenSession{{MemberID: "m1", Start: t0}}, nil)
		if len(intervals) != 1 {
			t.Fatalf("expected 1 interval, got %d", len(intervals))
		}
		if got := intervals[0].Duration(); got != time.Hour {
			t.Fatalf("expected 1h, got %s", got)
		}
		if !intervals[0].Open {
			t.Fatalf("expected interval to be marked open")
		}
	})

	t.Run("open session kept within end tolerance", func(t *testing.T) {
		t.Parallel()

		r := Range{Start: t0.Add(-time.Hour), End: t0.Add(time.Hour)}
		intervals := Merge(r, r.End.Add(30*time.Second), []OpenSession{{MemberID: "m1", Start: t0}}, nil)
		if len(intervals) != 1 {
			t.Fatalf("expected open session within tolerance to be kept, got %d", len(intervals))
		}
		intervals = Merge(r, r.End.Add(EndTolerance), []OpenSession{{MemberID: "m1", Start: t0}}, nil)
		if len(intervals) != 0 {
			t.Fatalf("expected open session past tolerance to be dropped, got %d", len(intervals))
		}
	})

	t.Run("excludes sessions crossing the range bounds", func(t *testing.T) {
		t.Parallel()

		r := Range{Start: t0, End: t0.Add(4 * time.Hour)}
		closed := []ClosedSession{
			{MemberID: "inside", Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)},
			{MemberID: "starts-at-bound", Start: t0, End: t0.Add(time.Hour)},
			{MemberID: "ends-at-bound", Start: t0.Add(3 * time.Hour), End: r.End},
			{MemberID: "crosses-start", Start: t0.Add(-time.Hour), End: t0.Add(time.Hour)},
			{MemberID: "crosses-end", Start: t0.Add(3 * time.Hour), End: r.End.Add(time.Hour)},
		}
		open := []OpenSession{{MemberID: "open-before", Start: t0.Add(-time.Minute)}}

		intervals := Merge(r, t0.Add(3*time.Hour), open, closed)
		if len(intervals) != 1 || intervals[0].MemberID != "inside" {
			t.Fatalf("expected only the contained session, got %#v", intervals)
		}
	})

	t.Run("orders by start then member", func(t *testing.T) {
		t.Parallel()

		r := Range{Start: t0, End: t0.Add(10 * time.Hour)}
		closed := []ClosedSession{
			{MemberID: "b", Start: t0.Add(2 * time.Hour), End: t0.Add(3 * time.Hour)},
			{MemberID: "c", Start: t0.Add(time.Hour), End: t0.Add(2 * time.Hour)},
			{MemberID: "a", Start: t0.Add(2 * time.Hour), End: t0.Add(4 * time.Hour)},
		}
		intervals := Merge(r, t0.Add(5*time.Hour), []OpenSession{{MemberID: "d", Start: t0.Add(30 * time.Minute)}}, closed)
		want := []string{"d", "c", "a", "b"}
		if len(intervals) != len(want) {
			t.Fatalf("expected %d intervals, got %d", len(want), len(intervals))
		}
		for i, id := range want {
			if intervals[i].MemberID != id {
				t.Fatalf("position %d expected %s, got %s", i, id, intervals[i].MemberID)
			}
		}
		if got := len(ClosedOnly(intervals)); got != 3 {
			t.Fatalf("expected 3 closed intervals, got %d", got)
		}
	})

	t.Run("duration is never negative", func(t *testing.T) {
		t.Parallel()

		iv := Interval{MemberID: "m", Start: t0, End: t0.Add(-time.Second)}
		if iv.Duration() != 0 {
			t.Fatalf("expected zero duration, got %s", iv.Duration())
		}
	})
}
