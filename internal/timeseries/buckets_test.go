package timeseries

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func mustLocation(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestPeriodForRange(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		span time.Duration
		want Period
	}{
		{name: "empty range", span: 0, want: PeriodDaily},
		{name: "one week", span: 7 * 24 * time.Hour, want: PeriodDaily},
		{name: "daily threshold", span: DailyMaxSpan, want: PeriodDaily},
		{name: "just past daily threshold", span: DailyMaxSpan + time.Second, want: PeriodWeekly},
		{name: "weekly threshold", span: WeeklyMaxSpan, want: PeriodWeekly},
		{name: "one year", span: 365 * 24 * time.Hour, want: PeriodMonthly},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := PeriodForRange(Range{Start: start, End: start.Add(tc.span)})
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	for _, p := range []Period{PeriodDaily, PeriodWeekly, PeriodMonthly} {
		parsed, err := ParsePeriod(p.String())
		if err != nil {
			t.Fatalf("ParsePeriod(%q) returned error: %v", p.String(), err)
		}
		if parsed != p {
			t.Fatalf("expected %s, got %s", p, parsed)
		}
	}
	if _, err := ParsePeriod("hourly"); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestEngine_Buckets(t *testing.T) {
	t.Parallel()

	t.Run("daily buckets stay on local midnight across spring forward", func(t *testing.T) {
		t.Parallel()

		loc := mustLocation(t, "America/New_York")
		engine := NewEngine(loc)
		r := Range{
			Start: time.Date(2024, time.March, 7, 12, 0, 0, 0, loc),
			End:   time.Date(2024, time.March, 13, 12, 0, 0, 0, loc),
		}

		buckets, err := engine.Buckets(r, PeriodDaily)
		if err != nil {
			t.Fatalf("Buckets returned error: %v", err)
		}
		if len(buckets) != 7 {
			t.Fatalf("expected 7 buckets, got %d", len(buckets))
		}
		for i, b := range buckets {
			local := b.Start.In(loc)
			if local.Hour() != 0 || local.Minute() != 0 {
				t.Fatalf("bucket %d not aligned to local midnight: %s", i, local)
			}
			if local.Day() != 7+i {
				t.Fatalf("bucket %d expected day %d, got %d", i, 7+i, local.Day())
			}
		}
		if got := buckets[4].Start.Sub(buckets[3].Start); got != 23*time.Hour {
			t.Fatalf("expected the DST day to be 23h long, got %s", got)
		}
	})

	t.Run("daily buckets stay on local midnight across fall back", func(t *testing.T) {
		t.Parallel()

		loc := mustLocation(t, "Europe/Berlin")
		engine := NewEngine(loc)
		r := Range{
			Start: time.Date(2024, time.October, 25, 8, 0, 0, 0, time.UTC),
			End:   time.Date(2024, time.October, 31, 8, 0, 0, 0, time.UTC),
		}

		buckets, err := engine.Buckets(r, PeriodDaily)
		if err != nil {
			t.Fatalf("Buckets returned error: %v", err)
		}
		for i := 1; i < len(buckets); i++ {
			if buckets[i].Start.In(loc).Hour() != 0 {
				t.Fatalf("bucket %d drifted: %s", i, buckets[i].Start.In(loc))
			}
			step := buckets[i].Start.Sub(buckets[i-1].Start)
			if buckets[i-1].Start.In(loc).Day() == 27 {
				if step != 25*time.Hour {
					t.Fatalf("expected 25h step over fall back, got %s", step)
				}
			} else if step != 24*time.Hour {
				t.Fatalf("expected 24h step, got %s", step)
			}
		}
	})

	t.Run("weekly buckets start on monday", func(t *testing.T) {
		t.Parallel()

		engine := NewEngine(nil)
		r := Range{
			Start: time.Date(2024, time.March, 6, 15, 0, 0, 0, time.UTC),
			End:   time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC),
		}

		buckets, err := engine.Buckets(r, PeriodWeekly)
		if err != nil {
			t.Fatalf("Buckets returned error: %v", err)
		}
		want := []time.Time{
			time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 18, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 25, 0, 0, 0, 0, time.UTC),
		}
		if len(buckets) != len(want) {
			t.Fatalf("expected %d buckets, got %d", len(want), len(buckets))
		}
		for i := range want {
			if !buckets[i].Start.Equal(want[i]) {
				t.Fatalf("bucket %d expected %s, got %s", i, want[i], buckets[i].Start)
			}
			if buckets[i].Period != PeriodWeekly {
				t.Fatalf("bucket %d expected weekly period, got %s", i, buckets[i].Period)
			}
		}
	})

	t.Run("monthly buckets use the display timezone", func(t *testing.T) {
		t.Parallel()

		loc := mustLocation(t, "Asia/Tokyo")
		engine := NewEngine(loc)
		// 2024-01-31T20:00Z is already February 1st in Tokyo.
		r := Range{
			Start: time.Date(2024, time.January, 31, 20, 0, 0, 0, time.UTC),
			End:   time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC),
		}

		buckets, err := engine.Buckets(r, PeriodMonthly)
		if err != nil {
			t.Fatalf("Buckets returned error: %v", err)
		}
		if len(buckets) != 3 {
			t.Fatalf("expected 3 buckets, got %d", len(buckets))
		}
		first := buckets[0].Start.In(loc)
		if first.Month() != time.February || first.Day() != 1 || first.Hour() != 0 {
			t.Fatalf("expected first bucket at Feb 1 local midnight, got %s", first)
		}
	})

	t.Run("rejects inverted range", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewEngine(nil).Buckets(Range{Start: now, End: now.Add(-time.Hour)}, PeriodDaily)
		if !errors.Is(err, ErrInvalidRange) {
			t.Fatalf("expected ErrInvalidRange, got %v", err)
		}
	})

	t.Run("rejects oversized ranges", func(t *testing.T) {
		t.Parallel()

		start := time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
		_, err := NewEngine(nil).Buckets(Range{Start: start, End: start.AddDate(30, 0, 0)}, PeriodDaily)
		if !errors.Is(err, ErrTooManyBuckets) {
			t.Fatalf("expected ErrTooManyBuckets, got %v", err)
		}
	})

	t.Run("single instant range yields one bucket", func(t *testing.T) {
		t.Parallel()

		at := time.Date(2024, time.May, 5, 10, 30, 0, 0, time.UTC)
		buckets, err := NewEngine(nil).Buckets(Range{Start: at, End: at}, PeriodDaily)
		if err != nil {
			t.Fatalf("Buckets returned error: %v", err)
		}
		if len(buckets) != 1 || !buckets[0].Start.Equal(time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC)) {
			t.Fatalf("unexpected buckets: %#v", buckets)
		}
	})
}
