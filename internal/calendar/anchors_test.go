package calendar

import (
	"testing"
	"time"
)

func TestNextWeekday(t *testing.T) {
	// 2025-01-01 is a Wednesday.
	cases := []struct {
		from time.Time
		wd   time.Weekday
		want string
	}{
		{date(2025, time.January, 1), time.Friday, "2025-01-03"},
		{date(2025, time.January, 3), time.Friday, "2025-01-03"},
		{date(2025, time.January, 4), time.Friday, "2025-01-10"},
		{date(2025, time.January, 1), time.Tuesday, "2025-01-07"},
	}
	for _, tc := range cases {
		if got := Format(NextWeekday(tc.from, tc.wd)); got != tc.want {
			t.Fatalf("NextWeekday(%s, %s) = %s, want %s", Format(tc.from), tc.wd, got, tc.want)
		}
	}
}

func TestWeeklyAnchors(t *testing.T) {
	got := WeeklyAnchors(date(2025, time.January, 1), date(2025, time.January, 24), time.Friday)
	want := []string{"2025-01-03", "2025-01-10", "2025-01-17", "2025-01-24"}
	if len(got) != len(want) {
		t.Fatalf("expected %d anchors, got %d", len(want), len(got))
	}
	for i := range want {
		if Format(got[i]) != want[i] {
			t.Fatalf("anchor %d = %s, want %s", i, Format(got[i]), want[i])
		}
	}

	if len(WeeklyAnchors(date(2025, time.January, 4), date(2025, time.January, 9), time.Friday)) != 0 {
		t.Fatal("window without the weekday should produce no anchors")
	}
}

func TestParseWeekday(t *testing.T) {
	if wd, ok := ParseWeekday("fri"); !ok || wd != time.Friday {
		t.Fatalf("fri should parse as Friday, got %s %v", wd, ok)
	}
	if wd, ok := ParseWeekday("Tuesday"); !ok || wd != time.Tuesday {
		t.Fatalf("Tuesday should parse, got %s %v", wd, ok)
	}
	if _, ok := ParseWeekday("someday"); ok {
		t.Fatal("unknown weekday should not parse")
	}
}
