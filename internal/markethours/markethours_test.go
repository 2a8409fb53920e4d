package markethours

import (
	"testing"
	"time"
)

// 2026-08-24 is a Monday with no holiday.
func istTime(day, hour, min, sec int) time.Time {
	return time.Date(2026, time.August, day, hour, min, sec, 0, IST)
}

func TestIsMarketOpen_Weekend(t *testing.T) {
	sat := istTime(22, 11, 0, 0) // Saturday
	sun := istTime(23, 11, 0, 0) // Sunday
	if IsMarketOpen(sat) {
		t.Error("expected closed on Saturday regardless of time")
	}
	if IsMarketOpen(sun) {
		t.Error("expected closed on Sunday regardless of time")
	}
	// Even inside trading hours
	if IsMarketOpen(istTime(22, 10, 0, 0)) {
		t.Error("expected closed on Saturday 10:00")
	}
}

func TestIsMarketOpen_Weekday(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"monday 10:00", istTime(24, 10, 0, 0), true},
		{"monday 08:00", istTime(24, 8, 0, 0), false},
		{"monday 16:00", istTime(24, 16, 0, 0), false},
		{"open boundary 09:15:00", istTime(24, 9, 15, 0), true},
		{"before open 09:14:59", istTime(24, 9, 14, 59), false},
		{"close boundary 15:30:00", istTime(24, 15, 30, 0), true},
		{"after close 15:30:01", istTime(24, 15, 30, 1), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsEndOfDay(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"15:19:59", istTime(24, 15, 19, 59), false},
		{"15:20:00", istTime(24, 15, 20, 0), true},
		{"15:25:00", istTime(24, 15, 25, 0), true},
		{"morning", istTime(24, 9, 30, 0), false},
	}
	for _, tc := range cases {
		if got := IsEndOfDay(tc.t); got != tc.want {
			t.Errorf("%s: IsEndOfDay=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestNextOpen(t *testing.T) {
	// Before open on a trading day → today's open
	got := NextOpen(istTime(24, 8, 0, 0))
	want := istTime(24, 9, 15, 0)
	if !got.Equal(want) {
		t.Errorf("NextOpen before open = %v, want %v", got, want)
	}

	// Friday evening → Monday open
	fri := istTime(21, 18, 0, 0)
	got = NextOpen(fri)
	want = istTime(24, 9, 15, 0)
	if !got.Equal(want) {
		t.Errorf("NextOpen Friday evening = %v, want %v", got, want)
	}
}

func TestIsHoliday(t *testing.T) {
	if !IsHoliday(time.Date(2026, time.January, 26, 12, 0, 0, 0, IST)) {
		t.Error("Republic Day should be a holiday")
	}
	if IsHoliday(istTime(24, 12, 0, 0)) {
		t.Error("2026-08-24 should not be a holiday")
	}
}

func TestNextDailyAt(t *testing.T) {
	// 07:00 → today 08:30
	got := NextDailyAt(istTime(24, 7, 0, 0), 8, 30)
	if !got.Equal(istTime(24, 8, 30, 0)) {
		t.Errorf("NextDailyAt before = %v", got)
	}
	// 09:00 → tomorrow 08:30
	got = NextDailyAt(istTime(24, 9, 0, 0), 8, 30)
	if !got.Equal(istTime(25, 8, 30, 0)) {
		t.Errorf("NextDailyAt after = %v", got)
	}
}

func TestTodayClose(t *testing.T) {
	got := TodayClose(istTime(24, 10, 0, 0))
	if !got.Equal(istTime(24, 15, 30, 0)) {
		t.Errorf("TodayClose = %v", got)
	}
}

func TestStatusString(t *testing.T) {
	// Monday 10:00: open, 5h30m to the close.
	got := StatusString(istTime(24, 10, 0, 0))
	if got != "Market Open, closes in 5h30m" {
		t.Errorf("open status = %q", got)
	}

	// Saturday 11:00: closed until Monday 09:15.
	got = StatusString(istTime(22, 11, 0, 0))
	if got != "Market Closed, opens Mon 09:15 (46h15m)" {
		t.Errorf("weekend status = %q", got)
	}

	// Monday 15:31: closed until Tuesday.
	got = StatusString(istTime(24, 15, 31, 0))
	if got != "Market Closed, opens Tue 09:15 (17h44m)" {
		t.Errorf("evening status = %q", got)
	}
}
