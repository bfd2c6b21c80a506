package schedule

import (
	"testing"
	"time"

	"github.com/arrosemoi-app/server/internal/model"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 12, 30, 0, 0, time.UTC)
	return &t
}

func intPtr(n int) *int { return &n }

func TestWateringDueAfterInterval(t *testing.T) {
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC)

	eightDaysAgo := now.AddDate(0, 0, -8)
	p := model.Plant{Frequency: 7, LastWatered: &eightDaysAgo}
	if !WateringDue(p, now) {
		t.Error("plant watered 8 days ago with 7-day frequency should be due")
	}

	sixDaysAgo := now.AddDate(0, 0, -6)
	p.LastWatered = &sixDaysAgo
	if WateringDue(p, now) {
		t.Error("plant watered 6 days ago with 7-day frequency should not be due")
	}
}

func TestWateringDueOnExactDay(t *testing.T) {
	// Due on the boundary day regardless of the time of day either side
	// was recorded at.
	last := time.Date(2024, 3, 1, 22, 45, 0, 0, time.UTC)
	p := model.Plant{Frequency: 7, LastWatered: &last}

	onTheDay := time.Date(2024, 3, 8, 6, 0, 0, 0, time.UTC)
	if !WateringDue(p, onTheDay) {
		t.Error("should be due on day 7 even before the anchor's time of day")
	}

	dayBefore := time.Date(2024, 3, 7, 23, 59, 0, 0, time.UTC)
	if WateringDue(p, dayBefore) {
		t.Error("should not be due on day 6")
	}
}

func TestNeverWateredIsAlwaysDue(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	for _, freq := range []int{0, 1, 7, 365} {
		p := model.Plant{Frequency: freq}
		if !WateringDue(p, now) {
			t.Errorf("freq=%d: plant never watered should always be due", freq)
		}
	}
}

func TestNextWateringDateSentinel(t *testing.T) {
	next := NextWateringDate(nil, 7)
	if !next.Equal(time.Unix(0, 0).UTC()) {
		t.Errorf("nil anchor: next = %v, want epoch", next)
	}
}

func TestZeroFrequencyPerpetuallyDue(t *testing.T) {
	anchor := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	next := NextWateringDate(&anchor, 0)
	if !next.Equal(anchor) {
		t.Errorf("zero frequency: next = %v, want anchor %v", next, anchor)
	}
	if !IsDue(next, anchor) {
		t.Error("zero frequency plant should be due from the anchor day onward")
	}
}

func TestRepottingNotTracked(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	// No frequency: never due, even with an ancient anchor.
	p := model.Plant{LastRepotted: datePtr(2020, 1, 1)}
	if RepottingDue(p, now) {
		t.Error("nil repotting frequency should never be due")
	}

	// No anchor: never due.
	p = model.Plant{RepottingFrequency: intPtr(6)}
	if RepottingDue(p, now) {
		t.Error("nil repotting anchor should never be due")
	}

	// Zero frequency behaves like unset.
	p = model.Plant{LastRepotted: datePtr(2020, 1, 1), RepottingFrequency: intPtr(0)}
	if RepottingDue(p, now) {
		t.Error("zero repotting frequency should never be due")
	}
}

func TestRepottingDueAfterMonths(t *testing.T) {
	p := model.Plant{
		LastRepotted:       datePtr(2024, 1, 15),
		RepottingFrequency: intPtr(2),
	}

	if !RepottingDue(p, time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)) {
		t.Error("should be due 2 months after anchor")
	}
	if RepottingDue(p, time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)) {
		t.Error("should not be due the day before")
	}
}

func TestNextFertilizingDateWeeks(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	next := NextFertilizingDate(&anchor, intPtr(4))
	if next == nil {
		t.Fatal("expected a next date")
	}
	want := time.Date(2024, 1, 29, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	p := model.Plant{LastFertilized: &anchor, FertilizerFrequency: intPtr(4)}
	if !FertilizingDue(p, time.Date(2024, 1, 29, 8, 0, 0, 0, time.UTC)) {
		t.Error("should be due at 2024-01-29 08:00")
	}
	if FertilizingDue(p, time.Date(2024, 1, 28, 8, 0, 0, 0, time.UTC)) {
		t.Error("should not be due at 2024-01-28 08:00")
	}
}

func TestFertilizingNotTracked(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	p := model.Plant{LastFertilized: datePtr(2020, 1, 1)}
	if FertilizingDue(p, now) {
		t.Error("nil fertilizer frequency should never be due")
	}
}

func TestParseAnchor(t *testing.T) {
	cases := []struct {
		in   string
		want *time.Time
	}{
		{"2024-01-15T10:30:00Z", datePtr2(2024, 1, 15, 10, 30)},
		{"2024-01-15T10:30:00.123Z", datePtr2(2024, 1, 15, 10, 30)},
		{"2024-01-15 10:30:00", datePtr2(2024, 1, 15, 10, 30)},
		{"2024-01-15", datePtr2(2024, 1, 15, 0, 0)},
		{"", nil},
		{"not-a-date", nil},
		{"2024-13-45", nil},
	}
	for _, tc := range cases {
		got := ParseAnchor(tc.in)
		if (got == nil) != (tc.want == nil) {
			t.Errorf("ParseAnchor(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		if got != nil && (got.Year() != tc.want.Year() || got.Month() != tc.want.Month() || got.Day() != tc.want.Day()) {
			t.Errorf("ParseAnchor(%q) = %v, want same day as %v", tc.in, got, tc.want)
		}
	}
}

func datePtr2(y int, m time.Month, d, hh, mm int) *time.Time {
	t := time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
	return &t
}
