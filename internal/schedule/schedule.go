// Package schedule computes care due dates for plants. The functions are
// pure date arithmetic so the server-side reminder scan and any client
// rendering the same fields classify due/not-due identically.
package schedule

import (
	"time"

	"github.com/arrosemoi-app/server/internal/model"
)

// ReferenceHour is the hour of day (local time) both sides of a due
// comparison are normalized to. Comparing at a fixed hour removes
// time-of-day noise: a plant watered at 23:00 and checked at 07:00 the
// right number of days later still counts as one full interval.
const ReferenceHour = 8

// DefaultWaterFrequencyDays is the watering interval applied when a plant
// is created without one.
const DefaultWaterFrequencyDays = 7

// NextWateringDate returns the date the plant is next due for watering.
// A plant with no recorded watering is due immediately: the Unix epoch is
// returned as a sentinel guaranteed to be in the past.
//
// frequencyDays is used as given. Zero or negative values make the result
// equal to (or before) the anchor, i.e. perpetually due; input validation
// belongs to the write path, not here.
func NextWateringDate(lastWatered *time.Time, frequencyDays int) time.Time {
	if lastWatered == nil {
		return time.Unix(0, 0).UTC()
	}
	return lastWatered.AddDate(0, 0, frequencyDays)
}

// NextRepottingDate returns the date the plant is next due for repotting,
// or nil when repotting is not tracked (no anchor or no interval).
func NextRepottingDate(lastRepotted *time.Time, frequencyMonths *int) *time.Time {
	if lastRepotted == nil || frequencyMonths == nil || *frequencyMonths == 0 {
		return nil
	}
	next := lastRepotted.AddDate(0, *frequencyMonths, 0)
	return &next
}

// NextFertilizingDate returns the date the plant is next due for
// fertilizing, or nil when fertilizing is not tracked. The interval is in
// weeks.
func NextFertilizingDate(lastFertilized *time.Time, frequencyWeeks *int) *time.Time {
	if lastFertilized == nil || frequencyWeeks == nil || *frequencyWeeks == 0 {
		return nil
	}
	next := lastFertilized.AddDate(0, 0, *frequencyWeeks*7)
	return &next
}

// IsDue reports whether next has arrived, with both sides normalized to
// ReferenceHour before comparison. Due iff next <= now, at day precision.
func IsDue(next, now time.Time) bool {
	return !atReferenceHour(next).After(atReferenceHour(now))
}

// WateringDue reports whether the plant needs watering at now.
func WateringDue(p model.Plant, now time.Time) bool {
	return IsDue(NextWateringDate(p.LastWatered, p.Frequency), now)
}

// RepottingDue reports whether the plant needs repotting at now. Always
// false when repotting is not tracked.
func RepottingDue(p model.Plant, now time.Time) bool {
	next := NextRepottingDate(p.LastRepotted, p.RepottingFrequency)
	if next == nil {
		return false
	}
	return IsDue(*next, now)
}

// FertilizingDue reports whether the plant needs fertilizing at now.
// Always false when fertilizing is not tracked.
func FertilizingDue(p model.Plant, now time.Time) bool {
	next := NextFertilizingDate(p.LastFertilized, p.FertilizerFrequency)
	if next == nil {
		return false
	}
	return IsDue(*next, now)
}

// anchorFormats are the timestamp layouts accepted for stored care anchors,
// most specific first. Imported data mixes full RFC3339 timestamps, SQLite
// DATETIME strings and bare dates.
var anchorFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseAnchor parses a stored care anchor timestamp. An empty or
// unparseable value returns nil, which downstream code treats the same as
// an absent anchor; malformed data must never break a due computation.
func ParseAnchor(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range anchorFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func atReferenceHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), ReferenceHour, 0, 0, 0, t.Location())
}
