package model

import "time"

// Plant is a tracked plant. It belongs to a house when HouseID is set and
// falls back to the creating user otherwise. The care cadence fields are
// (anchor, interval) pairs consumed by the schedule package; everything
// else is descriptive and opaque to the scheduler.
type Plant struct {
	ID      int64  `json:"id"`
	UserID  int64  `json:"user_id"`
	HouseID *int64 `json:"house_id,omitempty"`

	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Sun  string `json:"sun,omitempty"`
	Room string `json:"room,omitempty"`

	// Watering cadence in days. Defaults to 7 at creation.
	Frequency   int        `json:"frequency"`
	LastWatered *time.Time `json:"last_watered,omitempty"`

	// Repotting cadence in months, fertilizing cadence in weeks.
	// Nil means the activity is not tracked for this plant.
	RepottingFrequency  *int       `json:"repotting_frequency,omitempty"`
	LastRepotted        *time.Time `json:"last_repotted,omitempty"`
	FertilizerFrequency *int       `json:"fertilizer_frequency,omitempty"`
	LastFertilized      *time.Time `json:"last_fertilized,omitempty"`

	Notes        string `json:"notes,omitempty"`
	Photo        string `json:"photo,omitempty"`
	Indoor       bool   `json:"indoor"`
	Favorite     bool   `json:"favorite"`
	AcquiredDate string `json:"acquired_date,omitempty"`
	CareTips     string `json:"care_tips,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	IdealTemp    string `json:"ideal_temp,omitempty"`
	Humidity     string `json:"humidity,omitempty"`
	Toxic        bool   `json:"toxic"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
