package model

import "time"

// PushSubscription is one browser push registration. The endpoint URL is
// unique across the whole table: re-subscribing the same endpoint replaces
// the previous row, whoever owned it.
//
// LastNotified holds the calendar date (YYYY-MM-DD, no time component) of
// the last successfully delivered daily digest. Empty until the first send;
// the daily scan only considers subscriptions whose LastNotified is empty
// or before today.
type PushSubscription struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Endpoint     string    `json:"endpoint"`
	P256dhKey    string    `json:"p256dh_key"`
	AuthKey      string    `json:"auth_key"`
	LastNotified string    `json:"last_notified,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
