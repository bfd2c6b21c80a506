package model

import "time"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// APIKeys holds the per-user credentials for external identification
// services. Stored as opaque strings and never returned in full by the API.
type APIKeys struct {
	OpenAI   string
	PlantNet string
}
