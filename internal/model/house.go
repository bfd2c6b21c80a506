package model

import "time"

// Member roles within a house.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

type House struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code"`
	CreatedBy  int64     `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`

	// Populated by list queries.
	Role        string `json:"role,omitempty"`
	MemberCount int    `json:"member_count"`
	PlantCount  int    `json:"plant_count"`
}

type HouseMember struct {
	ID       int64     `json:"id"`
	HouseID  int64     `json:"house_id"`
	UserID   int64     `json:"user_id"`
	Role     string    `json:"role"`
	Email    string    `json:"email,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}
