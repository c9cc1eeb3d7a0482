package models

import "time"

type User struct {
	ID          int    `json:"id" example:"1"`                   // User ID
	Email       string `json:"email" example:"user@example.com"` // User email
	DisplayName string `json:"displayName" example:"Jo"`         // Public display name
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Song is the record of one generation request. The ledger's related_ref for
// a deduction (and its refund, if any) points at the song ID.
type Song struct {
	ID        string    `json:"id" db:"id"`
	UserID    int       `json:"user_id" db:"user_id"`
	Concept   string    `json:"concept" db:"concept"`
	Status    string    `json:"status" db:"status"`
	TrackURL  string    `json:"track_url,omitempty" db:"track_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
