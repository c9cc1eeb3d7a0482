package models

import "time"

// QuotaEvent records one consumed attempt for an identity (user id or IP
// address). Rows are append-only and used only for counting inside a trailing
// window; retention pruning is a housekeeping concern, not a correctness one.
type QuotaEvent struct {
	ID        int64     `json:"id" db:"id"`
	Identity  string    `json:"identity" db:"identity"`
	Endpoint  string    `json:"endpoint" db:"endpoint"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
