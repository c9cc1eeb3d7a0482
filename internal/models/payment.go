package models

import (
	"time"
)

// SessionStatus is the lifecycle state of one purchase attempt. A session
// starts pending and transitions to exactly one terminal status, driven only
// by the reconciliation driver.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionFailed    SessionStatus = "failed"
	// SessionUncredited marks the capture-succeeded-but-credit-failed
	// condition. It is terminal for the driver and resolved only by an
	// operator; surfaced to the user as a pending outcome.
	SessionUncredited SessionStatus = "uncredited"
)

// PaymentSession is one row per purchase attempt. Reference is globally
// unique and doubles as the idempotency key for reconciliation.
type PaymentSession struct {
	Reference   string        `json:"reference" db:"reference"`
	UserID      int           `json:"user_id" db:"user_id"`
	PackageID   string        `json:"package_id" db:"package_id"`
	Credits     int64         `json:"credits" db:"credits"`
	AmountMinor int64         `json:"amount_minor" db:"amount_minor"`
	Status      SessionStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// CreditPackage is a purchasable bundle of credits.
type CreditPackage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int64  `json:"credits"`
	AmountMinor int64  `json:"amountMinor"` // price in minor currency units
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}
