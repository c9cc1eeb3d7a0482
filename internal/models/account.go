package models

import (
	"time"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	KindPurchase  TransactionKind = "purchase"
	KindDeduction TransactionKind = "deduction"
	KindRefund    TransactionKind = "refund"
)

// Account holds the current credit balance for one user. Rows are created at
// registration and never deleted; the balance is mutated only through the
// ledger service.
type Account struct {
	UserID    int       `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Version   int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreditTransaction is one immutable entry in the append-only ledger.
// Amount is signed: debits negative, credits positive. BalanceAfter is the
// account balance immediately after applying Amount, so for any account the
// ordered entries form a consistent running total.
type CreditTransaction struct {
	ID           int64           `json:"id" db:"id"`
	AccountID    int             `json:"account_id" db:"account_id"`
	Amount       int64           `json:"amount" db:"amount"`
	BalanceAfter int64           `json:"balance_after" db:"balance_after"`
	Kind         TransactionKind `json:"kind" db:"kind"`
	Description  string          `json:"description" db:"description"`
	RelatedRef   string          `json:"related_ref,omitempty" db:"related_ref"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
