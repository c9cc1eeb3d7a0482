package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/songsmith/backend/internal/models"
)

// AuditEvent is one structured record of a money movement or a payment state
// transition. Emitted as JSON so the log stream can be parsed downstream.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference,omitempty"`
	AccountID int       `json:"account_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// LogLedger records one committed ledger entry.
func (a *AuditLogger) LogLedger(entry *models.CreditTransaction) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "LEDGER_" + string(entry.Kind),
		Reference: entry.RelatedRef,
		AccountID: entry.AccountID,
		Amount:    entry.Amount,
		Status:    "SUCCESS",
		Details:   map[string]int64{"balance_after": entry.BalanceAfter},
	})
}

// LogReconcile records a payment session transition.
func (a *AuditLogger) LogReconcile(reference string, from, to models.SessionStatus) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "RECONCILE",
		Reference: reference,
		Status:    "SUCCESS",
		Details: map[string]string{
			"from": string(from),
			"to":   string(to),
		},
	})
}

func (a *AuditLogger) LogError(reference string, accountID int, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
