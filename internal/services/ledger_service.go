package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/songsmith/backend/internal/errs"
	"github.com/songsmith/backend/internal/middleware"
	"github.com/songsmith/backend/internal/models"
)

var (
	errAmountNotPositive = errors.New("amount must be positive")
	errOptimisticLock    = errors.New("optimistic lock failed")
)

// LedgerService owns the accounts table and the append-only
// credit_transactions log. Every mutation runs in one database transaction
// under a row lock on the account, so concurrent operations on the same
// account serialize while different accounts proceed in parallel. The lock is
// never held across a network call.
type LedgerService struct {
	db    *sql.DB
	audit *AuditLogger
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{
		db:    db,
		audit: NewAuditLogger(),
	}
}

// Debit removes amount credits from the account. Fails with
// KindInsufficientFunds before any write when the balance does not cover the
// amount; all storage failures roll the whole operation back.
func (s *LedgerService) Debit(ctx context.Context, userID int, amount int64, description, relatedRef string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, errs.E(errs.KindStorage, "ledger.debit", strconv.Itoa(userID), errAmountNotPositive)
	}
	return s.apply(ctx, "ledger.debit", userID, -amount, models.KindDeduction, description, relatedRef)
}

// Credit adds amount credits to the account with the given kind (purchase or
// refund). Credits never fail on insufficiency; only storage faults fail.
func (s *LedgerService) Credit(ctx context.Context, userID int, amount int64, kind models.TransactionKind, description, relatedRef string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, errs.E(errs.KindStorage, "ledger.credit", strconv.Itoa(userID), errAmountNotPositive)
	}
	return s.apply(ctx, "ledger.credit", userID, amount, kind, description, relatedRef)
}

// apply is the single mutation path: lock the account row, check funds for
// debits, append the transaction with its running balance, then bump the
// balance behind a version compare-and-swap.
func (s *LedgerService) apply(ctx context.Context, op string, userID int, amount int64, kind models.TransactionKind, description, relatedRef string) (*models.CreditTransaction, error) {
	ref := strconv.Itoa(userID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, ref, err)
	}
	defer tx.Rollback()

	account, err := s.lockAccount(ctx, tx, userID)
	if err != nil {
		return nil, errs.E(errs.KindStorage, op, ref, err)
	}

	newBalance := account.Balance + amount
	if newBalance < 0 {
		return nil, errs.E(errs.KindInsufficientFunds, op, ref, nil)
	}

	entry := &models.CreditTransaction{
		AccountID:    userID,
		Amount:       amount,
		BalanceAfter: newBalance,
		Kind:         kind,
		Description:  description,
		RelatedRef:   relatedRef,
		CreatedAt:    time.Now(),
	}

	if err := s.appendTransaction(ctx, tx, entry); err != nil {
		return nil, errs.E(errs.KindStorage, op, ref, err)
	}

	if err := s.updateBalance(ctx, tx, userID, newBalance, account.Version); err != nil {
		return nil, errs.E(errs.KindStorage, op, ref, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.E(errs.KindStorage, op, ref, err)
	}

	s.audit.LogLedger(entry)
	return entry, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, userID int) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT user_id, balance, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&account.UserID, &account.Balance, &account.Version, &account.UpdatedAt)

	return &account, err
}

func (s *LedgerService) appendTransaction(ctx context.Context, tx *sql.Tx, entry *models.CreditTransaction) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO credit_transactions (account_id, amount, balance_after, kind, description, related_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		entry.AccountID, entry.Amount, entry.BalanceAfter, string(entry.Kind),
		entry.Description, entry.RelatedRef, entry.CreatedAt).Scan(&entry.ID)
}

func (s *LedgerService) updateBalance(ctx context.Context, tx *sql.Tx, userID int, newBalance int64, version int) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		newBalance, time.Now(), userID, version)

	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return errOptimisticLock
	}

	return nil
}

// HasRefundFor reports whether a refund tagged with relatedRef already
// exists. The ledger itself does not enforce refund uniqueness; callers use
// this to suppress duplicate refund attempts for the same failed action.
func (s *LedgerService) HasRefundFor(ctx context.Context, userID int, relatedRef string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM credit_transactions
			WHERE account_id = $1 AND related_ref = $2 AND kind = 'refund'
		)`, userID, relatedRef).Scan(&exists)
	if err != nil {
		return false, errs.E(errs.KindStorage, "ledger.has_refund", relatedRef, err)
	}
	return exists, nil
}

// GetBalance returns the authenticated user's current credit balance
// @Summary Get credit balance
// @Description Current credit balance for the authenticated user
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balance=int64}
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /credits/balance [get]
func (s *LedgerService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var balance int64
	err := s.db.QueryRowContext(r.Context(), `SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[LEDGER] Balance lookup failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": balance})
}

// ListTransactions returns the authenticated user's ledger history
// @Summary List credit transactions
// @Description Recent ledger entries for the authenticated user, newest first
// @Tags credits
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries to return (default: 20, max: 100)"
// @Success 200 {object} object{transactions=[]models.CreditTransaction,count=int}
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /credits/transactions [get]
func (s *LedgerService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := authedUserID(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	rows, err := s.db.QueryContext(r.Context(), `
		SELECT id, account_id, amount, balance_after, kind, description, COALESCE(related_ref, ''), created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		log.Printf("[LEDGER] Transaction list failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	transactions := []models.CreditTransaction{}
	for rows.Next() {
		var entry models.CreditTransaction
		var kind string
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.Amount, &entry.BalanceAfter,
			&kind, &entry.Description, &entry.RelatedRef, &entry.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		entry.Kind = models.TransactionKind(kind)
		transactions = append(transactions, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// authedUserID pulls the JWT user id out of the request context.
func authedUserID(r *http.Request) (int, bool) {
	idStr, ok := middleware.UserID(r.Context())
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, false
	}
	return id, true
}
