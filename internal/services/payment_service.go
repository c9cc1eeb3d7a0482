package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/songsmith/backend/internal/config"
	"github.com/songsmith/backend/internal/errs"
	"github.com/songsmith/backend/internal/gateway"
	"github.com/songsmith/backend/internal/models"
)

// Outcome is what a reconciliation pass reports to the user-facing layer.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeExpired   Outcome = "expired"
	OutcomePending   Outcome = "pending"
	OutcomeError     Outcome = "error"
)

// uncreditedQueue receives references of sessions that captured but failed to
// credit, for operator reconciliation.
const uncreditedQueue = "ops:uncredited_sessions"

// GatewayAPI is the slice of the wallet gateway the driver needs.
type GatewayAPI interface {
	CreatePayment(ctx context.Context, req gateway.CreatePaymentRequest) (*gateway.CreatePaymentResponse, error)
	GetPayment(ctx context.Context, reference string) (*gateway.PaymentDetails, error)
	CapturePayment(ctx context.Context, reference string, amount int64) error
}

// CreditIssuer is the slice of the ledger the driver needs.
type CreditIssuer interface {
	Credit(ctx context.Context, userID int, amount int64, kind models.TransactionKind, description, relatedRef string) (*models.CreditTransaction, error)
}

// PaymentService owns the PaymentSession lifecycle. Its correctness under
// duplicate webhook delivery and concurrent reconcile calls rests entirely on
// one atomic conditional update in storage (pending -> terminal), never on an
// in-process lock: duplicates may arrive on different instances sharing the
// same database.
type PaymentService struct {
	db       *sql.DB
	gw       GatewayAPI
	ledger   CreditIssuer
	redis    *redis.Client
	packages *PackageService
	cfg      *config.GatewayConfig
	audit    *AuditLogger
}

func NewPaymentService(db *sql.DB, gw GatewayAPI, ledger CreditIssuer, redisClient *redis.Client, packages *PackageService, cfg *config.GatewayConfig) *PaymentService {
	return &PaymentService{
		db:       db,
		gw:       gw,
		ledger:   ledger,
		redis:    redisClient,
		packages: packages,
		cfg:      cfg,
		audit:    NewAuditLogger(),
	}
}

// OpenSessionResult is returned to the checkout handler.
type OpenSessionResult struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirectUrl"`
}

// ErrUnknownPackage rejects checkout attempts for package ids not in the
// catalog.
var ErrUnknownPackage = errors.New("unknown credit package")

// ErrUnknownReference rejects reconciliation of references we never issued.
var ErrUnknownReference = errors.New("unknown payment reference")

// OpenSession starts one purchase attempt: a fresh globally unique reference,
// a pending session row, then the hosted payment at the gateway. If either
// the persist or the gateway call fails the whole operation is aborted so no
// session is left in a state reconciliation cannot reach.
func (s *PaymentService) OpenSession(ctx context.Context, userID int, packageID string) (*OpenSessionResult, error) {
	pkg := s.packages.Find(packageID)
	if pkg == nil {
		return nil, ErrUnknownPackage
	}

	reference := "PAY-" + uuid.NewString()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_sessions (reference, user_id, package_id, credits, amount_minor, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		reference, userID, pkg.ID, pkg.Credits, pkg.AmountMinor, string(models.SessionPending), time.Now())
	if err != nil {
		return nil, errs.E(errs.KindStorage, "payment.open", reference, err)
	}

	resp, err := s.gw.CreatePayment(ctx, gateway.CreatePaymentRequest{
		Amount:      pkg.AmountMinor,
		Currency:    pkg.Currency,
		Reference:   reference,
		ReturnURL:   s.cfg.ReturnURL + "?reference=" + reference,
		Description: fmt.Sprintf("%s package (%d credits)", pkg.Name, pkg.Credits),
	})
	if err != nil {
		// Remove the pending row: a session the gateway never saw can
		// never be reconciled.
		if _, delErr := s.db.ExecContext(ctx, `DELETE FROM payment_sessions WHERE reference = $1 AND status = $2`,
			reference, string(models.SessionPending)); delErr != nil {
			log.Printf("[PAYMENT] Failed to remove aborted session %s: %v", reference, delErr)
		}
		return nil, err
	}

	log.Printf("[PAYMENT] Session opened: %s, user: %d, package: %s", reference, userID, pkg.ID)
	return &OpenSessionResult{Reference: reference, RedirectURL: resp.RedirectURL}, nil
}

// Reconcile drives one purchase attempt toward its terminal state. It is
// idempotent: both the user-return path and webhook notifications call it,
// any number of times, concurrently or not. A session already terminal
// short-circuits without touching the gateway or the ledger; otherwise the
// gateway is asked for authoritative state (a notification is only a prompt
// to re-check) and the transition pending -> terminal is applied as an atomic
// conditional update. Only the reconciler that wins that update credits the
// ledger.
func (s *PaymentService) Reconcile(ctx context.Context, reference string) (Outcome, error) {
	session, err := s.loadSession(ctx, reference)
	if err != nil {
		if err == sql.ErrNoRows {
			return OutcomeError, ErrUnknownReference
		}
		return OutcomeError, errs.E(errs.KindStorage, "payment.reconcile", reference, err)
	}

	if session.Status != models.SessionPending {
		return terminalOutcome(session.Status), nil
	}

	details, err := s.gw.GetPayment(ctx, reference)
	if err != nil {
		// Session stays pending; safe to retry later.
		return OutcomeError, err
	}

	switch details.State {
	case gateway.StateCreated:
		// Still open at the gateway; nothing to do yet.
		return OutcomePending, nil

	case gateway.StateAuthorized:
		return s.finalize(ctx, session)

	case gateway.StateAborted, gateway.StateTerminated:
		if won, err := s.transition(ctx, reference, models.SessionPending, models.SessionCancelled); err != nil {
			return OutcomeError, err
		} else if won {
			s.audit.LogReconcile(reference, models.SessionPending, models.SessionCancelled)
		}
		return OutcomeCancelled, nil

	case gateway.StateExpired:
		if won, err := s.transition(ctx, reference, models.SessionPending, models.SessionFailed); err != nil {
			return OutcomeError, err
		} else if won {
			s.audit.LogReconcile(reference, models.SessionPending, models.SessionFailed)
		}
		return OutcomeExpired, nil

	default:
		log.Printf("[PAYMENT] Unhandled gateway state %q for %s", details.State, reference)
		return OutcomePending, nil
	}
}

// finalize handles the AUTHORIZED case: capture, then the completed fence,
// then the ledger credit.
func (s *PaymentService) finalize(ctx context.Context, session *models.PaymentSession) (Outcome, error) {
	reference := session.Reference

	if err := s.gw.CapturePayment(ctx, reference, session.AmountMinor); err != nil {
		if errs.Is(err, errs.KindCaptureFailed) {
			if won, trErr := s.transition(ctx, reference, models.SessionPending, models.SessionFailed); trErr == nil && won {
				s.audit.LogReconcile(reference, models.SessionPending, models.SessionFailed)
			}
			return OutcomeError, err
		}
		// Gateway unreachable: stay pending, retry later.
		return OutcomeError, err
	}

	// The terminal-status write is the idempotency fence: of any number of
	// concurrent reconcilers, exactly one wins this conditional update and
	// proceeds to credit.
	won, err := s.transition(ctx, reference, models.SessionPending, models.SessionCompleted)
	if err != nil {
		return OutcomeError, err
	}
	if !won {
		// Another reconciler got there first; report whatever it decided.
		current, err := s.loadSession(ctx, reference)
		if err != nil {
			return OutcomeError, errs.E(errs.KindStorage, "payment.reconcile", reference, err)
		}
		return terminalOutcome(current.Status), nil
	}
	s.audit.LogReconcile(reference, models.SessionPending, models.SessionCompleted)

	_, err = s.ledger.Credit(ctx, session.UserID, session.Credits, models.KindPurchase,
		fmt.Sprintf("Purchased %s package", session.PackageID), reference)
	if err != nil {
		// Money was captured but no credits landed. Flag the session so
		// the condition stays visible in state, and hand it to the
		// operator queue. Never retried blindly: a raw credit retry
		// without the fence would double-credit.
		s.markUncredited(ctx, reference)
		s.audit.LogError(reference, session.UserID, err)
		return OutcomePending, errs.E(errs.KindCapturedUncredited, "payment.reconcile", reference, err)
	}

	log.Printf("[PAYMENT] Session completed: %s, credited %d to user %d", reference, session.Credits, session.UserID)
	return OutcomeSuccess, nil
}

func (s *PaymentService) markUncredited(ctx context.Context, reference string) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE payment_sessions SET status = $1, updated_at = $2
		WHERE reference = $3 AND status = $4`,
		string(models.SessionUncredited), time.Now(), reference, string(models.SessionCompleted)); err != nil {
		log.Printf("[PAYMENT] Failed to flag uncredited session %s: %v", reference, err)
	}

	if s.redis != nil {
		if err := s.redis.RPush(ctx, uncreditedQueue, reference).Err(); err != nil {
			log.Printf("[PAYMENT] Failed to queue uncredited session %s: %v", reference, err)
		}
	}
}

// transition applies one conditional state change. Returns whether this call
// won the update.
func (s *PaymentService) transition(ctx context.Context, reference string, from, to models.SessionStatus) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE payment_sessions SET status = $1, updated_at = $2
		WHERE reference = $3 AND status = $4`,
		string(to), time.Now(), reference, string(from))
	if err != nil {
		return false, errs.E(errs.KindStorage, "payment.transition", reference, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errs.E(errs.KindStorage, "payment.transition", reference, err)
	}
	return rowsAffected == 1, nil
}

func (s *PaymentService) loadSession(ctx context.Context, reference string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT reference, user_id, package_id, credits, amount_minor, status, created_at, updated_at
		FROM payment_sessions
		WHERE reference = $1`, reference).Scan(
		&session.Reference, &session.UserID, &session.PackageID, &session.Credits,
		&session.AmountMinor, &status, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return nil, err
	}
	session.Status = models.SessionStatus(status)
	return &session, nil
}

// GetSession exposes a session to the status endpoint.
func (s *PaymentService) GetSession(ctx context.Context, reference string) (*models.PaymentSession, error) {
	session, err := s.loadSession(ctx, reference)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownReference
	}
	return session, err
}

// terminalOutcome maps a non-pending session status to its user-facing
// outcome. The uncredited condition is deliberately reported as pending, not
// success: the user paid but has no credits yet.
func terminalOutcome(status models.SessionStatus) Outcome {
	switch status {
	case models.SessionCompleted:
		return OutcomeSuccess
	case models.SessionCancelled:
		return OutcomeCancelled
	case models.SessionFailed:
		return OutcomeExpired
	case models.SessionUncredited:
		return OutcomePending
	default:
		return OutcomePending
	}
}
