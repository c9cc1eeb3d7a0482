package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/songsmith/backend/internal/config"
)

// QuotaDecision is the outcome of a quota check.
type QuotaDecision struct {
	Allowed       bool          `json:"allowed"`
	Remaining     int           `json:"remaining"`
	RequiresLogin bool          `json:"requiresLogin,omitempty"`
	RetryAfter    time.Duration `json:"-"`
}

// QuotaService counts recent usage events per identity (user id or IP
// address) inside a trailing window. It is an abuse control, not an
// accounting control: when the count cannot be read it fails open, and a
// failed usage record never blocks an already-granted action.
type QuotaService struct {
	db  *sql.DB
	cfg *config.QuotaConfig
	now func() time.Time
}

func NewQuotaService(db *sql.DB, cfg *config.QuotaConfig) *QuotaService {
	return &QuotaService{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// CheckQuota decides whether identity may make another attempt under policy.
// The window boundary is exclusive: an event exactly window old no longer
// counts.
func (s *QuotaService) CheckQuota(ctx context.Context, identity, endpoint string, policy config.QuotaPolicy) QuotaDecision {
	cutoff := s.now().Add(-policy.Window)

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM quota_events
		WHERE identity = $1 AND endpoint = $2 AND created_at > $3`,
		identity, endpoint, cutoff).Scan(&count)
	if err != nil {
		// Fail open: availability beats strict enforcement for this
		// non-critical control.
		log.Printf("[QUOTA] Count failed for %s, allowing: %v", endpoint, err)
		return QuotaDecision{Allowed: true, Remaining: policy.Max}
	}

	if count >= policy.Max {
		decision := QuotaDecision{
			Allowed:       false,
			Remaining:     0,
			RequiresLogin: policy.RequiresLogin,
		}
		if !policy.RequiresLogin {
			decision.RetryAfter = s.retryAfter(ctx, identity, endpoint, policy, cutoff)
		}
		return decision
	}

	return QuotaDecision{Allowed: true, Remaining: policy.Max - count}
}

// retryAfter estimates when the oldest in-window event ages out. Best effort;
// zero on lookup failure.
func (s *QuotaService) retryAfter(ctx context.Context, identity, endpoint string, policy config.QuotaPolicy, cutoff time.Time) time.Duration {
	var oldest time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT MIN(created_at) FROM quota_events
		WHERE identity = $1 AND endpoint = $2 AND created_at > $3`,
		identity, endpoint, cutoff).Scan(&oldest)
	if err != nil || oldest.IsZero() {
		return 0
	}
	wait := oldest.Add(policy.Window).Sub(s.now())
	if wait < 0 {
		wait = 0
	}
	return wait
}

// RecordUsage appends one consumed attempt. Failures are logged and
// swallowed.
func (s *QuotaService) RecordUsage(ctx context.Context, identity, endpoint string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_events (identity, endpoint, created_at)
		VALUES ($1, $2, $3)`, identity, endpoint, s.now())
	if err != nil {
		log.Printf("[QUOTA] Failed to record usage for %s: %v", endpoint, err)
	}
}
