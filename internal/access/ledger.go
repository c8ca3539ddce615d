package access

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"imagerelay/internal/domain"
	"imagerelay/internal/infra"
	"imagerelay/internal/sqlinline"
)

// Ledger binds each verified payment reference to exactly one session.
// Claim is idempotent for the owning session and fails with
// domain.ErrReferenceClaimed for any other.
type Ledger interface {
	Claim(ctx context.Context, claim domain.PaymentClaim) error
}

// MemoryLedger keeps claims for the lifetime of the process.
type MemoryLedger struct {
	mu     sync.Mutex
	claims map[string]domain.PaymentClaim
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{claims: make(map[string]domain.PaymentClaim)}
}

func (l *MemoryLedger) Claim(ctx context.Context, claim domain.PaymentClaim) error {
	if err := validateClaim(claim); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.claims[claim.Reference]; ok {
		if existing.SessionID != claim.SessionID {
			return domain.ErrReferenceClaimed
		}
		return nil
	}
	if claim.ClaimedAt.IsZero() {
		claim.ClaimedAt = time.Now()
	}
	l.claims[claim.Reference] = claim
	return nil
}

// PostgresLedger survives restarts so a reference cannot be replayed against
// a fresh process.
type PostgresLedger struct {
	sql infra.SQLExecutor
}

func NewPostgresLedger(sql infra.SQLExecutor) *PostgresLedger {
	return &PostgresLedger{sql: sql}
}

// EnsureSchema creates the claims table when missing.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	if _, err := l.sql.Exec(ctx, sqlinline.QCreatePaymentClaims); err != nil {
		return fmt.Errorf("access: create payment_claims: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Claim(ctx context.Context, claim domain.PaymentClaim) error {
	if err := validateClaim(claim); err != nil {
		return err
	}
	row := l.sql.QueryRow(ctx, sqlinline.QClaimPaymentReference, claim.Reference, claim.SessionID, claim.Amount, claim.Currency)
	var owner string
	if err := row.Scan(&owner); err != nil {
		return fmt.Errorf("access: claim reference: %w", err)
	}
	if owner != claim.SessionID {
		return domain.ErrReferenceClaimed
	}
	return nil
}

func validateClaim(claim domain.PaymentClaim) error {
	if strings.TrimSpace(claim.Reference) == "" {
		return ErrMissingReference
	}
	if strings.TrimSpace(claim.SessionID) == "" {
		return ErrMissingSession
	}
	return nil
}

var (
	_ Ledger = (*MemoryLedger)(nil)
	_ Ledger = (*PostgresLedger)(nil)
)
