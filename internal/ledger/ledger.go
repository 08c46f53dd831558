// Package ledger is the append-only earnings record. It is the only source
// of truth for balances; rows are inserted and never updated or deleted.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidAmount is returned for non-positive earnings.
var ErrInvalidAmount = errors.New("ledger: amount must be positive")

// Ledger wraps the earnings tables.
type Ledger struct {
	db  *gorm.DB
	log zerolog.Logger
}

// New returns a Ledger backed by gdb.
func New(gdb *gorm.DB) *Ledger {
	return &Ledger{db: gdb, log: logger.WithComponent("ledger")}
}

// Record appends one earnings row and bumps the session's counters.
func (l *Ledger) Record(ctx context.Context, sessionID, faucetID string, sats int64) (*models.EarningsRecord, error) {
	var rec *models.EarningsRecord
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = RecordTx(tx, sessionID, faucetID, sats)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordTx is Record inside the caller's transaction.
func RecordTx(tx *gorm.DB, sessionID, faucetID string, sats int64) (*models.EarningsRecord, error) {
	if sats <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, sats)
	}

	rec := models.EarningsRecord{SessionID: sessionID, FaucetID: faucetID, AmountSats: sats}
	if err := tx.Create(&rec).Error; err != nil {
		return nil, fmt.Errorf("ledger: append earnings: %w", err)
	}

	result := tx.Model(&models.Session{}).Where("id = ?", sessionID).Updates(map[string]interface{}{
		"total_claims":      gorm.Expr("total_claims + 1"),
		"total_earned_sats": gorm.Expr("total_earned_sats + ?", sats),
		"updated_at":        time.Now(),
	})
	if result.Error != nil {
		return nil, fmt.Errorf("ledger: update session %s: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("ledger: session %s not found", sessionID)
	}
	return &rec, nil
}

// RecordAttempt stores the audit row for one claim attempt. A successful
// attempt appends earnings in the same transaction; a failed one bumps the
// session's error counter.
func (l *Ledger) RecordAttempt(ctx context.Context, a models.ClaimAttempt) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&a).Error; err != nil {
			return fmt.Errorf("ledger: record attempt: %w", err)
		}
		switch a.Outcome {
		case models.OutcomeSuccess:
			if _, err := RecordTx(tx, a.SessionID, a.FaucetID, a.AmountSats); err != nil {
				return err
			}
		case models.OutcomeTransient, models.OutcomePermanent:
			if err := tx.Model(&models.Session{}).Where("id = ?", a.SessionID).Updates(map[string]interface{}{
				"error_count": gorm.Expr("error_count + 1"),
				"last_error":  a.Reason,
				"updated_at":  time.Now(),
			}).Error; err != nil {
				return fmt.Errorf("ledger: update session %s: %w", a.SessionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if a.Outcome == models.OutcomeSuccess {
		l.log.Info().Str("session", a.SessionID).Str("faucet", a.FaucetID).Int64("sats", a.AmountSats).Msg("earnings recorded")
	}
	return nil
}

// SourceBalance is the position of one faucet source.
type SourceBalance struct {
	FaucetID  string `json:"faucet_id"`
	Earned    int64  `json:"earned_sats"`
	Allocated int64  `json:"allocated_sats"`
	Available int64  `json:"available_sats"`
}

// Balance is the unallocated position over a set of sources.
type Balance struct {
	Sources   []SourceBalance `json:"sources"`
	Available int64           `json:"available_sats"`
}

type sumRow struct {
	FaucetID string
	Total    int64
}

// BalanceFor sums unallocated earnings for the given sources, in the order
// given. Repeated ids are counted once.
func (l *Ledger) BalanceFor(ctx context.Context, sources []string) (Balance, error) {
	var b Balance
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		b, err = BalanceTx(tx, sources, false)
		return err
	})
	return b, err
}

// BalanceTx computes a Balance inside the caller's transaction. With lock
// set, the earnings rows read are locked so concurrent allocators
// serialize on databases that support row locks.
func BalanceTx(tx *gorm.DB, sources []string, lock bool) (Balance, error) {
	sources = Dedupe(sources)
	if len(sources) == 0 {
		return Balance{}, nil
	}

	earnedQ := tx.Model(&models.EarningsRecord{}).
		Select("faucet_id, COALESCE(SUM(amount_sats), 0) AS total").
		Where("faucet_id IN ?", sources).
		Group("faucet_id")
	if lock {
		earnedQ = earnedQ.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var earned []sumRow
	if err := earnedQ.Scan(&earned).Error; err != nil {
		return Balance{}, fmt.Errorf("ledger: sum earnings: %w", err)
	}

	var allocated []sumRow
	if err := tx.Table("withdrawal_allocations").
		Select("withdrawal_allocations.faucet_id AS faucet_id, COALESCE(SUM(withdrawal_allocations.amount_sats), 0) AS total").
		Joins("JOIN withdrawals ON withdrawals.id = withdrawal_allocations.withdrawal_id").
		Where("withdrawals.status IN ?", models.AllocatingStatuses).
		Where("withdrawal_allocations.faucet_id IN ?", sources).
		Group("withdrawal_allocations.faucet_id").
		Scan(&allocated).Error; err != nil {
		return Balance{}, fmt.Errorf("ledger: sum allocations: %w", err)
	}

	earnedBy := make(map[string]int64, len(earned))
	for _, r := range earned {
		earnedBy[r.FaucetID] = r.Total
	}
	allocBy := make(map[string]int64, len(allocated))
	for _, r := range allocated {
		allocBy[r.FaucetID] = r.Total
	}

	b := Balance{Sources: make([]SourceBalance, 0, len(sources))}
	for _, id := range sources {
		sb := SourceBalance{FaucetID: id, Earned: earnedBy[id], Allocated: allocBy[id]}
		sb.Available = sb.Earned - sb.Allocated
		if sb.Available < 0 {
			sb.Available = 0
		}
		b.Sources = append(b.Sources, sb)
		b.Available += sb.Available
	}
	return b, nil
}

// Total returns the sum of every earnings row.
func (l *Ledger) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := l.db.WithContext(ctx).Model(&models.EarningsRecord{}).
		Select("COALESCE(SUM(amount_sats), 0)").Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("ledger: total: %w", err)
	}
	return total, nil
}

// Filter narrows Records. Zero fields match everything.
type Filter struct {
	SessionID string
	FaucetID  string
	Limit     int
}

// Records returns earnings rows newest first.
func (l *Ledger) Records(ctx context.Context, f Filter) ([]models.EarningsRecord, error) {
	q := l.db.WithContext(ctx).Model(&models.EarningsRecord{})
	if f.SessionID != "" {
		q = q.Where("session_id = ?", f.SessionID)
	}
	if f.FaucetID != "" {
		q = q.Where("faucet_id = ?", f.FaucetID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var recs []models.EarningsRecord
	if err := q.Order("id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("ledger: list records: %w", err)
	}
	return recs, nil
}

// Dedupe drops empty and repeated faucet ids, keeping first-seen order.
func Dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
