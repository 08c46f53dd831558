// Package stats computes dashboard summaries from a single consistent read.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/zulandar/dripyard/internal/models"
	"github.com/zulandar/dripyard/internal/proxypool"
	"gorm.io/gorm"
)

// Snapshot is a point-in-time summary.
type Snapshot struct {
	ActiveSessions     int64            `json:"active_sessions"`
	TotalSessions      int64            `json:"total_sessions"`
	TotalClaims        int64            `json:"total_claims"`
	TotalEarnedSats    int64            `json:"total_earned_sats"`
	TotalAttempts      int64            `json:"total_attempts"`
	SuccessfulAttempts int64            `json:"successful_attempts"`
	SuccessRate        float64          `json:"success_rate"`
	FaucetCount        int64            `json:"faucet_count"`
	EnabledFaucets     int64            `json:"enabled_faucets"`
	PendingWithdrawals int64            `json:"pending_withdrawals"`
	Proxies            proxypool.Counts `json:"proxies"`
	TakenAt            time.Time        `json:"taken_at"`
}

// Aggregator reads the stores behind a Snapshot.
type Aggregator struct {
	db   *gorm.DB
	pool *proxypool.Pool
}

// New returns an Aggregator. pool may be nil.
func New(gdb *gorm.DB, pool *proxypool.Pool) *Aggregator {
	return &Aggregator{db: gdb, pool: pool}
}

// Snapshot reads sessions, earnings, attempts, faucets and withdrawals in
// one read-only transaction, then takes one atomic pool count.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Session{}).Count(&s.TotalSessions).Error; err != nil {
			return fmt.Errorf("stats: count sessions: %w", err)
		}
		if err := tx.Model(&models.Session{}).
			Where("status IN ?", models.ActiveSessionStatuses).
			Count(&s.ActiveSessions).Error; err != nil {
			return fmt.Errorf("stats: count active sessions: %w", err)
		}

		var earned struct {
			Claims int64
			Sats   int64
		}
		if err := tx.Model(&models.EarningsRecord{}).
			Select("COUNT(*) AS claims, COALESCE(SUM(amount_sats), 0) AS sats").
			Scan(&earned).Error; err != nil {
			return fmt.Errorf("stats: sum earnings: %w", err)
		}
		s.TotalClaims, s.TotalEarnedSats = earned.Claims, earned.Sats

		var attempts struct {
			Total     int64
			Successes int64
		}
		if err := tx.Model(&models.ClaimAttempt{}).
			Select("COUNT(*) AS total, COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS successes", models.OutcomeSuccess).
			Scan(&attempts).Error; err != nil {
			return fmt.Errorf("stats: count attempts: %w", err)
		}
		s.TotalAttempts, s.SuccessfulAttempts = attempts.Total, attempts.Successes

		if err := tx.Model(&models.Faucet{}).Count(&s.FaucetCount).Error; err != nil {
			return fmt.Errorf("stats: count faucets: %w", err)
		}
		if err := tx.Model(&models.Faucet{}).Where("enabled = ?", true).Count(&s.EnabledFaucets).Error; err != nil {
			return fmt.Errorf("stats: count enabled faucets: %w", err)
		}
		if err := tx.Model(&models.Withdrawal{}).
			Where("status IN ?", []string{models.WithdrawalPending, models.WithdrawalProcessing}).
			Count(&s.PendingWithdrawals).Error; err != nil {
			return fmt.Errorf("stats: count withdrawals: %w", err)
		}
		return nil
	}, a.readOpts())
	if err != nil {
		return Snapshot{}, err
	}

	if s.TotalAttempts > 0 {
		s.SuccessRate = float64(s.SuccessfulAttempts) / float64(s.TotalAttempts)
	}
	if a.pool != nil {
		s.Proxies = a.pool.Counts()
	}
	s.TakenAt = time.Now().UTC()
	return s, nil
}

// readOpts asks MySQL for a repeatable-read snapshot. SQLite transactions
// already read from a single snapshot.
func (a *Aggregator) readOpts() *sql.TxOptions {
	if a.db.Dialector.Name() == "mysql" {
		return &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	}
	return nil
}
