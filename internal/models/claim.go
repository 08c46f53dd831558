package models

import "time"

// Claim attempt outcomes as persisted.
const (
	OutcomeSuccess   = "success"
	OutcomeNoPayout  = "no_payout"
	OutcomeTransient = "transient_failure"
	OutcomePermanent = "permanent_failure"
)

// ClaimAttempt is the observable record of one claim attempt. It is an
// audit trail only; balances come from EarningsRecord.
type ClaimAttempt struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	SessionID  string `gorm:"size:36;not null;index:idx_attempt_session_faucet"`
	FaucetID   string `gorm:"size:64;not null;index:idx_attempt_session_faucet"`
	ProxyID    string `gorm:"size:255"`
	Attempt    int    `gorm:"not null"`
	Outcome    string `gorm:"size:24;not null;index"`
	Reason     string `gorm:"type:text"`
	AmountSats int64  `gorm:"not null;default:0"`
	DurationMs int64
	CreatedAt  time.Time `gorm:"index"`
}

// EarningsRecord is one successful claim. Rows are append-only.
type EarningsRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	SessionID  string    `gorm:"size:36;not null;index"`
	FaucetID   string    `gorm:"size:64;not null;index"`
	AmountSats int64     `gorm:"not null"`
	CreatedAt  time.Time `gorm:"index"`
}
