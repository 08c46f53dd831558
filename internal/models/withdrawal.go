package models

import "time"

// Withdrawal status values.
const (
	WithdrawalPending    = "pending"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalFailed     = "failed"
)

// AllocatingStatuses are the withdrawal states whose allocations count
// against ledger balances. Failed withdrawals release theirs.
var AllocatingStatuses = []string{WithdrawalPending, WithdrawalProcessing, WithdrawalCompleted}

// Withdrawal is a request to pay accumulated earnings to a wallet.
type Withdrawal struct {
	ID            string    `gorm:"primaryKey;size:36"`
	WalletAddress string    `gorm:"size:128;not null"`
	AmountSats    int64     `gorm:"not null"`
	Sources       string    `gorm:"type:text;not null"` // JSON array of faucet IDs
	Status        string    `gorm:"size:16;not null;index"`
	Reason        string    `gorm:"type:text"`
	TxRef         string    `gorm:"size:128"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time

	Allocations []WithdrawalAllocation `gorm:"foreignKey:WithdrawalID"`
}

// WithdrawalAllocation is the share of a withdrawal drawn from one faucet
// source.
type WithdrawalAllocation struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	WithdrawalID string `gorm:"size:36;not null;index"`
	FaucetID     string `gorm:"size:64;not null;index"`
	AmountSats   int64  `gorm:"not null"`
	CreatedAt    time.Time
}
