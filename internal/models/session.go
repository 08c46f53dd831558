package models

import "time"

// Session status values.
const (
	SessionStarting = "starting"
	SessionRunning  = "running"
	SessionStopping = "stopping"
	SessionStopped  = "stopped"
	SessionError    = "error"
)

// Per-faucet state within a session.
const (
	SessionFaucetActive   = "active"
	SessionFaucetInactive = "inactive"
)

// ActiveSessionStatuses are the non-terminal session states.
var ActiveSessionStatuses = []string{SessionStarting, SessionRunning, SessionStopping}

// Session is one claiming session. Counters are maintained in the same
// transaction as the ledger append that produced them.
type Session struct {
	ID              string `gorm:"primaryKey;size:36"`
	Status          string `gorm:"size:16;not null;index"`
	TotalClaims     int64  `gorm:"not null;default:0"`
	TotalEarnedSats int64  `gorm:"not null;default:0"`
	ErrorCount      int64  `gorm:"not null;default:0"`
	LastError       string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StoppedAt       *time.Time

	Faucets []SessionFaucet `gorm:"foreignKey:SessionID"`
}

// SessionFaucet records a faucet assigned to a session and whether it has
// been taken out of rotation by a permanent failure.
type SessionFaucet struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:36;not null;uniqueIndex:idx_session_faucet"`
	FaucetID  string `gorm:"size:64;not null;uniqueIndex:idx_session_faucet"`
	State     string `gorm:"size:16;not null"`
	Reason    string `gorm:"type:text"`
	UpdatedAt time.Time
}
