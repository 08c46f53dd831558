package models

import "time"

// Faucet is a reward endpoint definition. Faucets are never deleted;
// disabling is the removal path so historical ledger rows keep resolving.
type Faucet struct {
	ID              string `gorm:"primaryKey;size:64"`
	Seq             int64  `gorm:"not null;index"` // insertion order
	Name            string `gorm:"size:128;not null"`
	URL             string `gorm:"size:512;not null"`
	ClaimSelector   string `gorm:"size:255;not null"`
	CaptchaSelector string `gorm:"size:255"`
	CooldownMinutes int    `gorm:"not null"`
	Enabled         bool   `gorm:"not null;index"`
	Builtin         bool   `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Cooldown returns the faucet's cooldown as a duration.
func (f *Faucet) Cooldown() time.Duration {
	return time.Duration(f.CooldownMinutes) * time.Minute
}
