package db

import (
	"fmt"

	"github.com/zulandar/dripyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Faucet{},
		&models.Session{},
		&models.SessionFaucet{},
		&models.ClaimAttempt{},
		&models.EarningsRecord{},
		&models.Withdrawal{},
		&models.WithdrawalAllocation{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedFaucets inserts built-in faucets that are not present yet. Existing
// rows are left untouched so operator enable/disable choices survive
// restarts. Returns the number of rows inserted.
func SeedFaucets(db *gorm.DB, faucets []models.Faucet) (int, error) {
	if len(faucets) == 0 {
		return 0, nil
	}

	inserted := 0
	err := db.Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&models.Faucet{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("read max seq: %w", err)
		}

		seen := make(map[string]bool, len(faucets))
		for _, f := range faucets {
			if seen[f.ID] {
				continue
			}
			seen[f.ID] = true

			row := f
			row.Seq = maxSeq + 1
			row.Builtin = true
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if result.Error != nil {
				return fmt.Errorf("seed faucet %q: %w", f.ID, result.Error)
			}
			if result.RowsAffected > 0 {
				maxSeq++
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("db: %w", err)
	}
	return inserted, nil
}
