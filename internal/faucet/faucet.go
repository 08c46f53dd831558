// Package faucet is the catalog of reward endpoints a session can claim
// from. Faucets are created by seeding or operator submission and are never
// deleted; disabling is the removal path.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/zulandar/dripyard/internal/db"
	"github.com/zulandar/dripyard/internal/logger"
	"github.com/zulandar/dripyard/internal/models"
	"gorm.io/gorm"
)

// DefaultCooldownMinutes applies when a submission omits the cooldown.
const DefaultCooldownMinutes = 60

// ErrNotFound is returned when no faucet has the requested id.
var ErrNotFound = errors.New("faucet: not found")

// ValidationError reports a rejected faucet definition.
type ValidationError struct {
	Field     string
	Reason    string
	Duplicate bool // id collides with an existing faucet
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("faucet: invalid %s: %s", e.Field, e.Reason)
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	invalidIDChar = regexp.MustCompile(`[^a-z0-9-]`)
)

// DeriveID turns a display name into a stable faucet id: lowercase,
// whitespace runs become "-", anything outside [a-z0-9-] is dropped.
func DeriveID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = whitespaceRun.ReplaceAllString(id, "-")
	return invalidIDChar.ReplaceAllString(id, "")
}

// Validate checks the required fields of f and fills in its id when empty.
func Validate(f *models.Faucet) error {
	f.Name = strings.TrimSpace(f.Name)
	f.URL = strings.TrimSpace(f.URL)
	f.ClaimSelector = strings.TrimSpace(f.ClaimSelector)
	f.CaptchaSelector = strings.TrimSpace(f.CaptchaSelector)

	if f.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if f.URL == "" {
		return &ValidationError{Field: "url", Reason: "is required"}
	}
	u, err := url.Parse(f.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Reason: fmt.Sprintf("%q is not an http(s) URL", f.URL)}
	}
	if f.ClaimSelector == "" {
		return &ValidationError{Field: "claim_selector", Reason: "is required"}
	}
	if f.CooldownMinutes <= 0 {
		return &ValidationError{Field: "cooldown_minutes", Reason: "must be positive"}
	}

	derived := DeriveID(f.Name)
	if derived == "" {
		return &ValidationError{Field: "name", Reason: "yields an empty id"}
	}
	if f.ID == "" {
		f.ID = derived
	} else if f.ID != derived {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("%q does not match %q derived from name", f.ID, derived)}
	}
	return nil
}

// Registry stores faucet definitions.
type Registry struct {
	db  *gorm.DB
	log zerolog.Logger
}

// NewRegistry returns a registry backed by gdb.
func NewRegistry(gdb *gorm.DB) *Registry {
	return &Registry{db: gdb, log: logger.WithComponent("faucet")}
}

// Add validates f and stores it after every existing faucet.
func (r *Registry) Add(ctx context.Context, f models.Faucet) (*models.Faucet, error) {
	if err := Validate(&f); err != nil {
		return nil, err
	}
	f.Builtin = false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Faucet{}).Where("id = ?", f.ID).Count(&existing).Error; err != nil {
			return fmt.Errorf("faucet: check id %s: %w", f.ID, err)
		}
		if existing > 0 {
			return &ValidationError{Field: "id", Reason: fmt.Sprintf("%q already exists", f.ID), Duplicate: true}
		}

		var maxSeq int64
		if err := tx.Model(&models.Faucet{}).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("faucet: read max seq: %w", err)
		}
		f.Seq = maxSeq + 1

		return create(tx, &f)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info().Str("faucet", f.ID).Str("url", f.URL).Int("cooldown_minutes", f.CooldownMinutes).Msg("faucet added")
	return &f, nil
}

// create inserts f. A concurrent Add that wins the race between the id
// check and the insert surfaces here as a duplicate key.
func create(tx *gorm.DB, f *models.Faucet) error {
	err := tx.Create(f).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &ValidationError{Field: "id", Reason: fmt.Sprintf("%q already exists", f.ID), Duplicate: true}
	}
	if err != nil {
		return fmt.Errorf("faucet: create %s: %w", f.ID, err)
	}
	return nil
}

// List returns every faucet in insertion order.
func (r *Registry) List(ctx context.Context) ([]models.Faucet, error) {
	var faucets []models.Faucet
	if err := r.db.WithContext(ctx).Order("seq ASC").Find(&faucets).Error; err != nil {
		return nil, fmt.Errorf("faucet: list: %w", err)
	}
	return faucets, nil
}

// Get returns the faucet with the given id.
func (r *Registry) Get(ctx context.Context, id string) (*models.Faucet, error) {
	var f models.Faucet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("faucet: get %s: %w", id, err)
	}
	return &f, nil
}

// SetEnabled toggles a faucet. It is the only mutation after creation.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (*models.Faucet, error) {
	result := r.db.WithContext(ctx).Model(&models.Faucet{}).Where("id = ?", id).Update("enabled", enabled)
	if result.Error != nil {
		return nil, fmt.Errorf("faucet: set enabled %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		// MySQL counts changed rows, not matched ones.
		if _, err := r.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	r.log.Info().Str("faucet", id).Bool("enabled", enabled).Msg("faucet toggled")
	return r.Get(ctx, id)
}

// Seed inserts the given faucets when missing. Existing rows keep their
// current enabled flag.
func (r *Registry) Seed(ctx context.Context, faucets []models.Faucet) (int, error) {
	n, err := db.SeedFaucets(r.db.WithContext(ctx), faucets)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.log.Info().Int("count", n).Msg("seeded faucets")
	}
	return n, nil
}

// Count returns the number of registered faucets.
func (r *Registry) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Faucet{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("faucet: count: %w", err)
	}
	return n, nil
}

// Enabled resolves ids to enabled faucets, preserving the requested order
// and dropping repeats. An empty ids selects every enabled faucet. Ids that
// are unknown or disabled are returned in missing.
func (r *Registry) Enabled(ctx context.Context, ids []string) (found []models.Faucet, missing []string, err error) {
	q := r.db.WithContext(ctx).Where("enabled = ?", true).Order("seq ASC")
	if len(ids) == 0 {
		if err := q.Find(&found).Error; err != nil {
			return nil, nil, fmt.Errorf("faucet: list enabled: %w", err)
		}
		return found, nil, nil
	}

	var rows []models.Faucet
	if err := q.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("faucet: resolve enabled: %w", err)
	}
	byID := make(map[string]models.Faucet, len(rows))
	for _, f := range rows {
		byID[f.ID] = f
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if f, ok := byID[id]; ok {
			found = append(found, f)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}
