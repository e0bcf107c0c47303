package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/shipyard/internal/profiles"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationEncodeLegacyProfileTags = "2025-03-01_encode_legacy_profile_tags"
	migrationCanonicalizeRoles       = "2025-04-12_canonicalize_profile_roles"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type dataMigration struct {
	name  string
	apply func(*gorm.DB) error
}

// dataMigrations run in order, once each, after the schema is migrated.
var dataMigrations = []dataMigration{
	{name: migrationEncodeLegacyProfileTags, apply: encodeLegacyProfileTags},
	{name: migrationCanonicalizeRoles, apply: canonicalizeProfileRoles},
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, migration := range dataMigrations {
		applied, err := migrationApplied(db, migration.name)
		if err != nil {
			return fmt.Errorf("database: check migration %s: %w", migration.name, err)
		}
		if applied {
			continue
		}
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: time.Now().UTC().Unix()}).Error
		})
		if err != nil {
			return fmt.Errorf("database: apply migration %s: %w", migration.name, err)
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var record migrationRecord
	err := db.Where("name = ?", name).Take(&record).Error
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false, nil
	default:
		return false, err
	}
}

type legacyProfileRow struct {
	ProfileID string `gorm:"column:profile_id"`
	Role      string `gorm:"column:role"`
	Tags      string `gorm:"column:tags"`
}

func loadLegacyProfileRows(db *gorm.DB, column string) ([]legacyProfileRow, error) {
	var rows []legacyProfileRow
	err := db.Table(profiles.Profile{}.TableName()).Select("profile_id", column).Find(&rows).Error
	return rows, err
}

// encodeLegacyProfileTags rewrites comma-separated tag columns as JSON arrays.
func encodeLegacyProfileTags(db *gorm.DB) error {
	rows, err := loadLegacyProfileRows(db, "tags")
	if err != nil {
		return err
	}
	for _, row := range rows {
		if strings.HasPrefix(strings.TrimSpace(row.Tags), "[") {
			continue
		}
		encoded, err := profiles.TagList(profiles.NormalizeTags(row.Tags)).Value()
		if err != nil {
			return err
		}
		if err := db.Table(profiles.Profile{}.TableName()).
			Where("profile_id = ?", row.ProfileID).
			Update("tags", encoded).Error; err != nil {
			return err
		}
	}
	return nil
}

// canonicalizeProfileRoles replaces localized or unknown stored roles with canonical ones.
func canonicalizeProfileRoles(db *gorm.DB) error {
	rows, err := loadLegacyProfileRows(db, "role")
	if err != nil {
		return err
	}
	for _, row := range rows {
		resolved := profiles.ResolveRole(row.Role)
		if string(resolved) == row.Role {
			continue
		}
		if err := db.Table(profiles.Profile{}.TableName()).
			Where("profile_id = ?", row.ProfileID).
			Update("role", string(resolved)).Error; err != nil {
			return err
		}
	}
	return nil
}
