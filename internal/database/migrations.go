package database

import (
	"errors"
	"time"

	"github.com/kritsadaskt/ananta-custom-diamond/internal/diamonds"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationTrimDiamondGradingFields = "2025-06-02_trim_diamond_grading_fields"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationTrimDiamondGradingFields, apply: trimDiamondGradingFields},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows imported before the feed decoder trimmed values can carry padding that
// breaks ordering on the grading columns.
func trimDiamondGradingFields(db *gorm.DB) error {
	return db.Model(&diamonds.Diamond{}).
		Where("1 = 1").
		Updates(map[string]any{
			"shape":   gorm.Expr("TRIM(shape)"),
			"color":   gorm.Expr("TRIM(color)"),
			"clarity": gorm.Expr("TRIM(clarity)"),
			"cut":     gorm.Expr("TRIM(cut)"),
		}).Error
}
