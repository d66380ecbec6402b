package database

import (
	"github.com/AstroMined/debtonator/internal/domain"

	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.FeatureFlag{},
	)
}
