package database

import (
	"spendflow/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM. TranslateError
// is required: the request-id allocator relies on gorm.ErrDuplicatedKey to
// detect a lost counter-seeding race.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}

	// Auto-migrate core models
	err = db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Request{},
		&model.RequestItem{},
		&model.RequestQuote{},
		&model.Approval{},
		&model.RequestCounter{},
		&model.InventoryItem{},
		&model.InventoryTransaction{},
		&model.RequestInventoryItem{},
		&model.InventoryRequest{},
		&model.InventoryRequestItem{},
		&model.Notification{},
	)
	if err != nil {
		log.Warn().Err(err).Msg("failed to auto-migrate models")
	}

	return db, nil
}
