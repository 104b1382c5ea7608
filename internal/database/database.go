package database

import (
	"strings"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pathakanu/nhacnho/internal/model"
)

// SQLiteFile is used when no DATABASE_URL is configured.
const SQLiteFile = "reminders.db"

// New creates a GORM database connection.
// When databaseURL is provided PostgreSQL is used, otherwise SQLite is used.
func New(databaseURL string, log *zap.Logger) (*gorm.DB, error) {
	if databaseURL != "" {
		return Open(postgres.Open(databaseURL), log)
	}
	return Open(sqlite.Open(SQLiteFile), log)
}

// Open connects through dialector and migrates the reminder schema.
func Open(dialector gorm.Dialector, log *zap.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&model.Reminder{}); err != nil {
		return nil, err
	}

	logBackend(db, log)
	return db, nil
}

func logBackend(db *gorm.DB, log *zap.Logger) {
	if log == nil {
		return
	}
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		log.Info("database: connected to PostgreSQL")
	case "sqlite":
		log.Info("database: using SQLite")
	default:
		log.Info("database: connected", zap.String("dialector", dialector))
	}
}
