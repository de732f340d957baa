package storage

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"guild-warden/internal/config"
	"guild-warden/internal/logger"
	"guild-warden/internal/models"
)

// Open connects to the configured database
func Open(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Database)
	if err != nil {
		return nil, err
	}

	logger.Infof("Connecting to %s database", cfg.Database.Driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(cfg.Logger.Level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get SQL DB: %w", err)
	}

	if strings.ToLower(cfg.Database.Driver) == "sqlite" {
		// sqlite serializes writers, a single connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logger.Infof("Database connection established successfully")
	return db, nil
}

func dialectorFor(dc config.DatabaseConfig) (gorm.Dialector, error) {
	switch strings.ToLower(dc.Driver) {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=UTC",
			dc.Username, dc.Password, dc.Host, dc.Port, dc.DBName, dc.Charset)
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			dc.Host, dc.Username, dc.Password, dc.DBName, dc.Port, dc.SSLMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dc.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", dc.Driver)
	}
}

// Tables lists every persisted model in creation order
func Tables() []interface{} {
	return []interface{}{
		&models.QuarantineRecord{},
		&models.RejoinAbuseCounter{},
		&models.ScheduledPermaban{},
		&models.MuteRecord{},
	}
}

// Migrate creates or updates every table
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Tables()...); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}
	return nil
}

// Reset drops and recreates every table
func Reset(db *gorm.DB) error {
	if err := db.Migrator().DropTable(Tables()...); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return Migrate(db)
}

// Store groups the repositories sharing one connection
type Store struct {
	DB          *gorm.DB
	Quarantines *QuarantineRepository
	Rejoins     *RejoinRepository
	Permabans   *PermabanRepository
	Mutes       *MuteRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		DB:          db,
		Quarantines: NewQuarantineRepository(db),
		Rejoins:     NewRejoinRepository(db),
		Permabans:   NewPermabanRepository(db),
		Mutes:       NewMuteRepository(db),
	}
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
